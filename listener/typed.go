package listener

import (
	"net"

	"github.com/sendergui/groundstation/codec"
)

// MinFrameBuffer is the smallest buffer used for image frames.
const MinFrameBuffer = 64 * 1024

// Discovery builds the camera-discovery listener. Only non-empty camera
// lists are published; each one replaces the previous list downstream.
func Discovery(cfg Config, publish func([]codec.CameraDescriptor)) *Listener {
	cfg.Broadcast = true
	if cfg.Name == "" {
		cfg.Name = "discovery"
	}
	cfg.Handler = func(payload []byte, _ net.Addr) error {
		cams, err := codec.DecodeDiscovery(payload)
		if err != nil {
			return err
		}
		if len(cams) > 0 {
			publish(cams)
		}
		return nil
	}
	return New(cfg)
}

// Telemetry builds the telemetry listener. Structured packets go to
// onTelemetry; any packet carrying numeric lat and lon also goes to onPosition.
func Telemetry(cfg Config, onTelemetry func(codec.Telemetry), onPosition func(lat, lon float64)) *Listener {
	if cfg.Name == "" {
		cfg.Name = "telemetry"
	}
	cfg.Handler = func(payload []byte, _ net.Addr) error {
		pkt, err := codec.DecodeTelemetry(payload)
		if err != nil {
			return err
		}
		if pkt.Structured() && onTelemetry != nil {
			onTelemetry(pkt)
		}
		if lat, lon, ok := pkt.Position(); ok && onPosition != nil {
			onPosition(lat, lon)
		}
		return nil
	}
	return New(cfg)
}

// Frames builds the image-frame listener. Each datagram is published as an
// owned copy of its bytes; nothing is decoded here.
func Frames(cfg Config, publish func([]byte)) *Listener {
	if cfg.Name == "" {
		cfg.Name = "frames"
	}
	if cfg.BufferSize < MinFrameBuffer {
		cfg.BufferSize = MinFrameBuffer
	}
	cfg.Handler = func(payload []byte, _ net.Addr) error {
		frame := make([]byte, len(payload))
		copy(frame, payload)
		publish(frame)
		return nil
	}
	return New(cfg)
}
