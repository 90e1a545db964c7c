package codec

// CameraDescriptor is one stream announced by a discovery broadcast.
type CameraDescriptor struct {
	Label     string `json:"label"`
	StreamURL string `json:"stream_url"`
	Codec     string `json:"codec"`
}

// DefaultCodec is assumed when a discovery entry names none.
const DefaultCodec = "H264"

// Discovery message tags accepted in the "t" field.
const (
	TagCam          = "cam"
	TagCameraStatus = "camera_status"
)

// DecodeDiscovery parses a camera announcement. Entries without a stream URL
// are dropped; a valid message with no usable entries yields an empty list.
//
// Each entry may use the short keys (u, l, c) or the long ones
// (rtsp_url, label, codec); the short key wins when both are present.
func DecodeDiscovery(data []byte) ([]CameraDescriptor, error) {
	msg, _, err := decodeObject(data)
	if err != nil {
		return nil, err
	}

	tag, _ := msg["t"].(string)
	if tag != TagCam && tag != TagCameraStatus {
		return nil, decodeErr("not a discovery message (t=%q)", tag)
	}

	entries, _ := msg["cams"].([]any)
	cams := make([]CameraDescriptor, 0, len(entries))
	for _, e := range entries {
		entry, ok := e.(map[string]any)
		if !ok {
			continue
		}
		url := stringField(entry, "u", "rtsp_url")
		if url == "" {
			continue
		}
		label := stringField(entry, "l", "label")
		if label == "" {
			label = url
		}
		codec := stringField(entry, "c", "codec")
		if codec == "" {
			codec = DefaultCodec
		}
		cams = append(cams, CameraDescriptor{Label: label, StreamURL: url, Codec: codec})
	}
	return cams, nil
}
