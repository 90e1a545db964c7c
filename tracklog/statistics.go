package tracklog

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/sendergui/groundstation/gps"
)

// SeriesStats summarizes one data series.
type SeriesStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
}

// TrackStats describes a recorded track.
type TrackStats struct {
	Samples        int          `json:"samples"`
	LengthMeters   float64      `json:"length_m"`
	DurationSecond float64      `json:"duration_s"`
	Speed          *SeriesStats `json:"speed_mps,omitempty"`
}

// Describe computes series statistics. It returns nil for an empty series.
func Describe(data []float64) *SeriesStats {
	if len(data) == 0 {
		return nil
	}
	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)

	s := &SeriesStats{
		Count:  len(sorted),
		Min:    floats.Min(sorted),
		Max:    floats.Max(sorted),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
	}
	if len(sorted) == 1 {
		s.Mean = sorted[0]
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(sorted, nil)
	return s
}

// SegmentSpeeds returns the ground speed in m/s between consecutive
// samples. Segments without elapsed time are skipped.
func SegmentSpeeds(samples []Sample) []float64 {
	speeds := make([]float64, 0, len(samples))
	for i := 1; i < len(samples); i++ {
		dt := samples[i].RecordedAt.Sub(samples[i-1].RecordedAt).Seconds()
		if dt <= 0 {
			continue
		}
		a := gps.Position{Latitude: samples[i-1].Latitude, Longitude: samples[i-1].Longitude}
		b := gps.Position{Latitude: samples[i].Latitude, Longitude: samples[i].Longitude}
		speeds = append(speeds, gps.DistanceMeters(a, b)/dt)
	}
	return speeds
}

// Statistics summarizes samples, which must be in recording order.
func Statistics(samples []Sample) TrackStats {
	st := TrackStats{
		Samples:      len(samples),
		LengthMeters: TrackLength(samples),
		Speed:        Describe(SegmentSpeeds(samples)),
	}
	if len(samples) > 1 {
		st.DurationSecond = samples[len(samples)-1].RecordedAt.Sub(samples[0].RecordedAt).Seconds()
	}
	return st
}
