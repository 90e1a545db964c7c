package tracklog

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/peterstace/simplefeatures/geom"
	"github.com/xuri/excelize/v2"

	"github.com/sendergui/groundstation/gps"
)

var (
	positionHeader = []string{"Timestamp", "Latitude", "Longitude", "X (EPSG:3857)", "Y (EPSG:3857)"}
	eventHeader    = []string{"Timestamp", "Type", "Source", "Detail"}
)

func positionRow(s Sample) []string {
	return []string{
		s.RecordedAt.Format(time.RFC3339Nano),
		strconv.FormatFloat(s.Latitude, 'f', 7, 64),
		strconv.FormatFloat(s.Longitude, 'f', 7, 64),
		strconv.FormatFloat(s.X, 'f', 2, 64),
		strconv.FormatFloat(s.Y, 'f', 2, 64),
	}
}

func eventRow(e Entry) []string {
	return []string{e.RecordedAt.Format(time.RFC3339Nano), e.Type, e.Source, e.Detail}
}

// ExportCSV returns a ZIP holding positions.csv and events.csv.
func ExportCSV(samples []Sample, entries []Entry) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)

	rows := make([][]string, 0, len(samples)+1)
	rows = append(rows, positionHeader)
	for _, s := range samples {
		rows = append(rows, positionRow(s))
	}
	if err := writeCSV(w, "positions.csv", rows); err != nil {
		return nil, err
	}

	rows = make([][]string, 0, len(entries)+1)
	rows = append(rows, eventHeader)
	for _, e := range entries {
		rows = append(rows, eventRow(e))
	}
	if err := writeCSV(w, "events.csv", rows); err != nil {
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zip writer: %w", err)
	}
	return buf, nil
}

func writeCSV(z *zip.Writer, name string, rows [][]string) error {
	f, err := z.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create %s in zip: %w", name, err)
	}
	cw := csv.NewWriter(f)
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// ExportXLSX returns a workbook with Positions and Events sheets.
func ExportXLSX(samples []Sample, entries []Entry) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", "Positions"); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet("Events"); err != nil {
		return nil, fmt.Errorf("failed to add events sheet: %w", err)
	}

	positions := make([][]string, 0, len(samples))
	for _, s := range samples {
		positions = append(positions, positionRow(s))
	}
	if err := fillSheet(f, "Positions", positionHeader, positions, bold); err != nil {
		return nil, err
	}

	evts := make([][]string, 0, len(entries))
	for _, e := range entries {
		evts = append(evts, eventRow(e))
	}
	if err := fillSheet(f, "Events", eventHeader, evts, bold); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf, nil
}

func fillSheet(f *excelize.File, sheet string, header []string, rows [][]string, headerStyle int) error {
	cells := make([]any, len(header))
	for i, h := range header {
		cells[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &cells); err != nil {
		return fmt.Errorf("failed to write %s header: %w", sheet, err)
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("failed to style %s header: %w", sheet, err)
	}

	for i, row := range rows {
		vals := make([]any, len(row))
		for j, v := range row {
			// numbers go in as numbers so the sheet can chart them
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				vals[j] = n
			} else {
				vals[j] = v
			}
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(len(header))
	return f.SetColWidth(sheet, "A", lastCol, 20)
}

// PathLineString builds the recorded track as a lon/lat LineString.
// Consecutive duplicate fixes are collapsed; fewer than two distinct points
// give an empty LineString.
func PathLineString(samples []Sample) (geom.LineString, error) {
	coords := make([]float64, 0, 2*len(samples))
	for i, s := range samples {
		if i > 0 && s.Latitude == samples[i-1].Latitude && s.Longitude == samples[i-1].Longitude {
			continue
		}
		coords = append(coords, s.Longitude, s.Latitude)
	}
	if len(coords) < 4 {
		return geom.LineString{}, nil
	}
	ls, err := geom.NewLineString(geom.NewSequence(coords, geom.DimXY))
	if err != nil {
		return geom.LineString{}, fmt.Errorf("failed to build track: %w", err)
	}
	return ls, nil
}

// TrackLength sums great-circle distances between consecutive samples.
func TrackLength(samples []Sample) float64 {
	var total float64
	for i := 1; i < len(samples); i++ {
		a := gps.Position{Latitude: samples[i-1].Latitude, Longitude: samples[i-1].Longitude}
		b := gps.Position{Latitude: samples[i].Latitude, Longitude: samples[i].Longitude}
		total += gps.DistanceMeters(a, b)
	}
	return total
}

// Filename builds a download name for an export.
func Filename(session, ext string, now time.Time) string {
	short := session
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("track_%s_%s.%s", short, now.Format("20060102_150405"), ext)
}
