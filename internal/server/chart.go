package server

import (
	"bytes"
	"encoding/base64"
	"errors"
	"html/template"
	"io"
	"strconv"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/ironsheep/craft-text-demo/internal/ocr"
)

// Confidence bands used to colour the bars.
const (
	goodConfidence   = 0.8
	mediumConfidence = 0.5
)

// ErrNoRecords is returned when there is nothing to chart.
var ErrNoRecords = errors.New("no records to chart")

// ConfidenceChart renders one bar per word, labelled with the word's
// 1-based index, as a PNG.
func ConfidenceChart(w io.Writer, records []ocr.Record) error {
	if len(records) == 0 {
		return ErrNoRecords
	}

	bars := make([]chart.Value, len(records))
	for i, r := range records {
		c := confidenceColor(r.Confidence)
		bars[i] = chart.Value{
			Label: strconv.Itoa(i + 1),
			Value: r.Confidence,
			Style: chart.Style{FillColor: c, StrokeColor: c},
		}
	}

	width := 100 + 40*len(records)
	if width < 480 {
		width = 480
	}

	graph := chart.BarChart{
		Title:      "Word confidence",
		Width:      width,
		Height:     320,
		BarWidth:   30,
		BarSpacing: 10,
		Background: chart.Style{
			Padding: chart.Box{Top: 40},
		},
		YAxis: chart.YAxis{
			Name: "Confidence",
			Range: &chart.ContinuousRange{
				Min: 0,
				Max: 1,
			},
		},
		Bars: bars,
	}
	return graph.Render(chart.PNG, w)
}

func confidenceColor(conf float64) drawing.Color {
	switch {
	case conf >= goodConfidence:
		return chart.ColorAlternateGreen
	case conf >= mediumConfidence:
		return chart.ColorOrange
	default:
		return chart.ColorRed
	}
}

// chartDataURL renders the chart as a data URL for an <img> tag.
func chartDataURL(records []ocr.Record) (template.URL, error) {
	var buf bytes.Buffer
	if err := ConfidenceChart(&buf, records); err != nil {
		return "", err
	}
	return template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())), nil
}
