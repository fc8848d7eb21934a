package enrich

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	DefaultChartWidth  = 800
	DefaultChartHeight = 400
)

// Chart.js chart types understood by GoChartRenderer
const (
	ChartTypeBar      = "bar"
	ChartTypeLine     = "line"
	ChartTypePie      = "pie"
	ChartTypeDoughnut = "doughnut"
)

// GoChartRenderer draws a subset of Chart.js configurations with go-chart:
// type, data.labels, data.datasets[].{label,data,backgroundColor,borderColor}
// and options.plugins.title.text
type GoChartRenderer struct {
	Width  int
	Height int
}

func NewGoChartRenderer() *GoChartRenderer {
	return &GoChartRenderer{Width: DefaultChartWidth, Height: DefaultChartHeight}
}

type dataset struct {
	label  string
	values []float64
	fills  []drawing.Color
	stroke drawing.Color
}

type chartSpec struct {
	kind     string
	title    string
	labels   []string
	datasets []dataset
}

type pngRenderable interface {
	Render(rp chart.RendererProvider, w io.Writer) error
}

func (r *GoChartRenderer) Render(ctx context.Context, config map[string]any) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	spec, err := parseChartSpec(config)
	if err != nil {
		return nil, err
	}

	var graph pngRenderable
	switch spec.kind {
	case ChartTypeBar:
		graph = r.bar(spec)
	case ChartTypeLine:
		graph = r.line(spec)
	case ChartTypePie:
		graph = chart.PieChart{Title: spec.title, Width: r.Width, Height: r.Height, Values: spec.sliceValues()}
	case ChartTypeDoughnut:
		graph = chart.DonutChart{Title: spec.title, Width: r.Width, Height: r.Height, Values: spec.sliceValues()}
	default:
		return nil, fmt.Errorf("unsupported chart type %q", spec.kind)
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render %s chart: %w", spec.kind, err)
	}
	return buf.Bytes(), nil
}

// bar draws the first dataset; go-chart bar charts carry a single series.
// The value axis always includes zero.
func (r *GoChartRenderer) bar(spec *chartSpec) chart.BarChart {
	ds := spec.datasets[0]
	bars := make([]chart.Value, len(ds.values))
	for i, v := range ds.values {
		bars[i] = chart.Value{Value: v, Label: spec.label(i)}
		if c := ds.fill(i); !c.IsZero() {
			bars[i].Style = chart.Style{FillColor: c, StrokeColor: c}
		}
	}

	lo, hi := bounds(ds.values)
	lo, hi = min(0, lo), max(0, hi)
	if hi == lo {
		hi = lo + 1
	}

	return chart.BarChart{
		Title:  spec.title,
		Width:  r.Width,
		Height: r.Height,
		Bars:   bars,
		YAxis:  chart.YAxis{Range: &chart.ContinuousRange{Min: lo, Max: hi}},
	}
}

// line plots every dataset against its index. go-chart derives the x range
// from the ticks, so one tick per position is emitted and a single position is
// padded on both sides.
func (r *GoChartRenderer) line(spec *chartSpec) *chart.Chart {
	points := len(spec.labels)
	var all []float64
	for _, ds := range spec.datasets {
		points = max(points, len(ds.values))
		all = append(all, ds.values...)
	}

	ticks := make([]chart.Tick, 0, points+2)
	if points <= 1 {
		ticks = append(ticks, chart.Tick{Value: -1})
	}
	for i := 0; i < points; i++ {
		ticks = append(ticks, chart.Tick{Value: float64(i), Label: spec.label(i)})
	}
	if points <= 1 {
		ticks = append(ticks, chart.Tick{Value: 1})
	}

	graph := &chart.Chart{
		Title:  spec.title,
		Width:  r.Width,
		Height: r.Height,
		XAxis:  chart.XAxis{Ticks: ticks},
	}
	if lo, hi := bounds(all); len(all) > 0 && lo == hi {
		graph.YAxis.Range = &chart.ContinuousRange{Min: lo - 1, Max: hi + 1}
	}

	for _, ds := range spec.datasets {
		xs := make([]float64, len(ds.values))
		for i := range xs {
			xs[i] = float64(i)
		}
		series := chart.ContinuousSeries{Name: ds.label, XValues: xs, YValues: ds.values}
		if !ds.stroke.IsZero() {
			series.Style = chart.Style{StrokeColor: ds.stroke, StrokeWidth: 2}
		}
		graph.Series = append(graph.Series, series)
	}

	if len(spec.datasets) > 1 {
		graph.Elements = []chart.Renderable{chart.Legend(graph)}
	}
	return graph
}

// bounds returns the smallest and largest value, or 0, 0 for no values
func bounds(values []float64) (lo, hi float64) {
	for i, v := range values {
		if i == 0 || v < lo {
			lo = v
		}
		if i == 0 || v > hi {
			hi = v
		}
	}
	return lo, hi
}

// sliceValues maps the first dataset onto labelled pie/doughnut slices
func (s *chartSpec) sliceValues() []chart.Value {
	ds := s.datasets[0]
	values := make([]chart.Value, 0, len(ds.values))
	for i, v := range ds.values {
		value := chart.Value{Value: v, Label: s.label(i)}
		if c := ds.fill(i); !c.IsZero() {
			value.Style = chart.Style{FillColor: c}
		}
		values = append(values, value)
	}
	return values
}

func (s *chartSpec) label(i int) string {
	if i < len(s.labels) {
		return s.labels[i]
	}
	return ""
}

func (d *dataset) fill(i int) drawing.Color {
	switch len(d.fills) {
	case 0:
		return drawing.Color{}
	case 1:
		return d.fills[0]
	}
	if i < len(d.fills) {
		return d.fills[i]
	}
	return drawing.Color{}
}

func parseChartSpec(config map[string]any) (*chartSpec, error) {
	kind, _ := config["type"].(string)
	spec := &chartSpec{kind: strings.ToLower(strings.TrimSpace(kind))}
	if spec.kind == "" {
		return nil, fmt.Errorf("chart config has no type")
	}

	data, ok := config["data"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("chart config has no data object")
	}

	if labels, ok := data["labels"].([]any); ok {
		for _, l := range labels {
			spec.labels = append(spec.labels, fmt.Sprint(l))
		}
	}

	rawSets, _ := data["datasets"].([]any)
	for i, raw := range rawSets {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("dataset %d is not an object", i)
		}
		ds, err := parseDataset(m)
		if err != nil {
			return nil, fmt.Errorf("dataset %d: %w", i, err)
		}
		spec.datasets = append(spec.datasets, ds)
	}
	if len(spec.datasets) == 0 {
		return nil, fmt.Errorf("chart config has no datasets")
	}

	spec.title = titleOf(config)
	return spec, nil
}

func parseDataset(m map[string]any) (dataset, error) {
	ds := dataset{}
	ds.label, _ = m["label"].(string)

	points, _ := m["data"].([]any)
	if len(points) == 0 {
		return ds, fmt.Errorf("no data points")
	}
	for j, p := range points {
		v, err := toFloat(p)
		if err != nil {
			return ds, fmt.Errorf("point %d: %w", j, err)
		}
		ds.values = append(ds.values, v)
	}

	switch bg := m["backgroundColor"].(type) {
	case string:
		ds.fills = []drawing.Color{parseColor(bg)}
	case []any:
		for _, c := range bg {
			s, _ := c.(string)
			ds.fills = append(ds.fills, parseColor(s))
		}
	}
	if border, ok := m["borderColor"].(string); ok {
		ds.stroke = parseColor(border)
	}

	return ds, nil
}

// titleOf reads options.plugins.title.text (Chart.js v3+) or options.title.text (v2)
func titleOf(config map[string]any) string {
	options, _ := config["options"].(map[string]any)
	if options == nil {
		return ""
	}
	if plugins, ok := options["plugins"].(map[string]any); ok {
		if t := textOf(plugins["title"]); t != "" {
			return t
		}
	}
	return textOf(options["title"])
}

func textOf(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	switch t := m["text"].(type) {
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, " ")
	}
	return ""
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("not a number: %v", v)
}

// parseColor accepts #rgb, #rrggbb, rgb(), rgba() and basic color names. Unknown input yields the zero color.
func parseColor(s string) drawing.Color {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "#") && len(s) != 4 && len(s) != 7 {
		return drawing.Color{}
	}
	if s == "" {
		return drawing.Color{}
	}
	return drawing.ParseColor(s)
}
