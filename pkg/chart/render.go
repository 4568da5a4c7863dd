package chart

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	grob "github.com/MetalBlueberry/go-plotly/generated/v2.34.0/graph_objects"
	"github.com/MetalBlueberry/go-plotly/pkg/types"
	meter "github.com/raterudder/metersync/pkg/types"
)

const axisLayout = "2006-01-02 15:04:05"

const gridColor types.Color = "#ebf0f8"

func axisRange(from, to time.Time) []string {
	return []string{from.Format(axisLayout), to.Format(axisLayout)}
}

// Figure builds the Plotly figure for column: one scatter trace per view and
// a button per view that shows only its trace and moves the x-axis to the
// view's range. The first view is visible initially.
func Figure(d meter.Dataset, column string, now time.Time) (*grob.Fig, error) {
	views, err := Views(d, column, now)
	if err != nil {
		return nil, err
	}

	fig := &grob.Fig{
		Layout: &grob.Layout{
			Xaxis: &grob.LayoutXaxis{
				Title:     &grob.LayoutXaxisTitle{Text: "Date"},
				Gridcolor: gridColor,
			},
			Yaxis: &grob.LayoutYaxis{
				Title:     &grob.LayoutYaxisTitle{Text: types.S(column + " (kWh)")},
				Gridcolor: gridColor,
			},
			PaperBgcolor: "white",
			PlotBgcolor:  "white",
		},
	}
	menu := grob.LayoutUpdatemenu{
		Type:       grob.LayoutUpdatemenuTypeButtons,
		Direction:  grob.LayoutUpdatemenuDirectionLeft,
		Showactive: types.True,
		X:          types.N(0.5),
		Xanchor:    grob.LayoutUpdatemenuXanchorCenter,
		Y:          types.N(1.15),
		Yanchor:    grob.LayoutUpdatemenuYanchorTop,
	}
	for i, v := range views {
		x := make([]string, 0, len(v.Points))
		y := make([]*float64, 0, len(v.Points))
		for _, p := range v.Points {
			x = append(x, p.X.Format(axisLayout))
			y = append(y, p.Y)
		}
		fig.AddTraces(&grob.Scatter{
			Mode:    grob.ScatterModeLines + "+" + grob.ScatterModeMarkers,
			Name:    types.S(v.Name),
			X:       types.DataArray(x),
			Y:       types.DataArray(y),
			Visible: i == 0,
		})

		visible := make([]bool, len(views))
		visible[i] = true
		menu.Buttons = append(menu.Buttons, grob.LayoutUpdatemenuButton{
			Label:  types.S(v.Name),
			Method: grob.LayoutUpdatemenuButtonMethodUpdate,
			Args: []any{
				map[string]any{"visible": visible},
				map[string]any{"xaxis.range": axisRange(v.From, v.To)},
			},
		})
	}
	if len(views) > 0 {
		fig.Layout.Xaxis.Range = axisRange(views[0].From, views[0].To)
	}
	fig.Layout.Updatemenus = []grob.LayoutUpdatemenu{menu}
	return fig, nil
}

var page = template.Must(template.New("chart").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Column}}</title>
<script src="{{.Script}}"></script>
</head>
<body>
<div id="chart" style="height:100vh;width:100%;"></div>
<script>
var figure = {{.Figure}};
Plotly.newPlot("chart", figure.data, figure.layout, {responsive: true});
</script>
</body>
</html>
`))

// Render writes the chart document for column to w. plotly.js is loaded from
// the CDN matching the figure's schema version.
func Render(w io.Writer, d meter.Dataset, column string, now time.Time) error {
	fig, err := Figure(d, column, now)
	if err != nil {
		return err
	}
	return page.Execute(w, struct {
		Column string
		Script string
		Figure *grob.Fig
	}{
		Column: column,
		Script: fig.Info().Cdn,
		Figure: fig,
	})
}

// Write renders column to {dir}/{column}.html, replacing any previous
// document, and returns the path.
func Write(dir string, d meter.Dataset, column string, now time.Time) (string, error) {
	if column == "" || strings.ContainsAny(column, `/\`) || column == "." || column == ".." {
		return "", fmt.Errorf("%w: %q", ErrUnknownColumn, column)
	}
	var buf bytes.Buffer
	if err := Render(&buf, d, column, now); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create chart dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, column+".html")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
