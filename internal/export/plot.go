package export

import (
	"fmt"
	"image/color"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var (
	referenceColor = color.RGBA{R: 0x88, G: 0x88, B: 0x88, A: 0xff}
	drivenColor    = color.RGBA{R: 0x00, G: 0x7a, B: 0xcc, A: 0xff}
	commandColor   = color.RGBA{R: 0xd9, G: 0x53, B: 0x19, A: 0xff}
)

// ExportPNG saves a path plot and a speed profile next to base. The image
// format follows the extension of base (.png when it has none); the files
// written are returned.
func ExportPNG(base string, data *ExportData) ([]string, error) {
	if data.Steps == 0 {
		return nil, fmt.Errorf("export: run %s has no recorded ticks", data.Run.ID)
	}
	ext := filepath.Ext(base)
	if ext == "" {
		ext = ".png"
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	pathFile := stem + "_path" + ext
	p, err := pathPlot(data)
	if err != nil {
		return nil, err
	}
	if err := p.Save(8*vg.Inch, 8*vg.Inch, pathFile); err != nil {
		return nil, fmt.Errorf("save path plot: %w", err)
	}

	speedFile := stem + "_speed" + ext
	p, err = speedPlot(data)
	if err != nil {
		return nil, err
	}
	if err := p.Save(14*vg.Inch, 6*vg.Inch, speedFile); err != nil {
		return nil, fmt.Errorf("save speed plot: %w", err)
	}
	return []string{pathFile, speedFile}, nil
}

func pathPlot(data *ExportData) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Run %s - Path", shortID(data.Run.ID))
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"
	p.Add(plotter.NewGrid())

	if len(data.Reference) > 1 {
		ref := make(plotter.XYs, len(data.Reference))
		for i, s := range data.Reference {
			ref[i] = plotter.XY{X: s.X, Y: s.Y}
		}
		line, err := plotter.NewLine(ref)
		if err != nil {
			return nil, err
		}
		line.Width = vg.Points(1)
		line.Color = referenceColor
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(line)
		p.Legend.Add("reference", line)
	}

	driven := make(plotter.XYs, len(data.States))
	for i, s := range data.States {
		driven[i] = plotter.XY{X: s.X, Y: s.Y}
	}
	line, err := plotter.NewLine(driven)
	if err != nil {
		return nil, err
	}
	line.Width = vg.Points(1.5)
	line.Color = drivenColor
	p.Add(line)
	p.Legend.Add("driven", line)

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

func speedPlot(data *ExportData) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Run %s - Speed", shortID(data.Run.ID))
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Speed (m/s) / Accel (m/s^2)"
	p.Add(plotter.NewGrid())

	speed := make(plotter.XYs, data.Steps)
	for i, s := range data.States {
		speed[i] = plotter.XY{X: data.Times[i], Y: s.Speed}
	}
	line, err := plotter.NewLine(speed)
	if err != nil {
		return nil, err
	}
	line.Width = vg.Points(1.5)
	line.Color = drivenColor
	p.Add(line)
	p.Legend.Add("speed", line)

	if len(data.Commands) > 0 && data.Steps > 0 {
		first := data.Ticks[0]
		scale := 0.0
		if data.Steps > 1 && data.Ticks[data.Steps-1] > first {
			scale = data.Times[data.Steps-1] / float64(data.Ticks[data.Steps-1]-first)
		}
		accel := make(plotter.XYs, 0, len(data.Commands))
		for _, c := range data.Commands {
			if c.Tick < first {
				continue
			}
			accel = append(accel, plotter.XY{X: float64(c.Tick-first) * scale, Y: c.Accel})
		}
		if len(accel) > 0 {
			cl, err := plotter.NewLine(accel)
			if err != nil {
				return nil, err
			}
			cl.Width = vg.Points(1)
			cl.Color = commandColor
			p.Add(cl)
			p.Legend.Add("accel cmd", cl)
		}
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
