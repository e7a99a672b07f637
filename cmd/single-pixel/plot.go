package main

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/chrissnell/globalbedo/internal/constants"
	"github.com/chrissnell/globalbedo/internal/observation"
	"github.com/chrissnell/globalbedo/internal/pipeline"
)

var bandColors = []color.Color{
	color.RGBA{R: 40, G: 120, B: 200, A: 255},
	color.RGBA{R: 200, G: 60, B: 40, A: 255},
	color.RGBA{R: 90, G: 160, B: 60, A: 255},
}

var bandNames = []string{"VIS", "NIR", "SW"}

// fitPoints returns, per band, the observed reflectance of every observation
// accepted in mode m against the reflectance modelled by its parameters.
func fitPoints(obs []pipeline.DatedObservation, m pipeline.ModeResult, strict bool) [constants.NumBands]plotter.XYs {
	var pts [constants.NumBands]plotter.XYs
	if !m.Inversion.Valid {
		return pts
	}
	opts := observation.Options{ComputeSnow: m.Mode == pipeline.ModeSnow, StrictInputChecks: strict}
	p := m.Inversion.Parameters
	for _, o := range obs {
		if observation.Check(o.Observation, opts) != observation.Accepted {
			continue
		}
		ob := o.Observation
		for b := 0; b < constants.NumBands; b++ {
			model := p[3*b] + p[3*b+1]*ob.KVol[b] + p[3*b+2]*ob.KGeo[b]
			pts[b] = append(pts[b], plotter.XY{X: ob.Reflectance[b], Y: model})
		}
	}
	return pts
}

// savePlot writes a modelled-against-observed reflectance plot of mode m.
func savePlot(path string, obs []pipeline.DatedObservation, m pipeline.ModeResult, strict bool) error {
	pts := fitPoints(obs, m, strict)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("BRDF fit (%s)", m.Mode)
	p.X.Label.Text = "Observed reflectance"
	p.Y.Label.Text = "Modelled reflectance"

	hi := 0.0
	for b, band := range pts {
		if len(band) == 0 {
			continue
		}
		for _, xy := range band {
			hi = max(hi, xy.X, xy.Y)
		}
		sc, err := plotter.NewScatter(band)
		if err != nil {
			return err
		}
		sc.GlyphStyle.Color = bandColors[b]
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(sc)
		p.Legend.Add(bandNames[b], sc)
	}

	diag, err := plotter.NewLine(plotter.XYs{{X: 0, Y: 0}, {X: hi, Y: hi}})
	if err != nil {
		return err
	}
	diag.Width = vg.Points(1)
	diag.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(diag)

	p.Legend.Top = true
	p.Legend.Left = true

	return p.Save(6*vg.Inch, 6*vg.Inch, path)
}
