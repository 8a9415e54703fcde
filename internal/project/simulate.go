// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package project

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/valyala/fastrand"

	"github.com/mlnoga/jigsaw/internal/bundle"
	"github.com/mlnoga/jigsaw/internal/camera"
)

// Parameters of a simulated aerial block
type SimulateOptions struct {
	Images          int     `json:"images"`          // frame cameras, laid out two per row
	GridSize        int     `json:"gridSize"`        // points per side of the square point grid
	Spacing         float64 `json:"spacing"`         // point grid spacing in metres
	Height          float64 `json:"height"`          // flying height in metres
	Noise           float64 `json:"noise"`           // measurement noise sigma in pixels
	PerturbPosition float64 `json:"perturbPosition"` // camera position error in metres
	PerturbAngle    float64 `json:"perturbAngle"`    // camera angle error in radians
	Seed            uint32  `json:"seed"`
}

func NewSimulateOptionsDefault() *SimulateOptions {
	return &SimulateOptions{
		Images:          4,
		GridSize:        5,
		Spacing:         30,
		Height:          1000,
		Noise:           0.1,
		PerturbPosition: 2,
		PerturbAngle:    0.002,
		Seed:            4711,
	}
}

const (
	simFocalLength = 50
	simPitch       = 0.01
	simCenter      = 512
	simBase        = 60 // distance between neighbouring cameras in metres
)

// Terrain of the simulated block
func simTerrain(x, y float64) float64 {
	return 5 * math.Sin(x/40) * math.Cos(y/40)
}

// Generates a project over an undulating plane. Corner points of the grid are ground
// control with exact coordinates, all others are tie points without apriori coordinates.
// Cameras carry perturbed exterior orientation, measures carry gaussian noise.
func Simulate(opt *SimulateOptions) (*Document, error) {
	if opt.Images < 2 || opt.GridSize < 2 {
		return nil, errors.Errorf("simulate: need at least 2 images and a grid size of 2, got %d and %d", opt.Images, opt.GridSize)
	}
	var rng fastrand.RNG
	rng.Seed(opt.Seed)
	gauss := func() float64 {
		u1 := (float64(rng.Uint32()) + 1) / (1<<32 + 1)
		u2 := float64(rng.Uint32()) / (1 << 32)
		return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	}

	doc := &Document{
		NetworkID:  "simulated",
		TargetName: "Plane",
		Surface:    &SurfaceConfig{Type: "plane"},
		Settings:   bundle.NewSettingsDefault(),
	}

	rows := (opt.Images + 1) / 2
	truth := make([]*camera.Collinear, opt.Images)
	for i := range truth {
		center := r3.Vector{
			X: (float64(i%2) - 0.5) * simBase,
			Y: (float64(i/2) - float64(rows-1)/2) * simBase / 2,
			Z: opt.Height,
		}
		omega, phi, kappa := 0.002*float64(i), -0.001*float64(i), 0.01*float64(i)
		truth[i] = camera.NewCollinear(simFocalLength, simPitch, simCenter, simCenter, center, omega, phi, kappa)

		start := camera.NewCollinear(simFocalLength, simPitch, simCenter, simCenter,
			center.Add(r3.Vector{X: opt.PerturbPosition * gauss(), Y: opt.PerturbPosition * gauss(), Z: opt.PerturbPosition * gauss()}),
			omega+opt.PerturbAngle*gauss(), phi+opt.PerturbAngle*gauss(), kappa+opt.PerturbAngle*gauss())
		raw, err := json.Marshal(start)
		if err != nil {
			return nil, err
		}
		sn := fmt.Sprintf("SIM/IMG%d", i+1)
		doc.Images = append(doc.Images, ImageEntry{
			Serial:   sn,
			FileName: fmt.Sprintf("img%d.cub", i+1),
			Model:    "collinear",
			Camera:   raw,
		})
	}

	half := float64(opt.GridSize-1) / 2 * opt.Spacing
	for gy := 0; gy < opt.GridSize; gy++ {
		for gx := 0; gx < opt.GridSize; gx++ {
			x, y := float64(gx)*opt.Spacing-half, float64(gy)*opt.Spacing-half
			p := r3.Vector{X: x, Y: y, Z: simTerrain(x, y)}
			ps := PointEntry{ID: fmt.Sprintf("P%d%d", gy+1, gx+1), Type: "Tie"}
			if (gx == 0 || gx == opt.GridSize-1) && (gy == 0 || gy == opt.GridSize-1) {
				ps.Type = "Ground"
				ps.Apriori = &[3]float64{p.X, p.Y, p.Z}
			}
			for i, c := range truth {
				s, l, err := c.GroundToPixel(p, simCenter, simCenter)
				if err != nil || s < 0 || l < 0 || s >= 2*simCenter || l >= 2*simCenter {
					continue
				}
				ps.Measures = append(ps.Measures, MeasureEntry{
					Serial: doc.Images[i].Serial,
					Sample: s + opt.Noise*gauss(),
					Line:   l + opt.Noise*gauss(),
					Type:   "RegisteredSubPixel",
					Sigma:  math.Max(opt.Noise, 0.1),
				})
			}
			if len(ps.Measures) < 2 {
				continue
			}
			doc.Points = append(doc.Points, ps)
		}
	}
	return doc, nil
}
