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

package bundle

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/valyala/fastrand"
	"go.viam.com/test"

	"github.com/mlnoga/jigsaw/internal/camera"
	"github.com/mlnoga/jigsaw/internal/controlnet"
	"github.com/mlnoga/jigsaw/internal/serial"
)

// A network generated from exact camera geometry over a gently undulating plane.
// Four corner points are ground control, the rest are tie points. The sensors start
// from perturbed exterior orientation; the true cameras are kept for comparison.
type synthetic struct {
	net     *controlnet.ControlNet
	serials *serial.SerialNumberList
	sensors camera.Sensors
	truth   map[string]*camera.Collinear
	points  map[string]r3.Vector
}

type syntheticOptions struct {
	noise       float64 // measurement noise sigma in pixels
	perturbPos  float64 // metres
	perturbAng  float64 // radians
	observation bool    // first two images are one exposure with shared orientation
	noControl   bool    // corner points are tie points too, leaving the datum undefined
}

var syntheticCenters = []r3.Vector{
	{X: -30, Y: -15, Z: 1000},
	{X: 30, Y: -15, Z: 1000},
	{X: -30, Y: 15, Z: 1000},
	{X: 30, Y: 15, Z: 1000},
}

func gaussian(rng *fastrand.RNG) float64 {
	u1 := (float64(rng.Uint32()) + 1) / (1<<32 + 1)
	u2 := float64(rng.Uint32()) / (1 << 32)
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

func newSynthetic(t *testing.T, opt syntheticOptions) *synthetic {
	t.Helper()
	rng := fastrand.RNG{}
	rng.Seed(4711)

	s := &synthetic{
		net:     controlnet.NewControlNet("synthetic", "plane"),
		serials: serial.NewSerialNumberList(),
		sensors: camera.Sensors{},
		truth:   map[string]*camera.Collinear{},
		points:  map[string]r3.Vector{},
	}
	for i := range syntheticCenters {
		sn := fmt.Sprintf("IMG%d", i+1)
		j, obs := i, ""
		if opt.observation && i < 2 {
			j, obs = 0, "EXP1"
		}
		c := syntheticCenters[j]
		omega, phi, kappa := 0.002*float64(j), -0.001*float64(j), 0.01*float64(j)
		s.truth[sn] = camera.NewCollinear(50, 0.01, 512, 512, c, omega, phi, kappa)

		start := camera.NewCollinear(50, 0.01, 512, 512,
			c.Add(r3.Vector{X: opt.perturbPos, Y: -opt.perturbPos, Z: opt.perturbPos}),
			omega+opt.perturbAng, phi-opt.perturbAng, kappa+opt.perturbAng)
		start.SetSurface(camera.Plane{})
		s.sensors[sn] = start
		test.That(t, s.serials.Add(sn, sn+".cub", obs), test.ShouldBeNil)
	}

	for i := 0; i < 5; i++ {
		for j := 0; j < 5; j++ {
			x, y := -60+30*float64(i), -60+30*float64(j)
			xyz := r3.Vector{X: x, Y: y, Z: 5 * math.Sin(x/40) * math.Cos(y/40)}
			id := fmt.Sprintf("P%d%d", i, j)
			s.points[id] = xyz

			ptype := controlnet.Tie
			if (i == 0 || i == 4) && (j == 0 || j == 4) && !opt.noControl {
				ptype = controlnet.Ground
			}
			p := controlnet.NewControlPoint(id, ptype)
			if ptype == controlnet.Ground {
				test.That(t, p.SetAprioriSurfacePoint(controlnet.NewSurfacePoint(xyz)), test.ShouldBeNil)
			}
			for _, sn := range s.serials.Serials() {
				smp, line, err := s.truth[sn].GroundToPixel(xyz, 0, 0)
				test.That(t, err, test.ShouldBeNil)
				if opt.noise > 0 {
					smp += opt.noise * gaussian(&rng)
					line += opt.noise * gaussian(&rng)
				}
				test.That(t, p.AddMeasure(controlnet.NewControlMeasure(sn, smp, line, controlnet.RegisteredSubPixel)), test.ShouldBeNil)
			}
			test.That(t, s.net.AddPoint(p), test.ShouldBeNil)
		}
	}
	return s
}

// Adds the given offset in pixels to one measured sample coordinate
func (s *synthetic) corrupt(t *testing.T, pointID, sn string, offset float64) {
	t.Helper()
	p, err := s.net.Point(pointID)
	test.That(t, err, test.ShouldBeNil)
	m, err := p.Measure(sn)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.SetCoordinate(m.Sample()+offset, m.Line()), test.ShouldBeNil)
}

func (s *synthetic) engine(t *testing.T, settings *Settings) *Engine {
	t.Helper()
	e, err := NewEngine(NewContext(nil), settings, s.net, s.serials, s.sensors)
	test.That(t, err, test.ShouldBeNil)
	return e
}

func (s *synthetic) solve(t *testing.T, settings *Settings) *Result {
	t.Helper()
	res, err := s.engine(t, settings).Solve(context.Background())
	test.That(t, err, test.ShouldBeNil)
	return res
}

// Largest deviation of the adjusted camera positions from the true ones, in metres
func (s *synthetic) maxPositionError() float64 {
	worst := 0.0
	for sn, truth := range s.truth {
		got := s.sensors[sn].Parameters()
		want := truth.Parameters()
		for i := 0; i < 3; i++ {
			worst = math.Max(worst, math.Abs(got[i]-want[i]))
		}
	}
	return worst
}

func (s *synthetic) maxAngleError() float64 {
	worst := 0.0
	for sn, truth := range s.truth {
		got := s.sensors[sn].Parameters()
		want := truth.Parameters()
		for i := 3; i < len(want); i++ {
			worst = math.Max(worst, math.Abs(got[i]-want[i]))
		}
	}
	return worst
}

func (s *synthetic) maxPointError() float64 {
	worst := 0.0
	for _, p := range s.net.Points() {
		worst = math.Max(worst, p.AdjustedSurfacePoint().XYZ.Sub(s.points[p.ID()]).Norm())
	}
	return worst
}

func exactSettings() *Settings {
	settings := NewSettingsDefault()
	settings.ConvergenceThreshold = 1e-6
	return settings
}
