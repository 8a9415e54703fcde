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

package camera

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func newTestCamera() *Collinear {
	return NewCollinear(50, 0.01, 512, 512, r3.Vector{X: 100, Y: -50, Z: 1000}, 0.05, -0.03, 0.2)
}

func TestParameterizationCount(t *testing.T) {
	tests := []struct {
		p    Parameterization
		want int
	}{
		{Parameterization{SolvePosition: true}, 3},
		{Parameterization{SolvePosition: true, SPKDegree: 2}, 9},
		{Parameterization{SolvePointing: true}, 2},
		{Parameterization{SolvePointing: true, SolveTwist: true, CKDegree: 1}, 6},
		{Parameterization{SolvePosition: true, SPKDegree: 1, SolvePointing: true, SolveTwist: true, CKDegree: 2}, 15},
	}
	for _, tc := range tests {
		test.That(t, tc.p.Count(), test.ShouldEqual, tc.want)
		test.That(t, tc.p.Labels(), test.ShouldHaveLength, tc.want)
		test.That(t, tc.p.AprioriSigmas(nil, nil), test.ShouldHaveLength, tc.want)
	}
	test.That(t, Parameterization{}.Validate(), test.ShouldNotBeNil)
	test.That(t, Parameterization{SolvePosition: true, SPKDegree: 4}.Validate(), test.ShouldNotBeNil)
}

func TestParameterizationSigmas(t *testing.T) {
	p := Parameterization{SolvePosition: true, SPKDegree: 1, SolvePointing: true, CKDegree: 0}
	sigmas := p.AprioriSigmas([]float64{10, 1}, []float64{180})
	test.That(t, sigmas, test.ShouldResemble, []float64{10, 1, 10, 1, 10, 1, math.Pi, math.Pi})
	test.That(t, p.Labels(), test.ShouldResemble, []string{"X0", "X1", "Y0", "Y1", "Z0", "Z1", "OMEGA0", "PHI0"})
}

func TestGroundToPixelNadir(t *testing.T) {
	c := NewCollinear(50, 0.01, 512, 512, r3.Vector{Z: 1000}, 0, 0, 0)
	s, l, err := c.GroundToPixel(r3.Vector{X: 10, Y: 20}, 0, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s, test.ShouldAlmostEqual, 562, 1e-9)
	test.That(t, l, test.ShouldAlmostEqual, 412, 1e-9)

	_, _, err = c.GroundToPixel(r3.Vector{Z: 2000}, 0, 0)
	test.That(t, errors.Is(err, ErrGroundMapFailure), test.ShouldBeTrue)
}

func TestPixelFocalPlaneRoundTrip(t *testing.T) {
	c := newTestCamera()
	x, y := c.PixelToFocalPlane(123.25, 876.5)
	s, l := c.FocalPlaneToPixel(x, y)
	test.That(t, s, test.ShouldAlmostEqual, 123.25, 1e-9)
	test.That(t, l, test.ShouldAlmostEqual, 876.5, 1e-9)
}

func TestBackProjectPlane(t *testing.T) {
	c := newTestCamera()
	c.SetSurface(Plane{})
	p := r3.Vector{X: 130, Y: -20}
	s, l, err := c.GroundToPixel(p, 0, 0)
	test.That(t, err, test.ShouldBeNil)
	q, err := c.BackProject(s, l)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, q.X, test.ShouldAlmostEqual, p.X, 1e-6)
	test.That(t, q.Y, test.ShouldAlmostEqual, p.Y, 1e-6)
	test.That(t, q.Z, test.ShouldAlmostEqual, p.Z, 1e-6)
}

func TestBackProjectSphere(t *testing.T) {
	c := NewCollinear(50, 0.01, 512, 512, r3.Vector{Z: 3000}, 0, 0, 0)
	_, err := c.BackProject(512, 512)
	test.That(t, err, test.ShouldBeError, ErrNoSurface)

	c.SetSurface(Sphere{Radius: 1000})
	q, err := c.BackProject(512, 512)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, q.Z, test.ShouldAlmostEqual, 1000, 1e-6)
	test.That(t, q.X, test.ShouldAlmostEqual, 0, 1e-9)

	// looking past the limb
	c.Angles[1][0] = math.Pi / 2
	_, err = c.BackProject(512, 512)
	test.That(t, errors.Is(err, ErrGroundMapFailure), test.ShouldBeTrue)
}

// Compares analytic partials against central differences
func checkPartials(t *testing.T, c *Collinear, p r3.Vector, sample, line float64) {
	t.Helper()
	part, err := c.Partials(p, sample, line)
	test.That(t, err, test.ShouldBeNil)

	x0, y0, err := c.GroundToFocalPlane(p, sample, line)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, part.Computed[0], test.ShouldAlmostEqual, x0, 1e-12)
	test.That(t, part.Computed[1], test.ShouldAlmostEqual, y0, 1e-12)
	ox, oy := c.PixelToFocalPlane(sample, line)
	test.That(t, part.Residual[0], test.ShouldAlmostEqual, ox-x0, 1e-12)
	test.That(t, part.Residual[1], test.ShouldAlmostEqual, oy-y0, 1e-12)

	k := c.NumParameters()
	_, cols := part.Image.Dims()
	test.That(t, cols, test.ShouldEqual, k)
	for i := 0; i < k; i++ {
		h := 1e-6
		delta := make([]float64, k)
		delta[i] = h
		test.That(t, c.ApplyCorrections(delta), test.ShouldBeNil)
		xp, yp, _ := c.GroundToFocalPlane(p, sample, line)
		delta[i] = -2 * h
		test.That(t, c.ApplyCorrections(delta), test.ShouldBeNil)
		xm, ym, _ := c.GroundToFocalPlane(p, sample, line)
		delta[i] = h
		test.That(t, c.ApplyCorrections(delta), test.ShouldBeNil)

		test.That(t, part.Image.At(0, i), test.ShouldAlmostEqual, (xp-xm)/(2*h), 1e-4)
		test.That(t, part.Image.At(1, i), test.ShouldAlmostEqual, (yp-ym)/(2*h), 1e-4)
	}

	for j := 0; j < 3; j++ {
		h := 1e-4
		dp := [3]float64{}
		dp[j] = h
		step := r3.Vector{X: dp[0], Y: dp[1], Z: dp[2]}
		xp, yp, _ := c.GroundToFocalPlane(p.Add(step), sample, line)
		xm, ym, _ := c.GroundToFocalPlane(p.Sub(step), sample, line)
		test.That(t, part.Point.At(0, j), test.ShouldAlmostEqual, (xp-xm)/(2*h), 1e-6)
		test.That(t, part.Point.At(1, j), test.ShouldAlmostEqual, (yp-ym)/(2*h), 1e-6)
	}
}

func TestPartialsFraming(t *testing.T) {
	c := newTestCamera()
	checkPartials(t, c, r3.Vector{X: 140, Y: -10, Z: 15}, 600, 400)
}

func TestPartialsLineScan(t *testing.T) {
	c := newTestCamera()
	c.LineRate = 0.001
	c.RefLine = 500
	test.That(t, c.Kind(), test.ShouldEqual, LineScan)
	err := c.SetParameterization(Parameterization{SolvePosition: true, SPKDegree: 1, SolvePointing: true, CKDegree: 2, SolveTwist: true})
	test.That(t, err, test.ShouldBeNil)
	c.Position[0][1] = 20
	c.Angles[1][1] = 0.01
	test.That(t, c.NumParameters(), test.ShouldEqual, 15)
	checkPartials(t, c, r3.Vector{X: 90, Y: -80, Z: -5}, 300, 800)
}

func TestApplyCorrections(t *testing.T) {
	c := newTestCamera()
	before := c.Parameters()
	test.That(t, before, test.ShouldHaveLength, 6)
	err := c.ApplyCorrections([]float64{1, 2, 3, 0.1, 0.2, 0.3})
	test.That(t, err, test.ShouldBeNil)
	after := c.Parameters()
	for i, d := range []float64{1, 2, 3, 0.1, 0.2, 0.3} {
		test.That(t, after[i]-before[i], test.ShouldAlmostEqual, d, 1e-12)
	}
	err = c.ApplyCorrections([]float64{1})
	test.That(t, errors.Is(err, ErrParameterCount), test.ShouldBeTrue)
}

func TestRegistry(t *testing.T) {
	r := NewDefaultRegistry()
	test.That(t, r.Models(), test.ShouldResemble, []string{"collinear"})
	test.That(t, r.Register("collinear", NewCollinearFromJSON), test.ShouldNotBeNil)

	raw := json.RawMessage(`{"focalLength":50,"pixelPitch":0.01,"sampleCenter":512,"lineCenter":512,"position":[[0],[0],[1000]]}`)
	s, err := r.New("collinear", raw)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Kind(), test.ShouldEqual, Framing)
	test.That(t, s.NumParameters(), test.ShouldEqual, 6)
	test.That(t, s.PixelPitch(), test.ShouldEqual, 0.01)

	_, err = r.New("pushbroom", raw)
	test.That(t, errors.Is(err, ErrUnknownModel), test.ShouldBeTrue)
	_, err = r.New("collinear", json.RawMessage(`{"focalLength":50}`))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSensorsLookup(t *testing.T) {
	c := newTestCamera()
	sensors := Sensors{"img1": c}
	s, ok := sensors.Sensor("img1")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, s, test.ShouldEqual, c)
	_, ok = sensors.Sensor("img2")
	test.That(t, ok, test.ShouldBeFalse)
}
