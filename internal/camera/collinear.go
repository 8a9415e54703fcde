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
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Collinearity camera with exterior orientation given as polynomials in time.
// Framing images have t=0 for all pixels, line scan images t=(line-RefLine)*LineRate.
// Angles are omega, phi, kappa in radians; positions and focal length share the ground unit
// scaled by FocalLength/Pitch, typically metres and millimetres.
type Collinear struct {
	FocalLength  float64      `json:"focalLength"`  // focal length in focal plane units
	Pitch        float64      `json:"pixelPitch"`   // pixel size in focal plane units
	SampleCenter float64      `json:"sampleCenter"` // principal point sample
	LineCenter   float64      `json:"lineCenter"`   // principal point line
	LineRate     float64      `json:"lineRate"`     // seconds per line, 0 for framing
	RefLine      float64      `json:"refLine"`      // line at t=0
	Position     [3][]float64 `json:"position"`     // X,Y,Z polynomial coefficients
	Angles       [3][]float64 `json:"angles"`       // omega,phi,kappa polynomial coefficients

	surface Surface
	param   Parameterization
}

// Creates a framing camera at the given position and attitude. Solves for position and pointing
// with constant terms and twist by default.
func NewCollinear(focalLength, pitch, sampleCenter, lineCenter float64, pos r3.Vector, omega, phi, kappa float64) *Collinear {
	c := &Collinear{
		FocalLength:  focalLength,
		Pitch:        pitch,
		SampleCenter: sampleCenter,
		LineCenter:   lineCenter,
		Position:     [3][]float64{{pos.X}, {pos.Y}, {pos.Z}},
		Angles:       [3][]float64{{omega}, {phi}, {kappa}},
	}
	c.SetParameterization(Parameterization{SolvePosition: true, SolvePointing: true, SolveTwist: true})
	return c
}

func NewCollinearFromJSON(raw json.RawMessage) (Sensor, error) {
	c := &Collinear{}
	if err := json.Unmarshal(raw, c); err != nil {
		return nil, err
	}
	if c.FocalLength <= 0 || c.Pitch <= 0 {
		return nil, fmt.Errorf("camera: collinear needs positive focal length and pixel pitch, got %g and %g", c.FocalLength, c.Pitch)
	}
	for i := 0; i < 3; i++ {
		if len(c.Position[i]) == 0 {
			return nil, fmt.Errorf("camera: collinear position axis %d has no coefficients", i)
		}
		if len(c.Angles[i]) == 0 {
			c.Angles[i] = []float64{0}
		}
	}
	if err := c.SetParameterization(Parameterization{SolvePosition: true, SolvePointing: true, SolveTwist: true}); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Collinear) SetSurface(s Surface) {
	c.surface = s
}

func (c *Collinear) Kind() SensorKind {
	if c.LineRate != 0 {
		return LineScan
	}
	return Framing
}

func (c *Collinear) PixelPitch() float64 {
	return c.Pitch
}

// Extends the polynomials to the requested degrees. Existing higher terms are kept and stay fixed.
func (c *Collinear) SetParameterization(p Parameterization) error {
	if err := p.Validate(); err != nil {
		return err
	}
	for i := 0; i < 3; i++ {
		for len(c.Position[i]) < p.SPKDegree+1 {
			c.Position[i] = append(c.Position[i], 0)
		}
		for len(c.Angles[i]) < p.CKDegree+1 {
			c.Angles[i] = append(c.Angles[i], 0)
		}
	}
	c.param = p
	return nil
}

func (c *Collinear) Parameterization() Parameterization {
	return c.param
}

func (c *Collinear) NumParameters() int {
	return c.param.Count()
}

// Current values of the solved parameters, in solution order
func (c *Collinear) Parameters() []float64 {
	res := make([]float64, 0, c.param.Count())
	for axis := 0; axis < 3; axis++ {
		res = append(res, c.Position[axis][:c.param.NumPositionTerms()]...)
	}
	for a := 0; a < c.param.NumAngles(); a++ {
		res = append(res, c.Angles[a][:c.param.NumPointingTerms()]...)
	}
	return res
}

func (c *Collinear) ApplyCorrections(delta []float64) error {
	if len(delta) != c.param.Count() {
		return fmt.Errorf("%w: got %d, want %d", ErrParameterCount, len(delta), c.param.Count())
	}
	idx := 0
	for axis := 0; axis < 3; axis++ {
		for i := 0; i < c.param.NumPositionTerms(); i++ {
			c.Position[axis][i] += delta[idx]
			idx++
		}
	}
	for a := 0; a < c.param.NumAngles(); a++ {
		for i := 0; i < c.param.NumPointingTerms(); i++ {
			c.Angles[a][i] += delta[idx]
			idx++
		}
	}
	return nil
}

func (c *Collinear) time(line float64) float64 {
	if c.LineRate == 0 {
		return 0
	}
	return (line - c.RefLine) * c.LineRate
}

func polyval(coeffs []float64, t float64) float64 {
	res := 0.0
	for i := len(coeffs) - 1; i >= 0; i-- {
		res = res*t + coeffs[i]
	}
	return res
}

// Exterior orientation at time t
func (c *Collinear) State(t float64) (center r3.Vector, omega, phi, kappa float64) {
	center = r3.Vector{X: polyval(c.Position[0], t), Y: polyval(c.Position[1], t), Z: polyval(c.Position[2], t)}
	return center, polyval(c.Angles[0], t), polyval(c.Angles[1], t), polyval(c.Angles[2], t)
}

// Image space coordinates of p, with the camera looking down its negative z axis
func (c *Collinear) imageSpace(p r3.Vector, t float64) (u r3.Vector, m, dOmega, dPhi, dKappa rot3, err error) {
	center, omega, phi, kappa := c.State(t)
	m, dOmega, dPhi, dKappa = rotationOPK(omega, phi, kappa)
	u = m.mulVec(p.Sub(center))
	if u.Z >= 0 {
		return u, m, dOmega, dPhi, dKappa, ErrGroundMapFailure
	}
	return u, m, dOmega, dPhi, dKappa, nil
}

func (c *Collinear) GroundToFocalPlane(p r3.Vector, sample, line float64) (x, y float64, err error) {
	u, _, _, _, _, err := c.imageSpace(p, c.time(line))
	if err != nil {
		return 0, 0, err
	}
	return -c.FocalLength * u.X / u.Z, -c.FocalLength * u.Y / u.Z, nil
}

func (c *Collinear) GroundToPixel(p r3.Vector, sample, line float64) (s, l float64, err error) {
	x, y, err := c.GroundToFocalPlane(p, sample, line)
	if err != nil {
		return 0, 0, err
	}
	s, l = c.FocalPlaneToPixel(x, y)
	return s, l, nil
}

func (c *Collinear) FocalPlaneToPixel(x, y float64) (sample, line float64) {
	return c.SampleCenter + x/c.Pitch, c.LineCenter - y/c.Pitch
}

func (c *Collinear) PixelToFocalPlane(sample, line float64) (x, y float64) {
	return (sample - c.SampleCenter) * c.Pitch, (c.LineCenter - line) * c.Pitch
}

func (c *Collinear) BackProject(sample, line float64) (r3.Vector, error) {
	if c.surface == nil {
		return r3.Vector{}, ErrNoSurface
	}
	center, omega, phi, kappa := c.State(c.time(line))
	m, _, _, _ := rotationOPK(omega, phi, kappa)
	x, y := c.PixelToFocalPlane(sample, line)
	dir := m.mulTransVec(r3.Vector{X: x, Y: y, Z: -c.FocalLength})
	p, ok := c.surface.Intersect(center, dir)
	if !ok {
		return r3.Vector{}, ErrGroundMapFailure
	}
	return p, nil
}

func (c *Collinear) Partials(p r3.Vector, sample, line float64) (*Partials, error) {
	t := c.time(line)
	u, m, dOmega, dPhi, dKappa, err := c.imageSpace(p, t)
	if err != nil {
		return nil, err
	}
	center, _, _, _ := c.State(t)
	d := p.Sub(center)
	f := c.FocalLength
	q2 := u.Z * u.Z
	dxdu := [3]float64{-f / u.Z, 0, f * u.X / q2}
	dydu := [3]float64{0, -f / u.Z, f * u.Y / q2}

	res := &Partials{}
	res.Computed = [2]float64{-f * u.X / u.Z, -f * u.Y / u.Z}
	ox, oy := c.PixelToFocalPlane(sample, line)
	res.Residual = [2]float64{ox - res.Computed[0], oy - res.Computed[1]}

	// du/dp = M, du/dcenter = -M
	point := mat.NewDense(2, 3, nil)
	for j := 0; j < 3; j++ {
		point.Set(0, j, dxdu[0]*m[0][j]+dxdu[1]*m[1][j]+dxdu[2]*m[2][j])
		point.Set(1, j, dydu[0]*m[0][j]+dydu[1]*m[1][j]+dydu[2]*m[2][j])
	}
	res.Point = point

	k := c.param.Count()
	if k == 0 {
		return res, nil
	}
	image := mat.NewDense(2, k, nil)
	powers := make([]float64, maxPolynomialDegree+1)
	for i := range powers {
		powers[i] = math.Pow(t, float64(i))
	}
	col := 0
	for axis := 0; axis < 3; axis++ {
		for i := 0; i < c.param.NumPositionTerms(); i++ {
			image.Set(0, col, -point.At(0, axis)*powers[i])
			image.Set(1, col, -point.At(1, axis)*powers[i])
			col++
		}
	}
	for _, dm := range []rot3{dOmega, dPhi, dKappa}[:c.param.NumAngles()] {
		du := dm.mulVec(d)
		dx := dxdu[0]*du.X + dxdu[1]*du.Y + dxdu[2]*du.Z
		dy := dydu[0]*du.X + dydu[1]*du.Y + dydu[2]*du.Z
		for i := 0; i < c.param.NumPointingTerms(); i++ {
			image.Set(0, col, dx*powers[i])
			image.Set(1, col, dy*powers[i])
			col++
		}
	}
	res.Image = image
	return res, nil
}
