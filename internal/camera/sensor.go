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

// Package camera defines the sensor interfaces the bundle adjustment consumes,
// and a collinearity model implementing them for framing and line scan images.
package camera

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrGroundMapFailure = errors.New("camera: ground point does not map into the image")
	ErrNoSurface        = errors.New("camera: no target surface for back projection")
	ErrParameterCount   = errors.New("camera: wrong number of parameter corrections")
	ErrUnknownModel     = errors.New("camera: unknown sensor model")
)

type SensorKind int

const (
	Framing SensorKind = iota
	LineScan
	Radar
)

func (k SensorKind) String() string {
	switch k {
	case Framing:
		return "Framing"
	case LineScan:
		return "LineScan"
	case Radar:
		return "Radar"
	}
	return fmt.Sprintf("SensorKind(%d)", int(k))
}

// Linearized observation equations of one measure
type Partials struct {
	Image    *mat.Dense // 2 x k, derivatives of the computed focal plane x,y by the image parameters
	Point    *mat.Dense // 2 x 3, derivatives by the body-fixed point X,Y,Z
	Residual [2]float64 // observed minus computed focal plane x,y
	Computed [2]float64 // computed focal plane x,y
}

// A camera model for one image, with the exterior orientation parameters being solved for
type Sensor interface {
	Kind() SensorKind

	SetParameterization(p Parameterization) error
	NumParameters() int
	Parameters() []float64
	ApplyCorrections(delta []float64) error

	// Linearizes the observation of ground point p at the measured pixel
	Partials(p r3.Vector, sample, line float64) (*Partials, error)

	// Forward projection at the time of the measured pixel
	GroundToFocalPlane(p r3.Vector, sample, line float64) (x, y float64, err error)
	GroundToPixel(p r3.Vector, sample, line float64) (s, l float64, err error)

	FocalPlaneToPixel(x, y float64) (sample, line float64)
	PixelToFocalPlane(sample, line float64) (x, y float64)

	// Intersects the ray through the given pixel with the target surface
	BackProject(sample, line float64) (r3.Vector, error)

	PixelPitch() float64
}

// Sensors by image serial number
type Sensors map[string]Sensor

func (s Sensors) Sensor(serial string) (Sensor, bool) {
	sensor, ok := s[serial]
	return sensor, ok
}

// Selects which exterior orientation parameters are solved for, as polynomials in time
type Parameterization struct {
	SolvePosition bool `json:"solvePosition"`
	SPKDegree     int  `json:"spkDegree"`
	SolvePointing bool `json:"solvePointing"`
	CKDegree      int  `json:"ckDegree"`
	SolveTwist    bool `json:"solveTwist"`
}

const maxPolynomialDegree = 3

func (p Parameterization) Validate() error {
	if p.SPKDegree < 0 || p.SPKDegree > maxPolynomialDegree {
		return fmt.Errorf("camera: SPK degree %d outside [0,%d]", p.SPKDegree, maxPolynomialDegree)
	}
	if p.CKDegree < 0 || p.CKDegree > maxPolynomialDegree {
		return fmt.Errorf("camera: CK degree %d outside [0,%d]", p.CKDegree, maxPolynomialDegree)
	}
	if p.Count() == 0 {
		return errors.New("camera: neither position nor pointing is solved for")
	}
	return nil
}

func (p Parameterization) NumPositionTerms() int {
	if !p.SolvePosition {
		return 0
	}
	return p.SPKDegree + 1
}

func (p Parameterization) NumPointingTerms() int {
	if !p.SolvePointing {
		return 0
	}
	return p.CKDegree + 1
}

// Number of solved angles. Twist is the rotation about the boresight.
func (p Parameterization) NumAngles() int {
	if !p.SolvePointing {
		return 0
	}
	if p.SolveTwist {
		return 3
	}
	return 2
}

func (p Parameterization) Count() int {
	return 3*p.NumPositionTerms() + p.NumAngles()*p.NumPointingTerms()
}

// Parameter labels in solution order: X, Y, Z coefficients, then omega, phi, kappa coefficients
func (p Parameterization) Labels() []string {
	labels := make([]string, 0, p.Count())
	for _, axis := range []string{"X", "Y", "Z"} {
		for i := 0; i < p.NumPositionTerms(); i++ {
			labels = append(labels, fmt.Sprintf("%s%d", axis, i))
		}
	}
	for _, angle := range []string{"OMEGA", "PHI", "KAPPA"}[:p.NumAngles()] {
		for i := 0; i < p.NumPointingTerms(); i++ {
			labels = append(labels, fmt.Sprintf("%s%d", angle, i))
		}
	}
	return labels
}

// Expands per polynomial term sigmas into per parameter sigmas in solution order.
// Position sigmas are metres (per second^i), pointing sigmas degrees (per second^i)
// and are converted to radians. Missing or zero terms leave a parameter unconstrained.
func (p Parameterization) AprioriSigmas(positionSigmas, pointingSigmas []float64) []float64 {
	sigmas := make([]float64, 0, p.Count())
	for axis := 0; axis < 3; axis++ {
		for i := 0; i < p.NumPositionTerms(); i++ {
			s := 0.0
			if i < len(positionSigmas) {
				s = positionSigmas[i]
			}
			sigmas = append(sigmas, s)
		}
	}
	for a := 0; a < p.NumAngles(); a++ {
		for i := 0; i < p.NumPointingTerms(); i++ {
			s := 0.0
			if i < len(pointingSigmas) {
				s = pointingSigmas[i] * math.Pi / 180
			}
			sigmas = append(sigmas, s)
		}
	}
	return sigmas
}
