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

package controlnet

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// A body-fixed surface point in metres, with optional 3x3 covariance in XYZ.
// The zero value is an absent point.
type SurfacePoint struct {
	XYZ        r3.Vector
	Covariance *mat.SymDense
	valid      bool
}

func NewSurfacePoint(xyz r3.Vector) SurfacePoint {
	return SurfacePoint{XYZ: xyz, valid: true}
}

// Creates a surface point with a diagonal covariance from the given sigmas in metres
func NewSurfacePointWithSigmas(xyz r3.Vector, sx, sy, sz float64) SurfacePoint {
	cov := mat.NewSymDense(3, []float64{
		sx * sx, 0, 0,
		0, sy * sy, 0,
		0, 0, sz * sz,
	})
	return SurfacePoint{XYZ: xyz, Covariance: cov, valid: true}
}

// Creates a surface point from planetocentric latitude and longitude in degrees and radius in metres
func NewSurfacePointFromLatLonRadius(lat, lon, radius float64) SurfacePoint {
	latR, lonR := lat*math.Pi/180, lon*math.Pi/180
	return NewSurfacePoint(r3.Vector{
		X: radius * math.Cos(latR) * math.Cos(lonR),
		Y: radius * math.Cos(latR) * math.Sin(lonR),
		Z: radius * math.Sin(latR),
	})
}

func (sp SurfacePoint) Valid() bool { return sp.valid }

// Returns planetocentric latitude and positive east longitude in degrees, and radius in metres
func (sp SurfacePoint) LatLonRadius() (lat, lon, radius float64) {
	radius = sp.XYZ.Norm()
	if radius == 0 {
		return 0, 0, 0
	}
	lat = math.Asin(sp.XYZ.Z/radius) * 180 / math.Pi
	lon = math.Atan2(sp.XYZ.Y, sp.XYZ.X) * 180 / math.Pi
	if lon < 0 {
		lon += 360
	}
	return lat, lon, radius
}

// Returns the XYZ standard deviations from the covariance diagonal, if present
func (sp SurfacePoint) Sigmas() (sx, sy, sz float64, ok bool) {
	if sp.Covariance == nil {
		return 0, 0, 0, false
	}
	return math.Sqrt(math.Abs(sp.Covariance.At(0, 0))),
		math.Sqrt(math.Abs(sp.Covariance.At(1, 1))),
		math.Sqrt(math.Abs(sp.Covariance.At(2, 2))), true
}

// Returns a copy which does not share covariance storage with sp
func (sp SurfacePoint) Copy() SurfacePoint {
	c := sp
	if sp.Covariance != nil {
		c.Covariance = mat.NewSymDense(3, nil)
		c.Covariance.CopySym(sp.Covariance)
	}
	return c
}

func (sp SurfacePoint) String() string {
	if !sp.valid {
		return "(none)"
	}
	if sx, sy, sz, ok := sp.Sigmas(); ok {
		return fmt.Sprintf("(%.3f, %.3f, %.3f) +/- (%.3f, %.3f, %.3f)", sp.XYZ.X, sp.XYZ.Y, sp.XYZ.Z, sx, sy, sz)
	}
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", sp.XYZ.X, sp.XYZ.Y, sp.XYZ.Z)
}
