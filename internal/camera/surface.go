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
	"math"

	"github.com/golang/geo/r3"
)

// A target surface for ray intersection
type Surface interface {
	Intersect(origin, dir r3.Vector) (r3.Vector, bool)
}

// A spherical target body centered at the origin
type Sphere struct {
	Radius float64 `json:"radius"`
}

// Returns the nearest intersection in front of the origin
func (s Sphere) Intersect(origin, dir r3.Vector) (r3.Vector, bool) {
	d := dir.Normalize()
	b := origin.Dot(d)
	c := origin.Norm2() - s.Radius*s.Radius
	disc := b*b - c
	if disc < 0 {
		return r3.Vector{}, false
	}
	sq := math.Sqrt(disc)
	t := -b - sq
	if t < 0 {
		t = -b + sq
	}
	if t < 0 {
		return r3.Vector{}, false
	}
	return origin.Add(d.Mul(t)), true
}

// A horizontal plane Z=Height, for local aerial projects
type Plane struct {
	Height float64 `json:"height"`
}

func (p Plane) Intersect(origin, dir r3.Vector) (r3.Vector, bool) {
	if dir.Z == 0 {
		return r3.Vector{}, false
	}
	t := (p.Height - origin.Z) / dir.Z
	if t <= 0 {
		return r3.Vector{}, false
	}
	return origin.Add(dir.Mul(t)), true
}
