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

type rot3 [3][3]float64

// Omega-phi-kappa rotation from body-fixed to image space, M = K(kappa) P(phi) O(omega),
// and its derivatives by each angle.
func rotationOPK(omega, phi, kappa float64) (m, dOmega, dPhi, dKappa rot3) {
	so, co := math.Sin(omega), math.Cos(omega)
	sp, cp := math.Sin(phi), math.Cos(phi)
	sk, ck := math.Sin(kappa), math.Cos(kappa)

	o := rot3{{1, 0, 0}, {0, co, so}, {0, -so, co}}
	p := rot3{{cp, 0, -sp}, {0, 1, 0}, {sp, 0, cp}}
	k := rot3{{ck, sk, 0}, {-sk, ck, 0}, {0, 0, 1}}
	do := rot3{{0, 0, 0}, {0, -so, co}, {0, -co, -so}}
	dp := rot3{{-sp, 0, -cp}, {0, 0, 0}, {cp, 0, -sp}}
	dk := rot3{{-sk, ck, 0}, {-ck, -sk, 0}, {0, 0, 0}}

	kp := k.mul(p)
	m = kp.mul(o)
	dOmega = kp.mul(do)
	dPhi = k.mul(dp).mul(o)
	dKappa = dk.mul(p).mul(o)
	return m, dOmega, dPhi, dKappa
}

func (a rot3) mul(b rot3) (c rot3) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			c[i][j] = a[i][0]*b[0][j] + a[i][1]*b[1][j] + a[i][2]*b[2][j]
		}
	}
	return c
}

func (a rot3) mulVec(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: a[0][0]*v.X + a[0][1]*v.Y + a[0][2]*v.Z,
		Y: a[1][0]*v.X + a[1][1]*v.Y + a[1][2]*v.Z,
		Z: a[2][0]*v.X + a[2][1]*v.Y + a[2][2]*v.Z,
	}
}

// Multiplies with the transpose, i.e. the inverse rotation
func (a rot3) mulTransVec(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: a[0][0]*v.X + a[1][0]*v.Y + a[2][0]*v.Z,
		Y: a[0][1]*v.X + a[1][1]*v.Y + a[2][1]*v.Z,
		Z: a[0][2]*v.X + a[1][2]*v.Y + a[2][2]*v.Z,
	}
}
