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
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/mlnoga/jigsaw/internal/controlnet"
)

// Computes adjusted sigmas of all image parameters and covariances of all adjustable
// points from the factorization of the last iteration, scaled by sigma0 squared.
func (e *Engine) propagateErrors() error {
	if len(e.history) == 0 {
		return nil
	}
	sigma0 := e.history[len(e.history)-1].Sigma0
	s02 := sigma0 * sigma0

	inv, err := e.solver.Inverse(e.normals)
	if err != nil {
		return errors.Wrapf(ErrNumerical, "error propagation: %v", err)
	}
	for i, ib := range e.images {
		c, err := inv.Block(i, i)
		if err != nil {
			return errors.Wrapf(ErrNumerical, "error propagation: %v", err)
		}
		ib.adjusted = make([]float64, len(ib.weights))
		for j := range ib.adjusted {
			ib.adjusted[j] = math.Sqrt(math.Abs(c.At(j, j))) * sigma0
		}
	}

	var sumSq [3]float64
	n := 0
	for _, ap := range e.active {
		pb := ap.block
		if pb == nil || pb.n22inv == nil {
			continue
		}
		cov := mat.NewDense(3, 3, nil)
		cov.Copy(pb.n22inv)
		imgs := pb.q.Indices()
		for _, i := range imgs {
			qi, _ := pb.q.Block(i)
			for _, j := range imgs {
				var cij mat.Matrix
				if i <= j {
					b, err := inv.Block(i, j)
					if err != nil {
						return errors.Wrapf(ErrNumerical, "error propagation for point %s: %v", ap.point.ID(), err)
					}
					cij = b
				} else {
					b, err := inv.Block(j, i)
					if err != nil {
						return errors.Wrapf(ErrNumerical, "error propagation for point %s: %v", ap.point.ID(), err)
					}
					cij = b.T()
				}
				qj, _ := pb.q.Block(j)
				var t, u mat.Dense
				t.Mul(qi, cij)
				u.Mul(&t, qj.T())
				cov.Add(cov, &u)
			}
		}
		cov.Scale(s02, cov)

		sym := mat.NewSymDense(3, nil)
		for a := 0; a < 3; a++ {
			for b := a; b < 3; b++ {
				sym.SetSym(a, b, 0.5*(cov.At(a, b)+cov.At(b, a)))
			}
			sumSq[a] += math.Abs(sym.At(a, a))
		}
		n++

		p := ap.point
		sp := controlnet.NewSurfacePoint(p.AdjustedSurfacePoint().XYZ)
		sp.Covariance = sym
		p.SetAdjustedSurfacePoint(sp)
	}

	if n > 0 {
		last := &e.history[len(e.history)-1]
		for a := range sumSq {
			last.RMSPointSigmas[a] = math.Sqrt(sumSq[a] / float64(n))
		}
	}
	return nil
}
