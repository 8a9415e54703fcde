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

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/mlnoga/jigsaw/internal/controlnet"
	"github.com/mlnoga/jigsaw/internal/sparse"
)

// Held point radii are constrained with this sigma in metres
const heldRadiusSigma = 1e-3

// Contribution of one control point to the reduced normal equations
type contribution struct {
	blocks map[[2]int]*mat.Dense // (row,col) with row<=col, image indices
	rhs    map[int]*mat.VecDense
}

func newContribution() *contribution {
	return &contribution{blocks: map[[2]int]*mat.Dense{}, rhs: map[int]*mat.VecDense{}}
}

func (c *contribution) addBlock(row, col int, b mat.Matrix) {
	if d, ok := c.blocks[[2]int{row, col}]; ok {
		d.Add(d, b)
		return
	}
	c.blocks[[2]int{row, col}] = mat.DenseCopyOf(b)
}

func (c *contribution) addRHS(i int, v mat.Vector) {
	if d, ok := c.rhs[i]; ok {
		d.AddVec(d, v)
		return
	}
	c.rhs[i] = mat.VecDenseCopyOf(v)
}

// Weight of an observation in focal plane units, before robust re-weighting
func observationWeight(m *controlnet.ControlMeasure, pitch float64) float64 {
	s := measureSigma(m) * pitch
	return 1 / (s * s)
}

func measureSigma(m *controlnet.ControlMeasure) float64 {
	if s := m.Sigma(); s > 0 {
		return s
	}
	return 1
}

// Accumulates the normal equations of all valid measures of a point. For adjustable
// points the point parameters are then eliminated, leaving the Schur complement
// contributions to the image normals in the result.
func (e *Engine) formPoint(p *controlnet.ControlPoint, pb *pointBlock, iteration int) (*contribution, error) {
	c := newContribution()
	xyz := p.AdjustedSurfacePoint().XYZ

	var n22 *mat.Dense
	var n2 *mat.VecDense
	var n12 *sparse.SparseBlockColumnMatrix
	if pb != nil {
		n22 = mat.NewDense(3, 3, nil)
		n2 = mat.NewVecDense(3, nil)
		n12 = sparse.NewSparseBlockColumnMatrix()
	}

	for _, m := range p.Measures() {
		if !m.IsValid() {
			continue
		}
		img := e.imageIndex[m.SerialNumber()]
		s := e.sensors[m.SerialNumber()]
		part, err := s.Partials(xyz, m.Sample(), m.Line())
		if err != nil {
			return nil, errors.Wrapf(ErrLinearization, "point %s measure %s: %v", p.ID(), m.SerialNumber(), err)
		}

		pitch := s.PixelPitch()
		w := observationWeight(m, pitch)
		if e.ml.active() {
			rx, ry := part.Residual[0]/pitch, part.Residual[1]/pitch
			w *= e.ml.weight(zScore(rx, ry, measureSigma(m)))
		}
		if w == 0 {
			continue
		}
		l := mat.NewVecDense(2, []float64{part.Residual[0] * w, part.Residual[1] * w})

		// image normals
		var atw mat.Dense
		atw.Scale(w, part.Image.T())
		var n11 mat.Dense
		n11.Mul(&atw, part.Image)
		c.addBlock(img, img, &n11)
		var n1 mat.VecDense
		n1.MulVec(part.Image.T(), l)
		c.addRHS(img, &n1)

		if pb == nil {
			continue
		}

		// image-point and point normals
		k := part.Image.RawMatrix().Cols
		if !n12.Has(img) {
			if err := n12.InsertMatrixBlock(img, k, 3); err != nil {
				return nil, err
			}
		}
		b12, _ := n12.Block(img)
		var atwb mat.Dense
		atwb.Mul(&atw, part.Point)
		b12.Add(b12, &atwb)

		var btw mat.Dense
		btw.Scale(w, part.Point.T())
		var btwb mat.Dense
		btwb.Mul(&btw, part.Point)
		n22.Add(n22, &btwb)
		var btl mat.VecDense
		btl.MulVec(part.Point.T(), l)
		n2.AddVec(n2, &btl)
	}

	if pb == nil {
		return c, nil
	}
	if err := e.eliminatePoint(p, pb, n22, n2, n12, c, iteration); err != nil {
		return nil, err
	}
	return c, nil
}

// Adds the point weights, inverts the point normals and reduces them into the
// image normals via the Schur complement.
func (e *Engine) eliminatePoint(p *controlnet.ControlPoint, pb *pointBlock, n22 *mat.Dense, n2 *mat.VecDense,
	n12 *sparse.SparseBlockColumnMatrix, c *contribution, iteration int) error {
	eps := p.AdjustedSurfacePoint().XYZ.Sub(p.AprioriSurfacePoint().XYZ)
	epsv := [3]float64{eps.X, eps.Y, eps.Z}
	for i, w := range pb.weights {
		n22.Set(i, i, n22.At(i, i)+w)
		n2.SetVec(i, n2.AtVec(i)-w*epsv[i])
	}
	if pb.radialWeight > 0 {
		r := p.AdjustedSurfacePoint().XYZ.Normalize()
		rv := [3]float64{r.X, r.Y, r.Z}
		re := eps.Dot(r) * pb.radialWeight
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				n22.Set(i, j, n22.At(i, j)+pb.radialWeight*rv[i]*rv[j])
			}
			n2.SetVec(i, n2.AtVec(i)-re*rv[i])
		}
	}

	sym := mat.NewSymDense(3, nil)
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			sym.SetSym(i, j, 0.5*(n22.At(i, j)+n22.At(j, i)))
		}
	}
	var ch mat.Cholesky
	if ok := ch.Factorize(sym); !ok {
		class := ErrNumerical
		if iteration == 1 {
			class = ErrConfiguration
		}
		return errors.Wrapf(class, "singular point block for point %s", p.ID())
	}
	inv := mat.NewSymDense(3, nil)
	if err := ch.InverseTo(inv); err != nil && !isCondition(err) {
		return errors.Wrapf(ErrNumerical, "inverting point block for point %s: %v", p.ID(), err)
	}

	var nj mat.VecDense
	nj.MulVec(inv, n2)

	q := sparse.NewSparseBlockRowMatrix()
	imgs := n12.Indices()
	for _, i := range imgs {
		b12, _ := n12.Block(i)
		k, _ := b12.Dims()
		if err := q.InsertMatrixBlock(i, 3, k); err != nil {
			return err
		}
		qi, _ := q.Block(i)
		qi.Mul(inv, b12.T())
	}
	for a, i := range imgs {
		b12, _ := n12.Block(i)
		var r mat.VecDense
		r.MulVec(b12, &nj)
		r.ScaleVec(-1, &r)
		c.addRHS(i, &r)
		for _, j := range imgs[a:] {
			qj, _ := q.Block(j)
			var s mat.Dense
			s.Mul(b12, qj)
			s.Scale(-1, &s)
			c.addBlock(i, j, &s)
		}
	}

	pb.n22inv, pb.n12, pb.q = inv, n12, q
	pb.nj = r3.Vector{X: nj.AtVec(0), Y: nj.AtVec(1), Z: nj.AtVec(2)}
	return nil
}

// Adds the apriori image weights to the diagonal blocks and right hand side
func (e *Engine) addImageWeights() error {
	for i, ib := range e.images {
		d, err := e.normals.Block(i, i)
		if err != nil {
			return err
		}
		for j, w := range ib.weights {
			if w == 0 {
				continue
			}
			d.Set(j, j, d.At(j, j)+w)
			e.rhs[ib.offset+j] -= w * ib.corrections[j]
		}
	}
	return nil
}

// Forms the reduced normal equations of the current linearization
func (e *Engine) formNormals(iteration int) error {
	e.normals.ZeroBlocks()
	for i := range e.rhs {
		e.rhs[i] = 0
	}

	contributions := make([]*contribution, len(e.active))
	err := parallelFor(len(e.active), e.ctx.threads(e.settings.MaxThreads), func(i int) error {
		ap := e.active[i]
		c, err := e.formPoint(ap.point, ap.block, iteration)
		contributions[i] = c
		return err
	})
	if err != nil {
		return err
	}

	for _, c := range contributions {
		for rc, b := range c.blocks {
			if !e.normals.Has(rc[0], rc[1]) {
				r, cc := b.Dims()
				if err := e.normals.InsertMatrixBlock(rc[0], rc[1], r, cc); err != nil {
					return err
				}
			}
			d, _ := e.normals.Block(rc[0], rc[1])
			d.Add(d, b)
		}
		for i, v := range c.rhs {
			off := e.images[i].offset
			for j := 0; j < v.Len(); j++ {
				e.rhs[off+j] += v.AtVec(j)
			}
		}
	}
	return e.addImageWeights()
}

// Sum of the squared weighted apriori corrections of all images and points
func (e *Engine) aprioriVtPv() (vtpv float64, constrained int) {
	for _, ib := range e.images {
		for j, w := range ib.weights {
			if w > 0 {
				vtpv += w * ib.corrections[j] * ib.corrections[j]
				constrained++
			}
		}
	}
	for _, pb := range e.points {
		p := pb.point
		if p.IsRejected() {
			continue
		}
		eps := p.AdjustedSurfacePoint().XYZ.Sub(p.AprioriSurfacePoint().XYZ)
		epsv := [3]float64{eps.X, eps.Y, eps.Z}
		for i, w := range pb.weights {
			if w > 0 {
				vtpv += w * epsv[i] * epsv[i]
				constrained++
			}
		}
		if pb.radialWeight > 0 {
			r := eps.Dot(p.AdjustedSurfacePoint().XYZ.Normalize())
			vtpv += pb.radialWeight * r * r
			constrained++
		}
	}
	return vtpv, constrained
}

func weightOf(sigma float64) float64 {
	if sigma <= 0 || math.IsInf(sigma, 1) {
		return 0
	}
	return 1 / (sigma * sigma)
}
