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

package sparse

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Block sparse LDL' decomposition of a symmetric positive definite SparseBlockMatrix.
// D holds the Cholesky factors of the Schur-updated diagonal blocks. The unit lower
// factor is kept implicitly as L(i,k) = W(i,k) inv(D(k)), where W are the
// Schur-updated off-diagonal blocks. Only blocks in the symbolic pattern are allocated.
type Cholesky struct {
	ord     *Ordering
	sizes   []int // by elimination step
	offsets []int // by original index
	dim     int
	diag    []mat.Cholesky
	lower   []map[int]*mat.Dense // lower[k][i] is W(i,k), i>k, in elimination steps
}

func (c *Cholesky) Factorize(a *SparseBlockMatrix, ord *Ordering) error {
	n := a.NumberOfColumns()
	if len(ord.Perm) != n {
		return fmt.Errorf("%w: ordering of %d for %d block columns", ErrDimensionMismatch, len(ord.Perm), n)
	}
	offsets, dim, err := a.BlockOffsets()
	if err != nil {
		return err
	}
	c.ord, c.offsets, c.dim = ord, offsets, dim
	c.sizes = make([]int, n)
	for k, i := range ord.Perm {
		c.sizes[k] = a.sizes[i]
	}

	diag := make([]*mat.Dense, n)
	c.lower = make([]map[int]*mat.Dense, n)
	for k := range c.lower {
		c.lower[k] = make(map[int]*mat.Dense, len(ord.Pattern[k]))
		for _, i := range ord.Pattern[k] {
			c.lower[k][i] = mat.NewDense(c.sizes[i], c.sizes[k], nil)
		}
	}
	for col, cm := range a.columns {
		pc := ord.InvPerm[col]
		for row, d := range cm.blocks {
			pr := ord.InvPerm[row]
			switch {
			case row == col:
				diag[pc] = mat.DenseCopyOf(d)
			case pr > pc:
				dst, ok := c.lower[pc][pr]
				if !ok {
					return fmt.Errorf("%w: block (%d,%d) outside factor pattern", ErrBlockNotFound, row, col)
				}
				dst.Copy(d)
			default:
				dst, ok := c.lower[pr][pc]
				if !ok {
					return fmt.Errorf("%w: block (%d,%d) outside factor pattern", ErrBlockNotFound, row, col)
				}
				dst.Copy(d.T())
			}
		}
	}

	c.diag = make([]mat.Cholesky, n)
	var tmp mat.Dense
	for k := 0; k < n; k++ {
		if diag[k] == nil {
			return fmt.Errorf("%w: no diagonal block %d", ErrNotPositiveDefinite, ord.Perm[k])
		}
		if ok := c.diag[k].Factorize(symmetricOf(diag[k])); !ok {
			return fmt.Errorf("%w: diagonal block %d", ErrNotPositiveDefinite, ord.Perm[k])
		}
		rows := ord.Pattern[k]
		x := make([]*mat.Dense, len(rows))
		for a, i := range rows {
			x[a] = &mat.Dense{}
			if err := solveTo(&c.diag[k], x[a], c.lower[k][i].T()); err != nil {
				return err
			}
		}
		// Schur update of the trailing blocks W(i,j) -= W(i,k) inv(D(k)) W(j,k)'
		for a, i := range rows {
			for b := 0; b <= a; b++ {
				j := rows[b]
				tmp.Reset()
				tmp.Mul(c.lower[k][i], x[b])
				if i == j {
					diag[i].Sub(diag[i], &tmp)
				} else {
					dst := c.lower[j][i]
					dst.Sub(dst, &tmp)
				}
			}
		}
	}
	return nil
}

// Number of allocated off-diagonal factor blocks
func (c *Cholesky) NumberOfFactorBlocks() int {
	n := 0
	for _, l := range c.lower {
		n += len(l)
	}
	return n
}

// Solves A x = b
func (c *Cholesky) SolveVec(b []float64) ([]float64, error) {
	if len(b) != c.dim {
		return nil, fmt.Errorf("%w: rhs of %d for matrix of %d", ErrDimensionMismatch, len(b), c.dim)
	}
	n := len(c.sizes)
	y := make([]*mat.VecDense, n)
	for k, i := range c.ord.Perm {
		y[k] = mat.NewVecDense(c.sizes[k], append([]float64(nil), b[c.offsets[i]:c.offsets[i]+c.sizes[k]]...))
	}

	var tmp mat.VecDense
	z := make([]*mat.VecDense, n)
	for k := 0; k < n; k++ {
		z[k] = &mat.VecDense{}
		if err := solveVecTo(&c.diag[k], z[k], y[k]); err != nil {
			return nil, err
		}
		for _, i := range c.ord.Pattern[k] {
			tmp.Reset()
			tmp.MulVec(c.lower[k][i], z[k])
			y[i].SubVec(y[i], &tmp)
		}
	}

	x := make([]*mat.VecDense, n)
	for k := n - 1; k >= 0; k-- {
		s := mat.NewVecDense(c.sizes[k], nil)
		for _, i := range c.ord.Pattern[k] {
			tmp.Reset()
			tmp.MulVec(c.lower[k][i].T(), x[i])
			s.AddVec(s, &tmp)
		}
		var corr mat.VecDense
		if err := solveVecTo(&c.diag[k], &corr, s); err != nil {
			return nil, err
		}
		x[k] = mat.NewVecDense(c.sizes[k], nil)
		x[k].SubVec(z[k], &corr)
	}

	res := make([]float64, c.dim)
	for k, i := range c.ord.Perm {
		for a := 0; a < c.sizes[k]; a++ {
			res[c.offsets[i]+a] = x[k].AtVec(a)
		}
	}
	return res, nil
}

// Computes the blocks of the inverse matrix on the factor pattern with the Takahashi
// recurrences, and returns those present in the given pattern in original indexing.
func (c *Cholesky) InverseBlocks(pattern *SparseBlockMatrix) (*SparseBlockMatrix, error) {
	n := len(c.sizes)
	if pattern.NumberOfColumns() != n {
		return nil, fmt.Errorf("%w: pattern of %d for factor of %d", ErrDimensionMismatch, pattern.NumberOfColumns(), n)
	}
	zdiag := make([]*mat.Dense, n)
	zlower := make([]map[int]*mat.Dense, n)
	zblock := func(i, j int) mat.Matrix {
		switch {
		case i == j:
			return zdiag[i]
		case i > j:
			return zlower[j][i]
		default:
			return zlower[i][j].T()
		}
	}

	var tmp mat.Dense
	for k := n - 1; k >= 0; k-- {
		rows := c.ord.Pattern[k]
		zlower[k] = make(map[int]*mat.Dense, len(rows))
		// Z(i,k) = -sum_j Z(i,j) W(j,k) inv(D(k))
		for _, i := range rows {
			t := mat.NewDense(c.sizes[i], c.sizes[k], nil)
			for _, j := range rows {
				tmp.Reset()
				tmp.Mul(zblock(i, j), c.lower[k][j])
				t.Add(t, &tmp)
			}
			var s mat.Dense
			if err := solveTo(&c.diag[k], &s, t.T()); err != nil {
				return nil, err
			}
			z := mat.DenseCopyOf(s.T())
			z.Scale(-1, z)
			zlower[k][i] = z
		}
		// Z(k,k) = inv(D(k)) - inv(D(k)) sum_i W(i,k)' Z(i,k)
		var dinv mat.SymDense
		if err := c.diag[k].InverseTo(&dinv); err != nil && !isCondition(err) {
			return nil, err
		}
		s := mat.NewDense(c.sizes[k], c.sizes[k], nil)
		for _, i := range rows {
			tmp.Reset()
			tmp.Mul(c.lower[k][i].T(), zlower[k][i])
			s.Add(s, &tmp)
		}
		var corr mat.Dense
		if err := solveTo(&c.diag[k], &corr, s); err != nil {
			return nil, err
		}
		zk := mat.DenseCopyOf(&dinv)
		zk.Sub(zk, &corr)
		zdiag[k] = zk
	}

	res := NewSparseBlockMatrix(n)
	for col, cm := range pattern.columns {
		pc := c.ord.InvPerm[col]
		for _, row := range cm.Indices() {
			pr := c.ord.InvPerm[row]
			if pr != pc {
				hi, lo := pr, pc
				if hi < lo {
					hi, lo = lo, hi
				}
				if _, ok := zlower[lo][hi]; !ok {
					return nil, fmt.Errorf("%w: block (%d,%d) outside factor pattern", ErrBlockNotFound, row, col)
				}
			}
			if err := res.InsertMatrixBlock(row, col, c.sizes[pr], c.sizes[pc]); err != nil {
				return nil, err
			}
			dst, _ := res.Block(row, col)
			dst.Copy(zblock(pr, pc))
		}
	}
	return res, nil
}

// Symmetric view of the upper triangle of a square dense block
func symmetricOf(d *mat.Dense) *mat.SymDense {
	n, _ := d.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, d.At(i, j))
		}
	}
	return s
}

// Ill conditioning is reported by gonum as an error alongside a valid result
func isCondition(err error) bool {
	_, ok := err.(mat.Condition)
	return ok
}

func solveTo(ch *mat.Cholesky, dst *mat.Dense, b mat.Matrix) error {
	if err := ch.SolveTo(dst, b); err != nil && !isCondition(err) {
		return err
	}
	return nil
}

func solveVecTo(ch *mat.Cholesky, dst *mat.VecDense, b mat.Vector) error {
	if err := ch.SolveVecTo(dst, b); err != nil && !isCondition(err) {
		return err
	}
	return nil
}
