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
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/mlnoga/jigsaw/internal/sparse"
)

// Decomposes the reduced normal equations and solves for the image corrections
type Solver interface {
	Name() string
	Factor(m *sparse.SparseBlockMatrix) error
	Solve(rhs []float64) ([]float64, error)
	// Blocks of the inverse in the given pattern, after a successful Factor
	Inverse(pattern *sparse.SparseBlockMatrix) (*sparse.SparseBlockMatrix, error)
}

const maxDenseImageBlocks = 200

// Picks the solver for the given method. Auto prefers the dense solver if the dense
// matrix fits into an eighth of physical memory and there are few enough images.
func newSolver(method SolveMethod, c *Context, numBlocks, dim int) Solver {
	switch method {
	case SolveSpecialK:
		return &denseSolver{}
	case SolveCholmod:
		return &sparseSolver{}
	}
	denseBytes := int64(dim) * int64(dim) * 8
	budget := int64(c.MemoryMB) * 1024 * 1024 / 8
	if denseBytes <= budget && numBlocks <= maxDenseImageBlocks {
		return &denseSolver{}
	}
	return &sparseSolver{}
}

func isCondition(err error) bool {
	var c mat.Condition
	return errors.As(err, &c)
}

// Dense Cholesky decomposition of the full reduced matrix
type denseSolver struct {
	chol    mat.Cholesky
	offsets []int
	dim     int
}

func (s *denseSolver) Name() string { return "specialk" }

func (s *denseSolver) Factor(m *sparse.SparseBlockMatrix) error {
	sym, err := m.ToSymDense()
	if err != nil {
		return err
	}
	if s.offsets, s.dim, err = m.BlockOffsets(); err != nil {
		return err
	}
	if ok := s.chol.Factorize(sym); !ok {
		return sparse.ErrNotPositiveDefinite
	}
	return nil
}

func (s *denseSolver) Solve(rhs []float64) ([]float64, error) {
	if len(rhs) != s.dim {
		return nil, fmt.Errorf("%w: rhs of %d for matrix of %d", sparse.ErrDimensionMismatch, len(rhs), s.dim)
	}
	x := mat.NewVecDense(s.dim, nil)
	if err := s.chol.SolveVecTo(x, mat.NewVecDense(s.dim, append([]float64(nil), rhs...))); err != nil && !isCondition(err) {
		return nil, err
	}
	return x.RawVector().Data, nil
}

func (s *denseSolver) Inverse(pattern *sparse.SparseBlockMatrix) (*sparse.SparseBlockMatrix, error) {
	var inv mat.SymDense
	if err := s.chol.InverseTo(&inv); err != nil && !isCondition(err) {
		return nil, err
	}
	n := pattern.NumberOfColumns()
	out := sparse.NewSparseBlockMatrix(n)
	for col := 0; col < n; col++ {
		for _, row := range pattern.Column(col).Indices() {
			nr, nc := pattern.BlockSize(row), pattern.BlockSize(col)
			if err := out.InsertMatrixBlock(row, col, nr, nc); err != nil {
				return nil, err
			}
			b, _ := out.Block(row, col)
			for i := 0; i < nr; i++ {
				for j := 0; j < nc; j++ {
					b.Set(i, j, inv.At(s.offsets[row]+i, s.offsets[col]+j))
				}
			}
		}
	}
	return out, nil
}

// Block sparse Cholesky with a minimum degree ordering. The ordering is kept
// across iterations while the block structure stays the same.
type sparseSolver struct {
	ord       *sparse.Ordering
	numBlocks int
	chol      sparse.Cholesky
}

func (s *sparseSolver) Name() string { return "cholmod" }

func (s *sparseSolver) Factor(m *sparse.SparseBlockMatrix) error {
	if s.ord == nil || len(s.ord.Perm) != m.NumberOfColumns() || s.numBlocks != m.NumberOfBlocks() {
		s.ord = sparse.MinimumDegree(m)
		s.numBlocks = m.NumberOfBlocks()
	}
	return s.chol.Factorize(m, s.ord)
}

func (s *sparseSolver) Solve(rhs []float64) ([]float64, error) {
	return s.chol.SolveVec(rhs)
}

func (s *sparseSolver) Inverse(pattern *sparse.SparseBlockMatrix) (*sparse.SparseBlockMatrix, error) {
	return s.chol.InverseBlocks(pattern)
}

// Number of blocks in the symbolic factor, 0 for dense solvers
func factorBlocks(s Solver) int {
	if ss, ok := s.(*sparseSolver); ok {
		return ss.chol.NumberOfFactorBlocks()
	}
	return 0
}
