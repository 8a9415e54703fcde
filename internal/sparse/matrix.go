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
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Upper triangle of a symmetric block matrix, stored column by column. Block (row, col)
// with row<=col lives in column col. Diagonal blocks hold the full symmetric block.
// All blocks in block row i have height BlockSize(i), all in block column j width BlockSize(j).
type SparseBlockMatrix struct {
	columns []*SparseBlockColumnMatrix
	sizes   []int
}

func NewSparseBlockMatrix(numColumns int) *SparseBlockMatrix {
	m := &SparseBlockMatrix{}
	m.SetNumberOfColumns(numColumns)
	return m
}

// Grows or shrinks the number of block columns. Shrinking drops the blocks of removed columns.
func (m *SparseBlockMatrix) SetNumberOfColumns(n int) {
	for len(m.columns) < n {
		m.columns = append(m.columns, NewSparseBlockColumnMatrix())
		m.sizes = append(m.sizes, 0)
	}
	for j := n; j < len(m.columns); j++ {
		m.columns[j] = nil
	}
	m.columns, m.sizes = m.columns[:n], m.sizes[:n]
	for _, c := range m.columns {
		for _, i := range c.Indices() {
			if i >= n {
				delete(c.blocks, i)
			}
		}
	}
}

func (m *SparseBlockMatrix) NumberOfColumns() int { return len(m.columns) }

// Size of block row and column i, or zero if no block has been inserted there yet
func (m *SparseBlockMatrix) BlockSize(i int) int { return m.sizes[i] }

// Inserts a zero block. Only the upper triangle row<=col can be stored.
func (m *SparseBlockMatrix) InsertMatrixBlock(row, col, nRows, nCols int) error {
	if col < 0 || col >= len(m.columns) || row < 0 || row > col {
		return fmt.Errorf("%w: (%d,%d) in %d columns", ErrBlockIndex, row, col, len(m.columns))
	}
	if row == col && nRows != nCols {
		return fmt.Errorf("%w: diagonal block %d is %dx%d", ErrBlockShape, row, nRows, nCols)
	}
	if s := m.sizes[row]; s != 0 && s != nRows {
		return fmt.Errorf("%w: block row %d has height %d, not %d", ErrBlockShape, row, s, nRows)
	}
	if s := m.sizes[col]; s != 0 && s != nCols {
		return fmt.Errorf("%w: block column %d has width %d, not %d", ErrBlockShape, col, s, nCols)
	}
	if err := m.columns[col].InsertMatrixBlock(row, nRows, nCols); err != nil {
		return err
	}
	m.sizes[row], m.sizes[col] = nRows, nCols
	return nil
}

func (m *SparseBlockMatrix) Block(row, col int) (*mat.Dense, error) {
	if col < 0 || col >= len(m.columns) {
		return nil, fmt.Errorf("%w: (%d,%d)", ErrBlockNotFound, row, col)
	}
	return m.columns[col].Block(row)
}

func (m *SparseBlockMatrix) Has(row, col int) bool {
	return col >= 0 && col < len(m.columns) && m.columns[col].Has(row)
}

// Returns block column col, owned by the matrix
func (m *SparseBlockMatrix) Column(col int) *SparseBlockColumnMatrix { return m.columns[col] }

func (m *SparseBlockMatrix) ZeroBlocks() {
	for _, c := range m.columns {
		c.ZeroBlocks()
	}
}

func (m *SparseBlockMatrix) Wipe() {
	for _, c := range m.columns {
		c.Wipe()
	}
}

func (m *SparseBlockMatrix) NumberOfBlocks() int {
	n := 0
	for _, c := range m.columns {
		n += c.NumberOfBlocks()
	}
	return n
}

func (m *SparseBlockMatrix) NumberOfDiagonalBlocks() int {
	n := 0
	for j, c := range m.columns {
		if c.Has(j) {
			n++
		}
	}
	return n
}

func (m *SparseBlockMatrix) NumberOfOffDiagonalBlocks() int {
	return m.NumberOfBlocks() - m.NumberOfDiagonalBlocks()
}

func (m *SparseBlockMatrix) NumberOfElements() int {
	n := 0
	for _, c := range m.columns {
		n += c.NumberOfElements()
	}
	return n
}

// Returns the first scalar row of each block row, and the total scalar dimension.
// Fails if a block row has no known size.
func (m *SparseBlockMatrix) BlockOffsets() (offsets []int, total int, err error) {
	offsets = make([]int, len(m.sizes))
	for i, s := range m.sizes {
		if s == 0 {
			return nil, 0, fmt.Errorf("%w: block row %d has no blocks", ErrBlockShape, i)
		}
		offsets[i] = total
		total += s
	}
	return offsets, total, nil
}

// Expands the matrix into a dense symmetric matrix
func (m *SparseBlockMatrix) ToSymDense() (*mat.SymDense, error) {
	offsets, n, err := m.BlockOffsets()
	if err != nil {
		return nil, err
	}
	sym := mat.NewSymDense(n, nil)
	for col, c := range m.columns {
		for row, d := range c.blocks {
			r, cc := d.Dims()
			for a := 0; a < r; a++ {
				for b := 0; b < cc; b++ {
					if row == col && b < a {
						continue
					}
					sym.SetSym(offsets[row]+a, offsets[col]+b, d.At(a, b))
				}
			}
		}
	}
	return sym, nil
}

// Multiplies the full symmetric matrix with the vector x
func (m *SparseBlockMatrix) MultiplyVec(x []float64) ([]float64, error) {
	offsets, n, err := m.BlockOffsets()
	if err != nil {
		return nil, err
	}
	if len(x) != n {
		return nil, fmt.Errorf("%w: vector of %d for matrix of %d", ErrDimensionMismatch, len(x), n)
	}
	y := make([]float64, n)
	for col, c := range m.columns {
		for row, d := range c.blocks {
			r, cc := d.Dims()
			xr := mat.NewVecDense(r, x[offsets[row]:offsets[row]+r])
			xc := mat.NewVecDense(cc, x[offsets[col]:offsets[col]+cc])
			yr := mat.NewVecDense(r, y[offsets[row]:offsets[row]+r])
			var tmp mat.VecDense
			tmp.MulVec(d, xc)
			yr.AddVec(yr, &tmp)
			if row != col {
				yc := mat.NewVecDense(cc, y[offsets[col]:offsets[col]+cc])
				tmp.Reset()
				tmp.MulVec(d.T(), xr)
				yc.AddVec(yc, &tmp)
			}
		}
	}
	return y, nil
}

func (m *SparseBlockMatrix) Copy() *SparseBlockMatrix {
	c := &SparseBlockMatrix{
		columns: make([]*SparseBlockColumnMatrix, len(m.columns)),
		sizes:   append([]int(nil), m.sizes...),
	}
	for j, col := range m.columns {
		c.columns[j] = col.Copy()
	}
	return c
}

func (m *SparseBlockMatrix) Equal(o *SparseBlockMatrix) bool {
	if len(m.columns) != len(o.columns) {
		return false
	}
	for j, c := range m.columns {
		if !c.Equal(o.columns[j]) {
			return false
		}
	}
	return true
}

func (m *SparseBlockMatrix) String() string {
	sb := strings.Builder{}
	fmt.Fprintf(&sb, "%d columns, %d blocks (%d diagonal), %d elements\n",
		len(m.columns), m.NumberOfBlocks(), m.NumberOfDiagonalBlocks(), m.NumberOfElements())
	for j, c := range m.columns {
		if c.NumberOfBlocks() == 0 {
			continue
		}
		fmt.Fprintf(&sb, "column %d\n", j)
		c.format(&sb, "  row")
	}
	return sb.String()
}
