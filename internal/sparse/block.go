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

// Package sparse stores the normal equations of a bundle adjustment as maps of
// dense blocks, and factors them with a block sparse Cholesky decomposition.
package sparse

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrDuplicateBlock      = errors.New("sparse: duplicate block")
	ErrBlockNotFound       = errors.New("sparse: block not found")
	ErrBlockShape          = errors.New("sparse: invalid block shape")
	ErrBlockIndex          = errors.New("sparse: block index out of range")
	ErrNotPositiveDefinite = errors.New("sparse: matrix not positive definite")
	ErrDimensionMismatch   = errors.New("sparse: dimension mismatch")
)

// Dense blocks keyed by one block index. The shape first inserted for an index stays
// fixed for the lifetime of the map, even across wipes.
type blockMap struct {
	blocks map[int]*mat.Dense
	shapes map[int][2]int
}

func newBlockMap() blockMap {
	return blockMap{blocks: map[int]*mat.Dense{}, shapes: map[int][2]int{}}
}

// Inserts a zero block of the given shape at the given index
func (b *blockMap) InsertMatrixBlock(index, nRows, nCols int) error {
	if nRows <= 0 || nCols <= 0 || index < 0 {
		return fmt.Errorf("%w: %dx%d at %d", ErrBlockShape, nRows, nCols, index)
	}
	if _, ok := b.blocks[index]; ok {
		return fmt.Errorf("%w: index %d", ErrDuplicateBlock, index)
	}
	if s, ok := b.shapes[index]; ok && (s[0] != nRows || s[1] != nCols) {
		return fmt.Errorf("%w: index %d was %dx%d, now %dx%d", ErrBlockShape, index, s[0], s[1], nRows, nCols)
	}
	b.shapes[index] = [2]int{nRows, nCols}
	b.blocks[index] = mat.NewDense(nRows, nCols, nil)
	return nil
}

// Returns the stored block, which remains owned by the map
func (b *blockMap) Block(index int) (*mat.Dense, error) {
	d, ok := b.blocks[index]
	if !ok {
		return nil, fmt.Errorf("%w: index %d", ErrBlockNotFound, index)
	}
	return d, nil
}

func (b *blockMap) Has(index int) bool {
	_, ok := b.blocks[index]
	return ok
}

// Returns the indices of all stored blocks in ascending order
func (b *blockMap) Indices() []int {
	res := make([]int, 0, len(b.blocks))
	for i := range b.blocks {
		res = append(res, i)
	}
	sort.Ints(res)
	return res
}

// Sets all stored blocks to zero, keeping them allocated
func (b *blockMap) ZeroBlocks() {
	for _, d := range b.blocks {
		d.Zero()
	}
}

// Releases all blocks
func (b *blockMap) Wipe() {
	b.blocks = map[int]*mat.Dense{}
}

func (b *blockMap) NumberOfBlocks() int { return len(b.blocks) }

func (b *blockMap) NumberOfElements() int {
	n := 0
	for _, d := range b.blocks {
		r, c := d.Dims()
		n += r * c
	}
	return n
}

func (b *blockMap) clone() blockMap {
	c := blockMap{
		blocks: make(map[int]*mat.Dense, len(b.blocks)),
		shapes: make(map[int][2]int, len(b.shapes)),
	}
	for i, d := range b.blocks {
		c.blocks[i] = mat.DenseCopyOf(d)
	}
	for i, s := range b.shapes {
		c.shapes[i] = s
	}
	return c
}

func (b *blockMap) equal(o *blockMap) bool {
	if len(b.blocks) != len(o.blocks) {
		return false
	}
	for i, d := range b.blocks {
		od, ok := o.blocks[i]
		if !ok || !mat.Equal(d, od) {
			return false
		}
	}
	return true
}

func (b *blockMap) format(sb *strings.Builder, label string) {
	for _, i := range b.Indices() {
		d := b.blocks[i]
		r, c := d.Dims()
		fmt.Fprintf(sb, "%s %d (%dx%d)\n", label, i, r, c)
		fmt.Fprintf(sb, "%v\n", mat.Formatted(d, mat.Prefix(""), mat.Squeeze()))
	}
}
