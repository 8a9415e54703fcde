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
	"sort"
)

// Elimination order of the block rows of a symmetric matrix, with the block pattern
// of the resulting Cholesky factor
type Ordering struct {
	Perm    []int   // Perm[k] is the original index eliminated in step k
	InvPerm []int   // InvPerm[i] is the step in which original index i is eliminated
	Pattern [][]int // Pattern[k] lists the steps > k with a nonzero factor block in column k, ascending
}

// Orders by greedy minimum degree on the block graph. Ties go to the lower index.
func MinimumDegree(m *SparseBlockMatrix) *Ordering {
	adj := adjacency(m)
	n := len(adj)
	eliminated := make([]bool, n)
	perm := make([]int, 0, n)
	for len(perm) < n {
		best, bestDeg := -1, 0
		for i := 0; i < n; i++ {
			if eliminated[i] {
				continue
			}
			if d := len(adj[i]); best < 0 || d < bestDeg {
				best, bestDeg = i, d
			}
		}
		eliminateNode(adj, best)
		eliminated[best] = true
		perm = append(perm, best)
	}
	return symbolic(m, perm)
}

// Keeps the original order
func NaturalOrdering(m *SparseBlockMatrix) *Ordering {
	perm := make([]int, m.NumberOfColumns())
	for i := range perm {
		perm[i] = i
	}
	return symbolic(m, perm)
}

// Computes the factor pattern for a given elimination order by playing the elimination game
func symbolic(m *SparseBlockMatrix, perm []int) *Ordering {
	n := len(perm)
	o := &Ordering{Perm: perm, InvPerm: make([]int, n), Pattern: make([][]int, n)}
	for k, i := range perm {
		o.InvPerm[i] = k
	}
	adj := adjacency(m)
	for k, i := range perm {
		rows := make([]int, 0, len(adj[i]))
		for nb := range adj[i] {
			rows = append(rows, o.InvPerm[nb])
		}
		sort.Ints(rows)
		o.Pattern[k] = rows
		eliminateNode(adj, i)
	}
	return o
}

// Number of off-diagonal factor blocks
func (o *Ordering) NumberOfFactorBlocks() int {
	n := 0
	for _, p := range o.Pattern {
		n += len(p)
	}
	return n
}

func adjacency(m *SparseBlockMatrix) []map[int]bool {
	adj := make([]map[int]bool, m.NumberOfColumns())
	for i := range adj {
		adj[i] = map[int]bool{}
	}
	for col, c := range m.columns {
		for row := range c.blocks {
			if row != col {
				adj[row][col] = true
				adj[col][row] = true
			}
		}
	}
	return adj
}

// Removes node i from the graph and connects all its neighbours pairwise
func eliminateNode(adj []map[int]bool, i int) {
	for a := range adj[i] {
		delete(adj[a], i)
		for b := range adj[i] {
			if a != b {
				adj[a][b] = true
			}
		}
	}
	adj[i] = map[int]bool{}
}
