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
	"strings"
)

// One block row of a matrix, keyed by block column
type SparseBlockRowMatrix struct {
	blockMap
}

func NewSparseBlockRowMatrix() *SparseBlockRowMatrix {
	return &SparseBlockRowMatrix{blockMap: newBlockMap()}
}

func (m *SparseBlockRowMatrix) Copy() *SparseBlockRowMatrix {
	return &SparseBlockRowMatrix{blockMap: m.clone()}
}

func (m *SparseBlockRowMatrix) Equal(o *SparseBlockRowMatrix) bool {
	return m.equal(&o.blockMap)
}

func (m *SparseBlockRowMatrix) String() string {
	sb := strings.Builder{}
	m.format(&sb, "column")
	return sb.String()
}
