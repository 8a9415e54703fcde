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

// One block column of a matrix, keyed by block row. Used for the image-point
// coupling blocks of one point, with one block per image observing it.
type SparseBlockColumnMatrix struct {
	blockMap
}

func NewSparseBlockColumnMatrix() *SparseBlockColumnMatrix {
	return &SparseBlockColumnMatrix{blockMap: newBlockMap()}
}

// Deep copy
func (m *SparseBlockColumnMatrix) Copy() *SparseBlockColumnMatrix {
	return &SparseBlockColumnMatrix{blockMap: m.clone()}
}

// Same stored blocks with identical values
func (m *SparseBlockColumnMatrix) Equal(o *SparseBlockColumnMatrix) bool {
	return m.equal(&o.blockMap)
}

func (m *SparseBlockColumnMatrix) String() string {
	sb := strings.Builder{}
	m.format(&sb, "row")
	return sb.String()
}
