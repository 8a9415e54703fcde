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

package controlnet

import "fmt"

// An ordered collection of control points. Insertion order defines point indices.
type ControlNet struct {
	NetworkID   string
	TargetName  string
	Description string
	UserName    string

	points []*ControlPoint
	byID   map[string]int
}

func NewControlNet(networkID, targetName string) *ControlNet {
	return &ControlNet{
		NetworkID:  networkID,
		TargetName: targetName,
		byID:       map[string]int{},
	}
}

func (cn *ControlNet) AddPoint(p *ControlPoint) error {
	if _, ok := cn.byID[p.id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePointID, p.id)
	}
	cn.points = append(cn.points, p)
	cn.byID[p.id] = len(cn.points) - 1
	return nil
}

// Removes the point with the given id. Edit locked points cannot be removed.
func (cn *ControlNet) DeletePoint(id string) error {
	i, ok := cn.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPointNotFound, id)
	}
	if cn.points[i].editLock {
		return ErrPointLocked
	}
	copy(cn.points[i:], cn.points[i+1:])
	cn.points[len(cn.points)-1] = nil
	cn.points = cn.points[:len(cn.points)-1]
	cn.byID = make(map[string]int, len(cn.points))
	for j, p := range cn.points {
		cn.byID[p.id] = j
	}
	return nil
}

func (cn *ControlNet) Point(id string) (*ControlPoint, error) {
	i, ok := cn.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPointNotFound, id)
	}
	return cn.points[i], nil
}

func (cn *ControlNet) PointAt(i int) *ControlPoint { return cn.points[i] }
func (cn *ControlNet) NumPoints() int              { return len(cn.points) }

// Returns the index of the point with the given id, or -1
func (cn *ControlNet) PointIndex(id string) int {
	if i, ok := cn.byID[id]; ok {
		return i
	}
	return -1
}

// Returns a copy of the point list in insertion order
func (cn *ControlNet) Points() []*ControlPoint {
	ps := make([]*ControlPoint, len(cn.points))
	copy(ps, cn.points)
	return ps
}

func (cn *ControlNet) NumValidPoints() int {
	n := 0
	for _, p := range cn.points {
		if !p.ignored && !p.rejected {
			n++
		}
	}
	return n
}

func (cn *ControlNet) NumMeasures() int {
	n := 0
	for _, p := range cn.points {
		n += len(p.measures)
	}
	return n
}

func (cn *ControlNet) NumValidMeasures() int {
	n := 0
	for _, p := range cn.points {
		if p.ignored {
			continue
		}
		n += p.NumValidMeasures()
	}
	return n
}

func (cn *ControlNet) NumIgnoredMeasures() int {
	n := 0
	for _, p := range cn.points {
		for _, m := range p.measures {
			if p.ignored || m.ignored {
				n++
			}
		}
	}
	return n
}

func (cn *ControlNet) NumRejectedMeasures() int {
	n := 0
	for _, p := range cn.points {
		n += p.numRejectedMeasures
	}
	return n
}

// Resets all bundle rejection flags, as required at the start of a fresh run
func (cn *ControlNet) ClearJigsawRejected() {
	for _, p := range cn.points {
		p.ClearJigsawRejected()
	}
}

// Returns every serial number referenced by a measure, in first-seen order
func (cn *ControlNet) SerialNumbers() []string {
	seen := map[string]bool{}
	var serials []string
	for _, p := range cn.points {
		for _, m := range p.measures {
			if !seen[m.serial] {
				seen[m.serial] = true
				serials = append(serials, m.serial)
			}
		}
	}
	return serials
}

func (cn *ControlNet) String() string {
	return fmt.Sprintf("network %s target %s points %d measures %d valid %d",
		cn.NetworkID, cn.TargetName, len(cn.points), cn.NumMeasures(), cn.NumValidMeasures())
}
