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

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"

	"github.com/mlnoga/jigsaw/internal/camera"
)

type PointType int

const (
	Ground      PointType = iota // fixed world coordinate, never altered by the solve
	Constrained                  // apriori coordinate and covariance act as a constraint
	Tie                          // free
)

var pointTypeNames = []string{"Ground", "Constrained", "Tie"}

func (t PointType) String() string {
	if t < 0 || int(t) >= len(pointTypeNames) {
		return fmt.Sprintf("PointType(%d)", int(t))
	}
	return pointTypeNames[t]
}

func ParsePointType(s string) (PointType, error) {
	for i, n := range pointTypeNames {
		if n == s {
			return PointType(i), nil
		}
	}
	return Tie, fmt.Errorf("%w: unknown point type %q", ErrInvalidType, s)
}

// Provenance of the apriori surface point
type AprioriSource int

const (
	SourceNone AprioriSource = iota
	SourceUser
	SourceAverageOfMeasures
	SourceReference
	SourceBasemap
	SourceBundleSolution
)

var aprioriSourceNames = []string{"None", "User", "AverageOfMeasures", "Reference", "Basemap", "BundleSolution"}

func (s AprioriSource) String() string {
	if s < 0 || int(s) >= len(aprioriSourceNames) {
		return fmt.Sprintf("AprioriSource(%d)", int(s))
	}
	return aprioriSourceNames[s]
}

func ParseAprioriSource(s string) (AprioriSource, error) {
	for i, n := range aprioriSourceNames {
		if n == s {
			return AprioriSource(i), nil
		}
	}
	return SourceNone, fmt.Errorf("%w: unknown apriori source %q", ErrInvalidType, s)
}

// Maps image serial numbers to the sensors which observed them
type GroundMapper interface {
	Sensor(serial string) (camera.Sensor, bool)
}

// A named 3-D ground point and the measures observing it. Measures are owned
// by the point and kept in insertion order.
type ControlPoint struct {
	id    string
	ptype PointType

	measures []*ControlMeasure
	bySerial map[string]int
	refIndex int // index into measures, -1 if none

	apriori           SurfacePoint
	aprioriSource     AprioriSource
	aprioriSourceFile string
	adjusted          SurfacePoint

	editLock bool
	ignored  bool
	rejected bool

	numRejectedMeasures int

	stamp stamp
}

func NewControlPoint(id string, ptype PointType) *ControlPoint {
	return &ControlPoint{
		id:       id,
		ptype:    ptype,
		bySerial: map[string]int{},
		refIndex: -1,
	}
}

func (p *ControlPoint) ID() string                      { return p.id }
func (p *ControlPoint) Type() PointType                 { return p.ptype }
func (p *ControlPoint) IsEditLocked() bool              { return p.editLock }
func (p *ControlPoint) IsIgnored() bool                 { return p.ignored }
func (p *ControlPoint) IsRejected() bool                { return p.rejected }
func (p *ControlPoint) IsFixed() bool                   { return p.ptype == Ground }
func (p *ControlPoint) AprioriSource() AprioriSource    { return p.aprioriSource }
func (p *ControlPoint) AprioriSourceFile() string       { return p.aprioriSourceFile }
func (p *ControlPoint) NumRejectedMeasures() int        { return p.numRejectedMeasures }
func (p *ControlPoint) ChooserName() string             { return p.stamp.chooserName() }
func (p *ControlPoint) DateTime() string                { return p.stamp.date() }

func (p *ControlPoint) AprioriSurfacePoint() SurfacePoint {
	return p.apriori
}

func (p *ControlPoint) AdjustedSurfacePoint() SurfacePoint {
	return p.adjusted
}

// Best available coordinate: adjusted if present, else apriori
func (p *ControlPoint) BestSurfacePoint() SurfacePoint {
	if p.adjusted.Valid() {
		return p.adjusted
	}
	return p.apriori
}

func (p *ControlPoint) NumMeasures() int { return len(p.measures) }

// Returns the measure at the given insertion index
func (p *ControlPoint) MeasureAt(i int) *ControlMeasure { return p.measures[i] }

// Returns a copy of the measure list in insertion order
func (p *ControlPoint) Measures() []*ControlMeasure {
	ms := make([]*ControlMeasure, len(p.measures))
	copy(ms, p.measures)
	return ms
}

func (p *ControlPoint) Measure(serial string) (*ControlMeasure, error) {
	i, ok := p.bySerial[serial]
	if !ok {
		return nil, fmt.Errorf("%w: point %s serial %s", ErrMeasureNotFound, p.id, serial)
	}
	return p.measures[i], nil
}

func (p *ControlPoint) HasSerialNumber(serial string) bool {
	_, ok := p.bySerial[serial]
	return ok
}

func (p *ControlPoint) HasRefMeasure() bool { return p.refIndex >= 0 }

func (p *ControlPoint) RefMeasure() (*ControlMeasure, error) {
	if p.refIndex < 0 {
		return nil, fmt.Errorf("%w: point %s has no reference measure", ErrMeasureNotFound, p.id)
	}
	return p.measures[p.refIndex], nil
}

func (p *ControlPoint) NumValidMeasures() int {
	n := 0
	for _, m := range p.measures {
		if m.IsValid() {
			n++
		}
	}
	return n
}

func (p *ControlPoint) NumLockedMeasures() int {
	n := 0
	for _, m := range p.measures {
		if m.IsEditLocked() {
			n++
		}
	}
	return n
}

// Adds a measure to the point. The first measured measure becomes the reference
// unless a reference already exists.
func (p *ControlPoint) AddMeasure(m *ControlMeasure) error {
	if _, ok := p.bySerial[m.serial]; ok {
		return fmt.Errorf("%w: point %s serial %s", ErrDuplicateSerialNumber, p.id, m.serial)
	}
	makeRef := false
	if m.mtype == Reference {
		if p.refIndex >= 0 {
			return fmt.Errorf("%w: point %s serial %s", ErrDuplicateReference, p.id, m.serial)
		}
		makeRef = true
	} else if p.refIndex < 0 && m.IsMeasured() {
		makeRef = true
	}
	if makeRef && p.editLock {
		return ErrPointLocked
	}

	m.pointID = p.id
	m.pointLock = p.editLock
	m.reference = false
	p.measures = append(p.measures, m)
	p.bySerial[m.serial] = len(p.measures) - 1
	if makeRef {
		p.refIndex = len(p.measures) - 1
		m.reference = true
	}
	if !p.editLock {
		p.stamp.reset()
	}
	return nil
}

// Deletes the measure for the given serial. The reference measure of an unlocked
// point may be deleted; the point is then left without reference.
func (p *ControlPoint) DeleteMeasure(serial string) error {
	i, ok := p.bySerial[serial]
	if !ok {
		return fmt.Errorf("%w: point %s serial %s", ErrMeasureNotFound, p.id, serial)
	}
	m := p.measures[i]
	if m.editLock {
		return ErrMeasureLocked
	}
	if i == p.refIndex && p.editLock {
		return ErrPointLocked
	}
	if m.rejected {
		p.numRejectedMeasures--
	}

	copy(p.measures[i:], p.measures[i+1:])
	p.measures[len(p.measures)-1] = nil
	p.measures = p.measures[:len(p.measures)-1]
	switch {
	case i == p.refIndex:
		p.refIndex = -1
	case i < p.refIndex:
		p.refIndex--
	}
	p.reindex()

	m.pointID, m.reference, m.pointLock = "", false, false
	if !p.editLock {
		p.stamp.reset()
	}
	return nil
}

func (p *ControlPoint) reindex() {
	p.bySerial = make(map[string]int, len(p.measures))
	for i, m := range p.measures {
		p.bySerial[m.serial] = i
	}
}

// Makes the measure with the given serial the reference measure
func (p *ControlPoint) SetRefMeasure(serial string) error {
	if p.editLock {
		return ErrPointLocked
	}
	i, ok := p.bySerial[serial]
	if !ok {
		return fmt.Errorf("%w: point %s serial %s", ErrMeasureNotFound, p.id, serial)
	}
	m := p.measures[i]
	if !m.IsMeasured() {
		return fmt.Errorf("%w: reference measure must be measured", ErrInvalidType)
	}
	if p.refIndex >= 0 && p.refIndex != i {
		old := p.measures[p.refIndex]
		old.reference = false
		if old.mtype == Reference {
			old.mtype = Manual
		}
	}
	p.refIndex = i
	m.reference = true
	p.stamp.reset()
	return nil
}

// Locking is always permitted, and propagates to the reference measure
func (p *ControlPoint) SetEditLock(lock bool) {
	p.editLock = lock
	for _, m := range p.measures {
		m.pointLock = lock
	}
}

func (p *ControlPoint) SetID(id string) error {
	if p.editLock {
		return ErrPointLocked
	}
	p.id = id
	for _, m := range p.measures {
		m.pointID = id
	}
	p.stamp.reset()
	return nil
}

func (p *ControlPoint) SetType(t PointType) error {
	if p.editLock {
		return ErrPointLocked
	}
	if t < Ground || t > Tie {
		return fmt.Errorf("%w: point type %d", ErrInvalidType, int(t))
	}
	p.ptype = t
	p.stamp.reset()
	return nil
}

func (p *ControlPoint) SetIgnored(ignored bool) error {
	if p.editLock {
		return ErrPointLocked
	}
	p.ignored = ignored
	p.stamp.reset()
	return nil
}

func (p *ControlPoint) SetAprioriSurfacePoint(sp SurfacePoint) error {
	if p.editLock {
		return ErrPointLocked
	}
	p.apriori = sp
	p.stamp.reset()
	return nil
}

func (p *ControlPoint) SetAprioriSource(source AprioriSource, file string) error {
	if p.editLock {
		return ErrPointLocked
	}
	p.aprioriSource, p.aprioriSourceFile = source, file
	p.stamp.reset()
	return nil
}

// Stores the adjusted coordinates. This is a solve output and ignores the edit lock.
func (p *ControlPoint) SetAdjustedSurfacePoint(sp SurfacePoint) {
	p.adjusted = sp
	if !p.editLock {
		p.stamp.reset()
	}
}

func (p *ControlPoint) SetRejected(rejected bool) {
	p.rejected = rejected
}

// Flags or clears the measure with the given serial as rejected by the bundle,
// keeping the rejected measure count current.
func (p *ControlPoint) SetMeasureRejected(serial string, rejected bool) error {
	m, err := p.Measure(serial)
	if err != nil {
		return err
	}
	if m.rejected == rejected {
		return nil
	}
	m.rejected = rejected
	if rejected {
		p.numRejectedMeasures++
	} else {
		p.numRejectedMeasures--
	}
	return nil
}

// Clears all bundle rejection flags on the point and its measures
func (p *ControlPoint) ClearJigsawRejected() {
	for _, m := range p.measures {
		m.rejected = false
	}
	p.rejected = false
	p.numRejectedMeasures = 0
}

// Computes the apriori coordinates of a tie point as the average of the
// back-projected rays of all valid measures. Ground points must already have
// apriori coordinates and are never recomputed.
func (p *ControlPoint) ComputeApriori(gm GroundMapper) error {
	switch p.ptype {
	case Ground:
		if !p.apriori.Valid() {
			return fmt.Errorf("%w: ground point %s", ErrNoAprioriCoordinates, p.id)
		}
		if !p.adjusted.Valid() {
			p.adjusted = p.apriori.Copy()
		}
		return nil
	case Constrained:
		if p.apriori.Valid() {
			if !p.adjusted.Valid() {
				p.adjusted = p.apriori.Copy()
			}
			return nil
		}
	}
	if p.editLock {
		return ErrPointLocked
	}

	var sum r3.Vector
	count := 0
	for _, m := range p.measures {
		if !m.IsMeasured() || m.ignored {
			continue
		}
		s, ok := gm.Sensor(m.serial)
		if !ok {
			continue
		}
		x, y := s.PixelToFocalPlane(m.sample, m.line)
		m.SetFocalPlaneMeasured(x, y)
		xyz, err := s.BackProject(m.sample, m.line)
		if err != nil {
			continue
		}
		sum = sum.Add(xyz)
		count++
	}
	if count == 0 {
		return fmt.Errorf("%w: point %s", ErrNoValidMeasures, p.id)
	}

	p.apriori = NewSurfacePoint(sum.Mul(1 / float64(count)))
	p.aprioriSource = SourceAverageOfMeasures
	p.aprioriSourceFile = ""
	p.adjusted = p.apriori.Copy()
	p.stamp.reset()
	return nil
}

// Computes residuals of all measured, non-ignored measures against the best
// available coordinates. Returns the largest residual magnitude among measures
// not rejected by the bundle.
func (p *ControlPoint) ComputeResiduals(gm GroundMapper) (float64, error) {
	maxResidual := 0.0
	sp := p.BestSurfacePoint()
	if !sp.Valid() {
		return 0, fmt.Errorf("%w: point %s", ErrNoAprioriCoordinates, p.id)
	}
	for _, m := range p.measures {
		if !m.IsMeasured() || m.ignored {
			continue
		}
		s, ok := gm.Sensor(m.serial)
		if !ok {
			return 0, fmt.Errorf("%w: point %s serial %s", ErrNoSensor, p.id, m.serial)
		}

		rs, rl, err := residual(s, sp.XYZ, m)
		if err != nil {
			return 0, fmt.Errorf("point %s serial %s: %w", p.id, m.serial, err)
		}
		m.SetResidual(rs, rl)
		if !m.rejected {
			maxResidual = math.Max(maxResidual, m.ResidualMagnitude())
		}
	}
	return maxResidual, nil
}

// Measured minus computed pixel coordinates of one measure
func residual(s camera.Sensor, xyz r3.Vector, m *ControlMeasure) (rs, rl float64, err error) {
	if s.Kind() == camera.Radar {
		// time preserving forward solve, no focal plane round trip
		cs, cl, err := s.GroundToPixel(xyz, m.sample, m.line)
		if err != nil {
			return 0, 0, err
		}
		return m.sample - cs, m.line - cl, nil
	}
	cx, cy, err := s.GroundToFocalPlane(xyz, m.sample, m.line)
	if err != nil {
		return 0, 0, err
	}
	mx, my := s.PixelToFocalPlane(m.sample, m.line)
	m.SetFocalPlaneComputed(cx, cy)
	m.SetFocalPlaneMeasured(mx, my)
	cs, cl := s.FocalPlaneToPixel(cx, cy)
	ms, ml := s.FocalPlaneToPixel(mx, my)
	return ms - cs, ml - cl, nil
}

// Root mean square of the residual magnitudes of the valid measures, in pixels
func (p *ControlPoint) ResidualRMS() float64 {
	sum, n := 0.0, 0
	for _, m := range p.measures {
		if !m.IsValid() {
			continue
		}
		rs, rl := m.Residual()
		sum += rs*rs + rl*rl
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}

func (p *ControlPoint) String() string {
	return fmt.Sprintf("%s %v measures %d valid %d apriori %v adjusted %v",
		p.id, p.ptype, len(p.measures), p.NumValidMeasures(), p.apriori, p.adjusted)
}
