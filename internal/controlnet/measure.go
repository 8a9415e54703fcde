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
)

type MeasureType int

const (
	Candidate MeasureType = iota
	Manual
	RegisteredPixel
	RegisteredSubPixel
	Reference
)

var measureTypeNames = []string{"Candidate", "Manual", "RegisteredPixel", "RegisteredSubPixel", "Reference"}

func (t MeasureType) String() string {
	if t < 0 || int(t) >= len(measureTypeNames) {
		return fmt.Sprintf("MeasureType(%d)", int(t))
	}
	return measureTypeNames[t]
}

func ParseMeasureType(s string) (MeasureType, error) {
	for i, n := range measureTypeNames {
		if n == s {
			return MeasureType(i), nil
		}
	}
	return Candidate, fmt.Errorf("%w: unknown measure type %q", ErrInvalidType, s)
}

// A single observation of one control point on one image
type ControlMeasure struct {
	serial  string
	pointID string // owning point, lookup only

	sample, line float64
	sigma        float64 // apriori measurement sigma in pixels
	mtype        MeasureType

	editLock  bool
	ignored   bool
	rejected  bool // rejected by the bundle adjustment outlier detection
	reference bool // is the reference measure of its point
	pointLock bool // owning point is edit locked

	focalMeasured [2]float64
	focalComputed [2]float64
	residual      [2]float64 // measured minus computed, in pixels

	stamp stamp
}

// Creates a new measure with a default sigma of one pixel
func NewControlMeasure(serial string, sample, line float64, mtype MeasureType) *ControlMeasure {
	return &ControlMeasure{
		serial: serial,
		sample: sample,
		line:   line,
		sigma:  1,
		mtype:  mtype,
	}
}

func (m *ControlMeasure) SerialNumber() string { return m.serial }
func (m *ControlMeasure) PointID() string      { return m.pointID }
func (m *ControlMeasure) Sample() float64      { return m.sample }
func (m *ControlMeasure) Line() float64        { return m.line }
func (m *ControlMeasure) Sigma() float64       { return m.sigma }
func (m *ControlMeasure) Type() MeasureType    { return m.mtype }
func (m *ControlMeasure) IsIgnored() bool      { return m.ignored }
func (m *ControlMeasure) IsRejected() bool     { return m.rejected }
func (m *ControlMeasure) IsReference() bool    { return m.reference }
func (m *ControlMeasure) IsMeasured() bool     { return m.mtype != Candidate }

// A measure takes part in the adjustment if it is measured, not ignored and not rejected
func (m *ControlMeasure) IsValid() bool {
	return m.IsMeasured() && !m.ignored && !m.rejected
}

// The reference measure of an edit locked point is locked as well
func (m *ControlMeasure) IsEditLocked() bool {
	return m.editLock || (m.reference && m.pointLock)
}

func (m *ControlMeasure) Residual() (sample, line float64) { return m.residual[0], m.residual[1] }

func (m *ControlMeasure) ResidualMagnitude() float64 {
	return math.Sqrt(m.residual[0]*m.residual[0] + m.residual[1]*m.residual[1])
}

func (m *ControlMeasure) FocalPlaneMeasured() (x, y float64) { return m.focalMeasured[0], m.focalMeasured[1] }
func (m *ControlMeasure) FocalPlaneComputed() (x, y float64) { return m.focalComputed[0], m.focalComputed[1] }

func (m *ControlMeasure) ChooserName() string { return m.stamp.chooserName() }
func (m *ControlMeasure) DateTime() string    { return m.stamp.date() }

func (m *ControlMeasure) SetEditLock(lock bool) {
	m.editLock = lock
}

func (m *ControlMeasure) SetCoordinate(sample, line float64) error {
	if m.IsEditLocked() {
		return ErrMeasureLocked
	}
	m.sample, m.line = sample, line
	m.stamp.reset()
	return nil
}

// Sets the measure type. Reference typing is managed by the owning point
func (m *ControlMeasure) SetType(t MeasureType) error {
	if m.IsEditLocked() {
		return ErrMeasureLocked
	}
	if t == Reference && !m.reference {
		return fmt.Errorf("%w: use ControlPoint.SetRefMeasure", ErrInvalidType)
	}
	if t == Candidate && m.reference {
		return fmt.Errorf("%w: reference measure must be measured", ErrInvalidType)
	}
	m.mtype = t
	m.stamp.reset()
	return nil
}

func (m *ControlMeasure) SetIgnored(ignored bool) error {
	if m.IsEditLocked() {
		return ErrMeasureLocked
	}
	m.ignored = ignored
	m.stamp.reset()
	return nil
}

func (m *ControlMeasure) SetSigma(sigma float64) error {
	if m.IsEditLocked() {
		return ErrMeasureLocked
	}
	if !(sigma > 0) {
		return fmt.Errorf("controlnet: measure sigma must be positive, got %g", sigma)
	}
	m.sigma = sigma
	m.stamp.reset()
	return nil
}

func (m *ControlMeasure) SetResidual(sample, line float64) {
	m.residual = [2]float64{sample, line}
}

func (m *ControlMeasure) SetFocalPlaneMeasured(x, y float64) {
	m.focalMeasured = [2]float64{x, y}
}

func (m *ControlMeasure) SetFocalPlaneComputed(x, y float64) {
	m.focalComputed = [2]float64{x, y}
}

func (m *ControlMeasure) String() string {
	return fmt.Sprintf("%s (%.2f, %.2f) %v", m.serial, m.sample, m.line, m.mtype)
}
