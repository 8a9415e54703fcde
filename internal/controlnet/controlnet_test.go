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
	"errors"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/mlnoga/jigsaw/internal/camera"
)

func newTestPoint(t *testing.T, id string, serials ...string) *ControlPoint {
	t.Helper()
	p := NewControlPoint(id, Tie)
	for i, sn := range serials {
		err := p.AddMeasure(NewControlMeasure(sn, 100+float64(i), 200, Manual))
		test.That(t, err, test.ShouldBeNil)
	}
	return p
}

func TestMeasureTypeParse(t *testing.T) {
	for _, mt := range []MeasureType{Candidate, Manual, RegisteredPixel, RegisteredSubPixel, Reference} {
		parsed, err := ParseMeasureType(mt.String())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, parsed, test.ShouldEqual, mt)
	}
	_, err := ParseMeasureType("Bogus")
	test.That(t, errors.Is(err, ErrInvalidType), test.ShouldBeTrue)
}

func TestFirstMeasuredBecomesReference(t *testing.T) {
	p := NewControlPoint("p1", Tie)
	test.That(t, p.AddMeasure(NewControlMeasure("a", 1, 1, Candidate)), test.ShouldBeNil)
	test.That(t, p.HasRefMeasure(), test.ShouldBeFalse)
	test.That(t, p.AddMeasure(NewControlMeasure("b", 1, 1, Manual)), test.ShouldBeNil)
	ref, err := p.RefMeasure()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ref.SerialNumber(), test.ShouldEqual, "b")
	test.That(t, ref.PointID(), test.ShouldEqual, "p1")

	err = p.AddMeasure(NewControlMeasure("b", 2, 2, Manual))
	test.That(t, errors.Is(err, ErrDuplicateSerialNumber), test.ShouldBeTrue)
	err = p.AddMeasure(NewControlMeasure("c", 2, 2, Reference))
	test.That(t, errors.Is(err, ErrDuplicateReference), test.ShouldBeTrue)
	test.That(t, p.NumMeasures(), test.ShouldEqual, 2)
	test.That(t, p.NumValidMeasures(), test.ShouldEqual, 1)
}

func TestPointEditLock(t *testing.T) {
	p := newTestPoint(t, "p1", "a", "b", "c")
	p.SetEditLock(true)

	test.That(t, p.SetID("p2"), test.ShouldBeError, ErrPointLocked)
	test.That(t, p.SetType(Ground), test.ShouldBeError, ErrPointLocked)
	test.That(t, p.SetIgnored(true), test.ShouldBeError, ErrPointLocked)
	test.That(t, p.SetAprioriSurfacePoint(NewSurfacePoint(r3.Vector{X: 1})), test.ShouldBeError, ErrPointLocked)
	test.That(t, p.SetRefMeasure("b"), test.ShouldBeError, ErrPointLocked)
	test.That(t, p.DeleteMeasure("a"), test.ShouldBeError, ErrPointLocked)

	// reference measure is locked through its point, the others are not
	ref, _ := p.Measure("a")
	test.That(t, ref.IsEditLocked(), test.ShouldBeTrue)
	test.That(t, ref.SetCoordinate(5, 5), test.ShouldBeError, ErrMeasureLocked)
	other, _ := p.Measure("b")
	test.That(t, other.IsEditLocked(), test.ShouldBeFalse)
	test.That(t, other.SetCoordinate(5, 5), test.ShouldBeNil)
	test.That(t, p.DeleteMeasure("b"), test.ShouldBeNil)

	// bundle adjustment may still reject and adjust locked points
	p.SetRejected(true)
	test.That(t, p.IsRejected(), test.ShouldBeTrue)
	p.SetAdjustedSurfacePoint(NewSurfacePoint(r3.Vector{X: 3}))
	test.That(t, p.AdjustedSurfacePoint().XYZ.X, test.ShouldEqual, 3)

	p.SetEditLock(false)
	test.That(t, ref.IsEditLocked(), test.ShouldBeFalse)
	test.That(t, p.SetID("p2"), test.ShouldBeNil)
	test.That(t, p.ID(), test.ShouldEqual, "p2")
}

func TestMeasureEditLock(t *testing.T) {
	m := NewControlMeasure("a", 1, 2, Manual)
	m.SetEditLock(true)
	test.That(t, m.SetCoordinate(3, 4), test.ShouldBeError, ErrMeasureLocked)
	test.That(t, m.SetIgnored(true), test.ShouldBeError, ErrMeasureLocked)
	test.That(t, m.SetSigma(2), test.ShouldBeError, ErrMeasureLocked)
	test.That(t, m.SetType(RegisteredPixel), test.ShouldBeError, ErrMeasureLocked)
	m.SetEditLock(false)
	test.That(t, m.SetSigma(0), test.ShouldNotBeNil)
	test.That(t, m.SetSigma(0.5), test.ShouldBeNil)
	test.That(t, m.Sigma(), test.ShouldEqual, 0.5)

	p := NewControlPoint("p", Tie)
	test.That(t, p.AddMeasure(NewControlMeasure("x", 0, 0, Candidate)), test.ShouldBeNil)
	test.That(t, p.AddMeasure(NewControlMeasure("y", 0, 0, Manual)), test.ShouldBeNil)
	ref, _ := p.Measure("y")
	err := ref.SetType(Candidate)
	test.That(t, errors.Is(err, ErrInvalidType), test.ShouldBeTrue)
	x, _ := p.Measure("x")
	err = x.SetType(Reference)
	test.That(t, errors.Is(err, ErrInvalidType), test.ShouldBeTrue)
}

func TestDeleteReferenceMeasure(t *testing.T) {
	p := newTestPoint(t, "p1", "a", "b", "c")
	test.That(t, p.DeleteMeasure("a"), test.ShouldBeNil)
	test.That(t, p.HasRefMeasure(), test.ShouldBeFalse)
	_, err := p.RefMeasure()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, p.NumMeasures(), test.ShouldEqual, 2)
	m, err := p.Measure("c")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m, test.ShouldEqual, p.MeasureAt(1))

	test.That(t, p.SetRefMeasure("c"), test.ShouldBeNil)
	test.That(t, m.IsReference(), test.ShouldBeTrue)
	test.That(t, p.SetRefMeasure("b"), test.ShouldBeNil)
	test.That(t, m.IsReference(), test.ShouldBeFalse)

	err = p.DeleteMeasure("zz")
	test.That(t, errors.Is(err, ErrMeasureNotFound), test.ShouldBeTrue)
}

func TestMeasureRejectedCount(t *testing.T) {
	p := newTestPoint(t, "p1", "a", "b", "c")
	test.That(t, p.SetMeasureRejected("b", true), test.ShouldBeNil)
	test.That(t, p.SetMeasureRejected("b", true), test.ShouldBeNil)
	test.That(t, p.NumRejectedMeasures(), test.ShouldEqual, 1)
	test.That(t, p.NumValidMeasures(), test.ShouldEqual, 2)
	p.SetRejected(true)
	p.ClearJigsawRejected()
	test.That(t, p.NumRejectedMeasures(), test.ShouldEqual, 0)
	test.That(t, p.IsRejected(), test.ShouldBeFalse)
	test.That(t, p.NumValidMeasures(), test.ShouldEqual, 3)

	// rejection of a locked measure is a solve output, and deleting it keeps the count
	m, err := p.Measure("c")
	test.That(t, err, test.ShouldBeNil)
	m.SetEditLock(true)
	test.That(t, p.SetMeasureRejected("c", true), test.ShouldBeNil)
	test.That(t, m.IsRejected(), test.ShouldBeTrue)
	test.That(t, p.NumRejectedMeasures(), test.ShouldEqual, 1)
	m.SetEditLock(false)
	test.That(t, p.DeleteMeasure("c"), test.ShouldBeNil)
	test.That(t, p.NumRejectedMeasures(), test.ShouldEqual, 0)
	test.That(t, p.NumMeasures(), test.ShouldEqual, 2)
}

func TestStampIsLazyAndResetOnChange(t *testing.T) {
	defer func(old func() time.Time) { now = old }(now)
	now = func() time.Time { return time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC) }
	t.Setenv("USER", "tester")

	m := NewControlMeasure("a", 1, 2, Manual)
	test.That(t, m.DateTime(), test.ShouldEqual, "2020-01-02T03:04:05")
	test.That(t, m.ChooserName(), test.ShouldEqual, "tester")

	now = func() time.Time { return time.Date(2021, 1, 2, 3, 4, 5, 0, time.UTC) }
	test.That(t, m.DateTime(), test.ShouldEqual, "2020-01-02T03:04:05")
	test.That(t, m.SetCoordinate(2, 3), test.ShouldBeNil)
	test.That(t, m.DateTime(), test.ShouldEqual, "2021-01-02T03:04:05")
}

// Two nadir looking cameras over a flat target
func testSensors() camera.Sensors {
	plane := camera.Plane{}
	a := camera.NewCollinear(50, 0.01, 512, 512, r3.Vector{X: 0, Y: 0, Z: 1000}, 0, 0, 0)
	a.SetSurface(plane)
	b := camera.NewCollinear(50, 0.01, 512, 512, r3.Vector{X: 100, Y: 0, Z: 1000}, 0, 0, 0)
	b.SetSurface(plane)
	return camera.Sensors{"a": a, "b": b}
}

func measureOf(t *testing.T, s camera.Sensor, serial string, xyz r3.Vector) *ControlMeasure {
	t.Helper()
	sample, line, err := s.GroundToPixel(xyz, 0, 0)
	test.That(t, err, test.ShouldBeNil)
	return NewControlMeasure(serial, sample, line, Manual)
}

func TestComputeAprioriAverage(t *testing.T) {
	sensors := testSensors()
	truth := r3.Vector{X: 50, Y: 20, Z: 0}
	p := NewControlPoint("tie", Tie)
	test.That(t, p.AddMeasure(measureOf(t, sensors["a"], "a", truth)), test.ShouldBeNil)
	test.That(t, p.AddMeasure(measureOf(t, sensors["b"], "b", truth)), test.ShouldBeNil)

	test.That(t, p.ComputeApriori(sensors), test.ShouldBeNil)
	test.That(t, p.AprioriSource(), test.ShouldEqual, SourceAverageOfMeasures)
	got := p.AprioriSurfacePoint().XYZ
	test.That(t, got.X, test.ShouldAlmostEqual, truth.X, 1e-6)
	test.That(t, got.Y, test.ShouldAlmostEqual, truth.Y, 1e-6)
	test.That(t, got.Z, test.ShouldAlmostEqual, truth.Z, 1e-6)
	test.That(t, p.AdjustedSurfacePoint().XYZ, test.ShouldResemble, got)

	maxRes, err := p.ComputeResiduals(sensors)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, maxRes, test.ShouldAlmostEqual, 0, 1e-6)
	test.That(t, p.ResidualRMS(), test.ShouldAlmostEqual, 0, 1e-6)
}

func TestComputeAprioriGroundUnchanged(t *testing.T) {
	sensors := testSensors()
	known := r3.Vector{X: 10, Y: 10, Z: 0}
	p := NewControlPoint("gcp", Ground)
	test.That(t, p.AddMeasure(measureOf(t, sensors["a"], "a", r3.Vector{X: 12, Y: 10})), test.ShouldBeNil)
	err := p.ComputeApriori(sensors)
	test.That(t, errors.Is(err, ErrNoAprioriCoordinates), test.ShouldBeTrue)

	test.That(t, p.SetAprioriSurfacePoint(NewSurfacePointWithSigmas(known, 1, 1, 1)), test.ShouldBeNil)
	test.That(t, p.ComputeApriori(sensors), test.ShouldBeNil)
	test.That(t, p.AprioriSurfacePoint().XYZ, test.ShouldResemble, known)
	test.That(t, p.AdjustedSurfacePoint().XYZ, test.ShouldResemble, known)
	test.That(t, p.IsFixed(), test.ShouldBeTrue)

	// 2 metres off at 1000 m range and 50 mm focal length is 10 pixels
	maxRes, err := p.ComputeResiduals(sensors)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, maxRes, test.ShouldAlmostEqual, 10, 1e-6)
	m, _ := p.Measure("a")
	rs, rl := m.Residual()
	test.That(t, rs, test.ShouldAlmostEqual, 10, 1e-6)
	test.That(t, rl, test.ShouldAlmostEqual, 0, 1e-6)
}

func TestComputeAprioriFailures(t *testing.T) {
	sensors := testSensors()
	p := NewControlPoint("tie", Tie)
	test.That(t, p.AddMeasure(NewControlMeasure("zz", 1, 1, Manual)), test.ShouldBeNil)
	err := p.ComputeApriori(sensors)
	test.That(t, errors.Is(err, ErrNoValidMeasures), test.ShouldBeTrue)

	p.SetEditLock(true)
	test.That(t, p.ComputeApriori(sensors), test.ShouldBeError, ErrPointLocked)
}

type radarSensor struct {
	*camera.Collinear
}

func (radarSensor) Kind() camera.SensorKind { return camera.Radar }

func TestComputeResidualsRadar(t *testing.T) {
	c := camera.NewCollinear(50, 0.01, 512, 512, r3.Vector{Z: 1000}, 0, 0, 0)
	sensors := camera.Sensors{"r": radarSensor{c}}
	p := NewControlPoint("gcp", Ground)
	test.That(t, p.AddMeasure(NewControlMeasure("r", 515, 510, Manual)), test.ShouldBeNil)
	test.That(t, p.SetAprioriSurfacePoint(NewSurfacePoint(r3.Vector{})), test.ShouldBeNil)
	test.That(t, p.ComputeApriori(sensors), test.ShouldBeNil)
	_, err := p.ComputeResiduals(sensors)
	test.That(t, err, test.ShouldBeNil)
	m, _ := p.Measure("r")
	rs, rl := m.Residual()
	test.That(t, rs, test.ShouldAlmostEqual, 3, 1e-9)
	test.That(t, rl, test.ShouldAlmostEqual, -2, 1e-9)
	// radar residuals skip the focal plane
	fx, fy := m.FocalPlaneComputed()
	test.That(t, fx, test.ShouldEqual, 0)
	test.That(t, fy, test.ShouldEqual, 0)
}

func TestControlNet(t *testing.T) {
	cn := NewControlNet("net", "Mars")
	test.That(t, cn.AddPoint(newTestPoint(t, "p1", "a", "b")), test.ShouldBeNil)
	test.That(t, cn.AddPoint(newTestPoint(t, "p2", "b", "c")), test.ShouldBeNil)
	err := cn.AddPoint(newTestPoint(t, "p1", "a"))
	test.That(t, errors.Is(err, ErrDuplicatePointID), test.ShouldBeTrue)

	test.That(t, cn.NumPoints(), test.ShouldEqual, 2)
	test.That(t, cn.NumMeasures(), test.ShouldEqual, 4)
	test.That(t, cn.SerialNumbers(), test.ShouldResemble, []string{"a", "b", "c"})

	p2, err := cn.Point("p2")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p2.SetMeasureRejected("c", true), test.ShouldBeNil)
	test.That(t, cn.NumRejectedMeasures(), test.ShouldEqual, 1)
	test.That(t, cn.NumValidMeasures(), test.ShouldEqual, 3)
	cn.ClearJigsawRejected()
	test.That(t, cn.NumRejectedMeasures(), test.ShouldEqual, 0)

	p2.SetEditLock(true)
	test.That(t, cn.DeletePoint("p2"), test.ShouldBeError, ErrPointLocked)
	p2.SetEditLock(false)
	test.That(t, cn.DeletePoint("p1"), test.ShouldBeNil)
	test.That(t, cn.PointIndex("p2"), test.ShouldEqual, 0)
	_, err = cn.Point("p1")
	test.That(t, errors.Is(err, ErrPointNotFound), test.ShouldBeTrue)
}
