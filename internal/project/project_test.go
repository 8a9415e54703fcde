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

package project

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"

	"github.com/mlnoga/jigsaw/internal/bundle"
	"github.com/mlnoga/jigsaw/internal/camera"
	"github.com/mlnoga/jigsaw/internal/controlnet"
)

func simulated(t *testing.T) *Document {
	t.Helper()
	doc, err := Simulate(NewSimulateOptionsDefault())
	test.That(t, err, test.ShouldBeNil)
	doc.Settings.ConvergenceThreshold = 1e-6
	return doc
}

func roundTrip(t *testing.T, doc *Document) *Project {
	t.Helper()
	var buf bytes.Buffer
	test.That(t, encode(&buf, doc), test.ShouldBeNil)
	p, err := Load(&buf, camera.NewDefaultRegistry())
	test.That(t, err, test.ShouldBeNil)
	return p
}

func TestSimulate(t *testing.T) {
	doc := simulated(t)
	test.That(t, doc.Images, test.ShouldHaveLength, 4)
	test.That(t, doc.Points, test.ShouldHaveLength, 25)
	ground := 0
	for _, p := range doc.Points {
		test.That(t, len(p.Measures), test.ShouldBeGreaterThanOrEqualTo, 2)
		if p.Type == "Ground" {
			ground++
			test.That(t, p.Apriori, test.ShouldNotBeNil)
		}
	}
	test.That(t, ground, test.ShouldEqual, 4)

	_, err := Simulate(&SimulateOptions{Images: 1, GridSize: 5})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestLoadBuildsNetwork(t *testing.T) {
	p := roundTrip(t, simulated(t))
	test.That(t, p.Serials.Size(), test.ShouldEqual, 4)
	test.That(t, p.Sensors, test.ShouldHaveLength, 4)
	test.That(t, p.Models["SIM/IMG1"], test.ShouldEqual, "collinear")
	test.That(t, p.Net.NumPoints(), test.ShouldEqual, 25)
	test.That(t, p.Settings.ConvergenceThreshold, test.ShouldEqual, 1e-6)

	cp, err := p.Net.Point("P11")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cp.Type(), test.ShouldEqual, controlnet.Ground)
	test.That(t, cp.AprioriSurfacePoint().Valid(), test.ShouldBeTrue)
	test.That(t, cp.AprioriSource(), test.ShouldEqual, controlnet.SourceUser)
	test.That(t, cp.HasRefMeasure(), test.ShouldBeTrue)

	tie, err := p.Net.Point("P33")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tie.Type(), test.ShouldEqual, controlnet.Tie)
	test.That(t, tie.AprioriSurfacePoint().Valid(), test.ShouldBeFalse)
	test.That(t, tie.MeasureAt(0).Sigma(), test.ShouldAlmostEqual, 0.1)

	// tie points back project onto the plane surface
	test.That(t, tie.ComputeApriori(p.Sensors), test.ShouldBeNil)
	test.That(t, tie.AprioriSurfacePoint().XYZ.Z, test.ShouldAlmostEqual, 0, 1e-6)
}

func TestLoadDefaultsAndLocks(t *testing.T) {
	src := `{
	  "networkId": "net", "targetName": "Moon", "description": "locks", "userName": "tester",
	  "surface": {"type": "sphere", "radius": 1737400},
	  "images": [
	    {"serial": "A", "fileName": "a.cub", "observation": "OBS", "model": "collinear",
	     "camera": {"focalLength": 50, "pixelPitch": 0.01, "sampleCenter": 512, "lineCenter": 512,
	                "position": [[0], [0], [1800000]]}},
	    {"serial": "B", "fileName": "b.cub", "observation": "OBS", "model": "collinear",
	     "camera": {"focalLength": 50, "pixelPitch": 0.01, "sampleCenter": 512, "lineCenter": 512,
	                "position": [[100], [0], [1800000]]}}
	  ],
	  "points": [
	    {"id": "C1", "type": "Constrained", "editLock": true,
	     "aprioriLatLonRadius": [0, 0, 1737400], "aprioriSigmas": [10, 10, 5],
	     "measures": [
	       {"serial": "A", "sample": 512, "line": 512},
	       {"serial": "B", "sample": 500, "line": 512, "ignored": true, "editLock": true}
	     ]}
	  ],
	  "settings": {"maxIterations": 7}
	}`
	p, err := Load(strings.NewReader(src), camera.NewDefaultRegistry())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.Settings.MaxIterations, test.ShouldEqual, 7)
	test.That(t, p.Settings.OutlierRejectionMultiplier, test.ShouldEqual, 3)

	obs, err := p.Serials.ObservationNumber("B")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, obs, test.ShouldEqual, "OBS")

	cp, err := p.Net.Point("C1")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cp.IsEditLocked(), test.ShouldBeTrue)
	test.That(t, cp.AprioriSurfacePoint().XYZ.X, test.ShouldAlmostEqual, 1737400)
	_, _, sz, ok := cp.AprioriSurfacePoint().Sigmas()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, sz, test.ShouldAlmostEqual, 5)

	ref, err := cp.RefMeasure()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ref.SerialNumber(), test.ShouldEqual, "A")
	test.That(t, ref.IsEditLocked(), test.ShouldBeTrue)
	b, err := cp.Measure("B")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b.IsIgnored(), test.ShouldBeTrue)
	test.That(t, b.IsEditLocked(), test.ShouldBeTrue)

	// locks survive a save
	var buf bytes.Buffer
	test.That(t, SaveNetwork(&buf, p.Net), test.ShouldBeNil)
	var doc Document
	test.That(t, json.Unmarshal(buf.Bytes(), &doc), test.ShouldBeNil)
	test.That(t, doc.Points[0].EditLock, test.ShouldBeTrue)
	test.That(t, doc.Points[0].Measures[0].EditLock, test.ShouldBeFalse)
	test.That(t, doc.Points[0].Measures[1].EditLock, test.ShouldBeTrue)
	test.That(t, doc.Points[0].Type, test.ShouldEqual, "Constrained")
	test.That(t, doc.Description, test.ShouldEqual, "locks")
	test.That(t, doc.UserName, test.ShouldEqual, "tester")
}

func TestLoadErrors(t *testing.T) {
	reg := camera.NewDefaultRegistry()
	for _, tc := range []struct {
		name, src, msg string
	}{
		{"syntax", `{"networkId": `, "decoding project"},
		{"unknown field", `{"networkId": "n", "bogus": 1}`, "bogus"},
		{"surface", `{"surface": {"type": "cube"}}`, "unknown surface type"},
		{"sphere", `{"surface": {"type": "sphere"}}`, "radius"},
		{"model", `{"images": [{"serial": "A", "model": "pushframe", "camera": {}}]}`, "unknown sensor model"},
		{"duplicate image", `{"images": [
			{"serial": "A", "model": "collinear", "camera": {"focalLength": 1, "pixelPitch": 1, "position": [[0],[0],[1]]}},
			{"serial": "A", "model": "collinear", "camera": {"focalLength": 1, "pixelPitch": 1, "position": [[0],[0],[1]]}}]}`, "A"},
		{"point type", `{"points": [{"id": "P", "type": "Floating"}]}`, "point \"P\""},
		{"apriori", `{"points": [{"id": "P", "apriori": [0,0,0], "aprioriLatLonRadius": [0,0,1]}]}`, "mutually exclusive"},
		{"measure sigma", `{"points": [{"id": "P", "measures": [{"serial": "A", "sigma": -1}]}]}`, "measure 0"},
		{"duplicate point", `{"points": [{"id": "P"}, {"id": "P"}]}`, "already has a point"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tc.src), reg)
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.msg)
		})
	}
}

func TestSolveAndSave(t *testing.T) {
	p := roundTrip(t, simulated(t))
	e, err := bundle.NewEngine(bundle.NewContext(nil), p.Settings, p.Net, p.Serials, p.Sensors)
	test.That(t, err, test.ShouldBeNil)
	res, err := e.Solve(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Status, test.ShouldEqual, bundle.StatusConverged)

	dir := t.TempDir()
	projectFile := filepath.Join(dir, "adjusted.json")
	test.That(t, p.SaveFile(projectFile), test.ShouldBeNil)
	test.That(t, SaveNetworkFile(filepath.Join(dir, "net.json"), p.Net), test.ShouldBeNil)

	// the saved project starts from the adjusted cameras
	q, err := LoadFile(projectFile, camera.NewDefaultRegistry())
	test.That(t, err, test.ShouldBeNil)
	for sn, s := range p.Sensors {
		test.That(t, q.Sensors[sn].Parameters(), test.ShouldResemble, s.Parameters())
	}
	tie, err := q.Net.Point("P33")
	test.That(t, err, test.ShouldBeNil)
	ps := networkPoints(p.Net)
	test.That(t, ps[12].ID, test.ShouldEqual, "P33")
	test.That(t, ps[12].Adjusted, test.ShouldNotBeNil)
	test.That(t, ps[12].Measures[0].Residual, test.ShouldNotBeNil)
	test.That(t, tie.NumMeasures(), test.ShouldEqual, len(ps[12].Measures))

	_, err = LoadFile(filepath.Join(dir, "missing.json"), camera.NewDefaultRegistry())
	test.That(t, err, test.ShouldNotBeNil)
}
