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

// Package project loads bundle adjustment projects from JSON and writes them back.
//
// A project names the target surface, the images with their sensor models,
// the control network and the bundle settings. Sensor models are decoded
// polymorphically by model name through a camera.Registry.
package project

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/mlnoga/jigsaw/internal/bundle"
	"github.com/mlnoga/jigsaw/internal/camera"
	"github.com/mlnoga/jigsaw/internal/controlnet"
	"github.com/mlnoga/jigsaw/internal/serial"
)

var ErrUnknownSurface = errors.New("project: unknown surface type")

// Target body surface used for back projection
type SurfaceConfig struct {
	Type   string  `json:"type"`             // sphere or plane
	Radius float64 `json:"radius,omitempty"` // sphere radius in metres
	Height float64 `json:"height,omitempty"` // plane height in metres
}

func (s *SurfaceConfig) Surface() (camera.Surface, error) {
	switch s.Type {
	case "sphere":
		if !(s.Radius > 0) {
			return nil, errors.Errorf("project: sphere radius must be positive, got %g", s.Radius)
		}
		return camera.Sphere{Radius: s.Radius}, nil
	case "plane":
		return camera.Plane{Height: s.Height}, nil
	}
	return nil, errors.Wrapf(ErrUnknownSurface, "%q", s.Type)
}

type ImageEntry struct {
	Serial      string          `json:"serial"`
	FileName    string          `json:"fileName"`
	Observation string          `json:"observation,omitempty"`
	Model       string          `json:"model"`
	Camera      json.RawMessage `json:"camera"`
}

type MeasureEntry struct {
	Serial   string  `json:"serial"`
	Sample   float64 `json:"sample"`
	Line     float64 `json:"line"`
	Type     string  `json:"type,omitempty"`  // defaults to Manual
	Sigma    float64 `json:"sigma,omitempty"` // pixels, defaults to 1
	Ignored  bool    `json:"ignored,omitempty"`
	EditLock bool    `json:"editLock,omitempty"`

	// Written on save only
	Rejected bool        `json:"rejected,omitempty"`
	Residual *[2]float64 `json:"residual,omitempty"`
}

type PointEntry struct {
	ID                  string         `json:"id"`
	Type                string         `json:"type,omitempty"` // defaults to Tie
	Ignored             bool           `json:"ignored,omitempty"`
	EditLock            bool           `json:"editLock,omitempty"`
	Apriori             *[3]float64    `json:"apriori,omitempty"`             // body-fixed X,Y,Z in metres
	AprioriLatLonRadius *[3]float64    `json:"aprioriLatLonRadius,omitempty"` // degrees, degrees, metres
	AprioriSigmas       *[3]float64    `json:"aprioriSigmas,omitempty"`       // X,Y,Z in metres
	AprioriSource       string         `json:"aprioriSource,omitempty"`
	AprioriSourceFile   string         `json:"aprioriSourceFile,omitempty"`
	Measures            []MeasureEntry `json:"measures"`

	// Written on save only
	Adjusted       *[3]float64 `json:"adjusted,omitempty"`
	AdjustedSigmas *[3]float64 `json:"adjustedSigmas,omitempty"`
	Rejected       bool        `json:"rejected,omitempty"`
}

// On-disk form of a project
type Document struct {
	NetworkID   string           `json:"networkId"`
	TargetName  string           `json:"targetName"`
	Description string           `json:"description,omitempty"`
	UserName    string           `json:"userName,omitempty"`
	Surface     *SurfaceConfig   `json:"surface,omitempty"`
	Images      []ImageEntry     `json:"images,omitempty"`
	Points      []PointEntry     `json:"points"`
	Settings    *bundle.Settings `json:"settings,omitempty"`
}

// A loaded project, ready for bundle adjustment
type Project struct {
	NetworkID  string
	TargetName string
	Surface    *SurfaceConfig // nil if none
	Serials    *serial.SerialNumberList
	Sensors    camera.Sensors
	Models     map[string]string // sensor model by serial
	Net        *controlnet.ControlNet
	Settings   *bundle.Settings
}

// Sensor models which intersect with a target surface
type surfaceSetter interface {
	SetSurface(s camera.Surface)
}

// Loads a project from the given JSON file
func LoadFile(fileName string, reg *camera.Registry) (*Project, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	p, err := Load(f, reg)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", fileName)
	}
	return p, nil
}

// Loads a project from JSON
func Load(r io.Reader, reg *camera.Registry) (*Project, error) {
	var doc Document
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "decoding project")
	}
	return FromDocument(&doc, reg)
}

// Builds the serial number list, sensors and control network of a project document
func FromDocument(doc *Document, reg *camera.Registry) (*Project, error) {
	p := &Project{
		NetworkID:  doc.NetworkID,
		TargetName: doc.TargetName,
		Surface:    doc.Surface,
		Serials:    serial.NewSerialNumberList(),
		Sensors:    camera.Sensors{},
		Models:     map[string]string{},
		Net:        controlnet.NewControlNet(doc.NetworkID, doc.TargetName),
		Settings:   doc.Settings,
	}
	if p.Settings == nil {
		p.Settings = bundle.NewSettingsDefault()
	}
	p.Net.Description, p.Net.UserName = doc.Description, doc.UserName

	var surface camera.Surface
	if doc.Surface != nil {
		s, err := doc.Surface.Surface()
		if err != nil {
			return nil, err
		}
		surface = s
	}

	for i := range doc.Images {
		im := &doc.Images[i]
		if err := p.Serials.Add(im.Serial, im.FileName, im.Observation); err != nil {
			return nil, errors.Wrapf(err, "image %d", i)
		}
		sensor, err := reg.New(im.Model, im.Camera)
		if err != nil {
			return nil, errors.Wrapf(err, "image %s", im.Serial)
		}
		if ss, ok := sensor.(surfaceSetter); ok && surface != nil {
			ss.SetSurface(surface)
		}
		p.Sensors[im.Serial] = sensor
		p.Models[im.Serial] = im.Model
	}

	for i := range doc.Points {
		cp, err := newPoint(&doc.Points[i])
		if err != nil {
			return nil, errors.Wrapf(err, "point %q", doc.Points[i].ID)
		}
		if err := p.Net.AddPoint(cp); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func newPoint(ps *PointEntry) (*controlnet.ControlPoint, error) {
	ptype := controlnet.Tie
	if ps.Type != "" {
		t, err := controlnet.ParsePointType(ps.Type)
		if err != nil {
			return nil, err
		}
		ptype = t
	}
	cp := controlnet.NewControlPoint(ps.ID, ptype)

	if ps.Apriori != nil && ps.AprioriLatLonRadius != nil {
		return nil, errors.New("apriori and aprioriLatLonRadius are mutually exclusive")
	}
	var sp controlnet.SurfacePoint
	switch {
	case ps.Apriori != nil:
		sp = controlnet.NewSurfacePoint(r3.Vector{X: ps.Apriori[0], Y: ps.Apriori[1], Z: ps.Apriori[2]})
	case ps.AprioriLatLonRadius != nil:
		sp = controlnet.NewSurfacePointFromLatLonRadius(ps.AprioriLatLonRadius[0], ps.AprioriLatLonRadius[1], ps.AprioriLatLonRadius[2])
	}
	if sp.Valid() && ps.AprioriSigmas != nil {
		s := ps.AprioriSigmas
		sp = controlnet.NewSurfacePointWithSigmas(sp.XYZ, s[0], s[1], s[2])
	}
	if sp.Valid() {
		if err := cp.SetAprioriSurfacePoint(sp); err != nil {
			return nil, err
		}
	}

	source := controlnet.SourceNone
	switch {
	case ps.AprioriSource != "":
		s, err := controlnet.ParseAprioriSource(ps.AprioriSource)
		if err != nil {
			return nil, err
		}
		source = s
	case sp.Valid():
		source = controlnet.SourceUser
	}
	if err := cp.SetAprioriSource(source, ps.AprioriSourceFile); err != nil {
		return nil, err
	}

	for j := range ps.Measures {
		m, err := newMeasure(&ps.Measures[j])
		if err != nil {
			return nil, errors.Wrapf(err, "measure %d", j)
		}
		if err := cp.AddMeasure(m); err != nil {
			return nil, err
		}
	}
	if err := cp.SetIgnored(ps.Ignored); err != nil {
		return nil, err
	}
	cp.SetEditLock(ps.EditLock)
	return cp, nil
}

func newMeasure(ms *MeasureEntry) (*controlnet.ControlMeasure, error) {
	mtype := controlnet.Manual
	if ms.Type != "" {
		t, err := controlnet.ParseMeasureType(ms.Type)
		if err != nil {
			return nil, err
		}
		mtype = t
	}
	m := controlnet.NewControlMeasure(ms.Serial, ms.Sample, ms.Line, mtype)
	if ms.Sigma != 0 {
		if err := m.SetSigma(ms.Sigma); err != nil {
			return nil, err
		}
	}
	if err := m.SetIgnored(ms.Ignored); err != nil {
		return nil, err
	}
	m.SetEditLock(ms.EditLock)
	return m, nil
}

func (p *Project) String() string {
	return fmt.Sprintf("project %s target %s: %d images, %s", p.NetworkID, p.TargetName, p.Serials.Size(), p.Net)
}
