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
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/mlnoga/jigsaw/internal/controlnet"
)

// Writes the project as JSON, with current sensor parameters and the adjusted network
func (p *Project) Save(w io.Writer) error {
	doc := &Document{
		NetworkID:   p.NetworkID,
		TargetName:  p.TargetName,
		Description: p.Net.Description,
		UserName:    p.Net.UserName,
		Surface:     p.Surface,
		Points:      networkPoints(p.Net),
		Settings:    p.Settings,
	}
	for i := 0; i < p.Serials.Size(); i++ {
		sn := p.Serials.Serial(i)
		sensor, ok := p.Sensors.Sensor(sn)
		if !ok {
			return errors.Wrapf(controlnet.ErrNoSensor, "image %s", sn)
		}
		raw, err := json.Marshal(sensor)
		if err != nil {
			return errors.Wrapf(err, "image %s", sn)
		}
		obs, _ := p.Serials.ObservationNumber(sn)
		if obs == sn {
			obs = ""
		}
		doc.Images = append(doc.Images, ImageEntry{
			Serial:      sn,
			FileName:    p.Serials.FileName(i),
			Observation: obs,
			Model:       p.Models[sn],
			Camera:      raw,
		})
	}
	return encode(w, doc)
}

// Writes the control network only, including adjusted coordinates, residuals and rejection flags
func SaveNetwork(w io.Writer, net *controlnet.ControlNet) error {
	return encode(w, &Document{
		NetworkID:   net.NetworkID,
		TargetName:  net.TargetName,
		Description: net.Description,
		UserName:    net.UserName,
		Points:      networkPoints(net),
	})
}

func SaveNetworkFile(fileName string, net *controlnet.ControlNet) error {
	return saveFile(fileName, func(w io.Writer) error { return SaveNetwork(w, net) })
}

func (p *Project) SaveFile(fileName string) error {
	return saveFile(fileName, p.Save)
}

func saveFile(fileName string, save func(w io.Writer) error) error {
	f, err := os.Create(fileName)
	if err != nil {
		return err
	}
	if err := save(f); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing %s", fileName)
	}
	return f.Close()
}

// Writes the document as indented JSON
func (d *Document) Write(w io.Writer) error {
	return encode(w, d)
}

func (d *Document) WriteFile(fileName string) error {
	return saveFile(fileName, d.Write)
}

func encode(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func networkPoints(net *controlnet.ControlNet) []PointEntry {
	res := make([]PointEntry, 0, net.NumPoints())
	for _, cp := range net.Points() {
		ps := PointEntry{
			ID:                cp.ID(),
			Type:              cp.Type().String(),
			Ignored:           cp.IsIgnored(),
			EditLock:          cp.IsEditLocked(),
			AprioriSource:     cp.AprioriSource().String(),
			AprioriSourceFile: cp.AprioriSourceFile(),
			Rejected:          cp.IsRejected(),
		}
		if ap := cp.AprioriSurfacePoint(); ap.Valid() {
			ps.Apriori = &[3]float64{ap.XYZ.X, ap.XYZ.Y, ap.XYZ.Z}
			if sx, sy, sz, ok := ap.Sigmas(); ok {
				ps.AprioriSigmas = &[3]float64{sx, sy, sz}
			}
		}
		if adj := cp.AdjustedSurfacePoint(); adj.Valid() {
			ps.Adjusted = &[3]float64{adj.XYZ.X, adj.XYZ.Y, adj.XYZ.Z}
			if sx, sy, sz, ok := adj.Sigmas(); ok {
				ps.AdjustedSigmas = &[3]float64{sx, sy, sz}
			}
		}
		for _, m := range cp.Measures() {
			ms := MeasureEntry{
				Serial:   m.SerialNumber(),
				Sample:   m.Sample(),
				Line:     m.Line(),
				Type:     m.Type().String(),
				Sigma:    m.Sigma(),
				Ignored:  m.IsIgnored(),
				EditLock: m.IsEditLocked() && !(m.IsReference() && cp.IsEditLocked()),
				Rejected: m.IsRejected(),
			}
			if rs, rl := m.Residual(); rs != 0 || rl != 0 {
				ms.Residual = &[2]float64{rs, rl}
			}
			ps.Measures = append(ps.Measures, ms)
		}
		res = append(res, ps)
	}
	return res
}
