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

package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/mlnoga/jigsaw/internal/bundle"
	"github.com/mlnoga/jigsaw/internal/controlnet"
)

func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func btoa(b bool) string { return strconv.FormatBool(b) }

// One row per control point with adjusted coordinates and sigmas
func WritePointsCSV(w io.Writer, res *bundle.Result) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"id", "type", "latitude", "longitude", "radius", "x", "y", "z",
		"sigmaX", "sigmaY", "sigmaZ", "dX", "dY", "dZ", "measures", "rejected", "rms", "ignored", "pointRejected"})
	for _, p := range res.Points {
		sig := []string{"", "", ""}
		if p.Sigmas != nil {
			sig = []string{ftoa(p.Sigmas[0]), ftoa(p.Sigmas[1]), ftoa(p.Sigmas[2])}
		}
		row := []string{p.ID, p.Type, ftoa(p.Latitude), ftoa(p.Longitude), ftoa(p.Radius),
			ftoa(p.Adjusted.X), ftoa(p.Adjusted.Y), ftoa(p.Adjusted.Z)}
		row = append(row, sig...)
		row = append(row, ftoa(p.Corrections.X), ftoa(p.Corrections.Y), ftoa(p.Corrections.Z),
			strconv.Itoa(p.NumMeasures), strconv.Itoa(p.NumRejected), ftoa(p.RMS), btoa(p.Ignored), btoa(p.Rejected))
		cw.Write(row)
	}
	cw.Flush()
	return cw.Error()
}

// One row per image parameter
func WriteImagesCSV(w io.Writer, res *bundle.Result) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"serial", "fileName", "observation", "parameter", "initial", "correction", "final",
		"aprioriSigma", "adjustedSigma", "measures", "rejected", "rmsSample", "rmsLine"})
	for _, im := range res.Images {
		for k, label := range im.Labels {
			apriori, adjusted := "", ""
			if k < len(im.Apriori) {
				apriori = ftoa(im.Apriori[k])
			}
			if k < len(im.Adjusted) {
				adjusted = ftoa(im.Adjusted[k])
			}
			cw.Write([]string{im.Serial, im.FileName, im.Observation, label,
				ftoa(im.Initial[k]), ftoa(im.Corrections[k]), ftoa(im.Final[k]), apriori, adjusted,
				strconv.Itoa(im.NumMeasures), strconv.Itoa(im.NumRejected), ftoa(im.RMSSample), ftoa(im.RMSLine)})
		}
	}
	cw.Flush()
	return cw.Error()
}

// One row per measure with its residual in pixels
func WriteResidualsCSV(w io.Writer, net *controlnet.ControlNet) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"pointId", "serial", "sample", "line", "sampleResidual", "lineResidual", "residual", "sigma", "ignored", "rejected"})
	for _, p := range net.Points() {
		for _, m := range p.Measures() {
			rs, rl := m.Residual()
			cw.Write([]string{p.ID(), m.SerialNumber(), ftoa(m.Sample()), ftoa(m.Line()),
				ftoa(rs), ftoa(rl), ftoa(m.ResidualMagnitude()), ftoa(m.Sigma()),
				btoa(m.IsIgnored() || p.IsIgnored()), btoa(m.IsRejected())})
		}
	}
	cw.Flush()
	return cw.Error()
}
