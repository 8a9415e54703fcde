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

package bundle

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang/geo/r3"
)

// Adjusted exterior orientation of one image
type ImageResult struct {
	Serial      string    `json:"serial"`
	FileName    string    `json:"fileName"`
	Observation string    `json:"observation"`
	Labels      []string  `json:"labels"`
	Initial     []float64 `json:"initial"`
	Corrections []float64 `json:"corrections"`
	Final       []float64 `json:"final"`
	Apriori     []float64 `json:"aprioriSigmas"`
	Adjusted    []float64 `json:"adjustedSigmas,omitempty"`

	NumMeasures int     `json:"numMeasures"`
	NumRejected int     `json:"numRejected"`
	RMSSample   float64 `json:"rmsSample"`
	RMSLine     float64 `json:"rmsLine"`
}

// Adjusted coordinates of one control point
type PointResult struct {
	ID          string      `json:"id"`
	Type        string      `json:"type"`
	Apriori     r3.Vector   `json:"apriori"`
	Adjusted    r3.Vector   `json:"adjusted"`
	Corrections r3.Vector   `json:"corrections"`
	Sigmas      *[3]float64 `json:"sigmas,omitempty"`
	Latitude    float64     `json:"latitude"`
	Longitude   float64     `json:"longitude"`
	Radius      float64     `json:"radius"`

	NumMeasures int     `json:"numMeasures"`
	NumRejected int     `json:"numRejected"`
	Ignored     bool    `json:"ignored"`
	Rejected    bool    `json:"rejected"`
	RMS         float64 `json:"rmsResidual"`
}

// Outcome of a bundle run
type Result struct {
	Status     Status        `json:"status"`
	Iterations int           `json:"iterations"`
	Solver     string        `json:"solver"`
	Elapsed    time.Duration `json:"elapsed"`

	Final IterationStatistics `json:"final"`

	NumRejectedMeasures int  `json:"numRejectedMeasures"`
	NumRejectedPoints   int  `json:"numRejectedPoints"`
	NumFactorBlocks     int  `json:"numFactorBlocks,omitempty"`
	ErrorPropagation    bool `json:"errorPropagation"`

	History []IterationStatistics `json:"history"`
	Images  []ImageResult         `json:"images"`
	Points  []PointResult         `json:"points"`
}

func (e *Engine) result(status Status, elapsed time.Duration) *Result {
	r := &Result{
		Status:           status,
		Iterations:       len(e.history),
		Solver:           e.solver.Name(),
		Elapsed:          elapsed,
		NumFactorBlocks:  factorBlocks(e.solver),
		ErrorPropagation: status == StatusConverged && e.settings.ErrorPropagation,
		History:          e.History(),
	}
	if n := len(e.history); n > 0 {
		r.Final = e.history[n-1]
	}
	r.NumRejectedMeasures = e.net.NumRejectedMeasures()

	type residuals struct {
		n, rejected      int
		sumSample, sumLn float64
	}
	perImage := map[string]*residuals{}
	for _, p := range e.net.Points() {
		if p.IsRejected() {
			r.NumRejectedPoints++
		}
		for _, m := range p.Measures() {
			res := perImage[m.SerialNumber()]
			if res == nil {
				res = &residuals{}
				perImage[m.SerialNumber()] = res
			}
			if m.IsRejected() {
				res.rejected++
			}
			if !m.IsValid() || p.IsIgnored() || p.IsRejected() {
				continue
			}
			rs, rl := m.Residual()
			res.n++
			res.sumSample += rs * rs
			res.sumLn += rl * rl
		}

		pr := PointResult{
			ID:          p.ID(),
			Type:        p.Type().String(),
			Apriori:     p.AprioriSurfacePoint().XYZ,
			Adjusted:    p.AdjustedSurfacePoint().XYZ,
			NumMeasures: p.NumMeasures(),
			NumRejected: p.NumRejectedMeasures(),
			Ignored:     p.IsIgnored(),
			Rejected:    p.IsRejected(),
			RMS:         p.ResidualRMS(),
		}
		pr.Corrections = pr.Adjusted.Sub(pr.Apriori)
		pr.Latitude, pr.Longitude, pr.Radius = p.AdjustedSurfacePoint().LatLonRadius()
		if sx, sy, sz, ok := p.AdjustedSurfacePoint().Sigmas(); ok && !p.IsFixed() {
			pr.Sigmas = &[3]float64{sx, sy, sz}
		}
		r.Points = append(r.Points, pr)
	}

	for _, ib := range e.images {
		for k, sn := range ib.serials {
			fileName, _ := e.serials.FileNameOf(sn)
			ir := ImageResult{
				Serial:      sn,
				FileName:    fileName,
				Observation: ib.observation,
				Labels:      ib.labels,
				Initial:     ib.initial,
				Corrections: ib.corrections,
				Final:       ib.sensors[k].Parameters(),
				Apriori:     ib.sigmas,
				Adjusted:    ib.adjusted,
			}
			if res := perImage[sn]; res != nil {
				ir.NumMeasures, ir.NumRejected = res.n, res.rejected
				if res.n > 0 {
					ir.RMSSample = sqrtMean(res.sumSample, res.n)
					ir.RMSLine = sqrtMean(res.sumLn, res.n)
				}
			}
			r.Images = append(r.Images, ir)
		}
	}
	return r
}

// Multi-line human readable summary of the run
func (r *Result) Summary() string {
	var sb strings.Builder
	f := r.Final
	fmt.Fprintf(&sb, "Status %v after %d iterations in %v with %s solver\n", r.Status, r.Iterations, r.Elapsed.Round(time.Millisecond), r.Solver)
	fmt.Fprintf(&sb, "Sigma0 %.6g, degrees of freedom %d (%d observations + %d constrained - %d unknowns)\n",
		f.Sigma0, f.DOF, f.NumObservations, f.NumConstrained, f.NumUnknowns)
	fmt.Fprintf(&sb, "RMS residuals x %.4f y %.4f xy %.4f pixels\n", f.RMSx, f.RMSy, f.RMSxy)
	fmt.Fprintf(&sb, "Rejected %d measures and %d points, fixed points %d, ignored points %d\n",
		r.NumRejectedMeasures, r.NumRejectedPoints, f.NumFixedPoints, f.NumIgnoredPoints)
	if r.ErrorPropagation {
		fmt.Fprintf(&sb, "RMS point sigmas X %.4f Y %.4f Z %.4f metres\n", f.RMSPointSigmas[0], f.RMSPointSigmas[1], f.RMSPointSigmas[2])
	}
	return sb.String()
}
