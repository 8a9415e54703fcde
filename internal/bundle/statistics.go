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
	"math"
	"time"
)

// Statistics of one iteration, after its residuals were computed
type IterationStatistics struct {
	Iteration int     `json:"iteration"`
	Sigma0    float64 `json:"sigma0"`
	RMSx      float64 `json:"rmsX"` // pixels
	RMSy      float64 `json:"rmsY"`
	RMSxy     float64 `json:"rmsXY"`

	RMSPointSigmas [3]float64 `json:"rmsPointSigmas"` // metres, after error propagation only

	RejectionLimit float64 `json:"rejectionLimit"`
	NumRejected    int     `json:"numRejected"`

	NumFixedPoints   int `json:"numFixedPoints"`
	NumIgnoredPoints int `json:"numIgnoredPoints"`
	NumObservations  int `json:"numObservations"`
	NumUnknowns      int `json:"numUnknowns"`
	NumConstrained   int `json:"numConstrained"`
	DOF              int `json:"dof"`

	MaxLikelihoodModel    string  `json:"maxLikelihoodModel,omitempty"`
	MaxLikelihoodConstant float64 `json:"maxLikelihoodConstant,omitempty"`

	Converged bool          `json:"converged"`
	Elapsed   time.Duration `json:"elapsed"`
}

func (s IterationStatistics) String() string {
	return fmt.Sprintf("Iteration %3d sigma0 %.6g rms x %.4f y %.4f xy %.4f obs %d unknowns %d constrained %d dof %d rejected %d limit %.3f in %v",
		s.Iteration, s.Sigma0, s.RMSx, s.RMSy, s.RMSxy, s.NumObservations, s.NumUnknowns, s.NumConstrained,
		s.DOF, s.NumRejected, s.RejectionLimit, s.Elapsed.Round(time.Millisecond))
}

// Computes residual statistics and sigma0 from the current residuals
func (e *Engine) statistics(iteration int) IterationStatistics {
	st := IterationStatistics{Iteration: iteration}
	sumX, sumY, vtpv, n := 0.0, 0.0, 0.0, 0
	for _, p := range e.net.Points() {
		if p.IsIgnored() {
			st.NumIgnoredPoints++
			continue
		}
		if p.IsFixed() {
			st.NumFixedPoints++
		}
		if p.IsRejected() {
			continue
		}
		for _, m := range p.Measures() {
			if !m.IsValid() {
				continue
			}
			rs, rl := m.Residual()
			sumX += rs * rs
			sumY += rl * rl
			sigma := measureSigma(m)
			w := 1.0
			if e.ml.active() {
				w = e.ml.weight(zScore(rs, rl, sigma))
			}
			vtpv += (rs*rs + rl*rl) / (sigma * sigma) * w
			n++
		}
	}
	st.NumRejected = e.net.NumRejectedMeasures()
	st.NumObservations = 2 * n

	apriori, constrained := e.aprioriVtPv()
	vtpv += apriori
	st.NumConstrained = constrained
	for _, ib := range e.images {
		st.NumUnknowns += len(ib.weights)
	}
	for _, pb := range e.points {
		if !pb.point.IsRejected() {
			st.NumUnknowns += 3
		}
	}
	st.DOF = st.NumObservations + st.NumConstrained - st.NumUnknowns
	if st.DOF > 0 {
		st.Sigma0 = math.Sqrt(vtpv / float64(st.DOF))
	} else {
		st.Sigma0 = math.Sqrt(vtpv)
	}
	if n > 0 {
		st.RMSx = math.Sqrt(sumX / float64(n))
		st.RMSy = math.Sqrt(sumY / float64(n))
		st.RMSxy = math.Sqrt((sumX + sumY) / float64(2*n))
	}
	return st
}

func sqrtMean(sum float64, n int) float64 {
	return math.Sqrt(sum / float64(n))
}
