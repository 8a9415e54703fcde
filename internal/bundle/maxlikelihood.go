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
	"math"

	"github.com/mlnoga/jigsaw/internal/stats"
)

// Robust weight function of a maximum likelihood stage
type MaximumLikelihoodModel int

const (
	MLHuber MaximumLikelihoodModel = iota
	MLHuberModified
	MLWelsch
	MLChen
)

var mlModelNames = []string{"huber", "huberModified", "welsch", "chen"}

func (m MaximumLikelihoodModel) String() string { return enumName(mlModelNames, int(m)) }

func (m MaximumLikelihoodModel) MarshalText() ([]byte, error) { return enumMarshal(mlModelNames, int(m)) }

func (m *MaximumLikelihoodModel) UnmarshalText(text []byte) error {
	return enumUnmarshal(mlModelNames, text, (*int)(m))
}

// Weight scaler for a residual z-score z with tweaking constant c>0
func (m MaximumLikelihoodModel) Weight(z, c float64) float64 {
	a := math.Abs(z) / c
	switch m {
	case MLHuber:
		if a <= 1 {
			return 1
		}
		return 1 / a
	case MLHuberModified:
		if a == 0 {
			return 1
		}
		if a < math.Pi/2 {
			return math.Sin(a) / a
		}
		return 1 / a
	case MLWelsch:
		return math.Exp(-a * a)
	case MLChen:
		if a <= 1 {
			return (1 - a*a) * (1 - a*a)
		}
		return 0
	}
	return 1
}

// One stage of maximum likelihood estimation. The tweaking constant is the given
// quantile of the residual z-score distribution.
type MaximumLikelihoodStage struct {
	Model    MaximumLikelihoodModel `json:"model"`
	Quantile float64                `json:"quantile"`
}

const cumProbNodes = 101

// Tracks the active stage and its tweaking constant across iterations
type likelihood struct {
	stages []MaximumLikelihoodStage
	stage  int
	c      float64 // 0 until estimated from residuals
	dist   *stats.CumProbDistDynCalc
}

func newLikelihood(stages []MaximumLikelihoodStage) *likelihood {
	if len(stages) == 0 {
		return nil
	}
	return &likelihood{stages: stages, dist: stats.NewCumProbDistDynCalc(cumProbNodes)}
}

func (l *likelihood) active() bool { return l != nil }

func (l *likelihood) model() MaximumLikelihoodModel { return l.stages[l.stage].Model }

func (l *likelihood) lastStage() bool { return l.stage == len(l.stages)-1 }

// Weight scaler for the given z-score. One while no constant is known.
func (l *likelihood) weight(z float64) float64 {
	if l == nil || l.c <= 0 {
		return 1
	}
	return l.model().Weight(z, l.c)
}

// Re-estimates the residual distribution from the given z-scores and updates the constant
func (l *likelihood) update(zs []float64) {
	l.dist.Initialize()
	for _, z := range zs {
		l.dist.AddObs(math.Abs(z))
	}
	l.estimate()
}

func (l *likelihood) estimate() {
	c, err := l.dist.Value(l.stages[l.stage].Quantile)
	if err != nil || c <= 0 {
		l.c = 0
		return
	}
	l.c = c
}

// Moves on to the next stage, estimating its constant from the latest residuals
func (l *likelihood) advance() {
	l.stage++
	l.estimate()
}

// z-score of a pixel residual with the given apriori sigma
func zScore(rs, rl, sigma float64) float64 {
	return math.Sqrt(rs*rs+rl*rl) / math.Sqrt2 / sigma
}
