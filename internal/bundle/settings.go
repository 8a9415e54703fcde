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
	"encoding/json"
	"fmt"

	"go.uber.org/multierr"

	"github.com/mlnoga/jigsaw/internal/camera"
	"github.com/mlnoga/jigsaw/internal/stats"
)

// Decomposition strategy for the reduced normal equations
type SolveMethod int

const (
	SolveAuto     SolveMethod = iota // dense if it fits the memory budget, else sparse
	SolveSpecialK                    // dense Cholesky
	SolveCholmod                     // block sparse Cholesky
)

var solveMethodNames = []string{"auto", "specialk", "cholmod"}

func (m SolveMethod) String() string { return enumName(solveMethodNames, int(m)) }

func (m SolveMethod) MarshalText() ([]byte, error) { return enumMarshal(solveMethodNames, int(m)) }

func (m *SolveMethod) UnmarshalText(text []byte) error {
	return enumUnmarshal(solveMethodNames, text, (*int)(m))
}

type ConvergenceCriterion int

const (
	ConvergeSigma0 ConvergenceCriterion = iota
	ConvergeParameterCorrections
)

var criterionNames = []string{"sigma0", "parameterCorrections"}

func (c ConvergenceCriterion) String() string { return enumName(criterionNames, int(c)) }

func (c ConvergenceCriterion) MarshalText() ([]byte, error) { return enumMarshal(criterionNames, int(c)) }

func (c *ConvergenceCriterion) UnmarshalText(text []byte) error {
	return enumUnmarshal(criterionNames, text, (*int)(c))
}

func enumName(names []string, i int) string {
	if i < 0 || i >= len(names) {
		return fmt.Sprintf("invalid(%d)", i)
	}
	return names[i]
}

func enumMarshal(names []string, i int) ([]byte, error) {
	if i < 0 || i >= len(names) {
		return nil, fmt.Errorf("bundle: invalid enum value %d", i)
	}
	return []byte(names[i]), nil
}

func enumUnmarshal(names []string, text []byte, dst *int) error {
	for i, n := range names {
		if n == string(text) {
			*dst = i
			return nil
		}
	}
	return fmt.Errorf("bundle: unknown value %q, expected one of %v", string(text), names)
}

// Bundle adjustment options
type Settings struct {
	SolveMethod          SolveMethod `json:"solveMethod"`
	SolveObservationMode bool        `json:"solveObservationMode"` // images sharing an observation number share parameters

	SolvePosition bool `json:"solvePosition"`
	SPKDegree     int  `json:"spkDegree"`
	SolvePointing bool `json:"solvePointing"`
	CKDegree      int  `json:"ckDegree"`
	SolveTwist    bool `json:"solveTwist"`
	SolveRadius   bool `json:"solveRadius"` // if false, point radii are held

	ErrorPropagation bool `json:"errorPropagation"`

	OutlierRejection           bool                    `json:"outlierRejection"`
	OutlierRejectionMultiplier float64                 `json:"outlierRejectionMultiplier"`
	MinimumRejectionLimit      float64                 `json:"minimumRejectionLimit"` // pixels
	ScaleEstimator             stats.LocScaleEstimator `json:"scaleEstimator"`

	MaxIterations        int                  `json:"maxIterations"`
	ConvergenceCriterion ConvergenceCriterion `json:"convergenceCriterion"`
	ConvergenceThreshold float64              `json:"convergenceThreshold"`

	PointSigmas    [3]float64 `json:"pointSigmas"`    // X,Y,Z in metres, 0=free
	PositionSigmas []float64  `json:"positionSigmas"` // per polynomial term, metres
	PointingSigmas []float64  `json:"pointingSigmas"` // per polynomial term, degrees

	MaximumLikelihood []MaximumLikelihoodStage `json:"maximumLikelihood"`

	MaxThreads       int  `json:"maxThreads"` // 0=all available
	RecomputeApriori bool `json:"recomputeApriori"`
}

const maxLikelihoodStages = 3

func NewSettingsDefault() *Settings {
	return &Settings{
		SolveMethod:                SolveAuto,
		SolvePosition:              true,
		SolvePointing:              true,
		SolveTwist:                 true,
		SolveRadius:                true,
		OutlierRejectionMultiplier: 3,
		MinimumRejectionLimit:      0.5,
		ScaleEstimator:             stats.LSEMedianMAD,
		MaxIterations:              50,
		ConvergenceCriterion:       ConvergeSigma0,
		ConvergenceThreshold:       1e-10,
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (s *Settings) UnmarshalJSON(data []byte) error {
	type defaults Settings
	def := defaults(*NewSettingsDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*s = Settings(def)
	return nil
}

func (s *Settings) Parameterization() camera.Parameterization {
	return camera.Parameterization{
		SolvePosition: s.SolvePosition,
		SPKDegree:     s.SPKDegree,
		SolvePointing: s.SolvePointing,
		CKDegree:      s.CKDegree,
		SolveTwist:    s.SolveTwist,
	}
}

// Checks all options and returns every problem found
func (s *Settings) Validate() error {
	var err error
	if s.SolveMethod < SolveAuto || s.SolveMethod > SolveCholmod {
		err = multierr.Append(err, fmt.Errorf("invalid solve method %d", int(s.SolveMethod)))
	}
	err = multierr.Append(err, s.Parameterization().Validate())
	if s.MaxIterations < 1 {
		err = multierr.Append(err, fmt.Errorf("maxIterations must be at least 1, got %d", s.MaxIterations))
	}
	if s.ConvergenceCriterion < ConvergeSigma0 || s.ConvergenceCriterion > ConvergeParameterCorrections {
		err = multierr.Append(err, fmt.Errorf("invalid convergence criterion %d", int(s.ConvergenceCriterion)))
	}
	if !(s.ConvergenceThreshold > 0) {
		err = multierr.Append(err, fmt.Errorf("convergenceThreshold must be positive, got %g", s.ConvergenceThreshold))
	}
	if s.OutlierRejection {
		if !(s.OutlierRejectionMultiplier > 0) {
			err = multierr.Append(err, fmt.Errorf("outlierRejectionMultiplier must be positive, got %g", s.OutlierRejectionMultiplier))
		}
		if s.MinimumRejectionLimit < 0 {
			err = multierr.Append(err, fmt.Errorf("minimumRejectionLimit must not be negative, got %g", s.MinimumRejectionLimit))
		}
		if len(s.MaximumLikelihood) > 0 {
			err = multierr.Append(err, fmt.Errorf("outlier rejection and maximum likelihood estimation are mutually exclusive"))
		}
	}
	if s.ScaleEstimator < stats.LSEMedianMAD || s.ScaleEstimator > stats.LSEHistogram {
		err = multierr.Append(err, fmt.Errorf("invalid scale estimator %d", int(s.ScaleEstimator)))
	}
	for i, v := range s.PointSigmas {
		if v < 0 {
			err = multierr.Append(err, fmt.Errorf("pointSigmas[%d] must not be negative, got %g", i, v))
		}
	}
	for i, v := range s.PositionSigmas {
		if v < 0 {
			err = multierr.Append(err, fmt.Errorf("positionSigmas[%d] must not be negative, got %g", i, v))
		}
	}
	for i, v := range s.PointingSigmas {
		if v < 0 {
			err = multierr.Append(err, fmt.Errorf("pointingSigmas[%d] must not be negative, got %g", i, v))
		}
	}
	if len(s.MaximumLikelihood) > maxLikelihoodStages {
		err = multierr.Append(err, fmt.Errorf("at most %d maximum likelihood stages, got %d", maxLikelihoodStages, len(s.MaximumLikelihood)))
	}
	for i, st := range s.MaximumLikelihood {
		if st.Model < MLHuber || st.Model > MLChen {
			err = multierr.Append(err, fmt.Errorf("maximumLikelihood[%d]: invalid model %d", i, int(st.Model)))
		}
		if !(st.Quantile > 0 && st.Quantile < 1) {
			err = multierr.Append(err, fmt.Errorf("maximumLikelihood[%d]: quantile must be in (0,1), got %g", i, st.Quantile))
		}
	}
	if s.MaxThreads < 0 {
		err = multierr.Append(err, fmt.Errorf("maxThreads must not be negative, got %d", s.MaxThreads))
	}
	return err
}
