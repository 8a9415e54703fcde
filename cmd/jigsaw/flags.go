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

package main

import (
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/mlnoga/jigsaw/internal/bundle"
	"github.com/mlnoga/jigsaw/internal/stats"
)

// Flags overriding the settings of the project file. Unset flags keep the project value.
func settingsFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "method", Usage: "solve method, one of auto, specialk or cholmod"},
		&cli.BoolFlag{Name: "observation-mode", Usage: "solve one parameter set per observation instead of per image"},
		&cli.BoolFlag{Name: "solve-position", Usage: "solve for camera positions"},
		&cli.IntFlag{Name: "spk-degree", Usage: "polynomial degree of camera positions over time"},
		&cli.BoolFlag{Name: "solve-pointing", Usage: "solve for camera angles"},
		&cli.IntFlag{Name: "ck-degree", Usage: "polynomial degree of camera angles over time"},
		&cli.BoolFlag{Name: "solve-twist", Usage: "solve for the camera twist angle"},
		&cli.BoolFlag{Name: "solve-radius", Usage: "solve for point radii"},
		&cli.BoolFlag{Name: "error-propagation", Usage: "compute adjusted sigmas of images and points"},
		&cli.BoolFlag{Name: "outlier-rejection", Usage: "reject measures with large residuals"},
		&cli.Float64Flag{Name: "rejection-multiplier", Usage: "rejection limit in multiples of the residual scale"},
		&cli.Float64Flag{Name: "min-rejection-limit", Usage: "lower bound of the rejection limit in pixels"},
		&cli.StringFlag{Name: "scale-estimator", Usage: "residual location and scale estimator, e.g. medianMAD"},
		&cli.IntFlag{Name: "iterations", Usage: "maximum number of iterations"},
		&cli.StringFlag{Name: "criterion", Usage: "convergence criterion, one of sigma0 or parameterCorrections"},
		&cli.Float64Flag{Name: "threshold", Usage: "convergence threshold"},
		&cli.IntFlag{Name: "threads", Usage: "maximum number of threads, 0=all available"},
		&cli.BoolFlag{Name: "recompute-apriori", Usage: "recompute apriori coordinates of tie points before solving"},
	}
}

// Copies all explicitly set settings flags into s
func applySettingsFlags(c *cli.Context, s *bundle.Settings) error {
	if c.IsSet("method") {
		if err := s.SolveMethod.UnmarshalText([]byte(c.String("method"))); err != nil {
			return errors.Wrap(err, "flag method")
		}
	}
	if c.IsSet("criterion") {
		if err := s.ConvergenceCriterion.UnmarshalText([]byte(c.String("criterion"))); err != nil {
			return errors.Wrap(err, "flag criterion")
		}
	}
	if c.IsSet("scale-estimator") {
		var lse stats.LocScaleEstimator
		if err := lse.UnmarshalText([]byte(c.String("scale-estimator"))); err != nil {
			return errors.Wrap(err, "flag scale-estimator")
		}
		s.ScaleEstimator = lse
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"observation-mode", &s.SolveObservationMode},
		{"solve-position", &s.SolvePosition},
		{"solve-pointing", &s.SolvePointing},
		{"solve-twist", &s.SolveTwist},
		{"solve-radius", &s.SolveRadius},
		{"error-propagation", &s.ErrorPropagation},
		{"outlier-rejection", &s.OutlierRejection},
		{"recompute-apriori", &s.RecomputeApriori},
	}
	for _, b := range bools {
		if c.IsSet(b.name) {
			*b.dst = c.Bool(b.name)
		}
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"spk-degree", &s.SPKDegree},
		{"ck-degree", &s.CKDegree},
		{"iterations", &s.MaxIterations},
		{"threads", &s.MaxThreads},
	}
	for _, i := range ints {
		if c.IsSet(i.name) {
			*i.dst = c.Int(i.name)
		}
	}

	floats := []struct {
		name string
		dst  *float64
	}{
		{"rejection-multiplier", &s.OutlierRejectionMultiplier},
		{"min-rejection-limit", &s.MinimumRejectionLimit},
		{"threshold", &s.ConvergenceThreshold},
	}
	for _, f := range floats {
		if c.IsSet(f.name) {
			*f.dst = c.Float64(f.name)
		}
	}
	return s.Validate()
}
