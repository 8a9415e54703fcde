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

// Package stats provides robust location and scale estimators, histogram fitting and
// a streaming quantile estimator for residual analysis.
package stats

import (
	"fmt"
	"math"

	"github.com/valyala/fastrand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/mlnoga/jigsaw/internal/qsort"
)

// Normalizes a median absolute deviation to the standard deviation of a Gaussian
const MADToSigma = 1.4826

// Above this many values, medians are approximated from a random subsample
const approxMedianThreshold = 100000
const approxMedianSamples = 50000

// Location and scale estimator
type LocScaleEstimator int

const (
	LSEMedianMAD LocScaleEstimator = iota
	LSEMeanStdDev
	LSEHistogram
)

var lseNames = []string{"medianMAD", "meanStdDev", "histogram"}

func (e LocScaleEstimator) String() string {
	if e < 0 || int(e) >= len(lseNames) {
		return fmt.Sprintf("LocScaleEstimator(%d)", int(e))
	}
	return lseNames[e]
}

func (e LocScaleEstimator) MarshalText() ([]byte, error) {
	if e < 0 || int(e) >= len(lseNames) {
		return nil, fmt.Errorf("stats: invalid estimator %d", int(e))
	}
	return []byte(lseNames[e]), nil
}

func (e *LocScaleEstimator) UnmarshalText(text []byte) error {
	for i, n := range lseNames {
		if n == string(text) {
			*e = LocScaleEstimator(i)
			return nil
		}
	}
	return fmt.Errorf("stats: unknown estimator %q", string(text))
}

// Median of the data. Does not modify the data.
func Median(data []float64) float64 {
	tmp := append([]float64(nil), data...)
	return qsort.QSelectMedianFloat64(tmp)
}

// Median absolute deviation from the location, normalized to a Gaussian standard deviation
func MAD(data []float64, location float64) float64 {
	tmp := make([]float64, len(data))
	for i, d := range data {
		tmp[i] = math.Abs(d - location)
	}
	return qsort.QSelectMedianFloat64(tmp) * MADToSigma
}

// Calculates fast approximate median of the (presumably large) data by subsampling the given number of values and taking the median of that.
// Uses provided samples array as scratchpad
func FastApproxMedian(data []float64, samples []float64) float64 {
	max := uint32(len(data))
	rng := fastrand.RNG{}
	for i := range samples {
		samples[i] = data[rng.Uint32n(max)]
	}
	return qsort.QSelectMedianFloat64(samples)
}

// Calculates fast approximate MAD of the (presumably large) data by subsampling, normalized to a Gaussian standard deviation
func FastApproxMAD(data []float64, location float64, samples []float64) float64 {
	max := uint32(len(data))
	rng := fastrand.RNG{}
	for i := range samples {
		samples[i] = math.Abs(data[rng.Uint32n(max)] - location)
	}
	return qsort.QSelectMedianFloat64(samples) * MADToSigma
}

// Population mean and standard deviation
func MeanStdDev(xs []float64) (mean, stdDev float64) {
	mean, variance := stat.PopMeanVariance(xs, nil)
	return mean, math.Sqrt(variance)
}

// Root mean square of the data
func RMS(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return floats.Norm(xs, 2) / math.Sqrt(float64(len(xs)))
}

// Estimates location and scale of the data with the given estimator
func LocScale(data []float64, est LocScaleEstimator) (loc, scale float64, err error) {
	if len(data) == 0 {
		return 0, 0, ErrNoData
	}
	switch est {
	case LSEMedianMAD:
		if len(data) > approxMedianThreshold {
			samples := make([]float64, approxMedianSamples)
			loc = FastApproxMedian(data, samples)
			return loc, FastApproxMAD(data, loc, samples), nil
		}
		loc = Median(data)
		return loc, MAD(data, loc), nil
	case LSEMeanStdDev:
		loc, scale = MeanStdDev(data)
		return loc, scale, nil
	case LSEHistogram:
		min, max := floats.Min(data), floats.Max(data)
		if !(max > min) {
			return min, 0, nil
		}
		numBins := len(data) / 8
		if numBins < 16 {
			numBins = 16
		} else if numBins > 1024 {
			numBins = 1024
		}
		return HistogramScaleLoc(data, min, max, numBins)
	}
	return 0, 0, fmt.Errorf("stats: invalid estimator %d", int(est))
}
