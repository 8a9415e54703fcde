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

package stats

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/valyala/fastrand"
	"go.viam.com/test"
)

// Deterministic sample of a normal distribution, from the inverse CDF on a uniform grid
func gaussianSample(n int, mu, sigma float64) []float64 {
	res := make([]float64, n)
	for i := range res {
		p := (float64(i) + 0.5) / float64(n)
		res[i] = mu + sigma*math.Sqrt2*math.Erfinv(2*p-1)
	}
	return res
}

func shuffled(data []float64) []float64 {
	rng := fastrand.RNG{}
	res := append([]float64(nil), data...)
	for i := range res {
		k := rng.Uint32n(uint32(len(res)))
		res[i], res[k] = res[k], res[i]
	}
	return res
}

func TestMedianMAD(t *testing.T) {
	data := []float64{4, 100, 1, 3, 2}
	loc, scale, err := LocScale(data, LSEMedianMAD)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, loc, test.ShouldEqual, 3)
	test.That(t, scale, test.ShouldAlmostEqual, MADToSigma, 1e-12)
	// input is left untouched
	test.That(t, data, test.ShouldResemble, []float64{4, 100, 1, 3, 2})
}

func TestMeanStdDev(t *testing.T) {
	loc, scale, err := LocScale([]float64{2, 4, 4, 4, 5, 5, 7, 9}, LSEMeanStdDev)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, loc, test.ShouldAlmostEqual, 5, 1e-12)
	test.That(t, scale, test.ShouldAlmostEqual, 2, 1e-12)

	_, _, err = LocScale(nil, LSEMeanStdDev)
	test.That(t, err, test.ShouldBeError, ErrNoData)
}

func TestRMS(t *testing.T) {
	test.That(t, RMS([]float64{3, 4, 3, 4}), test.ShouldAlmostEqual, math.Sqrt(12.5), 1e-12)
	test.That(t, RMS(nil), test.ShouldEqual, 0)
}

func TestFastApproxMedian(t *testing.T) {
	data := shuffled(gaussianSample(200001, 10, 2))
	loc, scale, err := LocScale(data, LSEMedianMAD)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, loc, test.ShouldAlmostEqual, 10, 0.1)
	test.That(t, scale, test.ShouldAlmostEqual, 2, 0.1)
}

func TestHistogramLocScale(t *testing.T) {
	data := gaussianSample(10000, 5, 1)
	loc, scale, err := LocScale(data, LSEHistogram)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, loc, test.ShouldAlmostEqual, 5, 0.15)
	test.That(t, scale, test.ShouldAlmostEqual, 1, 0.15)
}

func TestHistogramPeak(t *testing.T) {
	bins := make([]int32, 11)
	Histogram([]float64{0, 1, 5, 5, 5, 10, 11}, 0, 10, bins)
	test.That(t, bins[5], test.ShouldEqual, 3)
	test.That(t, bins[10], test.ShouldEqual, 1)
	x, _ := GetPeak(bins, 0, 10)
	test.That(t, x, test.ShouldAlmostEqual, 5.5, 1e-12)
}

func TestEstimatorText(t *testing.T) {
	var settings struct {
		Est LocScaleEstimator `json:"est"`
	}
	test.That(t, json.Unmarshal([]byte(`{"est":"histogram"}`), &settings), test.ShouldBeNil)
	test.That(t, settings.Est, test.ShouldEqual, LSEHistogram)
	test.That(t, json.Unmarshal([]byte(`{"est":"mode"}`), &settings), test.ShouldNotBeNil)
	b, err := json.Marshal(settings)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(b), test.ShouldEqual, `{"est":"histogram"}`)
}

func TestCumProbSmallSample(t *testing.T) {
	c := NewCumProbDistDynCalc(101)
	_, err := c.Value(0.5)
	test.That(t, err, test.ShouldBeError, ErrNoData)
	c.AddObs(3)
	c.AddObs(1)
	c.AddObs(2)
	v, err := c.Value(0.5)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, v, test.ShouldEqual, 2)
	p, err := c.CumProb(2.5)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p, test.ShouldAlmostEqual, 0.75, 1e-12)
	_, err = c.Value(1.5)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCumProbConverges(t *testing.T) {
	n := 20000
	grid := make([]float64, n)
	for i := range grid {
		grid[i] = float64(i) / float64(n)
	}
	c := NewCumProbDistDynCalc(101)
	for _, x := range shuffled(grid) {
		c.AddObs(x)
	}
	test.That(t, c.Count(), test.ShouldEqual, n)
	for _, p := range []float64{0.1, 0.5, 0.9, 0.99} {
		v, err := c.Value(p)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, v, test.ShouldAlmostEqual, p, 0.02)
	}
	p, err := c.CumProb(0.25)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p, test.ShouldAlmostEqual, 0.25, 0.02)

	c.Initialize()
	test.That(t, c.Count(), test.ShouldEqual, 0)
}
