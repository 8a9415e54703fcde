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

package qsort

import (
	"testing"

	"github.com/valyala/fastrand"
)

// prepare array of given length with a random permutation of 1..n
func permutation(rng *fastrand.RNG, n int) []float64 {
	arr := make([]float64, n)
	for j := 0; j < len(arr); j++ {
		arr[j] = float64(j + 1)
	}
	for j := 0; j < len(arr); j++ {
		k := rng.Uint32n(uint32(len(arr)))
		arr[j], arr[k] = arr[k], arr[j]
	}
	return arr
}

func TestMedian(t *testing.T) {
	rng := fastrand.RNG{}
	for i := 1; i < 1000; i++ {
		arr := permutation(&rng, i)

		// calculate expected result
		var expect float64
		if (i & 1) != 0 {
			expect = float64((i + 1) / 2)
		} else {
			expect = 0.5 * (float64(i/2) + float64(i/2+1))
		}

		// calculate actual result and compare
		res := QSelectMedianFloat64(arr)
		if res != expect {
			t.Errorf("median(1..%d) got %f expect %f", i, res, expect)
		}
	}
}

func TestSelect(t *testing.T) {
	rng := fastrand.RNG{}
	for i := 1; i < 200; i++ {
		for k := 1; k <= i; k += 7 {
			arr := permutation(&rng, i)
			if res := QSelectFloat64(arr, k); res != float64(k) {
				t.Errorf("select(1..%d, %d) got %f", i, k, res)
			}
		}
	}
}

func TestSort(t *testing.T) {
	rng := fastrand.RNG{}
	arr := permutation(&rng, 1000)
	arr = append(arr, 17, 17, 500)
	QSortFloat64(arr)
	for i := 1; i < len(arr); i++ {
		if arr[i-1] > arr[i] {
			t.Fatalf("not sorted at %d: %f > %f", i, arr[i-1], arr[i])
		}
	}
}

func TestQuantile(t *testing.T) {
	rng := fastrand.RNG{}
	arr := permutation(&rng, 100)
	if res := QSelectQuantileFloat64(arr, 0.9); res != 90 {
		t.Errorf("0.9 quantile of 1..100 got %f", res)
	}
	if res := QSelectQuantileFloat64(arr, 0); res != 1 {
		t.Errorf("0 quantile of 1..100 got %f", res)
	}
	if res := QSelectQuantileFloat64(arr, 1); res != 100 {
		t.Errorf("1 quantile of 1..100 got %f", res)
	}
	if res := QSelectMedianFloat64(nil); res != 0 {
		t.Errorf("median of empty got %f", res)
	}
}
