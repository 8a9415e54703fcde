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
	"fmt"
	"math"
	"sort"
)

// Streaming estimator of a cumulative probability distribution, with the extended
// P-squared algorithm. Maintains marker heights at equally spaced cumulative
// probabilities and moves them by piecewise parabolic prediction as observations
// arrive, so memory stays constant however many observations are added.
type CumProbDistDynCalc struct {
	probs   []float64 // cumulative probability of each marker
	heights []float64 // marker heights, ascending
	pos     []float64 // actual marker positions, 1-based ranks
	count   int
}

// Creates an estimator with the given number of markers, at least 3
func NewCumProbDistDynCalc(nodes int) *CumProbDistDynCalc {
	if nodes < 3 {
		nodes = 3
	}
	c := &CumProbDistDynCalc{
		probs:   make([]float64, nodes),
		heights: make([]float64, 0, nodes),
		pos:     make([]float64, nodes),
	}
	for i := range c.probs {
		c.probs[i] = float64(i) / float64(nodes-1)
	}
	return c
}

// Forgets all observations
func (c *CumProbDistDynCalc) Initialize() {
	c.heights = c.heights[:0]
	c.count = 0
}

func (c *CumProbDistDynCalc) Count() int { return c.count }

func (c *CumProbDistDynCalc) AddObs(x float64) {
	m := len(c.probs)
	c.count++
	if c.count <= m {
		c.heights = append(c.heights, x)
		if c.count == m {
			sort.Float64s(c.heights)
			for i := range c.pos {
				c.pos[i] = float64(i + 1)
			}
		}
		return
	}

	// locate the cell of x, extending the extreme markers if needed
	k := 0
	switch {
	case x < c.heights[0]:
		c.heights[0] = x
	case x >= c.heights[m-1]:
		c.heights[m-1] = x
		k = m - 2
	default:
		k = sort.SearchFloat64s(c.heights, x)
		if k >= m || c.heights[k] > x {
			k--
		}
		if k > m-2 {
			k = m - 2
		}
	}
	for i := k + 1; i < m; i++ {
		c.pos[i]++
	}

	n := float64(c.count)
	for i := 1; i < m-1; i++ {
		desired := 1 + c.probs[i]*(n-1)
		d := desired - c.pos[i]
		if (d >= 1 && c.pos[i+1]-c.pos[i] > 1) || (d <= -1 && c.pos[i-1]-c.pos[i] < -1) {
			ds := math.Copysign(1, d)
			q := c.parabolic(i, ds)
			if c.heights[i-1] < q && q < c.heights[i+1] {
				c.heights[i] = q
			} else {
				c.heights[i] = c.linear(i, ds)
			}
			c.pos[i] += ds
		}
	}
}

func (c *CumProbDistDynCalc) parabolic(i int, d float64) float64 {
	q, n := c.heights, c.pos
	return q[i] + d/(n[i+1]-n[i-1])*
		((n[i]-n[i-1]+d)*(q[i+1]-q[i])/(n[i+1]-n[i])+
			(n[i+1]-n[i]-d)*(q[i]-q[i-1])/(n[i]-n[i-1]))
}

func (c *CumProbDistDynCalc) linear(i int, d float64) float64 {
	j := i + int(d)
	return c.heights[i] + d*(c.heights[j]-c.heights[i])/(c.pos[j]-c.pos[i])
}

// Returns the value at the given cumulative probability 0<=p<=1
func (c *CumProbDistDynCalc) Value(p float64) (float64, error) {
	if c.count == 0 {
		return 0, ErrNoData
	}
	if p < 0 || p > 1 {
		return 0, fmt.Errorf("stats: cumulative probability %g outside [0,1]", p)
	}
	probs, heights := c.markers()
	i := sort.SearchFloat64s(probs, p)
	if i == 0 {
		return heights[0], nil
	}
	if i >= len(probs) {
		return heights[len(heights)-1], nil
	}
	t := (p - probs[i-1]) / (probs[i] - probs[i-1])
	return heights[i-1] + t*(heights[i]-heights[i-1]), nil
}

// Returns the cumulative probability of the given value
func (c *CumProbDistDynCalc) CumProb(x float64) (float64, error) {
	if c.count == 0 {
		return 0, ErrNoData
	}
	probs, heights := c.markers()
	if x <= heights[0] {
		return 0, nil
	}
	if x >= heights[len(heights)-1] {
		return 1, nil
	}
	i := sort.SearchFloat64s(heights, x)
	if heights[i] == heights[i-1] {
		return probs[i], nil
	}
	t := (x - heights[i-1]) / (heights[i] - heights[i-1])
	return probs[i-1] + t*(probs[i]-probs[i-1]), nil
}

// Marker probabilities and heights. Before the markers are initialized, these are
// the empirical quantiles of the observations seen so far.
func (c *CumProbDistDynCalc) markers() (probs, heights []float64) {
	if c.count >= len(c.probs) {
		return c.probs, c.heights
	}
	heights = append([]float64(nil), c.heights...)
	sort.Float64s(heights)
	if len(heights) == 1 {
		return []float64{0, 1}, []float64{heights[0], heights[0]}
	}
	probs = make([]float64, len(heights))
	for i := range probs {
		probs[i] = float64(i) / float64(len(heights)-1)
	}
	return probs, heights
}
