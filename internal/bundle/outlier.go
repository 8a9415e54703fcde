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

	"github.com/pkg/errors"

	"github.com/mlnoga/jigsaw/internal/controlnet"
	"github.com/mlnoga/jigsaw/internal/stats"
)

// Flags measures whose residual exceeds location plus a multiple of the scale of the
// residual distribution, and restores those which fell back below it. At most one
// measure per point is rejected per iteration. Returns whether any flag changed.
func (e *Engine) rejectOutliers() (changed bool, err error) {
	n := 0
	for _, p := range e.net.Points() {
		if !p.IsIgnored() && !p.IsRejected() {
			n += p.NumValidMeasures()
		}
	}
	if n == 0 {
		return false, nil
	}
	mags := getFloat64s(n)
	defer putFloat64s(mags)
	k := 0
	for _, p := range e.net.Points() {
		if p.IsIgnored() || p.IsRejected() {
			continue
		}
		for _, m := range p.Measures() {
			if m.IsValid() {
				mags[k] = m.ResidualMagnitude()
				k++
			}
		}
	}
	mags = mags[:k]
	loc, scale, err := stats.LocScale(mags, e.settings.ScaleEstimator)
	if err != nil {
		return false, errors.Wrapf(ErrNumerical, "residual scale: %v", err)
	}
	limit := math.Max(loc+e.settings.OutlierRejectionMultiplier*scale, e.settings.MinimumRejectionLimit)
	e.rejectionLimit = limit

	for _, p := range e.net.Points() {
		if p.IsIgnored() {
			continue
		}
		c, err := rejectPointOutliers(p, limit)
		if err != nil {
			return changed, err
		}
		changed = changed || c
	}
	if changed {
		e.logf("Rejection limit %.3f px, %d measures rejected\n", limit, e.net.NumRejectedMeasures())
	}
	return changed, nil
}

func rejectPointOutliers(p *controlnet.ControlPoint, limit float64) (changed bool, err error) {
	measured := func(m *controlnet.ControlMeasure) bool { return m.IsMeasured() && !m.IsIgnored() }

	if p.IsRejected() {
		for _, m := range p.Measures() {
			if measured(m) && m.ResidualMagnitude() > limit {
				return false, nil
			}
		}
		p.SetRejected(false)
		changed = true
	}

	for _, m := range p.Measures() {
		if measured(m) && m.IsRejected() && m.ResidualMagnitude() <= limit {
			if err := p.SetMeasureRejected(m.SerialNumber(), false); err != nil {
				return changed, err
			}
			changed = true
		}
	}

	var worst *controlnet.ControlMeasure
	for _, m := range p.Measures() {
		if m.IsValid() && m.ResidualMagnitude() > limit && (worst == nil || m.ResidualMagnitude() > worst.ResidualMagnitude()) {
			worst = m
		}
	}
	if worst == nil {
		return changed, nil
	}
	if p.NumValidMeasures()-1 >= 2 {
		return true, p.SetMeasureRejected(worst.SerialNumber(), true)
	}
	p.SetRejected(true)
	return true, nil
}
