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

// Package bundle implements the photogrammetric bundle adjustment of a control
// network. It refines image exterior orientation and ground point coordinates
// jointly by iterated weighted least squares on the reduced normal equations.
package bundle

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"

	"github.com/mlnoga/jigsaw/internal/camera"
	"github.com/mlnoga/jigsaw/internal/controlnet"
	"github.com/mlnoga/jigsaw/internal/serial"
	"github.com/mlnoga/jigsaw/internal/sparse"
	"github.com/mlnoga/jigsaw/internal/stats"
)

// Parameter block of one image, or of all images of an observation in observation mode
type imageBlock struct {
	observation string
	serials     []string
	sensors     []camera.Sensor
	labels      []string
	initial     []float64
	sigmas      []float64 // apriori, 0=free
	weights     []float64
	corrections []float64 // cumulative
	adjusted    []float64 // adjusted sigmas, after error propagation
	offset      int       // first row in the reduced system
}

// Adjustable point and its state from the latest elimination
type pointBlock struct {
	point        *controlnet.ControlPoint
	weights      [3]float64
	radialWeight float64

	n22inv *mat.SymDense
	n12    *sparse.SparseBlockColumnMatrix
	q      *sparse.SparseBlockRowMatrix
	nj     r3.Vector // inverse point normals times point rhs
}

type activePoint struct {
	point *controlnet.ControlPoint
	block *pointBlock // nil for ground points
}

// A bundle adjustment of one control network
type Engine struct {
	ctx      *Context
	settings *Settings
	net      *controlnet.ControlNet
	serials  *serial.SerialNumberList
	sensors  camera.Sensors

	mu    sync.RWMutex
	state State

	images     []*imageBlock
	imageIndex map[string]int // serial number to image block
	points     []*pointBlock  // network order, ground and ignored points excluded
	active     []activePoint

	normals *sparse.SparseBlockMatrix
	rhs     []float64
	solver  Solver
	ml      *likelihood

	history        []IterationStatistics
	rejectionLimit float64
}

// Creates a bundle adjustment of the given network. The sensors must cover every
// serial number in the list, and are modified in place by Solve.
func NewEngine(c *Context, s *Settings, net *controlnet.ControlNet, serials *serial.SerialNumberList, sensors camera.Sensors) (*Engine, error) {
	if s == nil {
		s = NewSettingsDefault()
	}
	if err := s.Validate(); err != nil {
		return nil, errors.Wrapf(ErrConfiguration, "invalid settings: %v", err)
	}
	if net == nil || serials == nil || sensors == nil {
		return nil, errors.Wrap(ErrConfiguration, "network, serial number list and sensors are required")
	}
	if c == nil {
		c = NewContext(nil)
	}
	return &Engine{ctx: c, settings: s, net: net, serials: serials, sensors: sensors}, nil
}

func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
	e.logf("%v\n", s)
}

func (e *Engine) logf(format string, args ...interface{}) {
	if e.ctx.Log != nil {
		fmt.Fprintf(e.ctx.Log, format, args...)
	}
}

// Per iteration statistics so far
func (e *Engine) History() []IterationStatistics {
	return append([]IterationStatistics(nil), e.history...)
}

// Runs the adjustment until convergence or the iteration limit. Fatal errors leave
// the network and sensors in the state of the last completed iteration.
func (e *Engine) Solve(ctx context.Context) (*Result, error) {
	start := time.Now()
	res, err := e.solve(ctx, start)
	if err != nil {
		e.setState(StateFailed)
		e.logf("Bundle failed after %v: %v\n", time.Since(start), err)
		return nil, err
	}
	e.setState(StateDone)
	return res, nil
}

func (e *Engine) solve(ctx context.Context, start time.Time) (*Result, error) {
	e.setState(StateInitializing)
	e.logf("Running on %v\n", e.ctx)
	if err := e.initialize(); err != nil {
		return nil, err
	}
	e.logf("Using %d images in %d parameter blocks, %d adjustable points, %s solver\n",
		len(e.imageIndex), len(e.images), len(e.points), e.solver.Name())

	status := StatusMaxIterations
	prevSigma0, sinceStage := 0.0, 0
	for iteration := 1; iteration <= e.settings.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(ErrCancelled, "before iteration %d: %v", iteration, err)
		}
		iterStart := time.Now()
		sinceStage++

		e.setState(StateFormingNormals)
		e.collectActive()
		if err := e.formNormals(iteration); err != nil {
			return nil, err
		}

		e.setState(StateSolving)
		if err := e.solver.Factor(e.normals); err != nil {
			return nil, errors.Wrapf(ErrNumerical, "iteration %d: %v", iteration, err)
		}
		delta, err := e.solver.Solve(e.rhs)
		if err != nil {
			return nil, errors.Wrapf(ErrNumerical, "iteration %d: %v", iteration, err)
		}

		e.setState(StateApplyingCorrections)
		corrections, err := e.applyCorrections(delta)
		if err != nil {
			return nil, err
		}

		e.setState(StateCheckingConvergence)
		if err := e.computeResiduals(); err != nil {
			return nil, err
		}
		changed := false
		if e.settings.OutlierRejection {
			if changed, err = e.rejectOutliers(); err != nil {
				return nil, err
			}
		}
		st := e.statistics(iteration)
		st.RejectionLimit = e.rejectionLimit
		if e.ml.active() {
			st.MaxLikelihoodModel = e.ml.model().String()
			st.MaxLikelihoodConstant = e.ml.c
			e.ml.update(e.zScores())
		}

		converged := false
		switch e.settings.ConvergenceCriterion {
		case ConvergeSigma0:
			converged = sinceStage >= 2 && math.Abs(st.Sigma0-prevSigma0) <= e.settings.ConvergenceThreshold
		case ConvergeParameterCorrections:
			converged = stats.RMS(corrections) <= e.settings.ConvergenceThreshold
		}
		if changed {
			converged = false
		}
		if converged && e.ml.active() && !e.ml.lastStage() {
			e.ml.advance()
			e.logf("Advancing to maximum likelihood stage %d, %v\n", e.ml.stage+1, e.ml.model())
			converged, sinceStage = false, 0
		}
		prevSigma0 = st.Sigma0
		st.Converged = converged
		st.Elapsed = time.Since(iterStart)
		e.history = append(e.history, st)
		e.logf("%v\n", st)

		if converged {
			status = StatusConverged
			break
		}
	}

	if status == StatusConverged && e.settings.ErrorPropagation {
		e.setState(StateErrorPropagation)
		if err := e.propagateErrors(); err != nil {
			return nil, err
		}
	}
	res := e.result(status, time.Since(start))
	e.logf("%s", res.Summary())
	return res, nil
}

// Validates the network, builds the image and point indices and computes apriori coordinates
func (e *Engine) initialize() error {
	e.net.ClearJigsawRejected()
	if err := e.validate(); err != nil {
		return errors.Wrapf(ErrConfiguration, "%v", err)
	}
	if err := e.buildImages(); err != nil {
		return errors.Wrapf(ErrConfiguration, "%v", err)
	}
	if err := e.computeApriori(); err != nil {
		return errors.Wrapf(ErrConfiguration, "%v", err)
	}
	e.buildPoints()

	e.normals = sparse.NewSparseBlockMatrix(len(e.images))
	dim := 0
	for i, ib := range e.images {
		ib.offset = dim
		dim += len(ib.weights)
		if err := e.normals.InsertMatrixBlock(i, i, len(ib.weights), len(ib.weights)); err != nil {
			return err
		}
	}
	e.rhs = make([]float64, dim)
	e.solver = newSolver(e.settings.SolveMethod, e.ctx, len(e.images), dim)
	e.ml = newLikelihood(e.settings.MaximumLikelihood)
	e.history = nil
	e.rejectionLimit = 0

	if err := e.computeResiduals(); err != nil {
		return err
	}
	return nil
}

// Collects every problem with the network before any computation starts
func (e *Engine) validate() error {
	var err error
	numValidPoints := 0
	for _, serial := range e.serials.Serials() {
		if _, ok := e.sensors.Sensor(serial); !ok {
			err = multierr.Append(err, fmt.Errorf("image %s: %w", serial, controlnet.ErrNoSensor))
		}
	}
	for _, p := range e.net.Points() {
		if p.IsIgnored() {
			continue
		}
		valid := 0
		for _, m := range p.Measures() {
			if !m.IsValid() {
				continue
			}
			valid++
			if !e.serials.Has(m.SerialNumber()) {
				err = multierr.Append(err, fmt.Errorf("point %s measure %s: serial number not in the image list", p.ID(), m.SerialNumber()))
			}
		}
		if valid == 0 {
			err = multierr.Append(err, fmt.Errorf("point %s: %w", p.ID(), controlnet.ErrNoValidMeasures))
			continue
		}
		numValidPoints++
		switch p.Type() {
		case controlnet.Ground:
			if !p.AprioriSurfacePoint().Valid() {
				err = multierr.Append(err, fmt.Errorf("ground point %s: %w", p.ID(), controlnet.ErrNoAprioriCoordinates))
			}
		default:
			w, radial := e.pointWeights(p)
			if valid < 2 && w == [3]float64{} && radial == 0 {
				err = multierr.Append(err, fmt.Errorf("point %s: free point needs at least two valid measures, has %d", p.ID(), valid))
			}
		}
	}
	if numValidPoints == 0 {
		err = multierr.Append(err, fmt.Errorf("network has no valid points"))
	}
	return err
}

// Apriori weights of a point: covariance sigmas of constrained points, else the configured sigmas
func (e *Engine) pointWeights(p *controlnet.ControlPoint) (w [3]float64, radial float64) {
	sigmas := e.settings.PointSigmas
	if p.Type() == controlnet.Constrained {
		if sx, sy, sz, ok := p.AprioriSurfacePoint().Sigmas(); ok {
			sigmas = [3]float64{sx, sy, sz}
		}
	}
	for i, s := range sigmas {
		w[i] = weightOf(s)
	}
	if !e.settings.SolveRadius {
		radial = weightOf(heldRadiusSigma)
	}
	return w, radial
}

// Indexes the images with at least one valid measure, in serial list order or
// observation order
func (e *Engine) buildImages() error {
	used := map[string]bool{}
	for _, p := range e.net.Points() {
		if p.IsIgnored() {
			continue
		}
		for _, m := range p.Measures() {
			if m.IsValid() {
				used[m.SerialNumber()] = true
			}
		}
	}

	var obs *serial.ObservationNumberList
	if e.settings.SolveObservationMode {
		obs = serial.NewObservationNumberList(e.serials)
	} else {
		obs = serial.NewImageObservationList(e.serials)
	}

	param := e.settings.Parameterization()
	sigmas := param.AprioriSigmas(e.settings.PositionSigmas, e.settings.PointingSigmas)
	e.images, e.imageIndex = nil, map[string]int{}
	var err error
	for i := 0; i < obs.Size(); i++ {
		ib := &imageBlock{observation: obs.Observation(i)}
		for _, sn := range obs.Members(i) {
			if !used[sn] {
				continue
			}
			s, _ := e.sensors.Sensor(sn)
			if perr := s.SetParameterization(param); perr != nil {
				err = multierr.Append(err, fmt.Errorf("image %s: %w", sn, perr))
				continue
			}
			if s.NumParameters() != param.Count() {
				err = multierr.Append(err, fmt.Errorf("image %s: %d parameters, expected %d", sn, s.NumParameters(), param.Count()))
				continue
			}
			ib.serials = append(ib.serials, sn)
			ib.sensors = append(ib.sensors, s)
		}
		if len(ib.serials) == 0 {
			continue
		}
		ib.labels = param.Labels()
		ib.initial = ib.sensors[0].Parameters()
		ib.sigmas = append([]float64(nil), sigmas...)
		ib.weights = make([]float64, len(sigmas))
		for j, s := range sigmas {
			ib.weights[j] = weightOf(s)
		}
		ib.corrections = make([]float64, len(sigmas))
		for _, sn := range ib.serials {
			e.imageIndex[sn] = len(e.images)
		}
		e.images = append(e.images, ib)
	}
	if err == nil && len(e.images) == 0 {
		err = fmt.Errorf("no image has a valid measure")
	}
	return err
}

// Computes missing apriori coordinates, or all of them if so configured
func (e *Engine) computeApriori() error {
	var err error
	for _, p := range e.net.Points() {
		if p.IsIgnored() {
			continue
		}
		keep := p.Type() == controlnet.Tie && !e.settings.RecomputeApriori
		// locked points keep the apriori they have
		keep = keep || (p.IsEditLocked() && !p.IsFixed())
		if keep && p.AprioriSurfacePoint().Valid() {
			if !p.AdjustedSurfacePoint().Valid() {
				p.SetAdjustedSurfacePoint(p.AprioriSurfacePoint().Copy())
			}
			continue
		}
		if aerr := p.ComputeApriori(e.sensors); aerr != nil {
			err = multierr.Append(err, fmt.Errorf("point %s: %w", p.ID(), aerr))
		}
	}
	return err
}

func (e *Engine) buildPoints() {
	e.points = nil
	for _, p := range e.net.Points() {
		if p.IsIgnored() || p.IsFixed() {
			continue
		}
		pb := &pointBlock{point: p}
		pb.weights, pb.radialWeight = e.pointWeights(p)
		e.points = append(e.points, pb)
	}
}

// Points taking part in the current iteration
func (e *Engine) collectActive() {
	e.active = e.active[:0]
	next := 0
	for _, p := range e.net.Points() {
		if p.IsIgnored() {
			continue
		}
		var pb *pointBlock
		if !p.IsFixed() {
			pb = e.points[next]
			next++
		}
		if p.IsRejected() {
			continue
		}
		e.active = append(e.active, activePoint{point: p, block: pb})
	}
}

// Applies the solved image corrections and back-substitutes the point corrections.
// Returns all corrections of this iteration. Sizes are checked up front, so on error
// no sensor has been changed.
func (e *Engine) applyCorrections(delta []float64) ([]float64, error) {
	for _, ib := range e.images {
		if ib.offset+len(ib.weights) > len(delta) {
			return nil, errors.Wrapf(ErrNumerical, "applying corrections to observation %s: %d corrections, need %d",
				ib.observation, len(delta), ib.offset+len(ib.weights))
		}
		for _, s := range ib.sensors {
			if s.NumParameters() != len(ib.weights) {
				return nil, errors.Wrapf(ErrNumerical, "applying corrections to observation %s: %d parameters, %d corrections",
					ib.observation, s.NumParameters(), len(ib.weights))
			}
		}
	}

	all := make([]float64, 0, len(delta)+3*len(e.points))
	for _, ib := range e.images {
		d := delta[ib.offset : ib.offset+len(ib.weights)]
		for _, s := range ib.sensors {
			if err := s.ApplyCorrections(d); err != nil {
				return nil, errors.Wrapf(ErrNumerical, "applying corrections to observation %s: %v", ib.observation, err)
			}
		}
		for j, v := range d {
			ib.corrections[j] += v
		}
		all = append(all, d...)
	}

	for _, ap := range e.active {
		pb := ap.block
		if pb == nil {
			continue
		}
		dp := pb.nj
		for _, i := range pb.q.Indices() {
			qi, _ := pb.q.Block(i)
			ib := e.images[i]
			var v mat.VecDense
			v.MulVec(qi, mat.NewVecDense(len(ib.weights), delta[ib.offset:ib.offset+len(ib.weights)]))
			dp = dp.Sub(r3.Vector{X: v.AtVec(0), Y: v.AtVec(1), Z: v.AtVec(2)})
		}
		p := ap.point
		p.SetAdjustedSurfacePoint(controlnet.NewSurfacePoint(p.AdjustedSurfacePoint().XYZ.Add(dp)))
		all = append(all, dp.X, dp.Y, dp.Z)
	}
	return all, nil
}

// Recomputes the residuals of all points not ignored. Rejected points are included
// so that they can be restored, but may fail to map.
func (e *Engine) computeResiduals() error {
	var pts []*controlnet.ControlPoint
	for _, p := range e.net.Points() {
		if !p.IsIgnored() {
			pts = append(pts, p)
		}
	}
	return parallelFor(len(pts), e.ctx.threads(e.settings.MaxThreads), func(i int) error {
		p := pts[i]
		if _, err := p.ComputeResiduals(e.sensors); err != nil && !p.IsRejected() {
			return errors.Wrapf(ErrLinearization, "%v", err)
		}
		return nil
	})
}

// z-scores of the residuals of all valid measures of points taking part
func (e *Engine) zScores() []float64 {
	var zs []float64
	for _, p := range e.net.Points() {
		if p.IsIgnored() || p.IsRejected() {
			continue
		}
		for _, m := range p.Measures() {
			if m.IsValid() {
				rs, rl := m.Residual()
				zs = append(zs, zScore(rs, rl, measureSigma(m)))
			}
		}
	}
	return zs
}
