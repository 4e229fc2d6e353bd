package mpc

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/DeepakIngole/genesis-path-follower/internal/dynamo"
	"github.com/DeepakIngole/genesis-path-follower/internal/integrators"
	"github.com/DeepakIngole/genesis-path-follower/internal/physics"
)

const (
	boundWeight = 1e4
	// A line search that stalls with a gradient this small has converged.
	stallGradient = 1e-3
)

// Kinematic solves the tracking problem by single shooting: the decision
// vector is the control sequence, the prediction is an Euler rollout of the
// kinematic bicycle and the cost is minimised with L-BFGS on central
// finite-difference gradients. It is not safe for concurrent use.
type Kinematic struct {
	params Params
	model  dynamo.System
	integ  dynamo.Integrator
	prev   dynamo.Input

	// scratch for the cost function
	x0   dynamo.VehicleState
	ref  []dynamo.VehicleState
	traj []dynamo.State
}

func NewKinematic(p Params, model *physics.Bicycle) (*Kinematic, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if model == nil {
		model = physics.NewBicycle()
	}
	return &Kinematic{
		params: p,
		model:  model,
		integ:  integrators.NewEuler(),
		ref:    make([]dynamo.VehicleState, p.Horizon),
		traj:   make([]dynamo.State, p.Horizon+1),
	}, nil
}

func (k *Kinematic) Horizon() int { return k.params.Horizon }

func (k *Kinematic) Params() Params { return k.params }

func (k *Kinematic) UpdatePreviousInput(u dynamo.Input) { k.prev = u }

func (k *Kinematic) PreviousInput() dynamo.Input { return k.prev }

func (k *Kinematic) Solve(x0 dynamo.VehicleState, ref []dynamo.VehicleState, ws *WarmStart) Result {
	start := time.Now()
	n := k.params.Horizon

	res := Result{Reference: append([]dynamo.VehicleState(nil), ref...)}
	fail := func(err error) Result {
		res.Status = SolverError
		res.Err = err
		res.Controls = make([]dynamo.Input, n)
		res.Predicted = make([]dynamo.VehicleState, n+1)
		res.Slack = make([]float64, n)
		res.SolveTime = time.Since(start)
		return res
	}

	if len(ref) != n {
		return fail(&dynamo.HorizonError{What: "reference", Got: len(ref), Want: n})
	}
	if !x0.IsValid() {
		return fail(dynamo.ErrInvalidState)
	}
	for _, r := range ref {
		if !r.IsValid() {
			return fail(fmt.Errorf("reference: %w", dynamo.ErrInvalidState))
		}
	}

	k.x0 = x0
	yaw := x0.Yaw
	for i, r := range ref {
		yaw = dynamo.NearestEquivalent(r.Yaw, yaw)
		k.ref[i] = r
		k.ref[i].Yaw = yaw
	}

	z0 := make([]float64, 2*n)
	if ws != nil && len(ws.Controls) == n {
		for i, u := range ws.Controls {
			z0[2*i] = u.Accel
			z0[2*i+1] = u.Steer
		}
	}

	problem := optimize.Problem{
		Func: k.cost,
		Grad: func(grad, z []float64) {
			fd.Gradient(grad, k.cost, z, &fd.Settings{Formula: fd.Central})
		},
	}
	settings := &optimize.Settings{
		MajorIterations:   k.params.MaxIterations,
		GradientThreshold: 1e-6,
		Converger:         &optimize.FunctionConverge{Absolute: 1e-9, Relative: 1e-9, Iterations: 20},
	}

	opt, err := optimize.Minimize(problem, z0, settings, &optimize.LBFGS{})
	if opt == nil {
		if err == nil {
			err = errors.New("optimizer returned no result")
		}
		return fail(err)
	}
	z := opt.Location.X
	if floats.HasNaN(z) || math.IsNaN(opt.Location.F) || math.IsInf(opt.Location.F, 0) {
		return fail(fmt.Errorf("non-finite solution (status %v)", opt.Status))
	}
	if err != nil && !stalledAtMinimum(err, &opt.Location) {
		return fail(err)
	}

	res.Controls = make([]dynamo.Input, n)
	for i := range res.Controls {
		res.Controls[i] = k.clamp(z[2*i], z[2*i+1])
	}
	k.rollout(res.Controls)
	res.Predicted = make([]dynamo.VehicleState, n+1)
	for i, s := range k.traj {
		res.Predicted[i] = dynamo.FromVector(s)
	}
	res.Slack = k.slack(res.Controls)
	res.Cost = opt.Location.F

	switch {
	case floats.Sum(res.Slack) > k.params.SlackTolerance:
		res.Status = Infeasible
	case opt.Status == optimize.IterationLimit,
		opt.Status == optimize.FunctionEvaluationLimit,
		opt.Status == optimize.GradientEvaluationLimit,
		opt.Status == optimize.RuntimeLimit:
		res.Status = Infeasible
	default:
		res.Status = Optimal
	}
	res.SolveTime = time.Since(start)
	return res
}

// stalledAtMinimum reports whether a line-search failure happened at a point
// that already satisfies a loose first-order condition.
func stalledAtMinimum(err error, loc *optimize.Location) bool {
	if !errors.Is(err, optimize.ErrLinesearcherFailure) &&
		!errors.Is(err, optimize.ErrNoProgress) &&
		!errors.Is(err, optimize.ErrNonDescentDirection) {
		return false
	}
	if loc.Gradient == nil {
		return false
	}
	return floats.Norm(loc.Gradient, 2) <= stallGradient*(1+math.Abs(loc.F))
}

func (k *Kinematic) clamp(accel, steer float64) dynamo.Input {
	p := k.params
	return dynamo.Input{
		Accel: math.Max(p.AccelMin, math.Min(p.AccelMax, accel)),
		Steer: math.Max(-p.SteerMax, math.Min(p.SteerMax, steer)),
	}
}

func (k *Kinematic) rollout(us []dynamo.Input) {
	k.traj[0] = k.x0.Vector()
	for i, u := range us {
		k.traj[i+1] = k.integ.Step(k.model, k.traj[i], u.Vector(), float64(i)*k.params.DT, k.params.DT)
	}
}

// slack is the per-step violation of the input rate limits, measured against
// the previously applied input for the first step.
func (k *Kinematic) slack(us []dynamo.Input) []float64 {
	p := k.params
	out := make([]float64, len(us))
	prev := k.prev
	for i, u := range us {
		if p.AccelRateMax > 0 {
			out[i] += math.Max(0, math.Abs(u.Accel-prev.Accel)/p.DT-p.AccelRateMax)
		}
		if p.SteerRateMax > 0 {
			out[i] += math.Max(0, math.Abs(u.Steer-prev.Steer)/p.DT-p.SteerRateMax)
		}
		prev = u
	}
	return out
}

func (k *Kinematic) cost(z []float64) float64 {
	p := k.params
	n := p.Horizon
	us := make([]dynamo.Input, n)
	var j float64
	for i := range us {
		us[i] = k.clamp(z[2*i], z[2*i+1])
		da := z[2*i] - us[i].Accel
		ds := z[2*i+1] - us[i].Steer
		j += boundWeight * (da*da + ds*ds)
	}
	k.rollout(us)

	for i := 1; i <= n; i++ {
		r := k.ref[i-1].Vector()
		for s, q := range p.Q {
			e := k.traj[i][s] - r[s]
			j += q * e * e
		}
	}

	prev := k.prev
	for _, u := range us {
		j += p.R[dynamo.IdxAccel]*u.Accel*u.Accel + p.R[dynamo.IdxSteer]*u.Steer*u.Steer
		da := u.Accel - prev.Accel
		ds := u.Steer - prev.Steer
		j += p.RDelta[dynamo.IdxAccel]*da*da + p.RDelta[dynamo.IdxSteer]*ds*ds
		prev = u
	}

	for _, s := range k.slack(us) {
		j += p.SlackWeight * s * s
	}
	return j
}
