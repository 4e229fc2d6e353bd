// Package optim searches controller tunings by scoring each grid point with
// a closed-loop evaluation.
package optim

import (
	"context"
	"fmt"
	"maps"
	"math"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Axis is one searched parameter and the values it takes.
type Axis struct {
	Name   string
	Values []float64
}

// ParseAxis reads "name=v1,v2,..." as given on the command line.
func ParseAxis(s string) (Axis, error) {
	name, list, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" || strings.TrimSpace(list) == "" {
		return Axis{}, fmt.Errorf("axis %q: want name=v1,v2,...", s)
	}
	a := Axis{Name: name}
	for _, f := range strings.Split(list, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return Axis{}, fmt.Errorf("axis %s: %w", name, err)
		}
		a.Values = append(a.Values, v)
	}
	return a, nil
}

// Trial is one evaluated grid point. Err is set when evaluation failed.
type Trial struct {
	Params map[string]float64
	Score  float64
	Err    error
}

// Evaluator scores one parameter set; lower is better.
type Evaluator func(ctx context.Context, params map[string]float64) (float64, error)

type GridSearch struct {
	axes    []Axis
	workers int
}

// NewGridSearch searches the cartesian product of axes with up to workers
// evaluations in flight. workers <= 0 uses GOMAXPROCS.
func NewGridSearch(axes []Axis, workers int) *GridSearch {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &GridSearch{axes: axes, workers: workers}
}

// Size is the number of grid points.
func (g *GridSearch) Size() int {
	if len(g.axes) == 0 {
		return 0
	}
	n := 1
	for _, a := range g.axes {
		n *= len(a.Values)
	}
	return n
}

// Search evaluates every grid point and returns the trials best first.
// Failed evaluations are kept, sorted last; only ctx cancellation aborts.
func (g *GridSearch) Search(ctx context.Context, eval Evaluator) ([]Trial, error) {
	points := make([]map[string]float64, 0, g.Size())
	if g.Size() > 0 {
		g.enumerate(0, map[string]float64{}, &points)
	}

	trials := make([]Trial, len(points))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)
	for i, p := range points {
		i, p := i, p
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			score, err := eval(ctx, p)
			if err == nil && math.IsNaN(score) {
				err = fmt.Errorf("score is NaN")
			}
			trials[i] = Trial{Params: p, Score: score, Err: err}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	slices.SortStableFunc(trials, func(a, b Trial) int {
		switch {
		case a.Err != nil && b.Err != nil:
			return 0
		case a.Err != nil:
			return 1
		case b.Err != nil:
			return -1
		case a.Score < b.Score:
			return -1
		case a.Score > b.Score:
			return 1
		}
		return 0
	})
	return trials, nil
}

func (g *GridSearch) enumerate(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.axes) {
		*out = append(*out, maps.Clone(current))
		return
	}
	axis := g.axes[depth]
	for _, v := range axis.Values {
		current[axis.Name] = v
		g.enumerate(depth+1, current, out)
	}
	delete(current, axis.Name)
}
