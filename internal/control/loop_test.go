package control_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/DeepakIngole/genesis-path-follower/internal/control"
	"github.com/DeepakIngole/genesis-path-follower/internal/dynamo"
	"github.com/DeepakIngole/genesis-path-follower/internal/mpc"
	"github.com/DeepakIngole/genesis-path-follower/internal/reference"
	"github.com/DeepakIngole/genesis-path-follower/internal/statebuf"
)

const horizon = 10

var _ = Describe("Loop", func() {
	var (
		ctx      context.Context
		state    *fakeState
		provider *fakeProvider
		solver   *fakeSolver
		actuator *recordingSink
		diags    *recordingSink
		arb      *control.Arbiter
		cfg      control.Config
	)

	newLoop := func() *control.Loop {
		arb = control.NewArbiter(actuator, -1.0, control.Enable{Accel: 2, Steer: 1}, nil)
		arb.AddDiagnosticSink(diags)
		l, err := control.New(cfg, state, provider, solver, arb, nil)
		Expect(err).NotTo(HaveOccurred())
		return l
	}

	steps := func(l *control.Loop, n int) {
		for i := 0; i < n; i++ {
			Expect(l.Step(ctx)).To(Succeed())
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		state = &fakeState{}
		provider = &fakeProvider{n: horizon, mode: reference.FixedSpeed}
		solver = &fakeSolver{n: horizon, statuses: map[int]mpc.Status{}}
		actuator = &recordingSink{}
		diags = &recordingSink{}
		cfg = control.Config{RateHz: 50, DesiredSpeed: 5}
	})

	Describe("construction", func() {
		It("rejects a provider whose horizon differs from the solver's", func() {
			provider.n = 9
			_, err := control.New(cfg, state, provider, solver, control.NewArbiter(actuator, -1, control.Enable{}, nil), nil)
			Expect(errors.Is(err, dynamo.ErrHorizonMismatch)).To(BeTrue())
		})

		It("rejects a non-positive target speed in fixed-speed mode", func() {
			cfg.DesiredSpeed = 0
			_, err := control.New(cfg, state, provider, solver, control.NewArbiter(actuator, -1, control.Enable{}, nil), nil)
			Expect(errors.Is(err, dynamo.ErrConfiguration)).To(BeTrue())
		})

		It("accepts no target speed in timed mode", func() {
			cfg.DesiredSpeed = 0
			provider.mode = reference.Timed
			_, err := control.New(cfg, state, provider, solver, control.NewArbiter(actuator, -1, control.Enable{}, nil), nil)
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects a non-positive rate", func() {
			cfg.RateHz = 0
			_, err := control.New(cfg, state, provider, solver, control.NewArbiter(actuator, -1, control.Enable{}, nil), nil)
			Expect(errors.Is(err, dynamo.ErrConfiguration)).To(BeTrue())
		})
	})

	Context("before the first state estimate", func() {
		It("queries, solves and publishes nothing", func() {
			l := newLoop()
			steps(l, 3)

			Expect(provider.Calls()).To(BeZero())
			Expect(solver.Calls()).To(BeZero())
			Expect(actuator.Commands()).To(BeEmpty())
			Expect(diags.Diagnostics()).To(BeEmpty())
			Expect(l.Stats().Idle).To(BeEquivalentTo(3))
		})

		It("starts solving once the real buffer receives an estimate", func() {
			buf := statebuf.New()
			arb = control.NewArbiter(actuator, -1, control.Enable{}, nil)
			l, err := control.New(cfg, buf, provider, solver, arb, nil)
			Expect(err).NotTo(HaveOccurred())

			steps(l, 2)
			Expect(solver.Calls()).To(BeZero())

			Expect(buf.Update(dynamo.VehicleState{Speed: 5})).To(BeTrue())
			steps(l, 1)
			Expect(solver.Calls()).To(Equal(1))
		})
	})

	Context("scenario A: on a straight path with an optimal zero solution", func() {
		BeforeEach(func() {
			solver.zero = true
			state.set(dynamo.VehicleState{X: 0, Y: 0, Yaw: 0, Speed: 5})
		})

		It("publishes a zero command and an Optimal diagnostic", func() {
			l := newLoop()
			steps(l, 1)

			cmds := actuator.Commands()
			Expect(cmds).To(HaveLen(1))
			Expect(cmds[0].Accel).To(BeZero())
			Expect(cmds[0].Steer).To(BeZero())
			Expect(cmds[0].Stop).To(BeFalse())

			ds := diags.Diagnostics()
			Expect(ds).To(HaveLen(1))
			Expect(ds[0].Status).To(Equal("Optimal"))
			Expect(ds[0].Command).NotTo(BeNil())
			Expect(ds[0].Predicted).To(HaveLen(horizon + 1))
			Expect(ds[0].Controls).To(HaveLen(horizon))
		})

		It("drops the first provider point and replicates the desired speed", func() {
			l := newLoop()
			steps(l, 1)

			Expect(provider.desired).To(Equal([]float64{5}))
			ref := solver.refs[0]
			Expect(ref).To(HaveLen(horizon))
			Expect(ref[0].X).To(Equal(1.0))
			for _, r := range ref {
				Expect(r.Speed).To(Equal(5.0))
			}
		})
	})

	Context("in timed mode", func() {
		It("keeps the trajectory speeds", func() {
			provider.mode = reference.Timed
			provider.speed = 3
			state.set(dynamo.VehicleState{Speed: 3})
			l := newLoop()
			steps(l, 1)

			for _, r := range solver.refs[0] {
				Expect(r.Speed).To(Equal(3.0))
			}
		})
	})

	Context("scenario B: stop flag from tick 5", func() {
		BeforeEach(func() {
			provider.stopFrom = 5
			state.set(dynamo.VehicleState{Speed: 5})
		})

		It("brakes every tick from tick 5 and never solves again", func() {
			l := newLoop()
			steps(l, 10)

			Expect(solver.Calls()).To(Equal(4))
			Expect(l.State()).To(Equal(control.Stopped))

			cmds := actuator.Commands()
			Expect(cmds).To(HaveLen(10))
			for _, c := range cmds[:4] {
				Expect(c.Stop).To(BeFalse())
			}
			for _, c := range cmds[4:] {
				Expect(c.Stop).To(BeTrue())
				Expect(c.Accel).To(Equal(-1.0))
				Expect(c.Steer).To(BeZero())
			}
			Expect(cmds[4].Tick).To(BeEquivalentTo(5))
			Expect(diags.Diagnostics()).To(HaveLen(4))
			Expect(l.Stats().Stops).To(BeEquivalentTo(6))
		})

		It("stays stopped whatever the provider says afterwards", func() {
			l := newLoop()
			steps(l, 5)
			provider.stopFrom = 0
			provider.err = errors.New("gps lost")
			steps(l, 3)

			Expect(l.State()).To(Equal(control.Stopped))
			cmds := actuator.Commands()
			Expect(cmds[len(cmds)-1].Stop).To(BeTrue())
			Expect(cmds).To(HaveLen(8))
		})

		It("drops the warm start on entering STOPPED", func() {
			l := newLoop()
			steps(l, 4)
			Expect(l.WarmStart()).NotTo(BeNil())
			steps(l, 1)
			Expect(l.WarmStart()).To(BeNil())
		})
	})

	Context("scenario C: infeasible solve at tick 3", func() {
		BeforeEach(func() {
			solver.statuses[3] = mpc.Infeasible
			state.set(dynamo.VehicleState{Speed: 5})
		})

		It("withholds the drive command but still reports the tick", func() {
			l := newLoop()
			steps(l, 4)

			cmds := actuator.Commands()
			Expect(cmds).To(HaveLen(3))
			Expect([]uint64{cmds[0].Tick, cmds[1].Tick, cmds[2].Tick}).To(Equal([]uint64{1, 2, 4}))

			ds := diags.Diagnostics()
			Expect(ds).To(HaveLen(4))
			Expect(ds[2].Status).To(Equal("Infeasible"))
			Expect(ds[2].Command).To(BeNil())
		})

		It("hands tick 3's output to tick 4", func() {
			l := newLoop()
			steps(l, 4)
			Expect(solver.warm[3]).To(Equal(solver.results[2].WarmStart()))
		})

		It("cold-starts tick 4 under the optimal_only policy", func() {
			cfg.WarmStart = control.WarmOptimalOnly
			l := newLoop()
			steps(l, 4)
			Expect(solver.warm[2]).To(Equal(solver.results[1].WarmStart()))
			Expect(solver.warm[3]).To(BeNil())
		})
	})

	Describe("warm-start carryover", func() {
		It("starts cold and feeds every tick the previous tick's output", func() {
			solver.statuses[2] = mpc.SolverError
			state.set(dynamo.VehicleState{Speed: 5})
			l := newLoop()
			steps(l, 5)

			Expect(solver.warm[0]).To(BeNil())
			for k := 1; k < 5; k++ {
				Expect(solver.warm[k]).To(Equal(solver.results[k-1].WarmStart()), "tick %d", k+1)
			}
		})

		It("reports every first control step as the previous input", func() {
			solver.statuses[2] = mpc.Infeasible
			state.set(dynamo.VehicleState{Speed: 5})
			l := newLoop()
			steps(l, 3)

			Expect(solver.prev).To(HaveLen(3))
			for k, u := range solver.prev {
				Expect(u).To(Equal(solver.results[k].Controls[0]))
			}
		})
	})

	Describe("failures", func() {
		BeforeEach(func() {
			state.set(dynamo.VehicleState{Speed: 5})
		})

		It("skips the tick when the provider fails", func() {
			provider.err = errors.New("no fix")
			l := newLoop()
			steps(l, 2)

			Expect(solver.Calls()).To(BeZero())
			Expect(actuator.Commands()).To(BeEmpty())
			Expect(diags.Diagnostics()).To(BeEmpty())
			Expect(l.Stats().Skipped).To(BeEquivalentTo(2))
			Expect(l.State()).To(Equal(control.Tracking))
		})

		It("returns command sink errors", func() {
			actuator.err = errSink
			l := newLoop()
			Expect(errors.Is(l.Step(ctx), errSink)).To(BeTrue())
		})

		It("only logs diagnostic sink errors", func() {
			diags.err = errSink
			l := newLoop()
			Expect(l.Step(ctx)).To(Succeed())
			Expect(actuator.Commands()).To(HaveLen(1))
		})
	})

	Describe("Run", func() {
		It("enables the actuators once and ticks until cancelled", func() {
			state.set(dynamo.VehicleState{Speed: 5})
			l := newLoop()

			runCtx, cancel := context.WithCancel(ctx)
			done := make(chan error, 1)
			go func() { done <- l.Run(runCtx) }()

			Eventually(func() int { return len(actuator.Commands()) }).Should(BeNumerically(">=", 3))
			cancel()
			Eventually(done).Should(Receive(MatchError(context.Canceled)))

			Expect(actuator.Enables()).To(Equal([]control.Enable{{Accel: 2, Steer: 1}}))
			Expect(arb.Enable(ctx)).To(Succeed())
			Expect(actuator.Enables()).To(HaveLen(1))
		})

		It("does not tick faster than the configured rate", func() {
			cfg.RateHz = 20
			state.set(dynamo.VehicleState{Speed: 5})
			l := newLoop()

			runCtx, cancel := context.WithTimeout(ctx, 260*time.Millisecond)
			defer cancel()
			Expect(l.Run(runCtx)).To(MatchError(context.DeadlineExceeded))
			Expect(l.Stats().Ticks).To(BeNumerically("<=", 7))
			Expect(l.Stats().Ticks).To(BeNumerically(">=", 2))
		})

		It("stops on a command publish failure", func() {
			actuator.err = errSink
			state.set(dynamo.VehicleState{Speed: 5})
			l := newLoop()
			Expect(l.Run(ctx)).To(MatchError(errSink))
		})
	})
})

var _ = Describe("ParseWarmStartPolicy", func() {
	DescribeTable("policies",
		func(in string, want control.WarmStartPolicy) {
			got, err := control.ParseWarmStartPolicy(in)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(want))
		},
		Entry("default", "", control.WarmAlways),
		Entry("always", "always", control.WarmAlways),
		Entry("optimal only", "optimal_only", control.WarmOptimalOnly),
	)

	It("rejects unknown policies", func() {
		_, err := control.ParseWarmStartPolicy("sometimes")
		Expect(errors.Is(err, dynamo.ErrConfiguration)).To(BeTrue())
	})
})

var _ = Describe("TrackingState", func() {
	It("names its states", func() {
		Expect(control.Tracking.String()).To(Equal("TRACKING"))
		Expect(control.Stopped.String()).To(Equal("STOPPED"))
	})
})
