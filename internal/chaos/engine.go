// Package chaos runs consistency experiments against a wired lendhub
// instance: inject load or faults, sample probes, then check the hypothesis.
package chaos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"lendhub/pkg/logger"
)

// Experiment is one hypothesis about the system and how to test it.
type Experiment struct {
	Name        string
	Hypothesis  string
	SteadyState []Probe
	// Observe probes are only recorded, after the method ran.
	Observe     []Probe
	Method      []Action
	Rollback    []Action
	Validation  []Assertion
	// Duration is how long probes are sampled after the method ran.
	Duration    time.Duration
	SampleEvery time.Duration
}

// Probe measures one property of the system.
type Probe struct {
	Name      string
	Query     func(context.Context) (float64, error)
	Threshold Threshold
}

type Threshold struct {
	Operator string // >, <, >=, <=, ==
	Value    float64
}

func (t Threshold) holds(value float64) bool {
	switch t.Operator {
	case ">":
		return value > t.Value
	case "<":
		return value < t.Value
	case ">=":
		return value >= t.Value
	case "<=":
		return value <= t.Value
	case "==":
		return value == t.Value
	default:
		return false
	}
}

// Action injects a fault or load, or undoes one.
type Action struct {
	Type    string
	Target  string
	Execute func(context.Context) error
}

// Assertion checks the last sample of a probe.
type Assertion struct {
	Probe     string
	Condition func(float64) bool
	Message   string
}

// Result captures one experiment run.
type Result struct {
	Experiment       string                 `json:"experiment"`
	Hypothesis       string                 `json:"hypothesis"`
	StartTime        time.Time              `json:"start_time"`
	EndTime          time.Time              `json:"end_time"`
	Duration         time.Duration          `json:"duration"`
	HypothesisHeld   bool                   `json:"hypothesis_held"`
	SteadyStateValid bool                   `json:"steady_state_valid"`
	Violations       []Violation            `json:"violations"`
	Failed           []string               `json:"failed_assertions"`
	Observations     map[string][]DataPoint `json:"observations"`
	ErrorEvents      []ErrorEvent           `json:"error_events"`
}

type Violation struct {
	Probe     string    `json:"probe"`
	Expected  float64   `json:"expected"`
	Actual    float64   `json:"actual"`
	Timestamp time.Time `json:"timestamp"`
}

type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

type ErrorEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
	Component string    `json:"component"`
}

var ErrSteadyStateInvalid = errors.New("steady state invalid - aborting experiment")

// Engine runs experiments and keeps their results.
type Engine struct {
	tracer      trace.Tracer
	log         *logger.Logger
	mu          sync.Mutex
	experiments []Experiment
	results     []Result
}

func NewEngine(log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewDefault("chaos")
	}
	return &Engine{
		tracer: otel.Tracer("lendhub/chaos"),
		log:    log,
	}
}

// Register adds an experiment to the suite.
func (e *Engine) Register(exp Experiment) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.experiments = append(e.experiments, exp)
}

// Experiments returns the registered experiments.
func (e *Engine) Experiments() []Experiment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Experiment(nil), e.experiments...)
}

// Results returns every finished run.
func (e *Engine) Results() []Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Result(nil), e.results...)
}

// Run executes one experiment.
func (e *Engine) Run(ctx context.Context, exp Experiment) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "chaos.run_experiment",
		trace.WithAttributes(attribute.String("experiment.name", exp.Name)))
	defer span.End()

	result := &Result{
		Experiment:   exp.Name,
		Hypothesis:   exp.Hypothesis,
		StartTime:    time.Now(),
		Observations: make(map[string][]DataPoint),
	}

	// Step 1: steady state
	span.AddEvent("validating_steady_state")
	if violations := e.sample(ctx, exp.SteadyState, result); len(violations) > 0 {
		result.Violations = violations
		return result, ErrSteadyStateInvalid
	}
	result.SteadyStateValid = true

	// Step 2: inject
	span.AddEvent("injecting_chaos")
	for _, action := range exp.Method {
		if err := action.Execute(ctx); err != nil {
			result.recordError(action.Target, err)
			span.RecordError(err)
		}
	}

	// Step 3: observe
	span.AddEvent("observing_system")
	e.observe(ctx, exp, result)

	// Step 4: rollback
	span.AddEvent("rolling_back")
	for _, action := range exp.Rollback {
		if err := action.Execute(ctx); err != nil {
			result.recordError(action.Target, err)
			span.RecordError(err)
		}
	}

	// Step 5: assertions
	span.AddEvent("validating_assertions")
	result.Failed = failedAssertions(exp.Validation, result)
	result.HypothesisHeld = len(result.Failed) == 0 && len(result.Violations) == 0 && len(result.ErrorEvents) == 0
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	e.mu.Lock()
	e.results = append(e.results, *result)
	e.mu.Unlock()

	span.SetAttributes(
		attribute.Bool("hypothesis_held", result.HypothesisHeld),
		attribute.Int("violations", len(result.Violations)),
	)
	e.log.WithFields(map[string]interface{}{
		"experiment": exp.Name,
		"held":       result.HypothesisHeld,
		"violations": len(result.Violations),
	}).Info("experiment finished")
	return result, nil
}

// observe samples every probe at least once, then until Duration elapses.
func (e *Engine) observe(ctx context.Context, exp Experiment, result *Result) {
	every := exp.SampleEvery
	if every <= 0 {
		every = time.Second
	}
	observeCtx, cancel := context.WithTimeout(ctx, exp.Duration)
	defer cancel()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		result.Violations = append(result.Violations, e.sample(ctx, exp.SteadyState, result)...)
		e.record(ctx, exp.Observe, result)
		select {
		case <-observeCtx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (e *Engine) sample(ctx context.Context, probes []Probe, result *Result) []Violation {
	var violations []Violation
	for _, probe := range probes {
		value, err := probe.Query(ctx)
		now := time.Now()
		if err != nil {
			result.recordError(probe.Name, err)
			violations = append(violations, Violation{Probe: probe.Name, Expected: probe.Threshold.Value, Actual: -1, Timestamp: now})
			continue
		}
		result.Observations[probe.Name] = append(result.Observations[probe.Name], DataPoint{Timestamp: now, Value: value})
		if !probe.Threshold.holds(value) {
			violations = append(violations, Violation{Probe: probe.Name, Expected: probe.Threshold.Value, Actual: value, Timestamp: now})
		}
	}
	return violations
}

func (e *Engine) record(ctx context.Context, probes []Probe, result *Result) {
	for _, probe := range probes {
		value, err := probe.Query(ctx)
		if err != nil {
			result.recordError(probe.Name, err)
			continue
		}
		result.Observations[probe.Name] = append(result.Observations[probe.Name], DataPoint{Timestamp: time.Now(), Value: value})
	}
}

func failedAssertions(assertions []Assertion, result *Result) []string {
	var failed []string
	for _, a := range assertions {
		points := result.Observations[a.Probe]
		if len(points) == 0 || !a.Condition(points[len(points)-1].Value) {
			failed = append(failed, a.Message)
		}
	}
	return failed
}

func (r *Result) recordError(component string, err error) {
	r.ErrorEvents = append(r.ErrorEvents, ErrorEvent{Timestamp: time.Now(), Error: err.Error(), Component: component})
}

// GameDay runs a series of experiments with a pause between them.
type GameDay struct {
	Name      string
	Date      time.Time
	Scenarios []Experiment
	Pause     time.Duration
}

// ExecuteGameDay runs every scenario and writes a summary to out. It returns
// an error when any hypothesis did not hold.
func (e *Engine) ExecuteGameDay(ctx context.Context, day GameDay, out io.Writer) error {
	ctx, span := e.tracer.Start(ctx, "chaos.game_day",
		trace.WithAttributes(attribute.String("gameday.name", day.Name)))
	defer span.End()

	fmt.Fprintf(out, "Game day: %s (%s)\n", day.Name, day.Date.Format(time.RFC3339))

	failed := 0
	for i, scenario := range day.Scenarios {
		if i > 0 && day.Pause > 0 {
			select {
			case <-time.After(day.Pause):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		fmt.Fprintf(out, "\nExperiment %d/%d: %s\n", i+1, len(day.Scenarios), scenario.Name)
		fmt.Fprintf(out, "Hypothesis: %s\n", scenario.Hypothesis)

		result, err := e.Run(ctx, scenario)
		if err != nil {
			fmt.Fprintf(out, "FAILED: %v\n", err)
			failed++
			continue
		}
		PrintResult(out, result)
		if !result.HypothesisHeld {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d experiments failed", failed, len(day.Scenarios))
	}
	return nil
}

// PrintResult writes a human-readable summary of result.
func PrintResult(out io.Writer, result *Result) {
	if result.HypothesisHeld {
		fmt.Fprintln(out, "HELD: system behaved as expected")
	} else {
		fmt.Fprintln(out, "VIOLATED: unexpected behaviour observed")
	}
	for _, v := range result.Violations {
		fmt.Fprintf(out, "  - %s: expected %.2f, got %.2f\n", v.Probe, v.Expected, v.Actual)
	}
	for _, msg := range result.Failed {
		fmt.Fprintf(out, "  - %s\n", msg)
	}
	for _, ev := range result.ErrorEvents {
		fmt.Fprintf(out, "  ! %s: %s\n", ev.Component, ev.Error)
	}
	fmt.Fprintf(out, "Duration: %s\n", result.Duration)
}
