package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/convtest/internal/assertion"
	"github.com/roach88/convtest/internal/criteria"
	"github.com/roach88/convtest/internal/flow"
	"github.com/roach88/convtest/internal/turn"
)

// TracerName is the instrumentation scope of harness spans.
const TracerName = "github.com/roach88/convtest/internal/harness"

// Span attribute keys.
const (
	AttrRunID     = "convtest.run.id"
	AttrFlowID    = "convtest.flow.id"
	AttrAgentRef  = "convtest.agent.ref"
	AttrStepID    = "convtest.step.id"
	AttrStepNum   = "convtest.step.number"
	AttrPassed    = "convtest.step.passed"
	AttrSuccess   = "convtest.run.success"
	AttrStopped   = "convtest.run.stopped_early"
	AttrSessionID = "convtest.session.id"
)

// Options configures a Harness. Turns is required.
type Options struct {
	Turns    TurnExecutor
	Sessions SessionManager // nil: sessions are not tracked

	// Audio rendering runs only when both are set.
	Renderer AudioRenderer
	Sink     AudioSink

	Clock  Clock       // nil: SystemClock
	IDs    IDGenerator // nil: UUIDv7Generator
	Logger *slog.Logger
	Tracer trace.Tracer // nil: the global provider's tracer
}

// Harness executes flows against a conversational backend.
//
// A Harness holds no per-run state: every Run call builds its own result, so
// one Harness may run several flows concurrently as long as its
// collaborators allow it.
type Harness struct {
	turns     TurnExecutor
	sessions  SessionManager
	renderer  AudioRenderer
	sink      AudioSink
	clock     Clock
	ids       IDGenerator
	logger    *slog.Logger
	tracer    trace.Tracer
	validator *assertion.Validator
}

// New builds a Harness from opts.
func New(opts Options) (*Harness, error) {
	if opts.Turns == nil {
		return nil, errors.New("harness: turn executor is required")
	}

	h := &Harness{
		turns:    opts.Turns,
		sessions: opts.Sessions,
		renderer: opts.Renderer,
		sink:     opts.Sink,
		clock:    opts.Clock,
		ids:      opts.IDs,
		logger:   opts.Logger,
		tracer:   opts.Tracer,
	}
	if h.sessions == nil {
		h.sessions = nopSessions{}
	}
	if h.clock == nil {
		h.clock = SystemClock{}
	}
	if h.ids == nil {
		h.ids = UUIDv7Generator{}
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.tracer == nil {
		h.tracer = otel.Tracer(TracerName)
	}
	h.validator = assertion.NewValidator(h.logger)
	return h, nil
}

// Run executes f step by step.
//
// The returned error is reserved for unusable input. Everything that goes
// wrong while running (backend or session failures, critical assertion
// failures) is reported in the RunResult, which always carries a report
// covering the steps that ran.
//
// Execution flow per step:
//  1. Send the utterance through the turn executor
//  2. Build the step result and render audio for text messages
//  3. Evaluate the step's rules, then the flow's global rules
//  4. Update the session
//  5. Stop when a critical assertion failed and the step does not continue
func (h *Harness) Run(ctx context.Context, f *flow.FlowDefinition) (*RunResult, error) {
	if f == nil {
		return nil, errors.New("harness: nil flow")
	}
	if len(f.Steps) == 0 {
		return nil, fmt.Errorf("harness: flow %q has no steps", f.FlowID)
	}

	result := &RunResult{
		RunID:             h.ids.Generate(),
		FlowID:            f.FlowID,
		FlowName:          f.FlowName,
		AgentRef:          f.AgentRef,
		StartTime:         h.clock.Now(),
		Steps:             make([]turn.StepResult, 0, len(f.Steps)),
		ValidationResults: make([]assertion.StepValidationResult, 0, len(f.Steps)),
		StepStates:        make([]StepStatus, len(f.Steps)),
		AudioFiles:        []string{},
	}
	for i, step := range f.Steps {
		result.StepStates[i] = StepStatus{StepID: step.StepID, State: StatePending}
	}

	ctx, span := h.tracer.Start(ctx, "convtest.run", trace.WithAttributes(
		attribute.String(AttrRunID, result.RunID),
		attribute.String(AttrFlowID, f.FlowID),
		attribute.String(AttrAgentRef, f.AgentRef),
	))
	defer span.End()

	logger := h.logger.With("run", result.RunID, "flow", f.FlowID)
	logger.Info("run started", "steps", len(f.Steps))

	sessionID, err := h.sessions.CreateSession(ctx, f.AgentRef, map[string]any{
		"flow_id":   f.FlowID,
		"flow_name": f.FlowName,
	})
	if err != nil {
		h.abort(result, span, logger, &CollaboratorError{Op: OpCreateSession, Err: err})
	} else {
		result.SessionID = sessionID
		span.SetAttributes(attribute.String(AttrSessionID, sessionID))
		h.runSteps(ctx, f, result, span, logger)

		if err := h.sessions.EndSession(ctx, sessionID); err != nil {
			logger.Warn("failed to end session", "session", sessionID, "error", &CollaboratorError{Op: OpEndSession, Err: err})
		}
	}

	h.finish(f, result, span, logger)
	return result, nil
}

func (h *Harness) runSteps(ctx context.Context, f *flow.FlowDefinition, result *RunResult, runSpan trace.Span, logger *slog.Logger) {
	for i, step := range f.Steps {
		number := i + 1
		logger.Info("executing step", "step", step.StepID, "number", number, "of", len(f.Steps))
		result.setState(i, StateRunning)

		verdict, validated, cerr := h.runStep(ctx, f, step, number, result)
		if !validated {
			result.setState(i, StateAborted)
			h.abort(result, runSpan, logger, cerr)
			return
		}
		result.setState(i, StateOf(verdict))

		// a verdict reached before a failed session update still counts
		if verdict.ShouldStop {
			result.StoppedEarly = true
			result.StoppedAt = step.StepID
			result.StopReason = fmt.Sprintf("Critical assertion failed in step: %s", step.StepID)
			logger.Error("stopping run after critical failure", "step", step.StepID, "number", number)
		}
		if cerr != nil {
			h.abort(result, runSpan, logger, cerr)
			return
		}
		if verdict.ShouldStop {
			return
		}

		if verdict.Passed {
			logger.Info("step passed", "step", step.StepID)
		} else {
			logger.Warn("step failed", "step", step.StepID, "errors", verdict.ErrorCount, "critical", verdict.CriticalCount, "warnings", verdict.WarningCount)
		}
	}
}

// runStep executes one step. validated reports whether the rules were
// evaluated; a non-nil error aborts the run either way.
func (h *Harness) runStep(ctx context.Context, f *flow.FlowDefinition, step flow.FlowStep, number int, result *RunResult) (verdict assertion.StepValidationResult, validated bool, cerr *CollaboratorError) {
	ctx, span := h.tracer.Start(ctx, "convtest.step", trace.WithAttributes(
		attribute.String(AttrStepID, step.StepID),
		attribute.Int(AttrStepNum, number),
	))
	defer span.End()

	began := h.clock.Now()
	res, err := h.turns.SendTurn(ctx, turn.Request{
		AgentRef:       f.AgentRef,
		SessionID:      result.SessionID,
		Utterance:      step.UserInput,
		LanguageCode:   f.LanguageCode,
		TimeoutSeconds: step.TimeoutSeconds,
	})
	if err != nil {
		cerr := &CollaboratorError{Op: OpSendTurn, StepID: step.StepID, Err: err}
		setSpanError(span, cerr)
		return verdict, false, cerr
	}
	ended := h.clock.Now()

	sr := turn.NewStepResult(step.StepID, number, step.UserInput, res)
	sr.ExecutionTimeMs = float64(ended.Sub(began).Microseconds()) / 1000
	sr.Timestamp = ended
	sr.AudioFiles = h.renderAudio(ctx, f.LanguageCode, number, sr)
	result.AudioFiles = append(result.AudioFiles, sr.AudioFiles...)

	record, err := sr.Record()
	if err != nil {
		cerr := &CollaboratorError{Op: OpRecordStep, StepID: step.StepID, Err: err}
		setSpanError(span, cerr)
		return verdict, false, cerr
	}
	result.Steps = append(result.Steps, *sr)

	verdict = h.validator.ValidateStep(record, f.RulesFor(step), step.ContinueOnFailure)
	result.ValidationResults = append(result.ValidationResults, verdict)
	span.SetAttributes(attribute.Bool(AttrPassed, verdict.Passed))

	if err := h.sessions.UpdateSession(ctx, result.SessionID, sr); err != nil {
		cerr := &CollaboratorError{Op: OpUpdateSession, StepID: step.StepID, Err: err}
		setSpanError(span, cerr)
		return verdict, true, cerr
	}
	return verdict, true, nil
}

func (h *Harness) abort(result *RunResult, span trace.Span, logger *slog.Logger, err *CollaboratorError) {
	result.err = err
	result.Error = err.Error()
	setSpanError(span, err)
	logger.Error("run aborted", "op", err.Op, "step", err.StepID, "error", err.Err)
}

func (h *Harness) finish(f *flow.FlowDefinition, result *RunResult, span trace.Span, logger *slog.Logger) {
	result.EndTime = h.clock.Now()
	result.DurationMs = float64(result.EndTime.Sub(result.StartTime).Microseconds()) / 1000
	result.Report = assertion.GenerateReport(result.ValidationResults)
	result.Success = result.err == nil && !result.StoppedEarly && !result.Report.Failed()

	if len(f.SuccessCriteria) > 0 {
		result.Criteria = criteria.Evaluate(f.SuccessCriteria, result.Report)
		met := criteria.AllMet(result.Criteria)
		result.CriteriaMet = &met
	}

	span.SetAttributes(
		attribute.Bool(AttrSuccess, result.Success),
		attribute.Bool(AttrStopped, result.StoppedEarly),
	)
	logger.Info("run finished",
		"success", result.Success,
		"passed_steps", result.Report.Summary.PassedSteps,
		"failed_steps", result.Report.Summary.FailedSteps,
		"duration_ms", result.DurationMs,
	)
}

func setSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// nopSessions is used when no session manager is configured.
type nopSessions struct{}

func (nopSessions) CreateSession(context.Context, string, map[string]any) (string, error) {
	return "", nil
}

func (nopSessions) UpdateSession(context.Context, string, *turn.StepResult) error { return nil }

func (nopSessions) EndSession(context.Context, string) error { return nil }
