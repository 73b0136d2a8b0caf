// Package harness runs conversation flows against a conversational backend
// and validates every turn.
//
// A run walks the flow's steps in order. For each step the harness sends the
// user input through a TurnExecutor, captures the backend's answer as a
// turn.StepResult, optionally renders the text responses to audio, and
// evaluates the step's validation rules followed by the flow's global rules.
//
// # Stopping
//
// A failed critical assertion stops the run unless the step sets
// continue_on_failure. Error-level failures mark the step failed but never
// stop the run. Warnings are recorded only.
//
// A failing collaborator (session store or backend) aborts the run. The
// RunResult still carries the steps and report for everything that ran, and
// RunResult.Err returns a *CollaboratorError.
//
// # Deterministic Testing
//
// Clock and IDGenerator are injectable. With testutil.DeterministicClock and
// testutil.FixedIDGenerator a RunResult is byte-stable, so it can be compared
// against golden snapshots:
//
//	h, _ := harness.New(harness.Options{
//	    Turns: turns,
//	    Clock: testutil.NewDeterministicClock(),
//	    IDs:   testutil.NewFixedIDGenerator("run-1"),
//	})
//	result, err := harness.RunWithGolden(t, h, flowDef)
//
// # Tracing
//
// Each run opens a "convtest.run" span with one "convtest.step" child per
// executed step. Without a configured provider the global no-op tracer is
// used.
package harness
