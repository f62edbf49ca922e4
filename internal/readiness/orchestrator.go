package readiness

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/talentview/sessionkit/internal/config"
	"github.com/talentview/sessionkit/internal/observability"
)

// Result is the outcome of one full readiness run.
type Result struct {
	Checks    []SystemCheck
	PeakLevel float64
}

// Passed reports whether the run is good enough to proceed: every check
// settled and none failed. Warnings do not block.
func (r Result) Passed() bool {
	for _, c := range r.Checks {
		if c.Status == StatusFailed || !c.Status.Terminal() {
			return false
		}
	}
	return len(r.Checks) > 0
}

// Failures returns the errors of all failed checks.
func (r Result) Failures() []*CheckError {
	var errs []*CheckError
	for _, c := range r.Checks {
		if c.Status == StatusFailed && c.Err != nil {
			errs = append(errs, c.Err)
		}
	}
	return errs
}

// Orchestrator runs the readiness checks in a fixed order: browser,
// network, microphone, audio. Every check settles into a terminal
// status even when an earlier one failed, so the result carries the
// full picture. Run resets all state first, so calling it again is the
// whole-sequence retry.
type Orchestrator struct {
	browser  BrowserInfo
	prober   NetworkProber
	audio    AudioInput
	onUpdate func(SystemCheck)
	logger   *slog.Logger

	skipAudio    bool
	floorMbps    float64
	threshold    float64
	sampleWindow time.Duration
	sampleTick   time.Duration

	mu     sync.Mutex
	checks []SystemCheck
}

func NewOrchestrator(cfg *config.Config, browser BrowserInfo, prober NetworkProber, audio AudioInput, onUpdate func(SystemCheck), logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		browser:      browser,
		prober:       prober,
		audio:        audio,
		onUpdate:     onUpdate,
		logger:       logger,
		skipAudio:    cfg.SkipAudioTest,
		floorMbps:    cfg.NetworkFloorMbps,
		threshold:    cfg.AudioSilenceThreshold,
		sampleWindow: cfg.AudioTestWindow,
		sampleTick:   cfg.AudioSampleInterval,
		checks:       initialChecks(),
	}
}

// Progress returns settled and total check counts for progress display.
func (o *Orchestrator) Progress() (done, total int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, c := range o.checks {
		if c.Status.Terminal() {
			done++
		}
	}
	return done, len(o.checks)
}

// Checks returns a snapshot of the current check states.
func (o *Orchestrator) Checks() []SystemCheck {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]SystemCheck, len(o.checks))
	copy(out, o.checks)
	return out
}

// Run executes the full sequence. Any previous run's state is discarded
// before the first check starts.
func (o *Orchestrator) Run(ctx context.Context) Result {
	o.mu.Lock()
	o.checks = initialChecks()
	o.mu.Unlock()

	var peak float64

	o.runCheck(ctx, CheckBrowser, func(context.Context) *CheckError {
		return checkBrowser(o.browser)
	})

	o.runCheck(ctx, CheckNetwork, func(ctx context.Context) *CheckError {
		return checkNetwork(ctx, o.prober, o.floorMbps)
	})

	var stream AudioStream
	o.runCheck(ctx, CheckMicrophone, func(ctx context.Context) *CheckError {
		var cerr *CheckError
		stream, cerr = checkMicrophone(ctx, o.audio)
		return cerr
	})

	o.runAudioCheck(ctx, stream, &peak)
	return o.result(peak)
}

func (o *Orchestrator) runAudioCheck(ctx context.Context, stream AudioStream, peak *float64) {
	if o.skipAudio {
		if stream != nil {
			stream.Close()
		}
		o.logger.Info("audio level test skipped by configuration")
		o.setStatus(CheckAudio, StatusPassed, nil)
		return
	}

	o.setStatus(CheckAudio, StatusChecking, nil)
	if stream == nil {
		// The microphone check did not hand over a stream; acquire one
		// here so the audio test reports its own error.
		var cerr *CheckError
		stream, cerr = checkMicrophone(ctx, o.audio)
		if cerr != nil {
			o.setStatus(CheckAudio, StatusFailed, cerr)
			return
		}
	}
	defer stream.Close()
	level, cerr := sampleAudioLevel(ctx, stream, o.sampleWindow, o.sampleTick, o.threshold)
	*peak = level
	switch {
	case cerr == nil:
		o.setStatus(CheckAudio, StatusPassed, nil)
	case cerr.Advisory:
		// The device opened fine; silence is advisory, not blocking.
		o.setStatus(CheckAudio, StatusWarning, cerr)
	default:
		o.setStatus(CheckAudio, StatusFailed, cerr)
	}
}

func (o *Orchestrator) runCheck(ctx context.Context, id CheckID, fn func(context.Context) *CheckError) {
	o.setStatus(id, StatusChecking, nil)
	cerr := fn(ctx)
	switch {
	case cerr == nil:
		o.setStatus(id, StatusPassed, nil)
	case cerr.Advisory:
		// Degraded but usable.
		o.setStatus(id, StatusWarning, cerr)
	default:
		o.setStatus(id, StatusFailed, cerr)
	}
}

func (o *Orchestrator) setStatus(id CheckID, status Status, cerr *CheckError) {
	o.mu.Lock()
	var updated SystemCheck
	for i := range o.checks {
		if o.checks[i].ID != id {
			continue
		}
		o.checks[i].Status = status
		o.checks[i].Err = cerr
		updated = o.checks[i]
		break
	}
	o.mu.Unlock()

	if status.Terminal() {
		observability.RecordReadinessCheck(context.Background(), string(id), string(status))
		if cerr != nil {
			o.logger.Warn("readiness check settled",
				"check", id, "status", status, "code", cerr.Code, "error", cerr)
		} else {
			o.logger.Debug("readiness check settled", "check", id, "status", status)
		}
	}
	if o.onUpdate != nil {
		o.onUpdate(updated)
	}
}

func (o *Orchestrator) result(peak float64) Result {
	return Result{Checks: o.Checks(), PeakLevel: peak}
}
