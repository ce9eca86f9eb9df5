// Package orchestrator sequences keyword generation, searches and file
// analysis. Each mode runs at most one operation at a time, inputs are
// validated before any network call, and responses that arrive after a
// reset are discarded.
package orchestrator

import (
	"context"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/scout/internal/backend"
	"github.com/hpungsan/scout/internal/conditions"
	"github.com/hpungsan/scout/internal/config"
	"github.com/hpungsan/scout/internal/errors"
	"github.com/hpungsan/scout/internal/metrics"
	"github.com/hpungsan/scout/internal/patent"
	"github.com/hpungsan/scout/internal/progress"
	"github.com/hpungsan/scout/internal/request"
	"github.com/hpungsan/scout/internal/results"
	"github.com/hpungsan/scout/internal/session"
)

// API is the slice of the backend the orchestrator drives.
type API interface {
	GenerateKeywords(ctx context.Context, req backend.KeywordsRequest) (*backend.KeywordsResponse, error)
	ConfirmedSearch(ctx context.Context, req backend.ConfirmedSearchRequest) (*backend.SearchResponse, error)
	ConditionSearch(ctx context.Context, req backend.ConditionSearchRequest) (*backend.SearchResponse, error)
	VerifyCredential(ctx context.Context, userCode string) (*backend.VerifyResponse, error)
	UploadAndAnalyze(ctx context.Context, filename string, r io.Reader) (*backend.AnalysisResponse, error)
	ExportAnalysis(ctx context.Context, req backend.ExportAnalysisRequest) (*request.Download, error)
}

// Credentials stores the GPSS credential.
type Credentials interface {
	Credential() (string, error)
	SetCredential(v string) error
}

// ChatGate is unlocked by the first successful search and locked again by
// an application reset.
type ChatGate interface {
	Unlock()
	Unlocked() bool
	Reset(ctx context.Context)
}

// FileSaver writes a spreadsheet produced by the backend.
type FileSaver interface {
	SaveFile(dir, name string, data []byte) (string, error)
}

// Phase is the lifecycle position of one mode.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseValidating Phase = "validating"
	PhaseRunning    Phase = "running"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

// Outcome labels for the searches metric.
const (
	outcomeSucceeded = "succeeded"
	outcomeFailed    = "failed"
	outcomeRejected  = "rejected"
	outcomeBusy      = "busy"
	outcomeStale     = "stale"
)

// Options configures New. API, Sessions, Builder and Results are required.
type Options struct {
	API         API
	Sessions    *session.Coordinator
	Builder     *conditions.Builder
	Results     *results.Store
	Credentials Credentials
	Chat        ChatGate
	Files       FileSaver
	Renderer    Renderer
	Config      *config.Config
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
	// ProgressTick overrides progress.DefaultTick.
	ProgressTick time.Duration
	Now          func() time.Time
}

// Orchestrator runs the search workflow.
type Orchestrator struct {
	api      API
	sessions *session.Coordinator
	builder  *conditions.Builder
	results  *results.Store
	creds    Credentials
	chat     ChatGate
	files    FileSaver
	renderer Renderer
	cfg      *config.Config
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time

	mu    sync.Mutex
	epoch uint64
	modes map[results.Mode]*modeState
}

type modeState struct {
	phase    Phase
	last     Phase
	progress *progress.Simulator
}

// New creates an Orchestrator with every mode idle.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		api:      opts.API,
		sessions: opts.Sessions,
		builder:  opts.Builder,
		results:  opts.Results,
		creds:    opts.Credentials,
		chat:     opts.Chat,
		files:    opts.Files,
		renderer: opts.Renderer,
		cfg:      opts.Config,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		now:      opts.Now,
		modes:    make(map[results.Mode]*modeState, len(results.Modes)),
	}
	if o.renderer == nil {
		o.renderer = NopRenderer{}
	}
	if o.cfg == nil {
		o.cfg = config.DefaultConfig()
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.now == nil {
		o.now = time.Now
	}
	for _, mode := range results.Modes {
		o.modes[mode] = &modeState{
			phase: PhaseIdle,
			last:  PhaseIdle,
			progress: progress.New(func(pct int) {
				o.renderer.SetProgress(mode, pct)
			}, opts.ProgressTick),
		}
	}
	return o
}

// Status is a snapshot of one mode.
type Status struct {
	Mode     results.Mode `json:"mode"`
	Phase    Phase        `json:"phase"`
	Last     Phase        `json:"last"`
	Progress int          `json:"progress"`
	Records  int          `json:"records"`
	HasData  bool         `json:"has_data"`
}

// State returns the current phase of mode.
func (o *Orchestrator) State(mode results.Mode) Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.modes[mode]
	if !ok {
		return PhaseIdle
	}
	return st.phase
}

// Status returns a snapshot of every mode in results.Modes order.
func (o *Orchestrator) Status() []Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]Status, 0, len(results.Modes))
	for _, mode := range results.Modes {
		st := o.modes[mode]
		_, has := o.results.Get(mode)
		out = append(out, Status{
			Mode:     mode,
			Phase:    st.phase,
			Last:     st.last,
			Progress: st.progress.Percent(),
			Records:  o.results.Count(mode),
			HasData:  has,
		})
	}
	return out
}

// Reset returns the application to its initial state: results, conditions,
// session and chat are cleared. Operations already in flight finish, but
// their responses are discarded as stale.
func (o *Orchestrator) Reset(ctx context.Context) {
	o.mu.Lock()
	o.epoch++
	o.results.ClearAll()
	idle := make([]results.Mode, 0, len(results.Modes))
	for _, mode := range results.Modes {
		st := o.modes[mode]
		st.last = PhaseIdle
		if st.phase == PhaseIdle {
			idle = append(idle, mode)
		}
	}
	o.mu.Unlock()

	o.builder.Reset()
	o.sessions.Reset()
	if o.chat != nil {
		o.chat.Reset(ctx)
	}
	for _, mode := range idle {
		o.modes[mode].progress.Fail()
	}
	o.logger.Info("application reset")
}

// begin moves mode from idle to validating. A mode that is already
// validating or running rejects the call.
func (o *Orchestrator) begin(mode results.Mode, op string) error {
	o.mu.Lock()
	st := o.modes[mode]
	if st.phase == PhaseValidating || st.phase == PhaseRunning {
		o.mu.Unlock()
		o.count(op, outcomeBusy)
		o.logger.Info("operation rejected: mode busy", zap.String("mode", string(mode)), zap.String("op", op))
		err := errors.NewBusy(string(mode))
		o.renderer.ShowError(mode, err.Message)
		return err
	}
	st.phase = PhaseValidating
	o.mu.Unlock()
	return nil
}

// reject returns mode to idle after a failed validation.
func (o *Orchestrator) reject(mode results.Mode, op string, err error) error {
	o.mu.Lock()
	o.modes[mode].phase = PhaseIdle
	o.mu.Unlock()

	o.count(op, outcomeRejected)
	o.logger.Info("operation rejected", zap.String("mode", string(mode)), zap.String("op", op), zap.Error(err))
	o.renderer.ShowError(mode, errors.Message(err))
	return err
}

// dispatch moves mode to running and returns the epoch the response must
// match. expected > 0 starts the progress simulation.
func (o *Orchestrator) dispatch(mode results.Mode, expected time.Duration) uint64 {
	o.mu.Lock()
	st := o.modes[mode]
	st.phase = PhaseRunning
	epoch := o.epoch
	o.mu.Unlock()

	if expected > 0 {
		st.progress.Start(expected)
	}
	return epoch
}

// fail returns mode to idle after a failed call.
func (o *Orchestrator) fail(mode results.Mode, op string, err error) error {
	st := o.modes[mode]
	st.progress.Fail()

	o.mu.Lock()
	st.phase = PhaseIdle
	st.last = PhaseFailed
	o.mu.Unlock()

	o.count(op, outcomeFailed)
	o.logger.Warn("operation failed", zap.String("mode", string(mode)), zap.String("op", op), zap.Error(err))
	o.renderer.ShowError(mode, errors.Message(err))
	return err
}

// commit stores records for mode if epoch is still current. The check, the
// write and apply happen under one lock so a concurrent Reset cannot
// interleave. apply must not call back into the orchestrator.
func (o *Orchestrator) commit(mode results.Mode, op string, epoch uint64, records []patent.Record, apply func()) error {
	st := o.modes[mode]

	o.mu.Lock()
	if epoch != o.epoch {
		st.phase = PhaseIdle
		o.mu.Unlock()
		st.progress.Fail()
		o.count(op, outcomeStale)
		o.logger.Info("discarding stale response", zap.String("mode", string(mode)), zap.String("op", op))
		return errors.NewStale(string(mode))
	}
	if records != nil {
		o.results.Set(mode, records)
	}
	if apply != nil {
		apply()
	}
	st.phase = PhaseIdle
	st.last = PhaseSucceeded
	o.mu.Unlock()

	o.count(op, outcomeSucceeded)
	return nil
}

// succeed finishes a search: progress snaps to 100, results are shown and
// chat is unlocked on the first success.
func (o *Orchestrator) succeed(mode results.Mode, records []patent.Record) {
	o.modes[mode].progress.Complete()
	o.logger.Info("search succeeded", zap.String("mode", string(mode)), zap.Int("records", len(records)))
	o.renderer.ShowResults(mode, records)

	if o.chat != nil && !o.chat.Unlocked() {
		o.chat.Unlock()
		o.renderer.ChatUnlocked()
	}
}

func (o *Orchestrator) count(op, outcome string) {
	if o.metrics == nil {
		return
	}
	o.metrics.Searches.WithLabelValues(op, outcome).Inc()
}
