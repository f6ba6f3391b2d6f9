package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/mudra/internal/eventlog"
	"github.com/ayusman/mudra/internal/intent"
	"github.com/ayusman/mudra/internal/oracle"
	"github.com/ayusman/mudra/pkg/logger"
	"github.com/ayusman/mudra/pkg/metrics"
)

var (
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("lifecycle manager closed")
	// ErrPanic wraps a panic raised by the verifier or the executor.
	ErrPanic = errors.New("panic")
)

// Config holds lifecycle timing.
type Config struct {
	Mode Mode
	// VerifyTimeout bounds how long a synchronous event waits for a verdict.
	VerifyTimeout time.Duration
	// MergeWindow is how recently a verifying event must have been updated
	// for a same-intent proposal to merge into it.
	MergeWindow time.Duration
	// ExecuteTimeout bounds one executor call.
	ExecuteTimeout time.Duration
	// LabelTimeout is the hard cap on any verifier call, including the
	// late tail of a timed-out synchronous call and asynchronous labels.
	LabelTimeout time.Duration
	// PredictTimeout bounds the shadow classifier call.
	PredictTimeout time.Duration
	// History is how many terminal events stay readable through Get.
	History int
}

// DefaultConfig returns the default lifecycle configuration.
func DefaultConfig() Config {
	return Config{
		Mode:           ModeSync,
		VerifyTimeout:  3 * time.Second,
		MergeWindow:    250 * time.Millisecond,
		ExecuteTimeout: 2 * time.Second,
		LabelTimeout:   10 * time.Second,
		PredictTimeout: 300 * time.Millisecond,
		History:        128,
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithPredictor attaches a shadow classifier.
func WithPredictor(p Predictor) Option {
	return func(m *Manager) { m.predictor = p }
}

// WithIDFunc replaces the event id generator.
func WithIDFunc(f func() string) Option {
	return func(m *Manager) { m.newID = f }
}

// Manager owns every event. Submit is called from the frame loop and never
// blocks on the verifier or executor; each event progresses on its own
// goroutine.
type Manager struct {
	cfg       Config
	oracle    oracle.Oracle
	exec      Executor
	sink      eventlog.Sink
	predictor Predictor
	log       logger.Logger
	now       func() time.Time
	newID     func() string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	mode     Mode
	current  *event
	inflight map[string]*event
	recent   []*event
	closed   bool
}

// NewManager creates a manager. The sink receives exactly one record per
// event plus any annotations.
func NewManager(cfg Config, o oracle.Oracle, exec Executor, sink eventlog.Sink, opts ...Option) *Manager {
	def := DefaultConfig()
	if cfg.Mode == "" {
		cfg.Mode = def.Mode
	}
	if cfg.VerifyTimeout <= 0 {
		cfg.VerifyTimeout = def.VerifyTimeout
	}
	if cfg.MergeWindow < 0 {
		cfg.MergeWindow = 0
	}
	if cfg.ExecuteTimeout <= 0 {
		cfg.ExecuteTimeout = def.ExecuteTimeout
	}
	if cfg.LabelTimeout < cfg.VerifyTimeout {
		cfg.LabelTimeout = max(def.LabelTimeout, cfg.VerifyTimeout)
	}
	if cfg.PredictTimeout <= 0 {
		cfg.PredictTimeout = def.PredictTimeout
	}
	if cfg.History <= 0 {
		cfg.History = def.History
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:      cfg,
		oracle:   o,
		exec:     exec,
		sink:     sink,
		log:      logger.Named("lifecycle"),
		now:      time.Now,
		newID:    uuid.NewString,
		ctx:      ctx,
		cancel:   cancel,
		mode:     cfg.Mode,
		inflight: make(map[string]*event),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.cfg }

// Mode returns the mode applied to new events.
func (m *Manager) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// SetMode changes the mode for events submitted from now on.
func (m *Manager) SetMode(mode Mode) error {
	if mode != ModeSync && mode != ModeAsync {
		return errors.New("lifecycle: invalid mode " + string(mode))
	}
	m.mu.Lock()
	m.mode = mode
	m.mu.Unlock()
	m.log.Info(m.ctx, "mode changed", logger.String("mode", string(mode)))
	return nil
}

// Submit turns a proposal into an event. A same-intent proposal arriving
// while the current event is still awaiting its verdict merges into it;
// anything else becomes the new current event and supersedes its
// predecessor.
func (m *Manager) Submit(ctx context.Context, sub Submission) (Event, error) {
	now := m.now()
	metrics.RecordProposal(string(sub.Proposal.Intent), string(sub.Proposal.Trigger))

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Event{}, ErrClosed
	}

	if cur := m.current; cur != nil && (cur.state == Proposed || cur.state == Verifying) &&
		cur.proposal.Intent == sub.Proposal.Intent &&
		now.Sub(cur.updatedAt) <= m.cfg.MergeWindow {
		cur.mergeCount++
		cur.updatedAt = now
		view := cur.view()
		m.mu.Unlock()

		metrics.RecordEventMerged()
		m.log.Debug(ctx, "proposal merged",
			logger.String("event_id", view.ID),
			logger.Int("merge_count", view.MergeCount))
		return view, nil
	}

	e := newEvent(m.newID(), sub, m.mode, now)
	var superseded *eventlog.Record
	if prev := m.current; prev != nil && !prev.state.Terminal() {
		prev.superseded = true
		prev.supersededReason = TagNewestWins
		prev.supersededBy = e.id
		superseded = m.finishLocked(prev, Superseded, TagNewestWins, now)
	}
	m.current = e
	m.inflight[e.id] = e
	inflight := len(m.inflight)
	m.wg.Add(1)
	view := e.view()
	m.mu.Unlock()

	metrics.UpdateEventsInflight(inflight)
	if superseded != nil {
		m.emit(superseded)
	}
	m.log.Info(ctx, "event proposed",
		logger.String("event_id", e.id),
		logger.String("intent", string(view.ProposedIntent)),
		logger.String("trigger", string(view.Trigger)),
		logger.String("mode", string(view.Mode)),
		logger.Float64("confidence", view.Confidence))

	go m.run(e)
	return view, nil
}

// Current returns the newest non-superseded event.
func (m *Manager) Current() (Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Event{}, false
	}
	return m.current.view(), true
}

// Get returns an in-flight or recently finished event.
func (m *Manager) Get(id string) (Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.inflight[id]; ok {
		return e.view(), true
	}
	for i := len(m.recent) - 1; i >= 0; i-- {
		if m.recent[i].id == id {
			return m.recent[i].view(), true
		}
	}
	return Event{}, false
}

// Recent returns finished events, newest first.
func (m *Manager) Recent() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, 0, len(m.recent))
	for i := len(m.recent) - 1; i >= 0; i-- {
		out = append(out, m.recent[i].view())
	}
	return out
}

// Inflight returns the number of non-terminal events.
func (m *Manager) Inflight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inflight)
}

// Wait blocks until every event goroutine, including late verifier tails,
// has returned.
func (m *Manager) Wait() { m.wg.Wait() }

// Close stops accepting submissions and waits for outstanding events. If
// ctx ends first, outstanding verifier and executor calls are cancelled.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.cancel()
		return nil
	case <-ctx.Done():
		m.cancel()
		<-done
		return ctx.Err()
	}
}

// finishLocked moves e to a terminal state and returns the record to emit,
// or nil if e was already terminal. Callers hold m.mu.
func (m *Manager) finishLocked(e *event, st State, tag string, now time.Time) *eventlog.Record {
	if e.state.Terminal() {
		return nil
	}
	e.state = st
	e.policyTag = tag
	e.stamp(eventlog.StageTerminal, now)
	delete(m.inflight, e.id)
	m.recent = append(m.recent, e)
	if len(m.recent) > m.cfg.History {
		m.recent = m.recent[len(m.recent)-m.cfg.History:]
	}
	rec := e.record()
	return &rec
}

// emit writes a terminal record. Never called with m.mu held.
func (m *Manager) emit(rec *eventlog.Record) {
	if rec == nil {
		return
	}
	metrics.RecordEventTerminal(rec.Outcome, rec.PolicyTag)
	metrics.UpdateEventsInflight(m.Inflight())

	fields := []logger.Field{
		logger.String("event_id", rec.EventID),
		logger.String("outcome", rec.Outcome),
		logger.String("policy", rec.PolicyTag),
		logger.String("intent", string(rec.ProposedIntent)),
		logger.Int("merge_count", rec.MergeCount),
	}
	if rec.Error != "" {
		fields = append(fields, logger.String("error", rec.Error), logger.String("stage", rec.ErrorStage))
		m.log.Warn(m.ctx, "event finished", fields...)
	} else {
		m.log.Info(m.ctx, "event finished", fields...)
	}

	if m.sink == nil {
		return
	}
	if err := m.sink.WriteRecord(m.ctx, *rec); err != nil {
		m.log.Error(m.ctx, "write event record", logger.String("event_id", rec.EventID), logger.Error(err))
	}
}

func (m *Manager) annotate(ann eventlog.Annotation) {
	if m.sink == nil {
		return
	}
	if err := m.sink.WriteAnnotation(m.ctx, ann); err != nil {
		m.log.Error(m.ctx, "write annotation", logger.String("event_id", ann.EventID), logger.Error(err))
	}
}

func (m *Manager) request(e *event) oracle.Request {
	return oracle.Request{
		EventID:         e.id,
		ProposedIntent:  e.proposal.Intent,
		LocalConfidence: e.proposal.Confidence,
		Evidence:        e.evidence,
		Features:        e.features,
		Student:         e.student,
		PolicyHint:      string(e.mode),
		ForceReject:     e.forceReject,
	}
}

func (m *Manager) run(e *event) {
	defer m.wg.Done()

	if m.predictor != nil && e.features != nil {
		m.predict(e)
	}
	if e.mode == ModeAsync {
		m.runAsync(e)
		return
	}
	m.runSync(e)
}

func (m *Manager) predict(e *event) {
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.PredictTimeout)
	defer cancel()

	p, err := m.predictor.Predict(ctx, *e.features)
	if err != nil {
		metrics.RecordStudentPrediction("error")
		m.log.Debug(m.ctx, "student prediction failed", logger.String("event_id", e.id), logger.Error(err))
		return
	}
	metrics.RecordStudentPrediction("ok")
	m.mu.Lock()
	e.student = p
	m.mu.Unlock()
}

type verifyResult struct {
	verdict oracle.Verdict
	err     error
	at      time.Time
	latency time.Duration
}

func (m *Manager) runSync(e *event) {
	m.mu.Lock()
	if e.state.Terminal() {
		m.mu.Unlock()
		return
	}
	e.state = Verifying
	e.stamp(eventlog.StageVerifyStarted, m.now())
	req := m.request(e)
	m.mu.Unlock()

	results := make(chan verifyResult, 1)
	go func() {
		ctx, cancel := context.WithTimeout(m.ctx, m.cfg.LabelTimeout)
		defer cancel()
		start := time.Now()
		v, err := m.verify(ctx, req)
		results <- verifyResult{verdict: v, err: err, at: m.now(), latency: time.Since(start)}
	}()

	timer := time.NewTimer(m.cfg.VerifyTimeout)
	defer timer.Stop()

	select {
	case res := <-results:
		metrics.RecordOracleLatency(float64(res.latency.Microseconds()) / 1000)
		m.onVerdict(e, res)
	case <-timer.C:
		m.onTimeout(e)
		// The call is not cancelled; its answer is still recorded.
		res := <-results
		metrics.RecordOracleLatency(float64(res.latency.Microseconds()) / 1000)
		m.onVerdict(e, res)
	}
}

func (m *Manager) onTimeout(e *event) {
	m.mu.Lock()
	var rec *eventlog.Record
	if !e.state.Terminal() {
		e.err = "verifier did not answer within " + m.cfg.VerifyTimeout.String()
		e.errStage = eventlog.ErrorStageVerification
		rec = m.finishLocked(e, TimedOut, TagVerificationTimeout, m.now())
	}
	m.mu.Unlock()
	m.emit(rec)
}

func (m *Manager) onVerdict(e *event, res verifyResult) {
	m.mu.Lock()
	if e.state.Terminal() {
		outcome := e.state
		m.mu.Unlock()
		m.stale(e.id, outcome, res)
		return
	}

	e.stamp(eventlog.StageVerifyCompleted, res.at)
	err := res.err
	if err == nil {
		err = res.verdict.Validate()
	}
	if err != nil {
		e.err = err.Error()
		e.errStage = eventlog.ErrorStageVerification
		rec := m.finishLocked(e, Rejected, TagVerificationError, res.at)
		m.mu.Unlock()
		m.emit(rec)
		return
	}

	v := res.verdict
	e.verdict = &v
	if !v.Approves() {
		rec := m.finishLocked(e, Rejected, TagVerificationRejected, res.at)
		m.mu.Unlock()
		m.emit(rec)
		return
	}

	e.state = Approved
	e.approved = v.FinalIntent
	e.stamp(eventlog.StageApproved, m.now())
	m.mu.Unlock()

	m.execute(e, TagSyncVerified)
}

// stale records a verifier answer for an event that is already terminal.
// It never changes the event.
func (m *Manager) stale(id string, outcome State, res verifyResult) {
	metrics.RecordStaleResponse()
	ann := eventlog.Annotation{
		EventID:   id,
		Kind:      eventlog.AnnotationStaleVerdict,
		Timestamp: res.at,
		Detail:    "event already " + string(outcome),
	}
	if res.err != nil {
		ann.Kind = eventlog.AnnotationStaleVerifyFail
		ann.Error = res.err.Error()
	} else {
		v := res.verdict
		ann.Verdict = &v
	}
	m.log.Warn(m.ctx, "stale verifier response discarded",
		logger.String("event_id", id),
		logger.String("outcome", string(outcome)),
		logger.Duration("latency", res.latency))
	m.annotate(ann)
}

// execute runs the executor if e is still current and non-terminal;
// otherwise e ends Superseded.
func (m *Manager) execute(e *event, tag string) {
	m.mu.Lock()
	if e.state.Terminal() || m.current != e {
		if !e.state.Terminal() {
			e.superseded = true
			e.supersededReason = TagStaleOnExecute
			if m.current != nil {
				e.supersededBy = m.current.id
			}
		}
		rec := m.finishLocked(e, Superseded, TagStaleOnExecute, m.now())
		m.mu.Unlock()
		m.emit(rec)
		return
	}
	e.executionStarted = true
	e.stamp(eventlog.StageExecuteStarted, m.now())
	in := e.approved
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.ExecuteTimeout)
	start := time.Now()
	err := m.invoke(ctx, in, e.id)
	latency := time.Since(start)
	cancel()
	metrics.RecordExecutionLatency(float64(latency.Microseconds()) / 1000)
	if err != nil {
		metrics.RecordExecutorFailure()
	}

	done := m.now()
	m.mu.Lock()
	if e.state.Terminal() {
		// Superseded while the action was running.
		m.mu.Unlock()
		ann := eventlog.Annotation{
			EventID:   e.id,
			Kind:      eventlog.AnnotationLateExecution,
			Timestamp: done,
			Detail:    "executed " + string(in) + " after supersession",
		}
		if err != nil {
			ann.Error = err.Error()
		}
		m.annotate(ann)
		return
	}
	e.stamp(eventlog.StageExecuteCompleted, done)
	var rec *eventlog.Record
	if err != nil {
		e.err = err.Error()
		e.errStage = eventlog.ErrorStageExecution
		rec = m.finishLocked(e, Rejected, TagExecutionError, done)
	} else {
		rec = m.finishLocked(e, Executed, tag, done)
	}
	m.mu.Unlock()
	m.emit(rec)
}

func (m *Manager) runAsync(e *event) {
	m.mu.Lock()
	if e.state.Terminal() {
		m.mu.Unlock()
		return
	}
	e.state = Approved
	e.approved = e.proposal.Intent
	e.stamp(eventlog.StageApproved, m.now())
	m.mu.Unlock()

	m.execute(e, TagAsyncOptimistic)

	if len(e.evidence) == 0 {
		return
	}
	m.mu.Lock()
	req := m.request(e)
	m.mu.Unlock()
	m.label(req)
}

// label asks the verifier about an already executed event. The answer is
// only recorded.
func (m *Manager) label(req oracle.Request) {
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.LabelTimeout)
	defer cancel()

	start := time.Now()
	v, err := m.verify(ctx, req)
	metrics.RecordOracleLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err == nil {
		err = v.Validate()
	}

	ann := eventlog.Annotation{EventID: req.EventID, Kind: eventlog.AnnotationLabel, Timestamp: m.now()}
	if err != nil {
		ann.Kind = eventlog.AnnotationLabelError
		ann.Error = err.Error()
		m.log.Debug(m.ctx, "label failed", logger.String("event_id", req.EventID), logger.Error(err))
	} else {
		ann.Verdict = &v
		if v.FinalIntent != req.ProposedIntent || !v.Intentional {
			ann.Detail = "verifier disagrees with executed " + string(req.ProposedIntent)
		}
	}
	m.annotate(ann)
}

// verify calls the oracle. A panic becomes an error for this event only.
func (m *Manager) verify(ctx context.Context, req oracle.Request) (v oracle.Verdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = oracle.Verdict{}, fmt.Errorf("%w in %s stage: %v", ErrPanic, eventlog.ErrorStageVerification, r)
		}
	}()
	return m.oracle.Verify(ctx, req)
}

// invoke calls the executor with the same panic handling as verify.
func (m *Manager) invoke(ctx context.Context, in intent.Intent, id string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w in %s stage: %v", ErrPanic, eventlog.ErrorStageExecution, r)
		}
	}()
	return m.exec.Execute(ctx, in, id)
}
