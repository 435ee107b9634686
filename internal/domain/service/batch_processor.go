package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/entity"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/valueobject"
	"github.com/hortensia-labs/theodore-popyto-sub001/pkg/safego"
)

// BatchSessionStatus is one of the four states a BatchSession moves through.
type BatchSessionStatus string

const (
	BatchRunning   BatchSessionStatus = "running"
	BatchPaused    BatchSessionStatus = "paused"
	BatchCancelled BatchSessionStatus = "cancelled"
	BatchCompleted BatchSessionStatus = "completed"
)

// BatchResult is one entry of a session's results[] (§4.5).
type BatchResult struct {
	URLID       string
	FinalStatus valueobject.ProcessingStatus
	ItemKey     string
	Err         string
	Timestamp   time.Time
}

// BatchOptions configures a single start() call.
type BatchOptions struct {
	Concurrency   int
	RespectIntent bool
}

// DefaultBatchOptions matches §4.5's documented defaults.
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{Concurrency: 5, RespectIntent: true}
}

// BatchSession is the in-memory record a caller polls every pollIntervalMs
// (§6.6). All fields are mutated only while holding mu; BatchSnapshot is the
// copy-on-read view handed back to callers so a poll never races a writer.
type BatchSession struct {
	mu sync.Mutex

	ID           string
	URLIDs       []string
	CurrentIndex int
	Completed    []int
	Failed       []int
	Skipped      []int
	Results      []BatchResult
	Status       BatchSessionStatus
	StartedAt    time.Time
	FinishedAt   time.Time

	cancel context.CancelFunc
	paused chan struct{} // closed while running; replaced (new chan) while paused
}

// BatchSnapshot is the read-only view returned by Get (§4.5 polling contract).
type BatchSnapshot struct {
	SessionID    string
	Status       BatchSessionStatus
	CurrentIndex int
	Total        int
	Completed    int
	Failed       int
	Skipped      int
	LastResult   *BatchResult
}

func (s *BatchSession) snapshot() BatchSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := BatchSnapshot{
		SessionID:    s.ID,
		Status:       s.Status,
		CurrentIndex: s.CurrentIndex,
		Total:        len(s.URLIDs),
		Completed:    len(s.Completed),
		Failed:       len(s.Failed),
		Skipped:      len(s.Skipped),
	}
	if n := len(s.Results); n > 0 {
		last := s.Results[n-1]
		snap.LastResult = &last
	}
	return snap
}

// processFunc is the subset of Orchestrator's surface the batch processor
// needs — satisfied by *Orchestrator in production, faked in tests.
type processFunc func(ctx context.Context, urlID string) (*ProcessingResult, error)

// urlIntentLookup resolves a URL's current intent for the respectIntent
// skip-check, without requiring the batch processor to depend on the full
// repository.URLRepository surface.
type urlIntentLookup func(ctx context.Context, urlID string) (valueobject.UserIntent, error)

// BatchProcessor runs the orchestrator over a set of URLs with bounded
// concurrency (§4.5). One BatchProcessor serves many concurrent sessions;
// each session owns its own semaphore and cancellation.
type BatchProcessor struct {
	process     processFunc
	lookupIntent urlIntentLookup
	logger      *zap.Logger
	sweeper     *SessionSweeper

	mu       sync.Mutex
	sessions map[string]*BatchSession
}

// NewBatchProcessor wires a batch processor on top of an orchestrator's
// Process method and a retention sweeper (§6.6 sessionRetentionMs /
// sessionSweepIntervalMs).
func NewBatchProcessor(orch *Orchestrator, lookupIntent urlIntentLookup, retention, sweepInterval time.Duration, logger *zap.Logger) *BatchProcessor {
	bp := &BatchProcessor{
		process:      orch.Process,
		lookupIntent: lookupIntent,
		logger:       logger.With(zap.String("component", "batch_processor")),
		sessions:     make(map[string]*BatchSession),
	}
	bp.sweeper = NewSessionSweeper(SweeperConfig{RetentionTTL: retention, Interval: sweepInterval, Enabled: true}, bp.sweep, logger)
	bp.sweeper.Start()
	return bp
}

// Start validates inputs, creates a session, and returns its id immediately —
// the background task is spawned in its own goroutine and never awaited
// here. This is a documented correctness requirement (§4.5 "Non-blocking
// startup property"), not an optimisation: a caller that blocks on the first
// task would make the UI appear frozen.
func (bp *BatchProcessor) Start(urlIDs []string, opts BatchOptions) string {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 5
	}
	ctx, cancel := context.WithCancel(context.Background())
	session := &BatchSession{
		ID:        uuid.NewString(),
		URLIDs:    append([]string(nil), urlIDs...),
		Status:    BatchRunning,
		StartedAt: time.Now(),
		cancel:    cancel,
		paused:    closedChan(),
	}

	bp.mu.Lock()
	bp.sessions[session.ID] = session
	bp.mu.Unlock()

	safego.Go(bp.logger, "batch-session-"+session.ID, func() { bp.run(ctx, session, opts) })
	return session.ID
}

func closedChan() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}

// run is the background task: it submits each urlId to a concurrency-bounded
// pool in order, skipping ones whose intent excludes auto processing when
// respectIntent is set, and recording every outcome onto the session.
func (bp *BatchProcessor) run(ctx context.Context, session *BatchSession, opts BatchOptions) {
	sem := make(chan struct{}, opts.Concurrency)
	var wg sync.WaitGroup

	for idx, urlID := range session.URLIDs {
		select {
		case <-ctx.Done():
			wg.Wait()
			bp.finish(session, BatchCancelled)
			return
		default:
		}

		bp.waitWhilePaused(session)
		if session.cancelled() {
			break
		}

		if opts.RespectIntent {
			intent, err := bp.lookupIntent(ctx, urlID)
			if err == nil && intent.SkipsAutoProcessing() {
				bp.recordSkip(session, idx, urlID)
				continue
			}
		}

		sem <- struct{}{}
		wg.Add(1)
		idx, urlID := idx, urlID
		safego.Go(bp.logger, "batch-url-"+urlID, func() {
			defer wg.Done()
			defer func() { <-sem }()
			bp.runOne(ctx, session, idx, urlID)
		})
	}

	wg.Wait()
	if session.cancelled() {
		bp.finish(session, BatchCancelled)
		return
	}
	bp.finish(session, BatchCompleted)
}

func (bp *BatchProcessor) runOne(ctx context.Context, session *BatchSession, idx int, urlID string) {
	result, err := bp.process(ctx, urlID)

	session.mu.Lock()
	defer session.mu.Unlock()
	if idx+1 > session.CurrentIndex {
		session.CurrentIndex = idx + 1
	}

	br := BatchResult{URLID: urlID, Timestamp: time.Now()}
	switch {
	case err != nil:
		br.Err = err.Error()
		session.Failed = append(session.Failed, idx)
	case result.Error != nil:
		br.FinalStatus = result.FinalStatus
		br.Err = result.Error.Error()
		session.Failed = append(session.Failed, idx)
	default:
		br.FinalStatus = result.FinalStatus
		br.ItemKey = result.ItemKey
		session.Completed = append(session.Completed, idx)
	}
	session.Results = append(session.Results, br)
}

func (bp *BatchProcessor) recordSkip(session *BatchSession, idx int, urlID string) {
	session.mu.Lock()
	defer session.mu.Unlock()
	if idx+1 > session.CurrentIndex {
		session.CurrentIndex = idx + 1
	}
	session.Skipped = append(session.Skipped, idx)
	session.Results = append(session.Results, BatchResult{URLID: urlID, Timestamp: time.Now()})
}

func (bp *BatchProcessor) finish(session *BatchSession, status BatchSessionStatus) {
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.Status == BatchCancelled {
		// Cancel already set the status; the pool has now drained.
		session.FinishedAt = time.Now()
		return
	}
	session.Status = status
	session.FinishedAt = time.Now()
}

func (s *BatchSession) cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Status == BatchCancelled
}

// waitWhilePaused blocks run's submission loop while the session is paused.
// Already-running tasks drain independently — pause never kills in-flight
// work (§4.5 step 4).
func (bp *BatchProcessor) waitWhilePaused(session *BatchSession) {
	for {
		session.mu.Lock()
		ch := session.paused
		paused := session.Status == BatchPaused
		session.mu.Unlock()
		if !paused {
			return
		}
		<-ch
	}
}

// Pause sets a running session's status to paused; the scheduler stops
// submitting new tasks but does not interrupt ones already in flight.
func (bp *BatchProcessor) Pause(sessionID string) error {
	session, err := bp.get(sessionID)
	if err != nil {
		return err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.Status != BatchRunning {
		return nil
	}
	session.Status = BatchPaused
	session.paused = make(chan struct{})
	return nil
}

// Resume sets status back to running and wakes the scheduler loop.
func (bp *BatchProcessor) Resume(sessionID string) error {
	session, err := bp.get(sessionID)
	if err != nil {
		return err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.Status != BatchPaused {
		return nil
	}
	session.Status = BatchRunning
	close(session.paused)
	return nil
}

// Cancel soft-cancels a session: its status becomes cancelled immediately
// and in-flight tasks run to the end of their current stage (the
// orchestrator's own stage boundaries observe ctx); FinishedAt is set once
// the pool drains (§4.5 step 6, §5 "Cancellation semantics").
func (bp *BatchProcessor) Cancel(sessionID string) error {
	session, err := bp.get(sessionID)
	if err != nil {
		return err
	}
	session.mu.Lock()
	wasPaused := session.Status == BatchPaused
	if session.Status == BatchRunning || session.Status == BatchPaused {
		session.Status = BatchCancelled
	}
	pausedCh := session.paused
	session.mu.Unlock()
	session.cancel()
	if wasPaused {
		close(pausedCh) // unblock the scheduler so it can observe cancellation and exit
	}
	return nil
}

// Get returns a copy-on-read snapshot safe to read concurrently with writers.
func (bp *BatchProcessor) Get(sessionID string) (BatchSnapshot, error) {
	session, err := bp.get(sessionID)
	if err != nil {
		return BatchSnapshot{}, err
	}
	return session.snapshot(), nil
}

func (bp *BatchProcessor) get(sessionID string) (*BatchSession, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	session, ok := bp.sessions[sessionID]
	if !ok {
		return nil, entity.ErrSessionNotFound
	}
	return session, nil
}

// sweep evicts sessions that finished more than RetentionTTL ago (§4.5 step 7).
func (bp *BatchProcessor) sweep(now time.Time) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for id, session := range bp.sessions {
		session.mu.Lock()
		finished := !session.FinishedAt.IsZero() && now.Sub(session.FinishedAt) > bp.sweeper.config.RetentionTTL
		session.mu.Unlock()
		if finished {
			delete(bp.sessions, id)
		}
	}
}

// Shutdown stops the retention sweeper. Call during process shutdown.
func (bp *BatchProcessor) Shutdown() {
	bp.sweeper.Stop()
}
