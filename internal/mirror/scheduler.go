package mirror

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/booking-mirror/backend/internal/storage/models"
)

// scheduleJitterFrac spreads every recurrence by ±5% so multiple
// instances drift apart instead of hitting the upstream together.
const scheduleJitterFrac = 0.05

// Runner is the sync work the scheduler drives. *Service implements it.
type Runner interface {
	Sync(ctx context.Context, force bool) *models.SyncRunResult
	PurgeRetention(ctx context.Context) (int64, error)
}

// Broadcaster receives run outcomes for status fan-out. May be nil.
type Broadcaster interface {
	SyncCompleted(result *models.SyncRunResult)
	SyncError(listingID string, message string)
}

// SchedulerStatus is a read-only snapshot for status reporting.
type SchedulerStatus struct {
	RunCount      int                   `json:"run_count"`
	FailureCount  int                   `json:"failure_count"`
	LastSuccessAt *time.Time            `json:"last_success_at,omitempty"`
	LastFailureAt *time.Time            `json:"last_failure_at,omitempty"`
	NextRunAt     *time.Time            `json:"next_run_at,omitempty"`
	LastResult    *models.SyncRunResult `json:"last_result,omitempty"`
}

// Scheduler fires the sync service immediately on start and then on a
// jittered fixed interval. It runs independently of the HTTP-serving
// path and never blocks it.
type Scheduler struct {
	runner      Runner
	broadcaster Broadcaster
	interval    time.Duration
	cron        *cron.Cron

	stop chan struct{}
	wg   sync.WaitGroup

	mu            sync.Mutex
	runCount      int
	failureCount  int
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	nextRunAt     *time.Time
	lastResult    *models.SyncRunResult
}

// NewScheduler creates a scheduler driving the given runner every
// interval. The interval should match the freshness TTL so scheduled
// runs land right as coverage goes stale.
func NewScheduler(runner Runner, broadcaster Broadcaster, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &Scheduler{
		runner:      runner,
		broadcaster: broadcaster,
		interval:    interval,
		cron:        cron.New(),
		stop:        make(chan struct{}),
	}
}

// Start launches the sync loop and the nightly retention purge job.
func (s *Scheduler) Start() {
	log.Printf("Starting sync scheduler (interval %s)", s.interval)

	_, err := s.cron.AddFunc("@daily", func() {
		n, err := s.runner.PurgeRetention(context.Background())
		if err != nil {
			log.Printf("Nightly retention purge failed: %v", err)
			return
		}
		if n > 0 {
			log.Printf("Nightly retention purge removed %d rows", n)
		}
	})
	if err != nil {
		log.Printf("Error registering retention purge job: %v", err)
	}
	s.cron.Start()

	s.wg.Add(1)
	go s.loop()
}

// Stop shuts the scheduler down and waits for an in-flight run.
func (s *Scheduler) Stop() {
	log.Println("Stopping sync scheduler...")
	close(s.stop)
	<-s.cron.Stop().Done()
	s.wg.Wait()
	log.Println("Sync scheduler stopped")
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	// First run right away so a fresh process serves current data.
	s.runOnce(false)

	for {
		delay := s.jittered(s.interval)
		next := time.Now().UTC().Add(delay)
		s.setNextRun(&next)

		timer := time.NewTimer(delay)
		select {
		case <-s.stop:
			timer.Stop()
			return
		case <-timer.C:
			s.runOnce(false)
		}
	}
}

// TriggerSync runs a sync immediately on the caller's goroutine and
// returns its result. Serialization with scheduled runs happens inside
// the service.
func (s *Scheduler) TriggerSync(ctx context.Context, force bool) *models.SyncRunResult {
	return s.record(s.runner.Sync(ctx, force))
}

func (s *Scheduler) runOnce(force bool) {
	s.record(s.runner.Sync(context.Background(), force))
}

func (s *Scheduler) record(result *models.SyncRunResult) *models.SyncRunResult {
	now := time.Now().UTC()

	s.mu.Lock()
	s.runCount++
	s.lastResult = result
	if result.Success {
		s.lastSuccessAt = &now
	} else {
		s.failureCount++
		s.lastFailureAt = &now
	}
	s.mu.Unlock()

	if s.broadcaster != nil {
		if result.Success || result.PartialSuccess {
			s.broadcaster.SyncCompleted(result)
		} else {
			s.broadcaster.SyncError(result.ListingID, result.Error)
		}
	}
	return result
}

// Status returns a snapshot of run counters and timing.
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SchedulerStatus{
		RunCount:      s.runCount,
		FailureCount:  s.failureCount,
		LastSuccessAt: s.lastSuccessAt,
		LastFailureAt: s.lastFailureAt,
		NextRunAt:     s.nextRunAt,
		LastResult:    s.lastResult,
	}
}

func (s *Scheduler) setNextRun(t *time.Time) {
	s.mu.Lock()
	s.nextRunAt = t
	s.mu.Unlock()
}

// jittered returns the interval spread by ±scheduleJitterFrac.
func (s *Scheduler) jittered(d time.Duration) time.Duration {
	factor := 1 - scheduleJitterFrac + 2*scheduleJitterFrac*rand.Float64()
	return time.Duration(float64(d) * factor)
}
