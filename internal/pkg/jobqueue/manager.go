package jobqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ManuelReschke/creditsync/internal/pkg/billing"
	metrics "github.com/ManuelReschke/creditsync/internal/pkg/metrics/counter"
	"github.com/gofiber/fiber/v2/log"
	"github.com/robfig/cron/v3"
)

const jobTimeout = 2 * time.Minute

// Job is one periodic background task.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Manager runs the background jobs on cron schedules.
type Manager struct {
	jobs    []Job
	cron    *cron.Cron
	mu      sync.Mutex
	running bool
}

func NewManager(jobs ...Job) *Manager {
	return &Manager{jobs: jobs}
}

// Start schedules every job. A job still running when its next tick fires is
// skipped for that tick.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	log.Info("[JobQueue Manager] Starting background jobs")
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))
	for _, job := range m.jobs {
		job := job
		if _, err := c.AddFunc(job.Spec, func() { m.runJob(job) }); err != nil {
			return fmt.Errorf("jobqueue: schedule %s (%q): %w", job.Name, job.Spec, err)
		}
		log.Infof("[JobQueue Manager] Scheduled %s (%s)", job.Name, job.Spec)
	}
	c.Start()

	m.cron = c
	m.running = true
	log.Info("[JobQueue Manager] Started successfully")
	return nil
}

// Stop stops scheduling and waits for running jobs to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping background jobs...")
	<-m.cron.Stop().Done()
	m.cron = nil
	m.running = false
	log.Info("[JobQueue Manager] Stopped successfully")
}

// RunOnce runs the named job immediately, outside its schedule.
func (m *Manager) RunOnce(name string) error {
	for _, job := range m.jobs {
		if job.Name == name {
			return m.runJob(job)
		}
	}
	return fmt.Errorf("jobqueue: unknown job %q", name)
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) runJob(job Job) error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		log.Errorf("[JobQueue Manager] %s failed after %v: %v", job.Name, time.Since(start), err)
		return err
	}
	log.Debugf("[JobQueue Manager] %s finished in %v", job.Name, time.Since(start))
	return nil
}

// ExpirySweepJob cancels subscriptions that lapsed at period end.
func ExpirySweepJob(spec string, svc *billing.Service, grace time.Duration) Job {
	return Job{
		Name: "expiry-sweep",
		Spec: spec,
		Run: func(ctx context.Context) error {
			_, err := svc.ExpireLapsedSubscriptions(ctx, grace)
			return err
		},
	}
}

// CounterFlushJob moves the Redis webhook counters into the database.
func CounterFlushJob(spec string) Job {
	return Job{
		Name: "counter-flush",
		Spec: spec,
		Run: func(ctx context.Context) error {
			return metrics.FlushAll()
		},
	}
}
