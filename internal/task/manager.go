package task

import (
	"context"
	"time"

	"github.com/charlieram96/sniperstradingacademy-sub002/internal/config"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/logger"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/treasury"
	"github.com/go-co-op/gocron/v2"
)

// Manager registers the treasury jobs with a gocron scheduler. Singleton mode
// keeps a slow run from overlapping itself; cross-instance overlap is handled
// by the jobs' own state machines.
type Manager struct {
	scheduler gocron.Scheduler
	pipeline  *treasury.Pipeline
	config    *config.Config
}

func NewManager(pipeline *treasury.Pipeline, cfg *config.Config) (*Manager, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Manager{
		scheduler: s,
		pipeline:  pipeline,
		config:    cfg,
	}, nil
}

// Start registers every job and starts the scheduler.
func Start(pipeline *treasury.Pipeline, cfg *config.Config) (*Manager, error) {
	manager, err := NewManager(pipeline, cfg)
	if err != nil {
		return nil, err
	}
	manager.RegisterJobs()
	manager.scheduler.Start()
	logger.Info("Task manager started")
	return manager, nil
}

// RegisterJobs wires each pipeline job to its configured interval.
func (m *Manager) RegisterJobs() {
	jobs := m.config.Jobs
	m.register(m.pipeline.Monitor, jobs.MonitorInterval)
	m.register(m.pipeline.Provision, jobs.MonitorInterval)
	m.register(m.pipeline.Batcher, jobs.BatchInterval)
	m.register(m.pipeline.PayoutRun, jobs.BatchInterval)
	m.register(m.pipeline.SweepFund, jobs.SweepInterval)
	m.register(m.pipeline.SweepAdvance, jobs.SweepInterval)
	m.register(m.pipeline.SweepVerify, jobs.SweepInterval)
	m.register(m.pipeline.Gas, jobs.GasCheckInterval)
	m.register(m.pipeline.Outbox, jobs.OutboxInterval)
	m.register(m.pipeline.Cleanup, jobs.CleanupInterval)
}

func (m *Manager) register(job treasury.Job, intervalSeconds int) {
	if intervalSeconds <= 0 {
		logger.Warn("Job %s has no interval configured, not scheduled", job.Name())
		return
	}
	_, err := m.scheduler.NewJob(
		gocron.DurationJob(time.Duration(intervalSeconds)*time.Second),
		gocron.NewTask(func() { m.execute(job) }),
		gocron.WithName(job.Name()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		logger.Error("Failed to register job %s: %v", job.Name(), err)
	}
}

func (m *Manager) execute(job treasury.Job) {
	started := time.Now()
	summary, err := job.Run(context.Background())
	if err != nil {
		logger.Error("Job %s failed: %v", job.Name(), err)
		return
	}
	logger.Info("Job %s finished in %s: processed=%d succeeded=%d failed=%d skipped=%d",
		job.Name(), time.Since(started).Round(time.Millisecond),
		summary.Processed, summary.Succeeded, summary.Failed, summary.Skipped)
	for _, e := range summary.Errors {
		logger.Warn("Job %s: %s", job.Name(), e)
	}
}

// Stop shuts the scheduler down, waiting for running jobs.
func (m *Manager) Stop() {
	if err := m.scheduler.Shutdown(); err != nil {
		logger.Error("Failed to shutdown scheduler: %v", err)
	}
	logger.Info("Task manager stopped")
}
