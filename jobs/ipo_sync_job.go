package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fenilmodi00/nextipo-backend/models"
	"github.com/fenilmodi00/nextipo-backend/services"
	"github.com/fenilmodi00/nextipo-backend/shared"
	"github.com/sirupsen/logrus"
)

// ErrJobRunning is returned when a run is requested while another is in flight
var ErrJobRunning = errors.New("job already running")

type IPOSyncJob struct {
	Service *services.IPOService
	Timeout time.Duration

	running    atomic.Bool
	mu         sync.RWMutex
	lastReport *models.SyncReport
	lastError  error
}

func NewIPOSyncJob(service *services.IPOService) *IPOSyncJob {
	return &IPOSyncJob{
		Service: service,
		Timeout: 5 * time.Minute,
	}
}

// Run performs one sync unless another is already in progress
func (j *IPOSyncJob) Run(ctx context.Context) (*models.SyncReport, error) {
	if !j.running.CompareAndSwap(false, true) {
		logrus.Warn("IPO sync job already running, skipping")
		return nil, ErrJobRunning
	}
	defer j.running.Store(false)

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	logrus.Info("Running IPO sync job...")

	report, err := j.Service.FetchAndSyncIPOs(ctx)

	j.mu.Lock()
	j.lastReport = report
	j.lastError = err
	j.mu.Unlock()

	if err != nil {
		var serviceErr *shared.ServiceError
		if errors.As(err, &serviceErr) {
			serviceErr.LogError()
		} else {
			logrus.WithError(err).Error("IPO sync job failed")
		}
		return report, err
	}

	logrus.WithFields(logrus.Fields{
		"run_id":  report.RunID,
		"created": report.Created,
		"updated": report.Updated,
		"skipped": len(report.Skipped),
	}).Infof("IPO sync job completed successfully (took %v)", time.Since(startTime))
	return report, nil
}

// Start schedules the job: once after delay, then every interval until ctx is
// done. A non-positive interval disables the periodic runs.
func (j *IPOSyncJob) Start(ctx context.Context, runOnStart bool, delay, interval time.Duration) {
	if interval > 0 {
		logrus.Infof("Starting IPO sync job (runs every %v)...", interval)
	}

	go func() {
		if runOnStart {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				j.Run(ctx)
			}
		}

		if interval <= 0 {
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.Run(ctx)
			}
		}
	}()
}

// IsRunning returns whether a sync is currently in flight
func (j *IPOSyncJob) IsRunning() bool {
	return j.running.Load()
}

// LastRun returns the report and error of the most recent completed run
func (j *IPOSyncJob) LastRun() (*models.SyncReport, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.lastReport, j.lastError
}
