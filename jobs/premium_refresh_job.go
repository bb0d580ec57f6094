package jobs

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/fenilmodi00/nextipo-backend/models"
	"github.com/fenilmodi00/nextipo-backend/services"
	"github.com/sirupsen/logrus"
)

type PremiumRefreshJob struct {
	Service *services.PremiumFeedService
	Timeout time.Duration
	running atomic.Bool
}

func NewPremiumRefreshJob(service *services.PremiumFeedService) *PremiumRefreshJob {
	return &PremiumRefreshJob{
		Service: service,
		Timeout: 2 * time.Minute,
	}
}

func (j *PremiumRefreshJob) Start(ctx context.Context, interval time.Duration) {
	if !j.Service.Enabled() || interval <= 0 {
		logrus.Info("Premium refresh job disabled")
		return
	}

	logrus.Infof("Starting premium refresh job (runs every %v)...", interval)
	ticker := time.NewTicker(interval)

	go func() {
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

func (j *PremiumRefreshJob) Run(ctx context.Context) (*models.PremiumRefreshResult, error) {
	if !j.running.CompareAndSwap(false, true) {
		logrus.Warn("Premium refresh job already running, skipping")
		return nil, ErrJobRunning
	}
	defer j.running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, j.Timeout)
	defer cancel()

	logrus.Info("Running premium refresh job...")
	result, err := j.Service.Refresh(ctx)
	if err != nil {
		logrus.Errorf("Premium refresh job failed: %v", err)
		return nil, err
	}

	if result.RowsParsed == 0 {
		logrus.Warn("Premium refresh job: no premium rows found on feed page")
	}
	return result, nil
}
