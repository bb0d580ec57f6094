package services

import (
	"context"
	"strings"
	"time"

	"github.com/fenilmodi00/nextipo-backend/database"
	"github.com/fenilmodi00/nextipo-backend/models"
	"github.com/fenilmodi00/nextipo-backend/shared"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type IPOService struct {
	Store      database.Store
	Source     IPOSource
	Normalizer *Normalizer
	Strategy   models.SyncStrategy
	Metrics    *shared.ServiceMetrics
	now        func() time.Time
}

func NewIPOService(store database.Store, source IPOSource, strategy models.SyncStrategy) *IPOService {
	if strategy == "" {
		strategy = models.SyncAppend
	}
	return &IPOService{
		Store:      store,
		Source:     source,
		Normalizer: NewNormalizer(),
		Strategy:   strategy,
		Metrics:    shared.NewServiceMetrics("IPOService"),
		now:        time.Now,
	}
}

// GetIPOs lists records; a non-empty search wins over status
func (s *IPOService) GetIPOs(ctx context.Context, search, status string) ([]models.IPORecord, error) {
	switch {
	case search != "":
		return s.Store.SearchIPOs(ctx, search)
	case status != "":
		return s.Store.GetIPOsByStatus(ctx, status)
	default:
		return s.Store.GetAllIPOs(ctx)
	}
}

// GetIPOByID returns nil when no record has the id
func (s *IPOService) GetIPOByID(ctx context.Context, id int64) (*models.IPORecord, error) {
	return s.Store.GetIPOByID(ctx, id)
}

// GetIPOStats recomputes the dashboard summary from the current store contents
func (s *IPOService) GetIPOStats(ctx context.Context) (models.IPOStats, error) {
	records, err := s.Store.GetAllIPOs(ctx)
	if err != nil {
		return models.IPOStats{}, err
	}
	return ComputeIPOStats(records), nil
}

// FetchAndSyncIPOs pulls the upstream listing and stores every entry that
// normalizes cleanly. Malformed entries are logged and skipped. Transport and
// store failures abort the run; entries stored before a store failure remain.
func (s *IPOService) FetchAndSyncIPOs(ctx context.Context) (report *models.SyncReport, err error) {
	report = &models.SyncReport{
		RunID:     uuid.New().String(),
		Strategy:  s.Strategy,
		Skipped:   []models.SkippedEntry{},
		StartedAt: s.now(),
	}
	logger := logrus.WithFields(logrus.Fields{
		"component": "IPOService",
		"run_id":    report.RunID,
		"strategy":  s.Strategy,
	})

	defer func() {
		report.FinishedAt = s.now()
		elapsed := report.FinishedAt.Sub(report.StartedAt)
		report.Duration = elapsed.String()
		s.Metrics.RecordRequest(err, elapsed)
		s.Metrics.AddCustomCounter("entries_created", int64(report.Created))
		s.Metrics.AddCustomCounter("entries_updated", int64(report.Updated))
		s.Metrics.AddCustomCounter("entries_skipped", int64(len(report.Skipped)))
	}()

	logger.Info("Starting IPO sync")
	entries, err := s.Source.FetchIPOList(ctx)
	if err != nil {
		logger.WithError(err).Error("IPO sync aborted: upstream fetch failed")
		return report, err
	}
	report.Fetched = len(entries)

	var sampleErrors []error
	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			logger.WithField("processed", i).Warn("IPO sync cancelled")
			return report, err
		}

		input, normErr := s.Normalizer.NormalizeEntry(entry)
		if normErr != nil {
			report.Skipped = append(report.Skipped, models.SkippedEntry{Index: i, Reason: normErr.Error()})
			sampleErrors = append(sampleErrors, normErr)
			logger.WithFields(logrus.Fields{
				"entry_index": i,
				"entry":       truncate(string(entry), 200),
			}).WithError(normErr).Warn("Skipping malformed IPO entry")
			continue
		}

		created, storeErr := s.store(ctx, input)
		if storeErr != nil {
			logger.WithFields(logrus.Fields{
				"entry_index": i,
				"ipo_name":    input.Name,
			}).WithError(storeErr).Error("IPO sync aborted: store write failed")
			return report, shared.WrapError(storeErr, shared.ErrorCategoryDatabase, "STORE_WRITE_FAILED", "IPOService", "FetchAndSyncIPOs", true)
		}
		if created {
			report.Created++
		} else {
			report.Updated++
		}

		logger.WithFields(logrus.Fields{
			"entry_index": i,
			"ipo_name":    input.Name,
			"exchange":    input.Exchange,
			"status":      input.CurrentStatus,
		}).Debug("Stored IPO entry")
	}

	fields := logrus.Fields{
		"fetched": report.Fetched,
		"created": report.Created,
		"updated": report.Updated,
		"skipped": len(report.Skipped),
	}
	if len(sampleErrors) > 0 {
		logger.WithFields(fields).Warn(shared.BuildBatchProcessingErrorSummary(report.Created+report.Updated, len(sampleErrors), sampleErrors))
	} else {
		logger.WithFields(fields).Info("IPO sync completed")
	}
	return report, nil
}

func (s *IPOService) store(ctx context.Context, input models.IPOInput) (bool, error) {
	if s.Strategy == models.SyncUpsert {
		_, created, err := s.Store.UpsertIPO(ctx, input)
		return created, err
	}
	_, err := s.Store.CreateIPO(ctx, input)
	return true, err
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
