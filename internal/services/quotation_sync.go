package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/localnerve/benchtop/internal/config"
	"github.com/localnerve/benchtop/internal/docsync"
	"github.com/localnerve/benchtop/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/hints"
)

// Outcomes of syncing one quotation
const (
	SyncSynced  = "synced"
	SyncSkipped = "skipped"
	SyncFailed  = "failed"
)

// SyncDetail reports what happened to one quotation
type SyncDetail struct {
	QuotationID uint   `json:"quotation_id"`
	Number      string `json:"number"`
	Outcome     string `json:"outcome"`
	Path        string `json:"path,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// SyncSummary reduces a quotation sync run
type SyncSummary struct {
	Synced  int          `json:"synced"`
	Skipped int          `json:"skipped"`
	Failed  int          `json:"failed"`
	Details []SyncDetail `json:"details"`
}

// QuotationSyncService uploads quotations the remote store never received
type QuotationSyncService struct {
	DB     *gorm.DB
	Sync   *docsync.Synchronizer
	Logger logrus.FieldLogger
}

// NewQuotationSyncService creates the service
func NewQuotationSyncService(db *gorm.DB, sync *docsync.Synchronizer, logger logrus.FieldLogger) *QuotationSyncService {
	return &QuotationSyncService{DB: db, Sync: sync, Logger: logger}
}

// SyncMissing resyncs live quotations without a remote path, or only the
// given one. Quotations without a local file are skipped.
func (s *QuotationSyncService) SyncMissing(ctx context.Context, quotationID *uint) (*SyncSummary, error) {
	query := s.DB.WithContext(ctx).Model(&models.Quotation{})
	if s.DB.Dialector.Name() == "mysql" {
		query = query.Clauses(hints.UseIndex("idx_quotations_deleted_at"))
	}
	if quotationID != nil {
		query = query.Where("id = ?", *quotationID)
	} else {
		query = query.Where("nextcloud_path IS NULL")
	}

	var quotations []models.Quotation
	if err := query.Order("id").Find(&quotations).Error; err != nil {
		return nil, err
	}
	if quotationID != nil && len(quotations) == 0 {
		return nil, fmt.Errorf("quotation %d: %w", *quotationID, ErrNotFound)
	}

	summary := &SyncSummary{Details: make([]SyncDetail, 0, len(quotations))}
	for i := range quotations {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		detail := s.syncOne(ctx, &quotations[i])
		switch detail.Outcome {
		case SyncSynced:
			summary.Synced++
		case SyncSkipped:
			summary.Skipped++
		default:
			summary.Failed++
		}
		summary.Details = append(summary.Details, detail)
	}

	s.Logger.WithFields(logrus.Fields{
		"synced":  summary.Synced,
		"skipped": summary.Skipped,
		"failed":  summary.Failed,
	}).Info("Quotation sync finished")

	return summary, nil
}

func (s *QuotationSyncService) syncOne(ctx context.Context, q *models.Quotation) SyncDetail {
	detail := SyncDetail{QuotationID: q.ID, Number: q.Number}

	if q.StoredPath() != "" {
		detail.Outcome = SyncSkipped
		detail.Path = q.StoredPath()
		detail.Reason = "already synced"
		return detail
	}
	if !q.HasLocalFile() {
		detail.Outcome = SyncSkipped
		detail.Reason = "no local file"
		return detail
	}
	if !s.Sync.Storage().Exists(*q.FilePath) {
		detail.Outcome = SyncSkipped
		detail.Reason = fmt.Sprintf("local file %s missing", *q.FilePath)
		return detail
	}

	if err := s.Sync.Resync(ctx, models.KindQuotation, q.ID); err != nil {
		detail.Outcome = SyncFailed
		detail.Reason = err.Error()
		config.LogError(s.Logger, "services", "SyncMissing", "resync", logrus.Fields{
			"quotationId": q.ID,
			"number":      q.Number,
		}, err)
		return detail
	}

	var synced models.Quotation
	err := s.DB.WithContext(ctx).Select("id", "nextcloud_path").First(&synced, q.ID).Error
	switch {
	case err == nil && synced.StoredPath() != "":
		detail.Outcome = SyncSynced
		detail.Path = synced.StoredPath()
	case err == nil:
		detail.Outcome = SyncFailed
		detail.Reason = "remote path not recorded"
	case errors.Is(err, gorm.ErrRecordNotFound):
		detail.Outcome = SyncSkipped
		detail.Reason = "deleted during sync"
	default:
		detail.Outcome = SyncFailed
		detail.Reason = err.Error()
	}
	return detail
}
