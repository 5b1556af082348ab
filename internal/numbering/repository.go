// Package numbering issues WMS document numbers and external reference
// numbers from database-backed counters. Both counters advance in a single
// statement so concurrent callers can never observe the same value.
package numbering

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stockbridge/stockbridge-backend/pkg/database"
	"github.com/stockbridge/stockbridge-backend/pkg/errors"
)

// Known series types.
const (
	SeriesGoodsReceipt = "GRPO"
	SeriesTransfer     = "TRANSFER"
	SeriesPickList     = "PICKLIST"
)

// Repository issues numbers from the document_number_series and
// external_ref_sequence tables.
type Repository struct {
	db *database.DB
}

// NewRepository creates a numbering repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// NextDocumentNumber advances the counter for the given series and returns
// the formatted number, e.g. "GRPO-2025-0042".
func (r *Repository) NextDocumentNumber(ctx context.Context, documentType string) (string, error) {
	query := `
		UPDATE document_number_series
		SET current_number = current_number + 1, updated_at = NOW()
		WHERE document_type = $1
		RETURNING prefix, current_number, year_suffix`

	var (
		prefix     string
		number     int
		yearSuffix bool
	)
	err := r.db.QueryRowxContext(ctx, query, documentType).Scan(&prefix, &number, &yearSuffix)
	if err == sql.ErrNoRows {
		return "", errors.NotFound(fmt.Sprintf("number series %s", documentType))
	}
	if err != nil {
		return "", errors.Wrap(err, "NUMBER_SERIES_ERROR", "failed to advance number series", 500)
	}

	if yearSuffix {
		return fmt.Sprintf("%s%d-%04d", prefix, time.Now().Year(), number), nil
	}
	return fmt.Sprintf("%s%04d", prefix, number), nil
}

// NextExternalReference advances the per-day sequence and returns the
// external reference for ERP documents, e.g. "EXT-REF-20250210-003".
func (r *Repository) NextExternalReference(ctx context.Context, day time.Time) (string, error) {
	dateKey := day.Format("20060102")

	query := `
		INSERT INTO external_ref_sequence (date_key, sequence_number)
		VALUES ($1, 1)
		ON CONFLICT (date_key)
		DO UPDATE SET sequence_number = external_ref_sequence.sequence_number + 1
		RETURNING sequence_number`

	var sequence int
	if err := r.db.QueryRowxContext(ctx, query, dateKey).Scan(&sequence); err != nil {
		return "", errors.Wrap(err, "NUMBER_SERIES_ERROR", "failed to advance external reference sequence", 500)
	}

	return fmt.Sprintf("EXT-REF-%s-%03d", dateKey, sequence), nil
}
