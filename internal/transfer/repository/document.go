// Package repository persists inventory transfer documents, their lines, and
// the per-document status history.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/stockbridge/stockbridge-backend/internal/docflow"
	"github.com/stockbridge/stockbridge-backend/pkg/database"
	"github.com/stockbridge/stockbridge-backend/pkg/errors"
)

// Document is an inventory transfer executed against a transfer request.
type Document struct {
	ID                    string     `db:"id" json:"id"`
	DocNumber             string     `db:"doc_number" json:"doc_number"`
	TransferRequestNumber int        `db:"transfer_request_number" json:"transfer_request_number"`
	FromWarehouse         string     `db:"from_warehouse" json:"from_warehouse"`
	ToWarehouse           string     `db:"to_warehouse" json:"to_warehouse"`
	Status                string     `db:"status" json:"status"`
	OwnerID               string     `db:"owner_id" json:"owner_id"`
	Notes                 *string    `db:"notes" json:"notes,omitempty"`
	QCApproverID          *string    `db:"qc_approver_id" json:"qc_approver_id,omitempty"`
	QCApprovedAt          *time.Time `db:"qc_approved_at" json:"qc_approved_at,omitempty"`
	QCNotes               *string    `db:"qc_notes" json:"qc_notes,omitempty"`
	RejectionReason       *string    `db:"rejection_reason" json:"rejection_reason,omitempty"`
	SAPDocumentNumber     *string    `db:"sap_document_number" json:"sap_document_number,omitempty"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`

	Lines []Line `db:"-" json:"lines,omitempty"`
}

// Line is a transferred item.
type Line struct {
	ID          string          `db:"id" json:"id"`
	DocumentID  string          `db:"document_id" json:"document_id"`
	ItemCode    string          `db:"item_code" json:"item_code"`
	ItemName    string          `db:"item_name" json:"item_name"`
	Quantity    decimal.Decimal `db:"quantity" json:"quantity"`
	UoMCode     string          `db:"uom_code" json:"uom_code"`
	BatchNumber *string         `db:"batch_number" json:"batch_number,omitempty"`
	FromBin     string          `db:"from_bin" json:"from_bin"`
	ToBin       string          `db:"to_bin" json:"to_bin"`
	QCStatus    string          `db:"qc_status" json:"qc_status"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// HistoryEntry is one recorded status transition.
type HistoryEntry struct {
	ID             string    `db:"id" json:"id"`
	DocumentID     string    `db:"document_id" json:"document_id"`
	PreviousStatus string    `db:"previous_status" json:"previous_status"`
	NewStatus      string    `db:"new_status" json:"new_status"`
	ActorID        string    `db:"actor_id" json:"actor_id"`
	Notes          *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// StatusUpdate is the persisted effect of a workflow transition. Every
// transition also appends a history row.
type StatusUpdate struct {
	Previous        docflow.Status
	Status          docflow.Status
	LineStatus      *docflow.LineStatus
	ActorID         string
	Notes           *string
	QCApproverID    *string
	QCApprovedAt    *time.Time
	QCNotes         *string
	RejectionReason *string
	ClearQC         bool
	ClearRejection  bool
	ClearPosted     bool
}

// Repository persists transfer documents.
type Repository struct {
	db *database.DB
}

// NewRepository creates a transfer repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new draft document with its initial history row.
func (r *Repository) Create(ctx context.Context, doc *Document) error {
	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO transfer_documents (
				id, doc_number, transfer_request_number, from_warehouse, to_warehouse,
				status, owner_id, notes, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
			RETURNING created_at, updated_at`

		err := tx.QueryRowxContext(ctx, query,
			doc.ID, doc.DocNumber, doc.TransferRequestNumber, doc.FromWarehouse,
			doc.ToWarehouse, doc.Status, doc.OwnerID, doc.Notes,
		).Scan(&doc.CreatedAt, &doc.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, "DB_ERROR", "failed to create transfer document", 500)
		}

		return insertHistory(ctx, tx, doc.ID, "", doc.Status, doc.OwnerID, nil)
	})
}

// GetByID loads a document with its lines.
func (r *Repository) GetByID(ctx context.Context, id string) (*Document, error) {
	var doc Document
	err := r.db.GetContext(ctx, &doc, `SELECT * FROM transfer_documents WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("transfer document")
	}
	if err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "failed to load transfer document", 500)
	}

	err = r.db.SelectContext(ctx, &doc.Lines,
		`SELECT * FROM transfer_lines WHERE document_id = $1 ORDER BY created_at`, id)
	if err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "failed to load transfer lines", 500)
	}
	return &doc, nil
}

// List returns documents owned by ownerID, or every document when all is set.
func (r *Repository) List(ctx context.Context, ownerID string, all bool) ([]Document, error) {
	docs := []Document{}

	var err error
	if all {
		err = r.db.SelectContext(ctx, &docs,
			`SELECT * FROM transfer_documents ORDER BY created_at DESC`)
	} else {
		err = r.db.SelectContext(ctx, &docs,
			`SELECT * FROM transfer_documents WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "failed to list transfer documents", 500)
	}
	return docs, nil
}

// History returns the status transitions of a document, oldest first.
func (r *Repository) History(ctx context.Context, documentID string) ([]HistoryEntry, error) {
	entries := []HistoryEntry{}
	err := r.db.SelectContext(ctx, &entries,
		`SELECT * FROM transfer_status_history WHERE document_id = $1 ORDER BY created_at`, documentID)
	if err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "failed to load status history", 500)
	}
	return entries, nil
}

// AddLine inserts a line.
func (r *Repository) AddLine(ctx context.Context, line *Line) error {
	query := `
		INSERT INTO transfer_lines (
			id, document_id, item_code, item_name, quantity, uom_code,
			batch_number, from_bin, to_bin, qc_status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		line.ID, line.DocumentID, line.ItemCode, line.ItemName, line.Quantity,
		line.UoMCode, line.BatchNumber, line.FromBin, line.ToBin, line.QCStatus,
	).Scan(&line.CreatedAt, &line.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "DB_ERROR", "failed to add transfer line", 500)
	}
	return nil
}

// GetLine loads a single line of a document.
func (r *Repository) GetLine(ctx context.Context, documentID, lineID string) (*Line, error) {
	var line Line
	err := r.db.GetContext(ctx, &line,
		`SELECT * FROM transfer_lines WHERE id = $1 AND document_id = $2`, lineID, documentID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("transfer line")
	}
	if err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "failed to load transfer line", 500)
	}
	return &line, nil
}

// UpdateLine updates the mutable fields of a line.
func (r *Repository) UpdateLine(ctx context.Context, line *Line) error {
	query := `
		UPDATE transfer_lines
		SET quantity = $3, batch_number = $4, from_bin = $5, to_bin = $6, updated_at = NOW()
		WHERE id = $1 AND document_id = $2`

	result, err := r.db.ExecContext(ctx, query,
		line.ID, line.DocumentID, line.Quantity, line.BatchNumber, line.FromBin, line.ToBin)
	if err != nil {
		return errors.Wrap(err, "DB_ERROR", "failed to update transfer line", 500)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.NotFound("transfer line")
	}
	return nil
}

// DeleteLine removes a line.
func (r *Repository) DeleteLine(ctx context.Context, documentID, lineID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM transfer_lines WHERE id = $1 AND document_id = $2`, lineID, documentID)
	if err != nil {
		return errors.Wrap(err, "DB_ERROR", "failed to delete transfer line", 500)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.NotFound("transfer line")
	}
	return nil
}

// SumTransferred returns the total quantity already recorded for an item
// across all non-rejected transfers of a transfer request.
func (r *Repository) SumTransferred(ctx context.Context, requestNumber int, itemCode string) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(l.quantity), 0)
		FROM transfer_lines l
		JOIN transfer_documents d ON d.id = l.document_id
		WHERE d.transfer_request_number = $1 AND l.item_code = $2 AND d.status != 'rejected'`

	var total decimal.Decimal
	if err := r.db.QueryRowxContext(ctx, query, requestNumber, itemCode).Scan(&total); err != nil {
		return decimal.Zero, errors.Wrap(err, "DB_ERROR", "failed to sum transferred quantity", 500)
	}
	return total, nil
}

// ApplyTransition persists a workflow transition and its history row
// atomically: document status, QC metadata, lockstep line statuses.
func (r *Repository) ApplyTransition(ctx context.Context, documentID string, upd StatusUpdate) error {
	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE transfer_documents
			SET status = $2,
				qc_approver_id = CASE WHEN $3 THEN NULL ELSE COALESCE($4, qc_approver_id) END,
				qc_approved_at = CASE WHEN $3 THEN NULL ELSE COALESCE($5, qc_approved_at) END,
				qc_notes       = CASE WHEN $3 THEN NULL ELSE COALESCE($6, qc_notes) END,
				rejection_reason = CASE WHEN $7 THEN NULL ELSE COALESCE($8, rejection_reason) END,
				sap_document_number = CASE WHEN $9 THEN NULL ELSE sap_document_number END,
				updated_at = NOW()
			WHERE id = $1`

		result, err := tx.ExecContext(ctx, query,
			documentID, upd.Status,
			upd.ClearQC, upd.QCApproverID, upd.QCApprovedAt, upd.QCNotes,
			upd.ClearRejection, upd.RejectionReason, upd.ClearPosted)
		if err != nil {
			return errors.Wrap(err, "DB_ERROR", "failed to update document status", 500)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return errors.NotFound("transfer document")
		}

		if upd.LineStatus != nil {
			_, err = tx.ExecContext(ctx,
				`UPDATE transfer_lines SET qc_status = $2, updated_at = NOW() WHERE document_id = $1`,
				documentID, *upd.LineStatus)
			if err != nil {
				return errors.Wrap(err, "DB_ERROR", "failed to update line statuses", 500)
			}
		}

		return insertHistory(ctx, tx, documentID, string(upd.Previous), string(upd.Status), upd.ActorID, upd.Notes)
	})
}

// SetPosted records the ERP document number; written at most once.
func (r *Repository) SetPosted(ctx context.Context, documentID, sapDocNumber, actorID string) error {
	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE transfer_documents
			SET status = 'posted', sap_document_number = $2, updated_at = NOW()
			WHERE id = $1 AND sap_document_number IS NULL`

		result, err := tx.ExecContext(ctx, query, documentID, sapDocNumber)
		if err != nil {
			return errors.Wrap(err, "DB_ERROR", "failed to record posted document", 500)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return errors.Conflict("document already has an ERP document number")
		}

		return insertHistory(ctx, tx, documentID,
			string(docflow.StatusQCApproved), string(docflow.StatusPosted), actorID, nil)
	})
}

func insertHistory(ctx context.Context, tx *sqlx.Tx, documentID, previous, next, actorID string, notes *string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transfer_status_history (
			id, document_id, previous_status, new_status, actor_id, notes, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		uuid.New().String(), documentID, previous, next, actorID, notes)
	if err != nil {
		return errors.Wrap(err, "DB_ERROR", "failed to record status history", 500)
	}
	return nil
}
