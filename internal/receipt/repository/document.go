// Package repository persists goods receipt documents and their lines.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/stockbridge/stockbridge-backend/internal/docflow"
	"github.com/stockbridge/stockbridge-backend/pkg/database"
	"github.com/stockbridge/stockbridge-backend/pkg/errors"
)

// Document is a goods receipt against a purchase order.
type Document struct {
	ID                string     `db:"id" json:"id"`
	DocNumber         string     `db:"doc_number" json:"doc_number"`
	PONumber          int        `db:"po_number" json:"po_number"`
	SupplierCode      string     `db:"supplier_code" json:"supplier_code"`
	SupplierName      string     `db:"supplier_name" json:"supplier_name"`
	Status            string     `db:"status" json:"status"`
	OwnerID           string     `db:"owner_id" json:"owner_id"`
	Notes             *string    `db:"notes" json:"notes,omitempty"`
	QCApproverID      *string    `db:"qc_approver_id" json:"qc_approver_id,omitempty"`
	QCApprovedAt      *time.Time `db:"qc_approved_at" json:"qc_approved_at,omitempty"`
	QCNotes           *string    `db:"qc_notes" json:"qc_notes,omitempty"`
	RejectionReason   *string    `db:"rejection_reason" json:"rejection_reason,omitempty"`
	SAPDocumentNumber *string    `db:"sap_document_number" json:"sap_document_number,omitempty"`
	ExternalReference *string    `db:"external_reference" json:"external_reference,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`

	Lines []Line `db:"-" json:"lines,omitempty"`
}

// Line is a received item on a goods receipt.
type Line struct {
	ID            string          `db:"id" json:"id"`
	DocumentID    string          `db:"document_id" json:"document_id"`
	ItemCode      string          `db:"item_code" json:"item_code"`
	ItemName      string          `db:"item_name" json:"item_name"`
	Quantity      decimal.Decimal `db:"quantity" json:"quantity"`
	UoMCode       string          `db:"uom_code" json:"uom_code"`
	WarehouseCode string          `db:"warehouse_code" json:"warehouse_code"`
	BinLocation   string          `db:"bin_location" json:"bin_location"`
	BatchNumber   *string         `db:"batch_number" json:"batch_number,omitempty"`
	ExpiryDate    *string         `db:"expiry_date" json:"expiry_date,omitempty"`
	Barcode       string          `db:"barcode" json:"barcode"`
	QCStatus      string          `db:"qc_status" json:"qc_status"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// StatusUpdate is the persisted effect of a workflow transition.
type StatusUpdate struct {
	Status          docflow.Status
	LineStatus      *docflow.LineStatus
	QCApproverID    *string
	QCApprovedAt    *time.Time
	QCNotes         *string
	RejectionReason *string
	ClearQC         bool
	ClearRejection  bool
}

// Repository persists receipt documents.
type Repository struct {
	db *database.DB
}

// NewRepository creates a receipt repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new draft document.
func (r *Repository) Create(ctx context.Context, doc *Document) error {
	query := `
		INSERT INTO grpo_documents (
			id, doc_number, po_number, supplier_code, supplier_name,
			status, owner_id, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		doc.ID, doc.DocNumber, doc.PONumber, doc.SupplierCode, doc.SupplierName,
		doc.Status, doc.OwnerID, doc.Notes,
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "DB_ERROR", "failed to create receipt document", 500)
	}
	return nil
}

// GetByID loads a document with its lines.
func (r *Repository) GetByID(ctx context.Context, id string) (*Document, error) {
	var doc Document
	err := r.db.GetContext(ctx, &doc, `SELECT * FROM grpo_documents WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("receipt document")
	}
	if err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "failed to load receipt document", 500)
	}

	err = r.db.SelectContext(ctx, &doc.Lines,
		`SELECT * FROM grpo_lines WHERE document_id = $1 ORDER BY created_at`, id)
	if err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "failed to load receipt lines", 500)
	}

	return &doc, nil
}

// List returns documents owned by ownerID, or every document when all is set.
func (r *Repository) List(ctx context.Context, ownerID string, all bool) ([]Document, error) {
	docs := []Document{}

	var err error
	if all {
		err = r.db.SelectContext(ctx, &docs,
			`SELECT * FROM grpo_documents ORDER BY created_at DESC`)
	} else {
		err = r.db.SelectContext(ctx, &docs,
			`SELECT * FROM grpo_documents WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "failed to list receipt documents", 500)
	}
	return docs, nil
}

// AddLine inserts a line.
func (r *Repository) AddLine(ctx context.Context, line *Line) error {
	query := `
		INSERT INTO grpo_lines (
			id, document_id, item_code, item_name, quantity, uom_code,
			warehouse_code, bin_location, batch_number, expiry_date,
			barcode, qc_status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		line.ID, line.DocumentID, line.ItemCode, line.ItemName, line.Quantity,
		line.UoMCode, line.WarehouseCode, line.BinLocation, line.BatchNumber,
		line.ExpiryDate, line.Barcode, line.QCStatus,
	).Scan(&line.CreatedAt, &line.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "DB_ERROR", "failed to add receipt line", 500)
	}
	return nil
}

// GetLine loads a single line of a document.
func (r *Repository) GetLine(ctx context.Context, documentID, lineID string) (*Line, error) {
	var line Line
	err := r.db.GetContext(ctx, &line,
		`SELECT * FROM grpo_lines WHERE id = $1 AND document_id = $2`, lineID, documentID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("receipt line")
	}
	if err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "failed to load receipt line", 500)
	}
	return &line, nil
}

// UpdateLine updates the mutable fields of a line.
func (r *Repository) UpdateLine(ctx context.Context, line *Line) error {
	query := `
		UPDATE grpo_lines
		SET quantity = $3, bin_location = $4, batch_number = $5,
			expiry_date = $6, updated_at = NOW()
		WHERE id = $1 AND document_id = $2`

	result, err := r.db.ExecContext(ctx, query,
		line.ID, line.DocumentID, line.Quantity, line.BinLocation,
		line.BatchNumber, line.ExpiryDate)
	if err != nil {
		return errors.Wrap(err, "DB_ERROR", "failed to update receipt line", 500)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.NotFound("receipt line")
	}
	return nil
}

// DeleteLine removes a line.
func (r *Repository) DeleteLine(ctx context.Context, documentID, lineID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM grpo_lines WHERE id = $1 AND document_id = $2`, lineID, documentID)
	if err != nil {
		return errors.Wrap(err, "DB_ERROR", "failed to delete receipt line", 500)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.NotFound("receipt line")
	}
	return nil
}

// SumReceived returns the total quantity already recorded for an item across
// all non-rejected receipts of a purchase order.
func (r *Repository) SumReceived(ctx context.Context, poNumber int, itemCode string) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(l.quantity), 0)
		FROM grpo_lines l
		JOIN grpo_documents d ON d.id = l.document_id
		WHERE d.po_number = $1 AND l.item_code = $2 AND d.status != 'rejected'`

	var total decimal.Decimal
	if err := r.db.QueryRowxContext(ctx, query, poNumber, itemCode).Scan(&total); err != nil {
		return decimal.Zero, errors.Wrap(err, "DB_ERROR", "failed to sum received quantity", 500)
	}
	return total, nil
}

// ApplyTransition persists a workflow transition: the document status, any
// QC metadata change, and the lockstep line status update, atomically.
func (r *Repository) ApplyTransition(ctx context.Context, documentID string, upd StatusUpdate) error {
	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE grpo_documents
			SET status = $2,
				qc_approver_id = CASE WHEN $3 THEN NULL ELSE COALESCE($4, qc_approver_id) END,
				qc_approved_at = CASE WHEN $3 THEN NULL ELSE COALESCE($5, qc_approved_at) END,
				qc_notes       = CASE WHEN $3 THEN NULL ELSE COALESCE($6, qc_notes) END,
				rejection_reason = CASE WHEN $7 THEN NULL ELSE COALESCE($8, rejection_reason) END,
				updated_at = NOW()
			WHERE id = $1`

		result, err := tx.ExecContext(ctx, query,
			documentID, upd.Status,
			upd.ClearQC, upd.QCApproverID, upd.QCApprovedAt, upd.QCNotes,
			upd.ClearRejection, upd.RejectionReason)
		if err != nil {
			return errors.Wrap(err, "DB_ERROR", "failed to update document status", 500)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return errors.NotFound("receipt document")
		}

		if upd.LineStatus != nil {
			_, err = tx.ExecContext(ctx,
				`UPDATE grpo_lines SET qc_status = $2, updated_at = NOW() WHERE document_id = $1`,
				documentID, *upd.LineStatus)
			if err != nil {
				return errors.Wrap(err, "DB_ERROR", "failed to update line statuses", 500)
			}
		}
		return nil
	})
}

// SetPosted records the ERP document number and external reference. The ERP
// number is written at most once; a second attempt is a conflict.
func (r *Repository) SetPosted(ctx context.Context, documentID, sapDocNumber, externalRef string) error {
	query := `
		UPDATE grpo_documents
		SET status = 'posted', sap_document_number = $2, external_reference = $3, updated_at = NOW()
		WHERE id = $1 AND sap_document_number IS NULL`

	result, err := r.db.ExecContext(ctx, query, documentID, sapDocNumber, externalRef)
	if err != nil {
		return errors.Wrap(err, "DB_ERROR", "failed to record posted document", 500)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.Conflict("document already has an ERP document number")
	}
	return nil
}
