// Package service implements the goods receipt workflow: drafting receipts
// against purchase orders, quantity reconciliation, QC approval, and posting
// to the ERP as purchase delivery notes.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockbridge/stockbridge-backend/internal/docflow"
	"github.com/stockbridge/stockbridge-backend/internal/erp"
	"github.com/stockbridge/stockbridge-backend/internal/numbering"
	"github.com/stockbridge/stockbridge-backend/internal/receipt/repository"
	"github.com/stockbridge/stockbridge-backend/pkg/actor"
	"github.com/stockbridge/stockbridge-backend/pkg/errors"
	"github.com/stockbridge/stockbridge-backend/pkg/logger"
	"github.com/stockbridge/stockbridge-backend/pkg/messaging"
)

// Store is the persistence surface the service needs.
type Store interface {
	Create(ctx context.Context, doc *repository.Document) error
	GetByID(ctx context.Context, id string) (*repository.Document, error)
	List(ctx context.Context, ownerID string, all bool) ([]repository.Document, error)
	AddLine(ctx context.Context, line *repository.Line) error
	GetLine(ctx context.Context, documentID, lineID string) (*repository.Line, error)
	UpdateLine(ctx context.Context, line *repository.Line) error
	DeleteLine(ctx context.Context, documentID, lineID string) error
	SumReceived(ctx context.Context, poNumber int, itemCode string) (decimal.Decimal, error)
	ApplyTransition(ctx context.Context, documentID string, upd repository.StatusUpdate) error
	SetPosted(ctx context.Context, documentID, sapDocNumber, externalRef string) error
}

// ERPGateway is the slice of the ERP client the service uses.
type ERPGateway interface {
	GetPurchaseOrder(ctx context.Context, docNum int) (*erp.SourceDocument, error)
	PostDeliveryNote(ctx context.Context, payload *erp.DeliveryNotePayload) erp.PostResult
}

// DocumentBuilder assembles ERP payloads.
type DocumentBuilder interface {
	BuildDeliveryNote(ctx context.Context, po *erp.SourceDocument, lines []erp.BuildLine, externalRef, comments string) (*erp.DeliveryNotePayload, error)
}

// NumberSource issues document numbers and external references.
type NumberSource interface {
	NextDocumentNumber(ctx context.Context, documentType string) (string, error)
	NextExternalReference(ctx context.Context, day time.Time) (string, error)
}

// EventPublisher emits document lifecycle events.
type EventPublisher interface {
	StatusChanged(ctx context.Context, eventType string, event messaging.DocumentStatusChangedEvent)
	Posted(ctx context.Context, event messaging.DocumentPostedEvent)
}

// Service orchestrates the goods receipt workflow.
type Service struct {
	store   Store
	erp     ERPGateway
	builder DocumentBuilder
	numbers NumberSource
	events  EventPublisher
	logger  *logger.Logger
}

// NewService creates a receipt service.
func NewService(store Store, gateway ERPGateway, builder DocumentBuilder, numbers NumberSource, events EventPublisher, log *logger.Logger) *Service {
	return &Service{
		store:   store,
		erp:     gateway,
		builder: builder,
		numbers: numbers,
		events:  events,
		logger:  log.WithComponent("receipt-service"),
	}
}

// CreateRequest creates a receipt draft against a purchase order.
type CreateRequest struct {
	PONumber int    `json:"po_number" validate:"required,gt=0"`
	Notes    string `json:"notes" validate:"max=500"`
}

// AddLineRequest adds a received item to a draft.
type AddLineRequest struct {
	ItemCode    string          `json:"item_code" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity" validate:"required"`
	BinLocation string          `json:"bin_location"`
	BatchNumber string          `json:"batch_number"`
	ExpiryDate  string          `json:"expiry_date"`
}

// UpdateLineRequest updates a line on a draft.
type UpdateLineRequest struct {
	Quantity    decimal.Decimal `json:"quantity" validate:"required"`
	BinLocation string          `json:"bin_location"`
	BatchNumber string          `json:"batch_number"`
	ExpiryDate  string          `json:"expiry_date"`
}

// Create validates the purchase order and opens a draft receipt. Multiple
// open receipts against the same purchase order are allowed; reconciliation
// happens per line against cumulative received quantities.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*repository.Document, error) {
	a := actor.FromContext(ctx)
	if a == nil {
		return nil, errors.Unauthorized("authentication required")
	}

	po, err := s.erp.GetPurchaseOrder(ctx, req.PONumber)
	if err != nil {
		return nil, err
	}
	if po == nil {
		return nil, errors.NotFound(fmt.Sprintf("purchase order %d", req.PONumber))
	}

	hasOpenLine := false
	for _, line := range po.Lines {
		if docflow.ReceiptEligible(line.Status, line.OpenQuantity, line.Quantity) {
			hasOpenLine = true
			break
		}
	}
	if !hasOpenLine {
		return nil, errors.BadRequest(fmt.Sprintf("purchase order %d has no open lines", req.PONumber))
	}

	docNumber, err := s.numbers.NextDocumentNumber(ctx, numbering.SeriesGoodsReceipt)
	if err != nil {
		return nil, err
	}

	doc := &repository.Document{
		ID:           uuid.New().String(),
		DocNumber:    docNumber,
		PONumber:     req.PONumber,
		SupplierCode: po.CardCode,
		SupplierName: po.CardName,
		Status:       string(docflow.StatusDraft),
		OwnerID:      a.ID,
	}
	if req.Notes != "" {
		doc.Notes = &req.Notes
	}

	if err := s.store.Create(ctx, doc); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("document_id", doc.ID).
		Str("doc_number", doc.DocNumber).
		Int("po_number", doc.PONumber).
		Msg("receipt draft created")

	s.events.StatusChanged(ctx, messaging.EventReceiptCreated, s.statusEvent(doc, "", docflow.StatusDraft, a, ""))
	return doc, nil
}

// Get loads a document. Owners see their own; QC, managers and admins see any.
func (s *Service) Get(ctx context.Context, id string) (*repository.Document, error) {
	a := actor.FromContext(ctx)
	if a == nil {
		return nil, errors.Unauthorized("authentication required")
	}

	doc, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.Owns(doc.OwnerID) && !a.CanApproveQC() {
		return nil, errors.Forbidden("you do not have access to this document")
	}
	return doc, nil
}

// List returns the caller's documents, or every document for managers and QC.
func (s *Service) List(ctx context.Context) ([]repository.Document, error) {
	a := actor.FromContext(ctx)
	if a == nil {
		return nil, errors.Unauthorized("authentication required")
	}
	return s.store.List(ctx, a.ID, a.CanApproveQC())
}

// AddLine reconciles the requested quantity against the purchase order and
// records the received item with a generated barcode.
func (s *Service) AddLine(ctx context.Context, documentID string, req AddLineRequest) (*repository.Line, error) {
	a := actor.FromContext(ctx)
	doc, err := s.editableDocument(ctx, a, documentID)
	if err != nil {
		return nil, err
	}

	po, err := s.erp.GetPurchaseOrder(ctx, doc.PONumber)
	if err != nil {
		return nil, err
	}
	if po == nil {
		return nil, errors.NotFound(fmt.Sprintf("purchase order %d", doc.PONumber))
	}

	poLine := po.LineByItemCode(req.ItemCode)
	if poLine == nil {
		return nil, errors.BadRequest(fmt.Sprintf("item %s is not on purchase order %d", req.ItemCode, doc.PONumber))
	}
	if !docflow.ReceiptEligible(poLine.Status, poLine.OpenQuantity, poLine.Quantity) {
		return nil, errors.BadRequest(fmt.Sprintf("purchase order line for %s is closed", req.ItemCode))
	}

	received, err := s.store.SumReceived(ctx, doc.PONumber, req.ItemCode)
	if err != nil {
		return nil, err
	}
	if err := docflow.ValidateReceiptQuantity(req.Quantity, poLine.Quantity, poLine.OpenQuantity, received); err != nil {
		return nil, err
	}

	line := &repository.Line{
		ID:            uuid.New().String(),
		DocumentID:    doc.ID,
		ItemCode:      req.ItemCode,
		ItemName:      poLine.Description,
		Quantity:      req.Quantity,
		UoMCode:       poLine.UoMCode,
		WarehouseCode: poLine.WarehouseCode,
		BinLocation:   req.BinLocation,
		Barcode:       generateBarcode(req.ItemCode),
		QCStatus:      string(docflow.LinePending),
	}
	if req.BatchNumber != "" {
		line.BatchNumber = &req.BatchNumber
	}
	if req.ExpiryDate != "" {
		line.ExpiryDate = &req.ExpiryDate
	}

	if err := s.store.AddLine(ctx, line); err != nil {
		return nil, err
	}
	return line, nil
}

// UpdateLine revalidates the new quantity against the purchase order,
// excluding the line's own previous quantity from the cumulative total.
func (s *Service) UpdateLine(ctx context.Context, documentID, lineID string, req UpdateLineRequest) (*repository.Line, error) {
	a := actor.FromContext(ctx)
	doc, err := s.editableDocument(ctx, a, documentID)
	if err != nil {
		return nil, err
	}

	line, err := s.store.GetLine(ctx, documentID, lineID)
	if err != nil {
		return nil, err
	}

	po, err := s.erp.GetPurchaseOrder(ctx, doc.PONumber)
	if err != nil {
		return nil, err
	}
	if po == nil {
		return nil, errors.NotFound(fmt.Sprintf("purchase order %d", doc.PONumber))
	}
	poLine := po.LineByItemCode(line.ItemCode)
	if poLine == nil {
		return nil, errors.BadRequest(fmt.Sprintf("item %s is not on purchase order %d", line.ItemCode, doc.PONumber))
	}

	received, err := s.store.SumReceived(ctx, doc.PONumber, line.ItemCode)
	if err != nil {
		return nil, err
	}
	received = received.Sub(line.Quantity)
	if err := docflow.ValidateReceiptQuantity(req.Quantity, poLine.Quantity, poLine.OpenQuantity, received); err != nil {
		return nil, err
	}

	line.Quantity = req.Quantity
	line.BinLocation = req.BinLocation
	line.BatchNumber = nil
	if req.BatchNumber != "" {
		line.BatchNumber = &req.BatchNumber
	}
	line.ExpiryDate = nil
	if req.ExpiryDate != "" {
		line.ExpiryDate = &req.ExpiryDate
	}

	if err := s.store.UpdateLine(ctx, line); err != nil {
		return nil, err
	}
	return line, nil
}

// DeleteLine removes a line from a draft.
func (s *Service) DeleteLine(ctx context.Context, documentID, lineID string) error {
	a := actor.FromContext(ctx)
	if _, err := s.editableDocument(ctx, a, documentID); err != nil {
		return err
	}
	return s.store.DeleteLine(ctx, documentID, lineID)
}

// Submit moves a draft to submitted.
func (s *Service) Submit(ctx context.Context, documentID string) (*repository.Document, error) {
	return s.transition(ctx, documentID, docflow.StatusSubmitted, "", messaging.EventReceiptSubmitted, nil)
}

// Approve marks the document QC approved, approves every line, and posts the
// resulting purchase delivery note to the ERP. A post failure leaves the
// document qc_approved so the post can be retried.
func (s *Service) Approve(ctx context.Context, documentID, notes string) (*repository.Document, error) {
	a := actor.FromContext(ctx)
	if a == nil {
		return nil, errors.Unauthorized("authentication required")
	}

	doc, err := s.store.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}

	res, err := docflow.Transition(workflowState(doc), docflow.StatusQCApproved, a, "")
	if err != nil {
		return nil, err
	}

	now := time.Now()
	upd := repository.StatusUpdate{
		Status:       res.Status,
		LineStatus:   res.LineStatus,
		QCApproverID: &a.ID,
		QCApprovedAt: &now,
	}
	if notes != "" {
		upd.QCNotes = &notes
	}
	if err := s.store.ApplyTransition(ctx, doc.ID, upd); err != nil {
		return nil, err
	}

	s.events.StatusChanged(ctx, messaging.EventReceiptApproved,
		s.statusEvent(doc, docflow.Status(doc.Status), docflow.StatusQCApproved, a, ""))

	doc.Status = string(docflow.StatusQCApproved)
	for i := range doc.Lines {
		doc.Lines[i].QCStatus = string(docflow.LineApproved)
	}

	if err := s.post(ctx, doc, a); err != nil {
		return doc, err
	}
	return s.store.GetByID(ctx, documentID)
}

// post builds and posts the purchase delivery note for an approved document.
func (s *Service) post(ctx context.Context, doc *repository.Document, a *actor.Actor) error {
	po, err := s.erp.GetPurchaseOrder(ctx, doc.PONumber)
	if err != nil {
		return err
	}
	if po == nil {
		return errors.NotFound(fmt.Sprintf("purchase order %d", doc.PONumber))
	}

	externalRef, err := s.numbers.NextExternalReference(ctx, time.Now())
	if err != nil {
		return err
	}

	comments := ""
	if doc.Notes != nil {
		comments = *doc.Notes
	}
	payload, err := s.builder.BuildDeliveryNote(ctx, po, buildLines(doc.Lines), externalRef, comments)
	if err != nil {
		return err
	}

	result := s.erp.PostDeliveryNote(ctx, payload)
	if !result.Success {
		s.logger.Error().
			Str("document_id", doc.ID).
			Str("error", result.Error).
			Msg("erp post failed, document stays qc_approved")
		return errors.ERPUnavailable("failed to post delivery note: " + result.Error)
	}

	if err := s.store.SetPosted(ctx, doc.ID, result.DocumentNumber, externalRef); err != nil {
		return err
	}

	s.events.Posted(ctx, messaging.DocumentPostedEvent{
		DocumentID:        doc.ID,
		DocumentType:      string(docflow.KindReceipt),
		DocNumber:         doc.DocNumber,
		ERPDocEntry:       result.DocEntry,
		ERPDocNumber:      result.DocumentNumber,
		ExternalReference: externalRef,
		ActorID:           a.ID,
	})
	return nil
}

// Reject moves a submitted document to rejected with a mandatory reason.
func (s *Service) Reject(ctx context.Context, documentID, reason string) (*repository.Document, error) {
	return s.transition(ctx, documentID, docflow.StatusRejected, reason, messaging.EventReceiptRejected, func(upd *repository.StatusUpdate) {
		upd.RejectionReason = &reason
	})
}

// Reopen returns a rejected document to draft for correction.
func (s *Service) Reopen(ctx context.Context, documentID string) (*repository.Document, error) {
	return s.transition(ctx, documentID, docflow.StatusDraft, "", messaging.EventReceiptReopened, nil)
}

// Preview builds the exact delivery note payload that approval would post,
// without touching the ERP or consuming an external reference. Lines are
// treated as approved for the preview.
func (s *Service) Preview(ctx context.Context, documentID string) (*erp.DeliveryNotePayload, error) {
	a := actor.FromContext(ctx)
	if a == nil {
		return nil, errors.Unauthorized("authentication required")
	}

	doc, err := s.store.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !a.Owns(doc.OwnerID) && !a.CanApproveQC() {
		return nil, errors.Forbidden("you do not have access to this document")
	}

	po, err := s.erp.GetPurchaseOrder(ctx, doc.PONumber)
	if err != nil {
		return nil, err
	}
	if po == nil {
		return nil, errors.NotFound(fmt.Sprintf("purchase order %d", doc.PONumber))
	}

	lines := buildLines(doc.Lines)
	for i := range lines {
		lines[i].QCStatus = docflow.LineApproved
	}

	comments := ""
	if doc.Notes != nil {
		comments = *doc.Notes
	}
	return s.builder.BuildDeliveryNote(ctx, po, lines, "EXT-REF-PREVIEW", comments)
}

// transition runs a generic workflow transition and publishes its event.
func (s *Service) transition(ctx context.Context, documentID string, to docflow.Status, reason string, eventType string, decorate func(*repository.StatusUpdate)) (*repository.Document, error) {
	a := actor.FromContext(ctx)
	if a == nil {
		return nil, errors.Unauthorized("authentication required")
	}

	doc, err := s.store.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}

	res, err := docflow.Transition(workflowState(doc), to, a, reason)
	if err != nil {
		return nil, err
	}

	upd := repository.StatusUpdate{
		Status:         res.Status,
		LineStatus:     res.LineStatus,
		ClearQC:        res.ClearQC,
		ClearRejection: res.ClearRejection,
	}
	if decorate != nil {
		decorate(&upd)
	}

	if err := s.store.ApplyTransition(ctx, doc.ID, upd); err != nil {
		return nil, err
	}

	s.events.StatusChanged(ctx, eventType, s.statusEvent(doc, docflow.Status(doc.Status), to, a, reason))
	return s.store.GetByID(ctx, documentID)
}

func (s *Service) statusEvent(doc *repository.Document, from, to docflow.Status, a *actor.Actor, reason string) messaging.DocumentStatusChangedEvent {
	return messaging.DocumentStatusChangedEvent{
		DocumentID:   doc.ID,
		DocumentType: string(docflow.KindReceipt),
		DocNumber:    doc.DocNumber,
		FromStatus:   string(from),
		ToStatus:     string(to),
		ActorID:      a.ID,
		ActorName:    a.Username,
		Reason:       reason,
	}
}

func (s *Service) editableDocument(ctx context.Context, a *actor.Actor, documentID string) (*repository.Document, error) {
	if a == nil {
		return nil, errors.Unauthorized("authentication required")
	}

	doc, err := s.store.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !a.Owns(doc.OwnerID) && !a.CanManage() {
		return nil, errors.Forbidden("only the document owner may modify it")
	}
	if !docflow.Editable(docflow.Status(doc.Status)) {
		return nil, errors.Conflict(fmt.Sprintf("document cannot be modified in status %s", doc.Status))
	}
	return doc, nil
}

func workflowState(doc *repository.Document) docflow.DocumentState {
	return docflow.DocumentState{
		Kind:      docflow.KindReceipt,
		Status:    docflow.Status(doc.Status),
		OwnerID:   doc.OwnerID,
		LineCount: len(doc.Lines),
	}
}

func buildLines(lines []repository.Line) []erp.BuildLine {
	out := make([]erp.BuildLine, 0, len(lines))
	for _, l := range lines {
		bl := erp.BuildLine{
			ItemCode:    l.ItemCode,
			Quantity:    l.Quantity,
			BinLocation: l.BinLocation,
			QCStatus:    docflow.LineStatus(l.QCStatus),
		}
		if l.BatchNumber != nil {
			bl.BatchNumber = *l.BatchNumber
		}
		if l.ExpiryDate != nil {
			bl.ExpiryDate = *l.ExpiryDate
		}
		out = append(out, bl)
	}
	return out
}

// generateBarcode produces the warehouse barcode printed on received stock.
func generateBarcode(itemCode string) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("WMS-%s-%s", itemCode, strings.ToUpper(suffix))
}
