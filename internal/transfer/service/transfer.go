// Package service implements the inventory transfer workflow: drafting
// transfers against transfer requests, quantity reconciliation, QC approval,
// and posting stock transfers to the ERP.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockbridge/stockbridge-backend/internal/docflow"
	"github.com/stockbridge/stockbridge-backend/internal/erp"
	"github.com/stockbridge/stockbridge-backend/internal/numbering"
	"github.com/stockbridge/stockbridge-backend/internal/transfer/repository"
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
	History(ctx context.Context, documentID string) ([]repository.HistoryEntry, error)
	AddLine(ctx context.Context, line *repository.Line) error
	GetLine(ctx context.Context, documentID, lineID string) (*repository.Line, error)
	UpdateLine(ctx context.Context, line *repository.Line) error
	DeleteLine(ctx context.Context, documentID, lineID string) error
	SumTransferred(ctx context.Context, requestNumber int, itemCode string) (decimal.Decimal, error)
	ApplyTransition(ctx context.Context, documentID string, upd repository.StatusUpdate) error
	SetPosted(ctx context.Context, documentID, sapDocNumber, actorID string) error
}

// ERPGateway is the slice of the ERP client the service uses.
type ERPGateway interface {
	GetTransferRequest(ctx context.Context, docNum int) (*erp.SourceDocument, error)
	PostStockTransfer(ctx context.Context, payload *erp.StockTransferPayload) erp.PostResult
}

// DocumentBuilder assembles ERP payloads.
type DocumentBuilder interface {
	BuildStockTransfer(ctx context.Context, req *erp.SourceDocument, lines []erp.BuildLine, fromWarehouse, toWarehouse, comments string) (*erp.StockTransferPayload, error)
}

// NumberSource issues document numbers.
type NumberSource interface {
	NextDocumentNumber(ctx context.Context, documentType string) (string, error)
}

// EventPublisher emits document lifecycle events.
type EventPublisher interface {
	StatusChanged(ctx context.Context, eventType string, event messaging.DocumentStatusChangedEvent)
	Posted(ctx context.Context, event messaging.DocumentPostedEvent)
}

// Service orchestrates the inventory transfer workflow.
type Service struct {
	store   Store
	erp     ERPGateway
	builder DocumentBuilder
	numbers NumberSource
	events  EventPublisher
	logger  *logger.Logger
}

// NewService creates a transfer service.
func NewService(store Store, gateway ERPGateway, builder DocumentBuilder, numbers NumberSource, events EventPublisher, log *logger.Logger) *Service {
	return &Service{
		store:   store,
		erp:     gateway,
		builder: builder,
		numbers: numbers,
		events:  events,
		logger:  log.WithComponent("transfer-service"),
	}
}

// CreateRequest opens a transfer draft against a transfer request.
type CreateRequest struct {
	RequestNumber int    `json:"request_number" validate:"required,gt=0"`
	Notes         string `json:"notes" validate:"max=500"`
}

// AddLineRequest adds a transferred item to a draft.
type AddLineRequest struct {
	ItemCode    string          `json:"item_code" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity" validate:"required"`
	BatchNumber string          `json:"batch_number"`
	FromBin     string          `json:"from_bin"`
	ToBin       string          `json:"to_bin"`
}

// UpdateLineRequest updates a line on a draft.
type UpdateLineRequest struct {
	Quantity    decimal.Decimal `json:"quantity" validate:"required"`
	BatchNumber string          `json:"batch_number"`
	FromBin     string          `json:"from_bin"`
	ToBin       string          `json:"to_bin"`
}

// Create validates the transfer request and opens a draft. The source and
// destination warehouses come from the request header.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*repository.Document, error) {
	a := actor.FromContext(ctx)
	if a == nil {
		return nil, errors.Unauthorized("authentication required")
	}

	tr, err := s.erp.GetTransferRequest(ctx, req.RequestNumber)
	if err != nil {
		return nil, err
	}
	if tr == nil {
		return nil, errors.NotFound(fmt.Sprintf("transfer request %d", req.RequestNumber))
	}

	hasOpenLine := false
	for _, line := range tr.Lines {
		if docflow.LineOpen(line.Status, line.OpenQuantity, line.Quantity) {
			hasOpenLine = true
			break
		}
	}
	if !hasOpenLine {
		return nil, errors.BadRequest(fmt.Sprintf("transfer request %d has no open lines", req.RequestNumber))
	}

	docNumber, err := s.numbers.NextDocumentNumber(ctx, numbering.SeriesTransfer)
	if err != nil {
		return nil, err
	}

	doc := &repository.Document{
		ID:                    uuid.New().String(),
		DocNumber:             docNumber,
		TransferRequestNumber: req.RequestNumber,
		FromWarehouse:         tr.FromWarehouse,
		ToWarehouse:           tr.ToWarehouse,
		Status:                string(docflow.StatusDraft),
		OwnerID:               a.ID,
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
		Int("request_number", doc.TransferRequestNumber).
		Msg("transfer draft created")

	s.events.StatusChanged(ctx, messaging.EventTransferCreated, s.statusEvent(doc, "", docflow.StatusDraft, a, ""))
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

// History returns the recorded status transitions of a document.
func (s *Service) History(ctx context.Context, documentID string) ([]repository.HistoryEntry, error) {
	if _, err := s.Get(ctx, documentID); err != nil {
		return nil, err
	}
	return s.store.History(ctx, documentID)
}

// AddLine reconciles the requested quantity against the transfer request and
// records the item to move.
func (s *Service) AddLine(ctx context.Context, documentID string, req AddLineRequest) (*repository.Line, error) {
	a := actor.FromContext(ctx)
	doc, err := s.editableDocument(ctx, a, documentID)
	if err != nil {
		return nil, err
	}

	_, reqLine, err := s.requestLine(ctx, doc.TransferRequestNumber, req.ItemCode)
	if err != nil {
		return nil, err
	}

	transferred, err := s.store.SumTransferred(ctx, doc.TransferRequestNumber, req.ItemCode)
	if err != nil {
		return nil, err
	}
	if err := docflow.ValidateReceiptQuantity(req.Quantity, reqLine.Quantity, reqLine.OpenQuantity, transferred); err != nil {
		return nil, err
	}

	line := &repository.Line{
		ID:         uuid.New().String(),
		DocumentID: doc.ID,
		ItemCode:   req.ItemCode,
		ItemName:   reqLine.Description,
		Quantity:   req.Quantity,
		UoMCode:    reqLine.UoMCode,
		FromBin:    req.FromBin,
		ToBin:      req.ToBin,
		QCStatus:   string(docflow.LinePending),
	}
	if req.BatchNumber != "" {
		line.BatchNumber = &req.BatchNumber
	}

	if err := s.store.AddLine(ctx, line); err != nil {
		return nil, err
	}
	return line, nil
}

// UpdateLine revalidates the new quantity against the transfer request,
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

	_, reqLine, err := s.requestLine(ctx, doc.TransferRequestNumber, line.ItemCode)
	if err != nil {
		return nil, err
	}

	transferred, err := s.store.SumTransferred(ctx, doc.TransferRequestNumber, line.ItemCode)
	if err != nil {
		return nil, err
	}
	transferred = transferred.Sub(line.Quantity)
	if err := docflow.ValidateReceiptQuantity(req.Quantity, reqLine.Quantity, reqLine.OpenQuantity, transferred); err != nil {
		return nil, err
	}

	line.Quantity = req.Quantity
	line.FromBin = req.FromBin
	line.ToBin = req.ToBin
	line.BatchNumber = nil
	if req.BatchNumber != "" {
		line.BatchNumber = &req.BatchNumber
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
	return s.transition(ctx, documentID, docflow.StatusSubmitted, "", messaging.EventTransferSubmitted, nil)
}

// Approve marks the document QC approved, approves every line, and posts the
// resulting stock transfer to the ERP. A post failure leaves the document
// qc_approved so the post can be retried.
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
		Previous:     docflow.Status(doc.Status),
		Status:       res.Status,
		LineStatus:   res.LineStatus,
		ActorID:      a.ID,
		QCApproverID: &a.ID,
		QCApprovedAt: &now,
	}
	if notes != "" {
		upd.QCNotes = &notes
		upd.Notes = &notes
	}
	if err := s.store.ApplyTransition(ctx, doc.ID, upd); err != nil {
		return nil, err
	}

	s.events.StatusChanged(ctx, messaging.EventTransferApproved,
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

// post builds and posts the stock transfer for an approved document.
func (s *Service) post(ctx context.Context, doc *repository.Document, a *actor.Actor) error {
	tr, err := s.erp.GetTransferRequest(ctx, doc.TransferRequestNumber)
	if err != nil {
		return err
	}
	if tr == nil {
		return errors.NotFound(fmt.Sprintf("transfer request %d", doc.TransferRequestNumber))
	}

	comments := ""
	if doc.Notes != nil {
		comments = *doc.Notes
	}
	payload, err := s.builder.BuildStockTransfer(ctx, tr, buildLines(doc.Lines), doc.FromWarehouse, doc.ToWarehouse, comments)
	if err != nil {
		return err
	}

	result := s.erp.PostStockTransfer(ctx, payload)
	if !result.Success {
		s.logger.Error().
			Str("document_id", doc.ID).
			Str("error", result.Error).
			Msg("erp post failed, document stays qc_approved")
		return errors.ERPUnavailable("failed to post stock transfer: " + result.Error)
	}

	if err := s.store.SetPosted(ctx, doc.ID, result.DocumentNumber, a.ID); err != nil {
		return err
	}

	s.events.Posted(ctx, messaging.DocumentPostedEvent{
		DocumentID:   doc.ID,
		DocumentType: string(docflow.KindTransfer),
		DocNumber:    doc.DocNumber,
		ERPDocEntry:  result.DocEntry,
		ERPDocNumber: result.DocumentNumber,
		ActorID:      a.ID,
	})
	return nil
}

// Reject moves a submitted document to rejected with a mandatory reason.
func (s *Service) Reject(ctx context.Context, documentID, reason string) (*repository.Document, error) {
	return s.transition(ctx, documentID, docflow.StatusRejected, reason, messaging.EventTransferRejected, func(upd *repository.StatusUpdate) {
		upd.RejectionReason = &reason
	})
}

// Reopen returns a rejected or posted document to draft for correction. A
// reopened posted transfer loses its ERP document number so a corrected
// version can be posted again.
func (s *Service) Reopen(ctx context.Context, documentID string) (*repository.Document, error) {
	return s.transition(ctx, documentID, docflow.StatusDraft, "", messaging.EventTransferReopened, nil)
}

// Preview builds the exact stock transfer payload that approval would post,
// without touching the ERP. Lines are treated as approved for the preview.
func (s *Service) Preview(ctx context.Context, documentID string) (*erp.StockTransferPayload, error) {
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

	tr, err := s.erp.GetTransferRequest(ctx, doc.TransferRequestNumber)
	if err != nil {
		return nil, err
	}
	if tr == nil {
		return nil, errors.NotFound(fmt.Sprintf("transfer request %d", doc.TransferRequestNumber))
	}

	lines := buildLines(doc.Lines)
	for i := range lines {
		lines[i].QCStatus = docflow.LineApproved
	}

	comments := ""
	if doc.Notes != nil {
		comments = *doc.Notes
	}
	return s.builder.BuildStockTransfer(ctx, tr, lines, doc.FromWarehouse, doc.ToWarehouse, comments)
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
		Previous:       docflow.Status(doc.Status),
		Status:         res.Status,
		LineStatus:     res.LineStatus,
		ActorID:        a.ID,
		ClearQC:        res.ClearQC,
		ClearRejection: res.ClearRejection,
		ClearPosted:    doc.Status == string(docflow.StatusPosted) && res.Status == docflow.StatusDraft,
	}
	if reason != "" {
		upd.Notes = &reason
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
		DocumentType: string(docflow.KindTransfer),
		DocNumber:    doc.DocNumber,
		FromStatus:   string(from),
		ToStatus:     string(to),
		ActorID:      a.ID,
		ActorName:    a.Username,
		Reason:       reason,
	}
}

// requestLine loads the transfer request and the open line for an item.
func (s *Service) requestLine(ctx context.Context, requestNumber int, itemCode string) (*erp.SourceDocument, *erp.SourceLine, error) {
	tr, err := s.erp.GetTransferRequest(ctx, requestNumber)
	if err != nil {
		return nil, nil, err
	}
	if tr == nil {
		return nil, nil, errors.NotFound(fmt.Sprintf("transfer request %d", requestNumber))
	}

	reqLine := tr.LineByItemCode(itemCode)
	if reqLine == nil {
		return nil, nil, errors.BadRequest(fmt.Sprintf("item %s is not on transfer request %d", itemCode, requestNumber))
	}
	if !docflow.LineOpen(reqLine.Status, reqLine.OpenQuantity, reqLine.Quantity) {
		return nil, nil, errors.BadRequest(fmt.Sprintf("transfer request line for %s is closed", itemCode))
	}
	return tr, reqLine, nil
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
		Kind:      docflow.KindTransfer,
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
			BinLocation: l.FromBin,
			QCStatus:    docflow.LineStatus(l.QCStatus),
		}
		if l.BatchNumber != nil {
			bl.BatchNumber = *l.BatchNumber
		}
		out = append(out, bl)
	}
	return out
}
