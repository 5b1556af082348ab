package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockbridge/stockbridge-backend/internal/docflow"
	"github.com/stockbridge/stockbridge-backend/internal/erp"
	"github.com/stockbridge/stockbridge-backend/internal/transfer/repository"
	"github.com/stockbridge/stockbridge-backend/pkg/actor"
	"github.com/stockbridge/stockbridge-backend/pkg/errors"
	"github.com/stockbridge/stockbridge-backend/pkg/logger"
	"github.com/stockbridge/stockbridge-backend/pkg/messaging"
)

// In-memory fakes for the service dependencies.

type fakeStore struct {
	docs    map[string]*repository.Document
	lines   map[string][]*repository.Line
	history map[string][]repository.HistoryEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:    make(map[string]*repository.Document),
		lines:   make(map[string][]*repository.Line),
		history: make(map[string][]repository.HistoryEntry),
	}
}

func (f *fakeStore) Create(_ context.Context, doc *repository.Document) error {
	copied := *doc
	f.docs[doc.ID] = &copied
	f.recordHistory(doc.ID, "", doc.Status, doc.OwnerID)
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id string) (*repository.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, errors.NotFound("transfer document")
	}
	copied := *doc
	copied.Lines = nil
	for _, l := range f.lines[id] {
		copied.Lines = append(copied.Lines, *l)
	}
	return &copied, nil
}

func (f *fakeStore) List(_ context.Context, ownerID string, all bool) ([]repository.Document, error) {
	var out []repository.Document
	for _, doc := range f.docs {
		if all || doc.OwnerID == ownerID {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (f *fakeStore) History(_ context.Context, documentID string) ([]repository.HistoryEntry, error) {
	return f.history[documentID], nil
}

func (f *fakeStore) AddLine(_ context.Context, line *repository.Line) error {
	copied := *line
	f.lines[line.DocumentID] = append(f.lines[line.DocumentID], &copied)
	return nil
}

func (f *fakeStore) GetLine(_ context.Context, documentID, lineID string) (*repository.Line, error) {
	for _, l := range f.lines[documentID] {
		if l.ID == lineID {
			copied := *l
			return &copied, nil
		}
	}
	return nil, errors.NotFound("transfer line")
}

func (f *fakeStore) UpdateLine(_ context.Context, line *repository.Line) error {
	for i, l := range f.lines[line.DocumentID] {
		if l.ID == line.ID {
			copied := *line
			f.lines[line.DocumentID][i] = &copied
			return nil
		}
	}
	return errors.NotFound("transfer line")
}

func (f *fakeStore) DeleteLine(_ context.Context, documentID, lineID string) error {
	lines := f.lines[documentID]
	for i, l := range lines {
		if l.ID == lineID {
			f.lines[documentID] = append(lines[:i], lines[i+1:]...)
			return nil
		}
	}
	return errors.NotFound("transfer line")
}

func (f *fakeStore) SumTransferred(_ context.Context, requestNumber int, itemCode string) (decimal.Decimal, error) {
	total := decimal.Zero
	for docID, lines := range f.lines {
		doc := f.docs[docID]
		if doc == nil || doc.TransferRequestNumber != requestNumber || doc.Status == string(docflow.StatusRejected) {
			continue
		}
		for _, l := range lines {
			if l.ItemCode == itemCode {
				total = total.Add(l.Quantity)
			}
		}
	}
	return total, nil
}

func (f *fakeStore) ApplyTransition(_ context.Context, documentID string, upd repository.StatusUpdate) error {
	doc, ok := f.docs[documentID]
	if !ok {
		return errors.NotFound("transfer document")
	}
	doc.Status = string(upd.Status)
	if upd.QCApproverID != nil {
		doc.QCApproverID = upd.QCApproverID
	}
	if upd.QCApprovedAt != nil {
		doc.QCApprovedAt = upd.QCApprovedAt
	}
	if upd.QCNotes != nil {
		doc.QCNotes = upd.QCNotes
	}
	if upd.RejectionReason != nil {
		doc.RejectionReason = upd.RejectionReason
	}
	if upd.ClearQC {
		doc.QCApproverID, doc.QCApprovedAt, doc.QCNotes = nil, nil, nil
	}
	if upd.ClearRejection {
		doc.RejectionReason = nil
	}
	if upd.ClearPosted {
		doc.SAPDocumentNumber = nil
	}
	if upd.LineStatus != nil {
		for _, l := range f.lines[documentID] {
			l.QCStatus = string(*upd.LineStatus)
		}
	}
	f.recordHistory(documentID, string(upd.Previous), string(upd.Status), upd.ActorID)
	return nil
}

func (f *fakeStore) SetPosted(_ context.Context, documentID, sapDocNumber, actorID string) error {
	doc, ok := f.docs[documentID]
	if !ok {
		return errors.NotFound("transfer document")
	}
	if doc.SAPDocumentNumber != nil {
		return errors.Conflict("document already has an ERP document number")
	}
	doc.Status = string(docflow.StatusPosted)
	doc.SAPDocumentNumber = &sapDocNumber
	f.recordHistory(documentID, string(docflow.StatusQCApproved), string(docflow.StatusPosted), actorID)
	return nil
}

func (f *fakeStore) recordHistory(documentID, previous, next, actorID string) {
	f.history[documentID] = append(f.history[documentID], repository.HistoryEntry{
		DocumentID:     documentID,
		PreviousStatus: previous,
		NewStatus:      next,
		ActorID:        actorID,
		CreatedAt:      time.Now(),
	})
}

type fakeERP struct {
	request    *erp.SourceDocument
	postResult erp.PostResult
	posted     []*erp.StockTransferPayload
}

func (f *fakeERP) GetTransferRequest(_ context.Context, _ int) (*erp.SourceDocument, error) {
	return f.request, nil
}

func (f *fakeERP) PostStockTransfer(_ context.Context, payload *erp.StockTransferPayload) erp.PostResult {
	f.posted = append(f.posted, payload)
	return f.postResult
}

type fakeResolver struct{}

func (fakeResolver) GetWarehouseBusinessPlaceID(context.Context, string) int { return 5 }

type fakeNumbers struct{ docSeq int }

func (f *fakeNumbers) NextDocumentNumber(_ context.Context, _ string) (string, error) {
	f.docSeq++
	return fmt.Sprintf("TR-2025-%04d", f.docSeq), nil
}

type fakeEvents struct {
	statusEvents []string
	posted       []messaging.DocumentPostedEvent
}

func (f *fakeEvents) StatusChanged(_ context.Context, eventType string, _ messaging.DocumentStatusChangedEvent) {
	f.statusEvents = append(f.statusEvents, eventType)
}

func (f *fakeEvents) Posted(_ context.Context, event messaging.DocumentPostedEvent) {
	f.posted = append(f.posted, event)
}

type fixture struct {
	svc    *Service
	store  *fakeStore
	gw     *fakeERP
	events *fakeEvents
}

func newFixture(request *erp.SourceDocument) *fixture {
	store := newFakeStore()
	gw := &fakeERP{request: request, postResult: erp.PostResult{Success: true, DocEntry: 900, DocumentNumber: "30110"}}
	events := &fakeEvents{}
	builder := erp.NewBuilder(fakeResolver{}, logger.Nop())
	svc := NewService(store, gw, builder, &fakeNumbers{}, events, logger.Nop())
	return &fixture{svc: svc, store: store, gw: gw, events: events}
}

func openRequest() *erp.SourceDocument {
	return &erp.SourceDocument{
		DocEntry:      123,
		DocNum:        7001,
		FromWarehouse: "WH01",
		ToWarehouse:   "WH02",
		DocDate:       "2025-03-01",
		Lines: []erp.SourceLine{
			{
				LineNum:      2,
				ItemCode:     "ITM200",
				Description:  "Coated Plate",
				Quantity:     decimal.NewFromInt(40),
				OpenQuantity: decimal.NewFromInt(40),
				UoMCode:      "EA",
				Status:       docflow.SourceLineOpen,
			},
		},
	}
}

func clerkCtx() context.Context {
	return actor.WithActor(context.Background(),
		&actor.Actor{ID: "owner-1", Username: "picker", Role: actor.RoleUser})
}

func qcCtx() context.Context {
	return actor.WithActor(context.Background(),
		&actor.Actor{ID: "qc-1", Username: "inspector", Role: actor.RoleQC})
}

func TestCreate(t *testing.T) {
	t.Run("draft created against open transfer request", func(t *testing.T) {
		f := newFixture(openRequest())
		doc, err := f.svc.Create(clerkCtx(), CreateRequest{RequestNumber: 7001})
		require.NoError(t, err)

		assert.Equal(t, "TR-2025-0001", doc.DocNumber)
		assert.Equal(t, string(docflow.StatusDraft), doc.Status)
		assert.Equal(t, "WH01", doc.FromWarehouse)
		assert.Equal(t, "WH02", doc.ToWarehouse)
		assert.Equal(t, []string{messaging.EventTransferCreated}, f.events.statusEvents)
	})

	t.Run("unknown transfer request", func(t *testing.T) {
		f := newFixture(nil)
		_, err := f.svc.Create(clerkCtx(), CreateRequest{RequestNumber: 9999})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrNotFound))
	})

	t.Run("transfer request with no open lines", func(t *testing.T) {
		req := openRequest()
		req.Lines[0].Status = "bost_Close"
		req.Lines[0].OpenQuantity = decimal.Zero
		req.Lines[0].Quantity = decimal.Zero

		f := newFixture(req)
		_, err := f.svc.Create(clerkCtx(), CreateRequest{RequestNumber: 7001})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrBadRequest))
	})
}

func TestAddLine(t *testing.T) {
	t.Run("valid quantity with bins and batch", func(t *testing.T) {
		f := newFixture(openRequest())
		doc, err := f.svc.Create(clerkCtx(), CreateRequest{RequestNumber: 7001})
		require.NoError(t, err)

		line, err := f.svc.AddLine(clerkCtx(), doc.ID, AddLineRequest{
			ItemCode:    "ITM200",
			Quantity:    decimal.NewFromInt(25),
			BatchNumber: "B-77",
			FromBin:     "WH01-A1",
			ToBin:       "WH02-B3",
		})
		require.NoError(t, err)

		assert.Equal(t, "Coated Plate", line.ItemName)
		assert.Equal(t, "WH01-A1", line.FromBin)
		assert.Equal(t, "WH02-B3", line.ToBin)
		assert.Equal(t, string(docflow.LinePending), line.QCStatus)
	})

	t.Run("cumulative cap across transfers", func(t *testing.T) {
		f := newFixture(openRequest())
		first, err := f.svc.Create(clerkCtx(), CreateRequest{RequestNumber: 7001})
		require.NoError(t, err)

		_, err = f.svc.AddLine(clerkCtx(), first.ID, AddLineRequest{ItemCode: "ITM200", Quantity: decimal.NewFromInt(30)})
		require.NoError(t, err)

		second, err := f.svc.Create(clerkCtx(), CreateRequest{RequestNumber: 7001})
		require.NoError(t, err)
		_, err = f.svc.AddLine(clerkCtx(), second.ID, AddLineRequest{ItemCode: "ITM200", Quantity: decimal.NewFromInt(15)})
		require.Error(t, err, "30 already recorded, 15 more would exceed the requested 40")
	})

	t.Run("item not on transfer request", func(t *testing.T) {
		f := newFixture(openRequest())
		doc, _ := f.svc.Create(clerkCtx(), CreateRequest{RequestNumber: 7001})

		_, err := f.svc.AddLine(clerkCtx(), doc.ID, AddLineRequest{ItemCode: "NOPE", Quantity: decimal.NewFromInt(1)})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrBadRequest))
	})
}

func TestApprovePostsStockTransfer(t *testing.T) {
	f := newFixture(openRequest())
	doc, _ := f.svc.Create(clerkCtx(), CreateRequest{RequestNumber: 7001})
	_, err := f.svc.AddLine(clerkCtx(), doc.ID, AddLineRequest{
		ItemCode: "ITM200", Quantity: decimal.NewFromInt(20), BatchNumber: "B-77",
	})
	require.NoError(t, err)
	_, err = f.svc.Submit(clerkCtx(), doc.ID)
	require.NoError(t, err)

	approved, err := f.svc.Approve(qcCtx(), doc.ID, "checked")
	require.NoError(t, err)

	assert.Equal(t, string(docflow.StatusPosted), approved.Status)
	require.NotNil(t, approved.SAPDocumentNumber)
	assert.Equal(t, "30110", *approved.SAPDocumentNumber)

	require.Len(t, f.gw.posted, 1)
	payload := f.gw.posted[0]
	assert.Equal(t, "WH01", payload.FromWarehouse)
	assert.Equal(t, "WH02", payload.ToWarehouse)
	require.Len(t, payload.StockTransferLines, 1)
	assert.Equal(t, erp.BaseTypeTransferRequest, payload.StockTransferLines[0].BaseType)

	require.Len(t, f.events.posted, 1)
	assert.Equal(t, "30110", f.events.posted[0].ERPDocNumber)
}

func TestApproveERPFailureKeepsQCApproved(t *testing.T) {
	f := newFixture(openRequest())
	f.gw.postResult = erp.PostResult{Error: "erp unavailable"}

	doc, _ := f.svc.Create(clerkCtx(), CreateRequest{RequestNumber: 7001})
	_, err := f.svc.AddLine(clerkCtx(), doc.ID, AddLineRequest{ItemCode: "ITM200", Quantity: decimal.NewFromInt(5)})
	require.NoError(t, err)
	_, err = f.svc.Submit(clerkCtx(), doc.ID)
	require.NoError(t, err)

	_, err = f.svc.Approve(qcCtx(), doc.ID, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrERPUnavailable))

	current, err := f.svc.Get(qcCtx(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, string(docflow.StatusQCApproved), current.Status)
	assert.Nil(t, current.SAPDocumentNumber)
}

func TestRejectRequiresReason(t *testing.T) {
	f := newFixture(openRequest())
	doc, _ := f.svc.Create(clerkCtx(), CreateRequest{RequestNumber: 7001})
	_, err := f.svc.AddLine(clerkCtx(), doc.ID, AddLineRequest{ItemCode: "ITM200", Quantity: decimal.NewFromInt(5)})
	require.NoError(t, err)
	_, err = f.svc.Submit(clerkCtx(), doc.ID)
	require.NoError(t, err)

	_, err = f.svc.Reject(qcCtx(), doc.ID, "")
	require.Error(t, err)

	rejected, err := f.svc.Reject(qcCtx(), doc.ID, "wrong source bin")
	require.NoError(t, err)
	assert.Equal(t, string(docflow.StatusRejected), rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
	assert.Equal(t, "wrong source bin", *rejected.RejectionReason)
}

func TestReopenPostedTransfer(t *testing.T) {
	f := newFixture(openRequest())
	doc, _ := f.svc.Create(clerkCtx(), CreateRequest{RequestNumber: 7001})
	_, err := f.svc.AddLine(clerkCtx(), doc.ID, AddLineRequest{ItemCode: "ITM200", Quantity: decimal.NewFromInt(10)})
	require.NoError(t, err)
	_, err = f.svc.Submit(clerkCtx(), doc.ID)
	require.NoError(t, err)
	posted, err := f.svc.Approve(qcCtx(), doc.ID, "")
	require.NoError(t, err)
	require.Equal(t, string(docflow.StatusPosted), posted.Status)

	reopened, err := f.svc.Reopen(clerkCtx(), doc.ID)
	require.NoError(t, err)

	assert.Equal(t, string(docflow.StatusDraft), reopened.Status)
	assert.Nil(t, reopened.SAPDocumentNumber, "reopening clears the ERP document number")
	assert.Nil(t, reopened.QCApproverID)
	for _, l := range reopened.Lines {
		assert.Equal(t, string(docflow.LinePending), l.QCStatus)
	}
}

func TestHistoryRecordsEveryTransition(t *testing.T) {
	f := newFixture(openRequest())
	doc, _ := f.svc.Create(clerkCtx(), CreateRequest{RequestNumber: 7001})
	_, err := f.svc.AddLine(clerkCtx(), doc.ID, AddLineRequest{ItemCode: "ITM200", Quantity: decimal.NewFromInt(10)})
	require.NoError(t, err)
	_, err = f.svc.Submit(clerkCtx(), doc.ID)
	require.NoError(t, err)
	_, err = f.svc.Reject(qcCtx(), doc.ID, "damaged")
	require.NoError(t, err)

	entries, err := f.svc.History(clerkCtx(), doc.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, string(docflow.StatusDraft), entries[0].NewStatus)
	assert.Equal(t, string(docflow.StatusSubmitted), entries[1].NewStatus)
	assert.Equal(t, string(docflow.StatusRejected), entries[2].NewStatus)
	assert.Equal(t, "qc-1", entries[2].ActorID)
}
