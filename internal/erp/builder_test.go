package erp

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockbridge/stockbridge-backend/internal/docflow"
	"github.com/stockbridge/stockbridge-backend/pkg/errors"
	"github.com/stockbridge/stockbridge-backend/pkg/logger"
)

type stubResolver struct {
	placeID  int
	resolved []string
}

func (s *stubResolver) GetWarehouseBusinessPlaceID(_ context.Context, whsCode string) int {
	s.resolved = append(s.resolved, whsCode)
	return s.placeID
}

func testPO() *SourceDocument {
	return &SourceDocument{
		DocEntry: 321,
		DocNum:   4500,
		CardCode: "V200",
		DocDate:  "2025-02-10",
		Lines: []SourceLine{
			{LineNum: 0, ItemCode: "ITM100", Quantity: decimal.NewFromInt(100), OpenQuantity: decimal.NewFromInt(100), WarehouseCode: "WH05", Status: "bost_Open"},
			{LineNum: 1, ItemCode: "ITM200", Quantity: decimal.NewFromInt(50), OpenQuantity: decimal.NewFromInt(50), WarehouseCode: "WH05", Status: "bost_Open"},
		},
	}
}

func TestBuildDeliveryNote(t *testing.T) {
	resolver := &stubResolver{placeID: 12}
	builder := NewBuilder(resolver, logger.Nop())

	lines := []BuildLine{
		{ItemCode: "ITM100", Quantity: decimal.NewFromInt(40), BatchNumber: "B-01", ExpiryDate: "2026-01-31", QCStatus: docflow.LineApproved},
		{ItemCode: "ITM200", Quantity: decimal.NewFromInt(10), QCStatus: docflow.LineRejected},
		{ItemCode: "UNKNOWN", Quantity: decimal.NewFromInt(5), QCStatus: docflow.LineApproved},
	}

	payload, err := builder.BuildDeliveryNote(context.Background(), testPO(), lines, "EXT-REF-20250210-001", "")
	require.NoError(t, err)

	assert.Equal(t, "V200", payload.CardCode)
	assert.Equal(t, "2025-02-10", payload.DocDate)
	assert.Equal(t, "EXT-REF-20250210-001", payload.NumAtCard)
	assert.Equal(t, 12, payload.BPLIDAssignedToInvoice)
	assert.Equal(t, []string{"WH05"}, resolver.resolved)
	assert.Equal(t, "Auto-created from PO after QC", payload.Comments)

	// Rejected and unmatched lines are excluded.
	require.Len(t, payload.DocumentLines, 1)
	line := payload.DocumentLines[0]
	assert.Equal(t, BaseTypePurchaseOrder, line.BaseType)
	assert.Equal(t, 321, line.BaseEntry)
	assert.Equal(t, 0, line.BaseLine)
	assert.Equal(t, "WH05", line.WarehouseCode)

	require.Len(t, line.BatchNumbers, 1)
	assert.Equal(t, "B-01", line.BatchNumbers[0].BatchNumber)
	assert.Equal(t, "2026-01-31T00:00:00Z", line.BatchNumbers[0].ExpiryDate)
}

func TestBuildDeliveryNoteExpiryDefaultsToDocDate(t *testing.T) {
	builder := NewBuilder(&stubResolver{placeID: 5}, logger.Nop())

	lines := []BuildLine{
		{ItemCode: "ITM100", Quantity: decimal.NewFromInt(40), BatchNumber: "B-02", QCStatus: docflow.LineApproved},
	}

	payload, err := builder.BuildDeliveryNote(context.Background(), testPO(), lines, "EXT-REF-20250210-002", "")
	require.NoError(t, err)
	require.Len(t, payload.DocumentLines, 1)
	assert.Equal(t, "2025-02-10T00:00:00Z", payload.DocumentLines[0].BatchNumbers[0].ExpiryDate)
}

func TestBuildDeliveryNoteNoApprovedLines(t *testing.T) {
	builder := NewBuilder(&stubResolver{placeID: 5}, logger.Nop())

	lines := []BuildLine{
		{ItemCode: "ITM100", Quantity: decimal.NewFromInt(40), QCStatus: docflow.LinePending},
	}

	_, err := builder.BuildDeliveryNote(context.Background(), testPO(), lines, "EXT-REF-20250210-003", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBadRequest))
	assert.Contains(t, err.Error(), "no approved lines")
}

func TestBuildDeliveryNoteWarehouseFromBinFallback(t *testing.T) {
	po := testPO()
	po.Lines[0].WarehouseCode = ""

	builder := NewBuilder(&stubResolver{placeID: 5}, logger.Nop())
	lines := []BuildLine{
		{ItemCode: "ITM100", Quantity: decimal.NewFromInt(1), BinLocation: "WH09-A1-R2", QCStatus: docflow.LineApproved},
	}

	payload, err := builder.BuildDeliveryNote(context.Background(), po, lines, "ref", "")
	require.NoError(t, err)
	assert.Equal(t, "WH09", payload.DocumentLines[0].WarehouseCode)
}

func TestBuildStockTransfer(t *testing.T) {
	req := &SourceDocument{
		DocEntry:      55,
		DocNum:        88,
		FromWarehouse: "WH001",
		ToWarehouse:   "WH002",
		Lines: []SourceLine{
			{LineNum: 3, ItemCode: "ITM001", Quantity: decimal.NewFromInt(10), UoMCode: "EA"},
		},
	}

	builder := NewBuilder(&stubResolver{placeID: 5}, logger.Nop())
	lines := []BuildLine{
		{ItemCode: "ITM001", Quantity: decimal.NewFromInt(6), BatchNumber: "A22", QCStatus: docflow.LineApproved},
		{ItemCode: "MISSING", Quantity: decimal.NewFromInt(1), QCStatus: docflow.LineApproved},
	}

	payload, err := builder.BuildStockTransfer(context.Background(), req, lines, "WH001", "WH002", "QC approved transfer")
	require.NoError(t, err)

	assert.Equal(t, time.Now().Format("2006-01-02"), payload.DocDate)
	assert.Equal(t, "WH001", payload.FromWarehouse)
	assert.Equal(t, "WH002", payload.ToWarehouse)

	require.Len(t, payload.StockTransferLines, 1)
	line := payload.StockTransferLines[0]
	assert.Equal(t, BaseTypeTransferRequest, line.BaseType)
	assert.Equal(t, 55, line.BaseEntry)
	assert.Equal(t, 3, line.BaseLine)
	assert.Equal(t, "WH002", line.WarehouseCode)
	assert.Equal(t, "WH001", line.FromWarehouseCode)
	assert.Equal(t, "EA", line.UoMCode)

	require.Len(t, line.BatchNumbers, 1)
	assert.Equal(t, "A22", line.BatchNumbers[0].BatchNumberProperty)
}

func TestBuildStockTransferNoApprovedLines(t *testing.T) {
	req := &SourceDocument{DocEntry: 55}
	builder := NewBuilder(&stubResolver{placeID: 5}, logger.Nop())

	_, err := builder.BuildStockTransfer(context.Background(), req, nil, "WH001", "WH002", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBadRequest))
}
