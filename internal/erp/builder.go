package erp

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockbridge/stockbridge-backend/internal/docflow"
	"github.com/stockbridge/stockbridge-backend/pkg/errors"
	"github.com/stockbridge/stockbridge-backend/pkg/logger"
)

// BaseTypePurchaseOrder is the ERP object type for purchase orders.
const BaseTypePurchaseOrder = 22

// BaseTypeTransferRequest is the ERP object type for inventory transfer
// requests. The service layer expects it as a string on transfer lines.
const BaseTypeTransferRequest = "1250000001"

// BuildLine is a document line as the builder needs it, decoupled from the
// receipt and transfer persistence models.
type BuildLine struct {
	ItemCode    string
	Quantity    decimal.Decimal
	BatchNumber string
	ExpiryDate  string
	BinLocation string
	QCStatus    docflow.LineStatus
}

// DeliveryNotePayload is the exact JSON posted to PurchaseDeliveryNotes.
type DeliveryNotePayload struct {
	CardCode               string             `json:"CardCode"`
	DocDate                string             `json:"DocDate"`
	DocDueDate             string             `json:"DocDueDate,omitempty"`
	Comments               string             `json:"Comments,omitempty"`
	NumAtCard              string             `json:"NumAtCard"`
	BPLIDAssignedToInvoice int                `json:"BPL_IDAssignedToInvoice"`
	DocumentLines          []DeliveryNoteLine `json:"DocumentLines"`
}

// DeliveryNoteLine is a line of a purchase delivery note.
type DeliveryNoteLine struct {
	BaseType      int             `json:"BaseType"`
	BaseEntry     int             `json:"BaseEntry"`
	BaseLine      int             `json:"BaseLine"`
	ItemCode      string          `json:"ItemCode"`
	Quantity      decimal.Decimal `json:"Quantity"`
	WarehouseCode string          `json:"WarehouseCode"`
	BatchNumbers  []BatchEntry    `json:"BatchNumbers,omitempty"`
}

// BatchEntry is a batch allocation on a delivery note line.
type BatchEntry struct {
	BatchNumber    string          `json:"BatchNumber"`
	Quantity       decimal.Decimal `json:"Quantity"`
	BaseLineNumber int             `json:"BaseLineNumber"`
	ExpiryDate     string          `json:"ExpiryDate,omitempty"`
}

// StockTransferPayload is the exact JSON posted to StockTransfers.
type StockTransferPayload struct {
	DocDate            string              `json:"DocDate"`
	Comments           string              `json:"Comments,omitempty"`
	FromWarehouse      string              `json:"FromWarehouse"`
	ToWarehouse        string              `json:"ToWarehouse"`
	StockTransferLines []StockTransferLine `json:"StockTransferLines"`
}

// StockTransferLine is a line of a stock transfer.
type StockTransferLine struct {
	LineNum           int                  `json:"LineNum"`
	ItemCode          string               `json:"ItemCode"`
	Quantity          decimal.Decimal      `json:"Quantity"`
	WarehouseCode     string               `json:"WarehouseCode"`
	FromWarehouseCode string               `json:"FromWarehouseCode"`
	UoMCode           string               `json:"UoMCode,omitempty"`
	BaseType          string               `json:"BaseType"`
	BaseEntry         int                  `json:"BaseEntry"`
	BaseLine          int                  `json:"BaseLine"`
	BatchNumbers      []TransferBatchEntry `json:"BatchNumbers,omitempty"`
}

// TransferBatchEntry is a batch allocation on a stock transfer line. The
// service layer uses a different field name for the batch here.
type TransferBatchEntry struct {
	BaseLineNumber      int             `json:"BaseLineNumber"`
	BatchNumberProperty string          `json:"BatchNumberProperty"`
	Quantity            decimal.Decimal `json:"Quantity"`
}

// BusinessPlaceResolver resolves the business place of a warehouse.
// *Client satisfies it.
type BusinessPlaceResolver interface {
	GetWarehouseBusinessPlaceID(ctx context.Context, whsCode string) int
}

// Builder assembles ERP payloads from approved document lines and their
// source documents.
type Builder struct {
	places BusinessPlaceResolver
	logger *logger.Logger
}

// NewBuilder creates a document builder.
func NewBuilder(places BusinessPlaceResolver, log *logger.Logger) *Builder {
	return &Builder{
		places: places,
		logger: log.WithComponent("erp-builder"),
	}
}

// BuildDeliveryNote assembles a purchase delivery note from approved receipt
// lines against their purchase order. Lines that are not approved, or that
// have no matching purchase order line, are excluded; an empty result is an
// error.
func (b *Builder) BuildDeliveryNote(ctx context.Context, po *SourceDocument, lines []BuildLine, externalRef, comments string) (*DeliveryNotePayload, error) {
	if po.CardCode == "" || po.DocEntry == 0 {
		return nil, errors.BadRequest("purchase order is missing CardCode or DocEntry")
	}

	docDate := dateOnly(po.DocDate)
	docDueDate := dateOnly(po.DocDueDate)

	var docLines []DeliveryNoteLine
	for _, line := range lines {
		if line.QCStatus != docflow.LineApproved {
			continue
		}

		poLine := po.LineByItemCode(line.ItemCode)
		if poLine == nil {
			b.logger.Warn().
				Str("item_code", line.ItemCode).
				Int("po_number", po.DocNum).
				Msg("purchase order line not found for item, skipping")
			continue
		}

		warehouseCode := poLine.WarehouseCode
		if warehouseCode == "" {
			warehouseCode = warehouseFromBin(line.BinLocation)
		}

		docLine := DeliveryNoteLine{
			BaseType:      BaseTypePurchaseOrder,
			BaseEntry:     po.DocEntry,
			BaseLine:      poLine.LineNum,
			ItemCode:      line.ItemCode,
			Quantity:      line.Quantity,
			WarehouseCode: warehouseCode,
		}

		if line.BatchNumber != "" {
			docLine.BatchNumbers = []BatchEntry{{
				BatchNumber:    line.BatchNumber,
				Quantity:       line.Quantity,
				BaseLineNumber: len(docLines),
				ExpiryDate:     expiryTimestamp(line.ExpiryDate, docDate),
			}}
		}

		docLines = append(docLines, docLine)
	}

	if len(docLines) == 0 {
		return nil, errors.BadRequest("no approved lines to post")
	}

	if comments == "" {
		comments = "Auto-created from PO after QC"
	}

	return &DeliveryNotePayload{
		CardCode:               po.CardCode,
		DocDate:                docDate,
		DocDueDate:             docDueDate,
		Comments:               comments,
		NumAtCard:              externalRef,
		BPLIDAssignedToInvoice: b.resolveBusinessPlace(ctx, po, lines),
		DocumentLines:          docLines,
	}, nil
}

// resolveBusinessPlace looks up the business place of the first approved
// line's purchase order warehouse, defaulting to 5 when nothing resolves.
func (b *Builder) resolveBusinessPlace(ctx context.Context, po *SourceDocument, lines []BuildLine) int {
	const fallback = 5

	for _, line := range lines {
		if line.QCStatus != docflow.LineApproved {
			continue
		}
		poLine := po.LineByItemCode(line.ItemCode)
		if poLine == nil || poLine.WarehouseCode == "" {
			continue
		}
		return b.places.GetWarehouseBusinessPlaceID(ctx, poLine.WarehouseCode)
	}
	return fallback
}

// BuildStockTransfer assembles a stock transfer from approved transfer lines
// against their transfer request.
func (b *Builder) BuildStockTransfer(ctx context.Context, req *SourceDocument, lines []BuildLine, fromWarehouse, toWarehouse, comments string) (*StockTransferPayload, error) {
	if req.DocEntry == 0 {
		return nil, errors.BadRequest("transfer request is missing DocEntry")
	}

	var transferLines []StockTransferLine
	for _, line := range lines {
		if line.QCStatus != docflow.LineApproved {
			continue
		}

		reqLine := req.LineByItemCode(line.ItemCode)
		if reqLine == nil {
			b.logger.Warn().
				Str("item_code", line.ItemCode).
				Int("request_number", req.DocNum).
				Msg("transfer request line not found for item, skipping")
			continue
		}

		index := len(transferLines)
		transferLine := StockTransferLine{
			LineNum:           index,
			ItemCode:          line.ItemCode,
			Quantity:          line.Quantity,
			WarehouseCode:     toWarehouse,
			FromWarehouseCode: fromWarehouse,
			UoMCode:           reqLine.UoMCode,
			BaseType:          BaseTypeTransferRequest,
			BaseEntry:         req.DocEntry,
			BaseLine:          reqLine.LineNum,
		}

		if line.BatchNumber != "" {
			transferLine.BatchNumbers = []TransferBatchEntry{{
				BaseLineNumber:      index,
				BatchNumberProperty: line.BatchNumber,
				Quantity:            line.Quantity,
			}}
		}

		transferLines = append(transferLines, transferLine)
	}

	if len(transferLines) == 0 {
		return nil, errors.BadRequest("no approved lines to post")
	}

	return &StockTransferPayload{
		DocDate:            time.Now().Format("2006-01-02"),
		Comments:           comments,
		FromWarehouse:      fromWarehouse,
		ToWarehouse:        toWarehouse,
		StockTransferLines: transferLines,
	}, nil
}

// warehouseFromBin derives a warehouse code from a bin location such as
// "WH01-A1-R2". Used only when the source line carries no warehouse.
func warehouseFromBin(binLocation string) string {
	if binLocation == "" {
		return ""
	}
	if i := strings.IndexByte(binLocation, '-'); i > 0 {
		return binLocation[:i]
	}
	if len(binLocation) > 4 {
		return binLocation[:4]
	}
	return binLocation
}

// expiryTimestamp formats a batch expiry for the service layer, defaulting
// to the document date when the line has none.
func expiryTimestamp(expiry, docDate string) string {
	if expiry == "" {
		expiry = docDate
	}
	if expiry == "" {
		return ""
	}
	if !strings.Contains(expiry, "T") {
		expiry += "T00:00:00Z"
	}
	return expiry
}
