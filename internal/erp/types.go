// Package erp is the client for the ERP service layer: session handling,
// source document retrieval, master data lookups, and posting of built
// documents. Raw service layer payloads never leave this package; everything
// is normalized into the canonical structs below.
package erp

import (
	"strings"

	"github.com/shopspring/decimal"
)

// SourceDocument is a normalized ERP source document (purchase order or
// inventory transfer request).
type SourceDocument struct {
	DocEntry      int             `json:"doc_entry"`
	DocNum        int             `json:"doc_num"`
	CardCode      string          `json:"card_code,omitempty"`
	CardName      string          `json:"card_name,omitempty"`
	DocDate       string          `json:"doc_date,omitempty"`
	DocDueDate    string          `json:"doc_due_date,omitempty"`
	Status        string          `json:"status"`
	Comments      string          `json:"comments,omitempty"`
	FromWarehouse string          `json:"from_warehouse,omitempty"`
	ToWarehouse   string          `json:"to_warehouse,omitempty"`
	DocTotal      decimal.Decimal `json:"doc_total"`
	Lines         []SourceLine    `json:"lines"`
}

// SourceLine is a normalized line of a source document.
type SourceLine struct {
	LineNum       int             `json:"line_num"`
	ItemCode      string          `json:"item_code"`
	Description   string          `json:"description"`
	Quantity      decimal.Decimal `json:"quantity"`
	OpenQuantity  decimal.Decimal `json:"open_quantity"`
	Price         decimal.Decimal `json:"price"`
	UoMCode       string          `json:"uom_code,omitempty"`
	WarehouseCode string          `json:"warehouse_code,omitempty"`
	FromWarehouse string          `json:"from_warehouse,omitempty"`
	Status        string          `json:"status"`
}

// LineByItemCode returns the first line with the given item code, or nil.
func (d *SourceDocument) LineByItemCode(itemCode string) *SourceLine {
	for i := range d.Lines {
		if d.Lines[i].ItemCode == itemCode {
			return &d.Lines[i]
		}
	}
	return nil
}

// BatchDetail is a batch record for an item.
type BatchDetail struct {
	BatchNumber   string          `json:"batch_number"`
	ItemCode      string          `json:"item_code"`
	Quantity      decimal.Decimal `json:"quantity"`
	ExpiryDate    string          `json:"expiry_date,omitempty"`
	AdmissionDate string          `json:"admission_date,omitempty"`
	Status        string          `json:"status,omitempty"`
}

// WarehouseBin is a bin location within a warehouse.
type WarehouseBin struct {
	AbsEntry    int    `json:"abs_entry"`
	BinCode     string `json:"bin_code"`
	Warehouse   string `json:"warehouse"`
	Description string `json:"description,omitempty"`
	Active      bool   `json:"active"`
}

// BinItem is an item found during a bin scan, with its batch breakdown.
type BinItem struct {
	ItemCode      string          `json:"item_code"`
	ItemName      string          `json:"item_name"`
	UoM           string          `json:"uom"`
	InStock       decimal.Decimal `json:"in_stock"`
	Ordered       decimal.Decimal `json:"ordered"`
	WarehouseCode string          `json:"warehouse_code"`
	BinCode       string          `json:"bin_code"`
	BinAbsEntry   int             `json:"bin_abs_entry"`
	Batches       []BatchDetail   `json:"batches,omitempty"`
}

// PostResult is the outcome of posting a document to the ERP. Post failures
// are values, not errors: the workflow decides what to do with them.
type PostResult struct {
	Success        bool   `json:"success"`
	DocEntry       int    `json:"doc_entry,omitempty"`
	DocumentNumber string `json:"document_number,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Raw service layer shapes. Different resources expose the same document
// under different field names; normalization folds the variants together.

type valueEnvelope[T any] struct {
	Value []T `json:"value"`
}

type rawDocument struct {
	DocEntry       int             `json:"DocEntry"`
	DocNum         int             `json:"DocNum"`
	CardCode       string          `json:"CardCode"`
	CardName       string          `json:"CardName"`
	DocDate        string          `json:"DocDate"`
	DocDueDate     string          `json:"DocDueDate"`
	DocumentStatus string          `json:"DocumentStatus"`
	DocStatus      string          `json:"DocStatus"`
	Comments       string          `json:"Comments"`
	FromWarehouse  string          `json:"FromWarehouse"`
	ToWarehouse    string          `json:"ToWarehouse"`
	DocTotal       decimal.Decimal `json:"DocTotal"`

	DocumentLines      []rawLine `json:"DocumentLines"`
	StockTransferLines []rawLine `json:"StockTransferLines"`
}

type rawLine struct {
	LineNum               int             `json:"LineNum"`
	ItemCode              string          `json:"ItemCode"`
	ItemDescription       string          `json:"ItemDescription"`
	Description           string          `json:"Description"`
	Quantity              decimal.Decimal `json:"Quantity"`
	OpenQuantity          decimal.Decimal `json:"OpenQuantity"`
	RemainingOpenQuantity decimal.Decimal `json:"RemainingOpenQuantity"`
	Price                 decimal.Decimal `json:"Price"`
	UoMCode               string          `json:"UoMCode"`
	WarehouseCode         string          `json:"WarehouseCode"`
	WhsCode               string          `json:"WhsCode"`
	FromWarehouseCode     string          `json:"FromWarehouseCode"`
	LineStatus            string          `json:"LineStatus"`
}

func (r rawDocument) normalize() *SourceDocument {
	doc := &SourceDocument{
		DocEntry:      r.DocEntry,
		DocNum:        r.DocNum,
		CardCode:      r.CardCode,
		CardName:      r.CardName,
		DocDate:       dateOnly(r.DocDate),
		DocDueDate:    dateOnly(r.DocDueDate),
		Status:        firstNonEmpty(r.DocumentStatus, r.DocStatus),
		Comments:      r.Comments,
		FromWarehouse: r.FromWarehouse,
		ToWarehouse:   r.ToWarehouse,
		DocTotal:      r.DocTotal,
	}

	rawLines := r.DocumentLines
	if len(rawLines) == 0 {
		rawLines = r.StockTransferLines
	}

	doc.Lines = make([]SourceLine, 0, len(rawLines))
	for _, l := range rawLines {
		doc.Lines = append(doc.Lines, l.normalize())
	}

	return doc
}

func (l rawLine) normalize() SourceLine {
	open := l.OpenQuantity
	if open.IsZero() && !l.RemainingOpenQuantity.IsZero() {
		open = l.RemainingOpenQuantity
	}

	return SourceLine{
		LineNum:       l.LineNum,
		ItemCode:      l.ItemCode,
		Description:   firstNonEmpty(l.ItemDescription, l.Description),
		Quantity:      l.Quantity,
		OpenQuantity:  open,
		Price:         l.Price,
		UoMCode:       l.UoMCode,
		WarehouseCode: firstNonEmpty(l.WarehouseCode, l.WhsCode),
		FromWarehouse: l.FromWarehouseCode,
		Status:        l.LineStatus,
	}
}

type rawBatch struct {
	Batch           string          `json:"Batch"`
	BatchNumber     string          `json:"BatchNumber"`
	ItemCode        string          `json:"ItemCode"`
	Quantity        decimal.Decimal `json:"Quantity"`
	OnHandQuantity  decimal.Decimal `json:"OnHandQuantity"`
	ExpirationDate  string          `json:"ExpirationDate"`
	ExpiryDate      string          `json:"ExpiryDate"`
	AdmissionDate   string          `json:"AdmissionDate"`
	Status          string          `json:"Status"`
}

func (b rawBatch) normalize() BatchDetail {
	qty := b.Quantity
	if qty.IsZero() && !b.OnHandQuantity.IsZero() {
		qty = b.OnHandQuantity
	}

	return BatchDetail{
		BatchNumber:   firstNonEmpty(b.BatchNumber, b.Batch),
		ItemCode:      b.ItemCode,
		Quantity:      qty,
		ExpiryDate:    dateOnly(firstNonEmpty(b.ExpirationDate, b.ExpiryDate)),
		AdmissionDate: dateOnly(b.AdmissionDate),
		Status:        b.Status,
	}
}

type rawBin struct {
	AbsEntry    int    `json:"AbsEntry"`
	BinCode     string `json:"BinCode"`
	Warehouse   string `json:"Warehouse"`
	Description string `json:"Description"`
	Active      string `json:"Active"`
}

func (b rawBin) normalize() WarehouseBin {
	return WarehouseBin{
		AbsEntry:    b.AbsEntry,
		BinCode:     b.BinCode,
		Warehouse:   b.Warehouse,
		Description: b.Description,
		Active:      b.Active != "N",
	}
}

// dateOnly strips the time portion of service layer timestamps, which arrive
// either as plain dates or as "2025-01-08T00:00:00Z".
func dateOnly(s string) string {
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		return s[:i]
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
