// Package handler exposes read-only ERP lookups used by the floor terminals:
// source documents, released batches, and bin contents.
package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stockbridge/stockbridge-backend/internal/erp"
	"github.com/stockbridge/stockbridge-backend/pkg/errors"
	"github.com/stockbridge/stockbridge-backend/pkg/httputil"
	"github.com/stockbridge/stockbridge-backend/pkg/logger"
)

// Directory is the slice of the ERP client the lookups use.
type Directory interface {
	GetPurchaseOrder(ctx context.Context, docNum int) (*erp.SourceDocument, error)
	GetTransferRequest(ctx context.Context, docNum int) (*erp.SourceDocument, error)
	GetBatchNumbers(ctx context.Context, itemCode string) ([]erp.BatchDetail, error)
	GetWarehouseBins(ctx context.Context, whsCode string) ([]erp.WarehouseBin, error)
	GetBinItems(ctx context.Context, binCode string) ([]erp.BinItem, error)
}

// Handler serves lookup endpoints.
type Handler struct {
	erp    Directory
	logger *logger.Logger
}

// NewHandler creates a lookup handler.
func NewHandler(directory Directory, log *logger.Logger) *Handler {
	return &Handler{
		erp:    directory,
		logger: log.WithComponent("lookup-handler"),
	}
}

// RegisterRoutes mounts the lookup routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/lookup", func(r chi.Router) {
		r.Get("/purchase-orders/{docNum}", h.PurchaseOrder)
		r.Get("/transfer-requests/{docNum}", h.TransferRequest)
		r.Get("/items/{itemCode}/batches", h.ItemBatches)
		r.Get("/warehouses/{whsCode}/bins", h.WarehouseBins)
		r.Get("/bins/{binCode}/items", h.BinItems)
	})
}

func (h *Handler) PurchaseOrder(w http.ResponseWriter, r *http.Request) {
	docNum, err := docNumParam(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	po, err := h.erp.GetPurchaseOrder(r.Context(), docNum)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	if po == nil {
		httputil.Error(w, errors.NotFound(fmt.Sprintf("purchase order %d", docNum)))
		return
	}
	httputil.JSON(w, http.StatusOK, po)
}

func (h *Handler) TransferRequest(w http.ResponseWriter, r *http.Request) {
	docNum, err := docNumParam(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	tr, err := h.erp.GetTransferRequest(r.Context(), docNum)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	if tr == nil {
		httputil.Error(w, errors.NotFound(fmt.Sprintf("transfer request %d", docNum)))
		return
	}
	httputil.JSON(w, http.StatusOK, tr)
}

func (h *Handler) ItemBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.erp.GetBatchNumbers(r.Context(), chi.URLParam(r, "itemCode"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, batches)
}

func (h *Handler) WarehouseBins(w http.ResponseWriter, r *http.Request) {
	bins, err := h.erp.GetWarehouseBins(r.Context(), chi.URLParam(r, "whsCode"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, bins)
}

func (h *Handler) BinItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.erp.GetBinItems(r.Context(), chi.URLParam(r, "binCode"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, items)
}

func docNumParam(r *http.Request) (int, error) {
	docNum, err := strconv.Atoi(chi.URLParam(r, "docNum"))
	if err != nil || docNum <= 0 {
		return 0, errors.BadRequest("document number must be a positive integer")
	}
	return docNum, nil
}
