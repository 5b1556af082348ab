// Package handler exposes label payloads for receipt and transfer lines.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stockbridge/stockbridge-backend/internal/labels"
	receiptsvc "github.com/stockbridge/stockbridge-backend/internal/receipt/service"
	transfersvc "github.com/stockbridge/stockbridge-backend/internal/transfer/service"
	"github.com/stockbridge/stockbridge-backend/pkg/errors"
	"github.com/stockbridge/stockbridge-backend/pkg/httputil"
	"github.com/stockbridge/stockbridge-backend/pkg/logger"
)

// Handler serves label endpoints.
type Handler struct {
	receipts  *receiptsvc.Service
	transfers *transfersvc.Service
	logger    *logger.Logger
}

// NewHandler creates a labels handler.
func NewHandler(receipts *receiptsvc.Service, transfers *transfersvc.Service, log *logger.Logger) *Handler {
	return &Handler{
		receipts:  receipts,
		transfers: transfers,
		logger:    log.WithComponent("labels-handler"),
	}
}

// RegisterRoutes mounts the label routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/labels", func(r chi.Router) {
		r.Get("/receipts/{documentID}/lines/{lineID}", h.ReceiptLabel)
		r.Get("/transfers/{documentID}/lines/{lineID}", h.TransferLabel)
	})
}

func (h *Handler) ReceiptLabel(w http.ResponseWriter, r *http.Request) {
	doc, err := h.receipts.Get(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	lineID := chi.URLParam(r, "lineID")
	for _, line := range doc.Lines {
		if line.ID != lineID {
			continue
		}
		batch := ""
		if line.BatchNumber != nil {
			batch = *line.BatchNumber
		}
		httputil.JSON(w, http.StatusOK, labels.Label{
			Payload:  labels.Payload(line.ItemCode, doc.DocNumber, line.ItemName, batch),
			ItemCode: line.ItemCode,
			ItemName: line.ItemName,
			Barcode:  line.Barcode,
		})
		return
	}
	httputil.Error(w, errors.NotFound("receipt line"))
}

func (h *Handler) TransferLabel(w http.ResponseWriter, r *http.Request) {
	doc, err := h.transfers.Get(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	lineID := chi.URLParam(r, "lineID")
	for _, line := range doc.Lines {
		if line.ID != lineID {
			continue
		}
		batch := ""
		if line.BatchNumber != nil {
			batch = *line.BatchNumber
		}
		httputil.JSON(w, http.StatusOK, labels.Label{
			Payload:  labels.Payload(line.ItemCode, doc.DocNumber, line.ItemName, batch),
			ItemCode: line.ItemCode,
			ItemName: line.ItemName,
		})
		return
	}
	httputil.Error(w, errors.NotFound("transfer line"))
}
