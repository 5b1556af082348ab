// Package handler exposes the goods receipt REST API.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stockbridge/stockbridge-backend/internal/receipt/service"
	"github.com/stockbridge/stockbridge-backend/pkg/httputil"
	"github.com/stockbridge/stockbridge-backend/pkg/logger"
)

// Handler serves receipt endpoints.
type Handler struct {
	service *service.Service
	logger  *logger.Logger
}

// NewHandler creates a receipt handler.
func NewHandler(s *service.Service, log *logger.Logger) *Handler {
	return &Handler{
		service: s,
		logger:  log.WithComponent("receipt-handler"),
	}
}

// RegisterRoutes mounts the receipt routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/receipts", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)

		r.Route("/{documentID}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Get("/preview", h.Preview)
			r.Post("/lines", h.AddLine)
			r.Put("/lines/{lineID}", h.UpdateLine)
			r.Delete("/lines/{lineID}", h.DeleteLine)
			r.Post("/submit", h.Submit)
			r.Post("/approve", h.Approve)
			r.Post("/reject", h.Reject)
			r.Post("/reopen", h.Reopen)
		})
	})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	doc, err := h.service.Create(r.Context(), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, doc)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.List(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, docs)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.Get(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, doc)
}

func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	payload, err := h.service.Preview(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, payload)
}

func (h *Handler) AddLine(w http.ResponseWriter, r *http.Request) {
	var req service.AddLineRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	line, err := h.service.AddLine(r.Context(), chi.URLParam(r, "documentID"), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, line)
}

func (h *Handler) UpdateLine(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateLineRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	line, err := h.service.UpdateLine(r.Context(),
		chi.URLParam(r, "documentID"), chi.URLParam(r, "lineID"), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, line)
}

func (h *Handler) DeleteLine(w http.ResponseWriter, r *http.Request) {
	err := h.service.DeleteLine(r.Context(),
		chi.URLParam(r, "documentID"), chi.URLParam(r, "lineID"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.Submit(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, doc)
}

type approveRequest struct {
	Notes string `json:"notes" validate:"max=500"`
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if r.ContentLength > 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.Error(w, err)
			return
		}
	}

	doc, err := h.service.Approve(r.Context(), chi.URLParam(r, "documentID"), req.Notes)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, doc)
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	doc, err := h.service.Reject(r.Context(), chi.URLParam(r, "documentID"), req.Reason)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, doc)
}

func (h *Handler) Reopen(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.Reopen(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, doc)
}
