package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/agrismart/internal/api/response"
	"github.com/kiranshivaraju/agrismart/internal/store"
	"github.com/kiranshivaraju/agrismart/pkg/models"
)

// HistoryReader is the read side of the query log.
type HistoryReader interface {
	List(ctx context.Context, limit, offset int) ([]models.QueryLogSummary, int, error)
	Get(ctx context.Context, id int64) (*models.QueryLogEntry, error)
}

// NewListHistoryHandler returns an http.HandlerFunc for GET /api/v1/history.
func NewListHistoryHandler(h HistoryReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := models.HistoryQuery{Limit: store.DefaultListLimit}
		var err error
		if q.Limit, err = intParam(r, "limit", q.Limit); err != nil {
			writeRequestError(w, err)
			return
		}
		if q.Offset, err = intParam(r, "offset", 0); err != nil {
			writeRequestError(w, err)
			return
		}
		if err := q.Validate(); err != nil {
			writeRequestError(w, err)
			return
		}

		items, total, err := h.List(r.Context(), q.Limit, q.Offset)
		if err != nil {
			slog.Error("history list failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "STORAGE_ERROR",
				"Failed to list history", nil)
			return
		}
		if items == nil {
			items = []models.QueryLogSummary{}
		}

		response.Collection(w, items, response.NewPaginationMeta(q.Limit, q.Offset, len(items), total))
	}
}

// NewGetHistoryHandler returns an http.HandlerFunc for GET /api/v1/history/{id}.
func NewGetHistoryHandler(h HistoryReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"id must be a positive integer", map[string]string{"field": "id"})
			return
		}

		entry, err := h.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Query log entry not found", nil)
				return
			}
			slog.Error("history get failed", "error", err, "id", id)
			response.Error(w, http.StatusInternalServerError, "STORAGE_ERROR",
				"Failed to load history entry", nil)
			return
		}

		response.JSON(w, entry)
	}
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &models.ValidationError{Field: name, Reason: "must be an integer"}
	}
	return v, nil
}
