package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	mw "github.com/kiranshivaraju/agrismart/internal/api/middleware"
	"github.com/kiranshivaraju/agrismart/internal/api/response"
	"github.com/kiranshivaraju/agrismart/internal/store"
	"github.com/kiranshivaraju/agrismart/pkg/models"
)

// formOverhead is the allowance for multipart boundaries and text fields on
// top of the image limit.
const formOverhead = 64 << 10

// Analyzer defines the interface the analyze handler depends on.
type Analyzer interface {
	Analyze(ctx context.Context, req *models.AnalysisRequest) (*models.QueryLogEntry, error)
}

// NewAnalyzeHandler returns an http.HandlerFunc for POST /api/v1/analyze.
// The form carries an optional leaf image in "file" plus the location,
// district, crop, soil_type and top_k text fields.
func NewAnalyzeHandler(svc Analyzer, maxUploadBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+formOverhead)

		req, err := parseAnalyzeForm(r, maxUploadBytes)
		if err != nil {
			writeRequestError(w, err)
			return
		}

		entry, err := svc.Analyze(r.Context(), req)
		if err != nil {
			requestID, _ := mw.GetRequestID(r)
			var verr *models.ValidationError
			switch {
			case errors.As(err, &verr):
				writeValidationError(w, verr)
			case errors.Is(err, store.ErrStorage):
				slog.Error("analysis not recorded", "error", err, "request_id", requestID)
				response.Error(w, http.StatusInternalServerError, "STORAGE_ERROR",
					"The analysis could not be recorded", nil)
			default:
				slog.Error("analysis failed", "error", err, "request_id", requestID)
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		response.Created(w, entry)
	}
}

func parseAnalyzeForm(r *http.Request, maxUploadBytes int64) (*models.AnalysisRequest, error) {
	err := r.ParseMultipartForm(maxUploadBytes)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err != nil {
		return nil, err
	}

	req := &models.AnalysisRequest{
		Location: r.FormValue("location"),
		District: r.FormValue("district"),
		Crop:     r.FormValue("crop"),
		SoilType: r.FormValue("soil_type"),
	}

	if raw := r.FormValue("top_k"); raw != "" {
		k, err := strconv.Atoi(raw)
		if err != nil {
			return nil, &models.ValidationError{Field: "top_k", Reason: "must be an integer"}
		}
		req.TopK = k
	}

	if r.MultipartForm == nil {
		return req, nil
	}
	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if header.Size > maxUploadBytes {
		return nil, uploadTooLarge(maxUploadBytes)
	}
	req.Image, err = io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(req.Image)) > maxUploadBytes {
		return nil, uploadTooLarge(maxUploadBytes)
	}
	return req, nil
}

func uploadTooLarge(limit int64) *models.ValidationError {
	return &models.ValidationError{Field: "file", Reason: fmt.Sprintf("must be at most %d bytes", limit)}
}

// writeRequestError maps request parsing failures to 400 responses.
func writeRequestError(w http.ResponseWriter, err error) {
	var verr *models.ValidationError
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &verr):
		writeValidationError(w, verr)
	case errors.As(err, &maxErr):
		writeValidationError(w, uploadTooLarge(maxErr.Limit-formOverhead))
	default:
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid form body", nil)
	}
}

func writeValidationError(w http.ResponseWriter, verr *models.ValidationError) {
	var details any
	if verr.Field != "" {
		details = map[string]string{"field": verr.Field}
	}
	response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", verr.Error(), details)
}
