// Package analysis orchestrates one analyze request: it fans out to the
// disease classifier and the IFS recommender, joins their results into a
// single query log entry and records it.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/kiranshivaraju/agrismart/internal/metrics"
	"github.com/kiranshivaraju/agrismart/pkg/models"
	"golang.org/x/sync/errgroup"
)

// maxErrorBytes bounds each error marker stored with an entry.
const maxErrorBytes = 1000

// unknownError marks a failure whose error text is empty, so it still
// counts as a failure.
const unknownError = "unknown error"

// DiseaseClassifier labels a leaf image.
type DiseaseClassifier interface {
	Classify(ctx context.Context, image []byte, topK int) (*models.DiseaseResult, error)
}

// Recommender produces IFS recommendations for a place. On error it may
// still return a partially filled result.
type Recommender interface {
	Recommend(ctx context.Context, q models.IFSQuery) (*models.IFSResult, error)
}

// Recorder appends entries to the query log.
type Recorder interface {
	Insert(ctx context.Context, draft *models.QueryLogDraft) (*models.QueryLogEntry, error)
}

// Service runs analyses. It holds no per-request state and is safe for
// concurrent use.
type Service struct {
	disease        DiseaseClassifier
	ifs            Recommender
	recorder       Recorder
	adapterTimeout time.Duration
	metrics        *metrics.Metrics
}

// NewService creates a Service. adapterTimeout bounds each adapter call;
// zero leaves them unbounded.
func NewService(d DiseaseClassifier, r Recommender, rec Recorder, adapterTimeout time.Duration, m *metrics.Metrics) *Service {
	return &Service{
		disease:        d,
		ifs:            r,
		recorder:       rec,
		adapterTimeout: adapterTimeout,
		metrics:        m,
	}
}

// Analyze validates req, runs the requested halves concurrently and records
// the combined entry. Adapter failures never fail the call: they become
// error markers inside the entry. The returned error is a
// *models.ValidationError (nothing recorded) or a storage error.
//
// Dispatched work is not cancelled when ctx is: once validation passes the
// entry is always recorded.
func (s *Service) Analyze(ctx context.Context, req *models.AnalysisRequest) (*models.QueryLogEntry, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	runCtx := context.WithoutCancel(ctx)

	var (
		g          errgroup.Group
		diseaseRes *models.DiseaseResult
		ifsRes     *models.IFSResult
	)
	if req.HasImage() {
		g.Go(func() error {
			diseaseRes = s.runDisease(runCtx, req.Image, req.TopK)
			return nil
		})
	}
	if req.HasPlace() {
		q := models.IFSQuery{Location: req.Location, District: req.District, Crop: req.Crop, SoilType: req.SoilType}
		g.Go(func() error {
			ifsRes = s.runIFS(runCtx, q)
			return nil
		})
	}
	_ = g.Wait()

	draft := &models.QueryLogDraft{
		Input:        snapshot(req),
		Disease:      diseaseRes,
		IFS:          ifsRes,
		Status:       models.ComputeStatus(diseaseRes, ifsRes),
		ErrorMessage: models.JoinErrors(diseaseRes, ifsRes),
	}

	entry, err := s.recorder.Insert(runCtx, draft)
	if err != nil {
		slog.Error("recording analysis failed", "status", draft.Status, "error", err)
		return nil, fmt.Errorf("recording analysis: %w", err)
	}

	s.metrics.RecordAnalysis(string(entry.Status))
	slog.Info("analysis recorded",
		"id", entry.ID,
		"status", entry.Status,
		"image", draft.Input.ImageSupplied,
		"district", draft.Input.District,
		"location", draft.Input.Location,
	)
	return entry, nil
}

// runDisease never returns nil: failures, including panics, become an
// error marker.
func (s *Service) runDisease(ctx context.Context, image []byte, topK int) (res *models.DiseaseResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in disease classifier", "error", r)
			res = &models.DiseaseResult{Error: fmt.Sprintf("panic: %v", r)}
		}
		s.metrics.ObserveAdapter("disease", outcome(res.Failed()), time.Since(start))
	}()

	ctx, cancel := s.adapterContext(ctx)
	defer cancel()

	out, err := s.disease.Classify(ctx, image, topK)
	if err != nil {
		slog.Warn("disease classification failed", "error", err)
		return &models.DiseaseResult{Error: errorMarker(err)}
	}
	if out == nil {
		return &models.DiseaseResult{Error: "classifier returned no result"}
	}
	return out
}

// runIFS never returns nil: failures, including panics, become an error
// marker that keeps whatever the recommender resolved before failing.
func (s *Service) runIFS(ctx context.Context, q models.IFSQuery) (res *models.IFSResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in ifs recommender", "error", r)
			res = &models.IFSResult{InputLocation: q.Location, InputDistrict: q.District, Error: fmt.Sprintf("panic: %v", r)}
		}
		s.metrics.ObserveAdapter("ifs", outcome(res.Failed()), time.Since(start))
	}()

	ctx, cancel := s.adapterContext(ctx)
	defer cancel()

	out, err := s.ifs.Recommend(ctx, q)
	if out == nil {
		out = &models.IFSResult{InputLocation: q.Location, InputDistrict: q.District}
	}
	if err != nil {
		slog.Warn("ifs recommendation failed", "location", q.Location, "district", q.District, "error", err)
		out.Recommendations = nil
		out.Error = errorMarker(err)
	}
	return out
}

func (s *Service) adapterContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.adapterTimeout > 0 {
		return context.WithTimeout(ctx, s.adapterTimeout)
	}
	return context.WithCancel(ctx)
}

func snapshot(req *models.AnalysisRequest) models.InputSnapshot {
	in := models.InputSnapshot{
		Location:      req.Location,
		District:      req.District,
		Crop:          req.Crop,
		SoilType:      req.SoilType,
		ImageSupplied: req.HasImage(),
		ImageSize:     len(req.Image),
	}
	if in.ImageSupplied {
		in.ImageContentType = http.DetectContentType(req.Image)
	}
	return in
}

func errorMarker(err error) string {
	msg := err.Error()
	if msg == "" {
		msg = unknownError
	}
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "timed out: " + msg
	}
	return truncateString(msg, maxErrorBytes)
}

func outcome(failed bool) string {
	if failed {
		return "error"
	}
	return "ok"
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
