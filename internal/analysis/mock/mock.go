// Package mock provides test doubles for the analysis adapters and the
// query log store.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kiranshivaraju/agrismart/internal/analysis"
	"github.com/kiranshivaraju/agrismart/internal/store"
	"github.com/kiranshivaraju/agrismart/pkg/models"
)

// MockClassifier satisfies analysis.DiseaseClassifier for testing.
type MockClassifier struct {
	ClassifyFunc func(ctx context.Context, image []byte, topK int) (*models.DiseaseResult, error)
}

func (m *MockClassifier) Classify(ctx context.Context, image []byte, topK int) (*models.DiseaseResult, error) {
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, image, topK)
	}
	return &models.DiseaseResult{}, nil
}

// NewMockClassifier returns a MockClassifier with a fixed ranked result.
func NewMockClassifier() *MockClassifier {
	return &MockClassifier{
		ClassifyFunc: func(_ context.Context, _ []byte, topK int) (*models.DiseaseResult, error) {
			preds := []models.Prediction{
				{Label: "Tomato___Late_blight", Confidence: 0.87},
				{Label: "Tomato___Early_blight", Confidence: 0.08},
				{Label: "Tomato___healthy", Confidence: 0.03},
			}
			if topK > 0 && topK < len(preds) {
				preds = preds[:topK]
			}
			return &models.DiseaseResult{Predictions: preds}, nil
		},
	}
}

// NewFailingClassifier returns a MockClassifier that always returns err.
func NewFailingClassifier(err error) *MockClassifier {
	return &MockClassifier{
		ClassifyFunc: func(_ context.Context, _ []byte, _ int) (*models.DiseaseResult, error) {
			return nil, err
		},
	}
}

// NewBlockingClassifier returns a MockClassifier that blocks until its
// context is done.
func NewBlockingClassifier() *MockClassifier {
	return &MockClassifier{
		ClassifyFunc: func(ctx context.Context, _ []byte, _ int) (*models.DiseaseResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
}

// MockRecommender satisfies analysis.Recommender for testing.
type MockRecommender struct {
	RecommendFunc func(ctx context.Context, q models.IFSQuery) (*models.IFSResult, error)
}

func (m *MockRecommender) Recommend(ctx context.Context, q models.IFSQuery) (*models.IFSResult, error) {
	if m.RecommendFunc != nil {
		return m.RecommendFunc(ctx, q)
	}
	return &models.IFSResult{}, nil
}

// NewMockRecommender returns a MockRecommender that matches any input to
// Coimbatore.
func NewMockRecommender() *MockRecommender {
	return &MockRecommender{
		RecommendFunc: func(_ context.Context, q models.IFSQuery) (*models.IFSResult, error) {
			res := &models.IFSResult{
				InputLocation:   q.Location,
				InputDistrict:   q.District,
				MatchedDistrict: "Coimbatore",
				Recommendations: []models.Recommendation{
					{Model: "Crop + Dairy", Description: "Maize and cotton with two crossbred cows", AgroClimaticZone: "Western Zone"},
				},
			}
			if q.District == "" {
				res.GeocodedDistrict = "Coimbatore District"
			}
			return res, nil
		},
	}
}

// NewFailingRecommender returns a MockRecommender that always returns err.
func NewFailingRecommender(err error) *MockRecommender {
	return &MockRecommender{
		RecommendFunc: func(_ context.Context, q models.IFSQuery) (*models.IFSResult, error) {
			return &models.IFSResult{InputLocation: q.Location, InputDistrict: q.District}, err
		},
	}
}

// MemoryStore is an in-memory store.Store. Ids start at 1 and increase.
type MemoryStore struct {
	mu      sync.Mutex
	entries []*models.QueryLogEntry
	nextID  int64

	// InsertErr, when set, is returned by every Insert.
	InsertErr error
	// PingErr, when set, is returned by every Ping.
	PingErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (s *MemoryStore) Ping(context.Context) error { return s.PingErr }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) Insert(_ context.Context, draft *models.QueryLogDraft) (*models.QueryLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.InsertErr != nil {
		return nil, s.InsertErr
	}
	e := &models.QueryLogEntry{ID: s.nextID, CreatedAt: time.Now().UTC(), QueryLogDraft: *draft}
	s.nextID++
	s.entries = append(s.entries, e)
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context, limit, offset int) ([]models.QueryLogSummary, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sorted := make([]*models.QueryLogEntry, len(s.entries))
	copy(sorted, s.entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID > sorted[j].ID })

	if limit <= 0 {
		limit = store.DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	out := []models.QueryLogSummary{}
	for i := offset; i < len(sorted) && len(out) < limit; i++ {
		e := sorted[i]
		out = append(out, models.QueryLogSummary{ID: e.ID, CreatedAt: e.CreatedAt, Input: e.Input, Status: e.Status})
	}
	return out, len(sorted), nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (*models.QueryLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.ID == id {
			cp := *e
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

// Len returns the number of recorded entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Compile-time checks.
var (
	_ analysis.DiseaseClassifier = (*MockClassifier)(nil)
	_ analysis.Recommender       = (*MockRecommender)(nil)
	_ store.Store                = (*MemoryStore)(nil)
)
