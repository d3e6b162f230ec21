// Package disease classifies leaf images into plant disease labels. The
// classifier model itself is pluggable; see the tflite and tfserving
// subpackages.
package disease

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/kiranshivaraju/agrismart/internal/lazy"
	"github.com/kiranshivaraju/agrismart/internal/metrics"
	"github.com/kiranshivaraju/agrismart/pkg/models"
)

var (
	ErrModelUnavailable = errors.New("disease model unavailable")
	ErrInvalidImage     = errors.New("invalid leaf image")
	ErrInference        = errors.New("disease inference failed")
)

// Model runs the classifier on one preprocessed input tensor and returns one
// score per class. Implementations must be safe for concurrent use.
type Model interface {
	Predict(ctx context.Context, input []float32) ([]float32, error)
	Close() error
}

// Loader creates a Model. It is called on first use and again after a failure.
type Loader func() (Model, error)

// Service classifies leaf images. The model and class labels are loaded on
// the first Classify call and shared by all later calls.
type Service struct {
	model     *lazy.Value[Model]
	labels    *lazy.Value[[]string]
	inputSize int
	metrics   *metrics.Metrics

	// MaxPixels caps the decoded image size. Zero means DefaultMaxPixels.
	MaxPixels int
}

// NewService creates a Service. Nothing is loaded until the first Classify.
func NewService(load Loader, classesPath string, inputSize int, m *metrics.Metrics) *Service {
	return &Service{
		model: lazy.New(func() (Model, error) {
			model, err := load()
			m.RecordModelLoad(err)
			if err != nil {
				slog.Warn("disease model load failed", "error", err)
				return nil, err
			}
			slog.Info("disease model loaded")
			return model, nil
		}),
		labels: lazy.New(func() ([]string, error) {
			return LoadLabels(classesPath)
		}),
		inputSize: inputSize,
		metrics:   m,
	}
}

// Classify returns the topK most likely labels for image, sorted by
// confidence descending.
func (s *Service) Classify(ctx context.Context, image []byte, topK int) (*models.DiseaseResult, error) {
	labels, err := s.labels.Get()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	model, err := s.model.Get()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	input, err := Preprocess(image, s.inputSize, s.MaxPixels)
	if err != nil {
		return nil, err
	}

	scores, err := model.Predict(ctx, input)
	if err != nil {
		if errors.Is(err, ErrModelUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}

	preds, err := rank(labels, scores, topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}
	return &models.DiseaseResult{Predictions: preds}, nil
}

// Close releases the model if it was loaded.
func (s *Service) Close() error {
	if model, ok := s.model.Peek(); ok && model != nil {
		return model.Close()
	}
	return nil
}

// LoadLabels reads a classes file: one label per line, blank lines ignored.
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open classes file: %w", err)
	}
	defer f.Close()

	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if label := strings.TrimSpace(scanner.Text()); label != "" {
			labels = append(labels, label)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read classes file: %w", err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("classes file %s is empty", path)
	}
	return labels, nil
}
