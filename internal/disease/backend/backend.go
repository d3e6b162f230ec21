// Package backend selects the disease classifier implementation.
package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/kiranshivaraju/agrismart/internal/config"
	"github.com/kiranshivaraju/agrismart/internal/disease"
	"github.com/kiranshivaraju/agrismart/internal/disease/tflite"
	"github.com/kiranshivaraju/agrismart/internal/disease/tfserving"
)

// NewLoader returns the disease.Loader for the configured backend.
// Called once at server startup; the loader itself runs on first use.
func NewLoader(cfg config.DiseaseConfig) (disease.Loader, error) {
	switch cfg.Backend {
	case "tflite":
		return func() (disease.Model, error) {
			return tflite.Load(cfg.ModelPath, cfg.Threads)
		}, nil
	case "tfserving":
		return func() (disease.Model, error) {
			c := tfserving.NewClient(cfg.TFServing.BaseURL, cfg.TFServing.ModelName, cfg.InputSize, cfg.TFServing.Timeout)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := c.Ready(ctx); err != nil {
				return nil, err
			}
			return c, nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown disease backend %q: must be one of tflite, tfserving", cfg.Backend)
	}
}
