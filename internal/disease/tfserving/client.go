// Package tfserving runs the disease classifier on a TensorFlow Serving
// instance through its REST API.
package tfserving

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/kiranshivaraju/agrismart/internal/disease"
)

// Sentinel errors for TensorFlow Serving failures.
var (
	ErrUnreachable = errors.New("tensorflow serving unreachable")
	ErrTimeout     = errors.New("tensorflow serving timeout")
	ErrBadResponse = errors.New("tensorflow serving returned invalid response")
)

var _ disease.Model = (*Client)(nil)

// Client implements disease.Model against /v1/models/{name}:predict.
type Client struct {
	baseURL   string
	modelName string
	inputSize int
	client    *http.Client
}

// NewClient creates a TensorFlow Serving client for a model that takes
// inputSize x inputSize x 3 images.
func NewClient(baseURL, modelName string, inputSize int, timeout time.Duration) *Client {
	return &Client{
		baseURL:   baseURL,
		modelName: modelName,
		inputSize: inputSize,
		client:    &http.Client{Timeout: timeout},
	}
}

// Ready checks that the model has a version in the AVAILABLE state.
func (c *Client) Ready(ctx context.Context) error {
	u := fmt.Sprintf("%s/v1/models/%s", c.baseURL, url.PathEscape(c.modelName))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %w", disease.ErrModelUnavailable, classifyError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: model %q status %d", disease.ErrModelUnavailable, c.modelName, resp.StatusCode)
	}

	var status modelStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("%w: decoding model status: %v", ErrBadResponse, err)
	}
	for _, v := range status.ModelVersionStatus {
		if v.State == "AVAILABLE" {
			return nil
		}
	}
	return fmt.Errorf("%w: model %q has no available version", disease.ErrModelUnavailable, c.modelName)
}

func (c *Client) Predict(ctx context.Context, input []float32) ([]float32, error) {
	n := c.inputSize
	if len(input) != n*n*3 {
		return nil, fmt.Errorf("input holds %d values, want %d", len(input), n*n*3)
	}

	body, err := json.Marshal(predictRequest{Instances: [][][][3]float32{toHWC(input, n)}})
	if err != nil {
		return nil, fmt.Errorf("encoding predict request: %w", err)
	}

	u := fmt.Sprintf("%s/v1/models/%s:predict", c.baseURL, url.PathEscape(c.modelName))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrBadResponse, resp.StatusCode, bytes.TrimSpace(msg))
	}

	var pr predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("%w: decoding predictions: %v", ErrBadResponse, err)
	}
	if len(pr.Predictions) == 0 {
		return nil, fmt.Errorf("%w: no predictions", ErrBadResponse)
	}
	return pr.Predictions[0], nil
}

func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// toHWC reshapes a flat RGB tensor into rows of pixels.
func toHWC(flat []float32, size int) [][][3]float32 {
	rows := make([][][3]float32, size)
	for y := range rows {
		rows[y] = make([][3]float32, size)
		for x := range rows[y] {
			i := (y*size + x) * 3
			rows[y][x] = [3]float32{flat[i], flat[i+1], flat[i+2]}
		}
	}
	return rows
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// --- TensorFlow Serving request/response types ---

type predictRequest struct {
	Instances [][][][3]float32 `json:"instances"`
}

type predictResponse struct {
	Predictions [][]float32 `json:"predictions"`
}

type modelStatusResponse struct {
	ModelVersionStatus []struct {
		Version string `json:"version"`
		State   string `json:"state"`
	} `json:"model_version_status"`
}
