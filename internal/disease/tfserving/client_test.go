package tfserving

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kiranshivaraju/agrismart/internal/disease"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewClient(ts.URL, "leaf", 2, 5*time.Second)
}

func TestPredict_ValidResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/models/leaf:predict", r.URL.Path)

		var req predictRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Instances, 1)
		require.Len(t, req.Instances[0], 2)
		assert.Equal(t, [3]float32{9, 10, 11}, req.Instances[0][1][1])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(predictResponse{Predictions: [][]float32{{0.1, 0.7, 0.2}}})
	})

	input := []float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
	scores, err := c.Predict(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.7, 0.2}, scores)
}

func TestPredict_WrongInputSize(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be called")
	})
	_, err := c.Predict(context.Background(), []float32{1, 2, 3})
	assert.Error(t, err)
}

func TestPredict_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not loaded"}`, http.StatusNotFound)
	})
	_, err := c.Predict(context.Background(), make([]float32, 12))
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestPredict_EmptyPredictions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"predictions":[]}`))
	})
	_, err := c.Predict(context.Background(), make([]float32, 12))
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestPredict_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "leaf", 2, 50*time.Millisecond)
	_, err := c.Predict(context.Background(), make([]float32, 12))
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestPredict_Unreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "leaf", 2, time.Second)
	_, err := c.Predict(context.Background(), make([]float32, 12))
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestReady(t *testing.T) {
	state := "AVAILABLE"
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models/leaf", r.URL.Path)
		w.Write([]byte(`{"model_version_status":[{"version":"1","state":"` + state + `"}]}`))
	})

	assert.NoError(t, c.Ready(context.Background()))

	state = "LOADING"
	assert.ErrorIs(t, c.Ready(context.Background()), disease.ErrModelUnavailable)
}
