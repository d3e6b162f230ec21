package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/kiranshivaraju/agrismart/internal/analysis"
	"github.com/kiranshivaraju/agrismart/internal/analysis/mock"
	"github.com/kiranshivaraju/agrismart/internal/api"
	"github.com/kiranshivaraju/agrismart/internal/api/handler"
	mw "github.com/kiranshivaraju/agrismart/internal/api/middleware"
	"github.com/kiranshivaraju/agrismart/internal/cache"
	"github.com/kiranshivaraju/agrismart/internal/config"
	"github.com/kiranshivaraju/agrismart/internal/ifs"
	"github.com/kiranshivaraju/agrismart/internal/store"
	"github.com/kiranshivaraju/agrismart/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// ─── test fixtures ───────────────────────────────────────────────────────────

const testRawKey = "ask_test_contract_key_1234567890"

func testKeyHash(t *testing.T) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(testRawKey), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

// newContractServer wires the real router, orchestrator, IFS table and an
// embedded SQLite store; only the disease model is faked.
func newContractServer(t *testing.T) *httptest.Server {
	t.Helper()

	st, err := store.Open(context.Background(), config.DatabaseConfig{
		URL: "sqlite://" + filepath.Join(t.TempDir(), "contract.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	c := cache.NewMemoryCache(0)
	recommender := ifs.NewRecommender(filepath.Join("..", "..", "ifs", "testdata", "ifs.csv"), nil)
	svc := analysis.NewService(mock.NewMockClassifier(), recommender, st, 0, nil)

	router := api.NewRouter(api.Dependencies{
		Auth:           mw.NewAuth(testKeyHash(t)),
		RateLimit:      mw.NewRateLimit(c, 1000),
		HealthHandler:  handler.NewHealthHandler(),
		ReadyHandler:   handler.NewReadyHandler(map[string]handler.Pinger{"database": st, "cache": c}),
		AnalyzeHandler: handler.NewAnalyzeHandler(svc, 1<<20),
		ListHistory:    handler.NewListHistoryHandler(st),
		GetHistory:     handler.NewGetHistoryHandler(st),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

// outbound turns a server-side test request into an authenticated client
// request against srv.
func outbound(t *testing.T, srv *httptest.Server, r *http.Request) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), r.Method, srv.URL+r.URL.RequestURI(), r.Body)
	require.NoError(t, err)
	req.Header = r.Header.Clone()
	req.Header.Set("Authorization", "Bearer "+testRawKey)
	return req
}

func do(t *testing.T, srv *httptest.Server, r *http.Request) *http.Response {
	t.Helper()
	resp, err := srv.Client().Do(outbound(t, srv, r))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeEntry(t *testing.T, resp *http.Response) models.QueryLogEntry {
	t.Helper()
	var env struct {
		Data models.QueryLogEntry `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env.Data
}

// ─── contract tests ──────────────────────────────────────────────────────────

func TestContract_AnalyzeThenFetch(t *testing.T) {
	srv := newContractServer(t)

	resp := do(t, srv, multipartRequest(t, map[string]string{"district": "Coimbatore", "crop": "Maize"}, jpegHeader))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeEntry(t, resp)

	assert.Equal(t, models.StatusOK, created.Status)
	require.NotNil(t, created.IFS)
	assert.Equal(t, "Coimbatore", created.IFS.MatchedDistrict)
	assert.Len(t, created.IFS.Recommendations, 2, "duplicate CSV rows collapse")
	require.NotNil(t, created.Disease)
	assert.Len(t, created.Disease.Predictions, models.DefaultTopK)

	get := httptest.NewRequest(http.MethodGet, "/api/v1/history/"+strconv.FormatInt(created.ID, 10), nil)
	resp = do(t, srv, get)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	fetched := decodeEntry(t, resp)

	assert.Equal(t, created.ID, fetched.ID)
	assert.Equal(t, created.QueryLogDraft, fetched.QueryLogDraft)
}

func TestContract_DistrictNormalization(t *testing.T) {
	srv := newContractServer(t)

	var matched []string
	for _, d := range []string{"chengalpattu ", "Chengalpattu"} {
		resp := do(t, srv, multipartRequest(t, map[string]string{"district": d}, nil))
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		e := decodeEntry(t, resp)
		require.NotNil(t, e.IFS)
		assert.Equal(t, models.StatusOK, e.Status)
		matched = append(matched, e.IFS.MatchedDistrict)
	}
	assert.Equal(t, matched[0], matched[1])
}

func TestContract_UnknownDistrictFails(t *testing.T) {
	srv := newContractServer(t)

	resp := do(t, srv, multipartRequest(t, map[string]string{"district": "Atlantis"}, nil))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	e := decodeEntry(t, resp)

	assert.Equal(t, models.StatusFailed, e.Status)
	assert.Nil(t, e.Disease)
	require.NotNil(t, e.IFS)
	assert.Contains(t, e.IFS.Error, "district not found")
}

func TestContract_ConcurrentAnalysesGetDistinctIDs(t *testing.T) {
	srv := newContractServer(t)

	const n = 8
	reqs := make([]*http.Request, n)
	for i := range reqs {
		reqs[i] = outbound(t, srv, multipartRequest(t, map[string]string{"district": "Salem"}, nil))
	}

	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for _, req := range reqs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := srv.Client().Do(req)
			if err != nil {
				t.Error(err)
				return
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusCreated {
				t.Errorf("status %d", resp.StatusCode)
				return
			}
			var env struct {
				Data models.QueryLogEntry `json:"data"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
				t.Error(err)
				return
			}
			ids <- env.Data.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[int64]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestContract_HistoryListing(t *testing.T) {
	srv := newContractServer(t)

	for range 5 {
		resp := do(t, srv, multipartRequest(t, map[string]string{"district": "Salem"}, nil))
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp := do(t, srv, httptest.NewRequest(http.MethodGet, "/api/v1/history?limit=2", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var env listEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	require.Len(t, env.Data, 2)
	assert.Greater(t, env.Data[0].ID, env.Data[1].ID)
	assert.Equal(t, 5, env.Meta.Total)
	assert.True(t, env.Meta.HasNext)
}

func TestContract_ReadyAndHealthArePublic(t *testing.T) {
	srv := newContractServer(t)

	for _, path := range []string{"/api/v1/health", "/api/v1/ready"} {
		resp, err := srv.Client().Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}
