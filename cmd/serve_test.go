package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracewire/tracewire/internal/correlate"
	"github.com/tracewire/tracewire/internal/directory"
	"github.com/tracewire/tracewire/internal/ledger"
	"github.com/tracewire/tracewire/internal/model"
	"github.com/tracewire/tracewire/internal/store"
	"github.com/tracewire/tracewire/internal/tracker"
)

// stubQuerier answers every module query with a canned identity reply.
type stubQuerier struct{}

func (stubQuerier) Send(_ context.Context, module string, _ model.SearchType, _ string, _ time.Duration) (*correlate.Reply, error) {
	return &correlate.Reply{
		QueryID: module,
		Bot:     "@TrueDialLookup_bot",
		Texts:   []string{"Name: RAHUL SHARMA\nCity: Mumbai\nState: Maharashtra\nOperator: Jio\nAddress: 42 MG Road"},
	}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	l := ledger.New(st)
	tr := tracker.New(st, l, stubQuerier{}, directory.Default(),
		tracker.WithQueryRate(time.Millisecond),
		tracker.WithJitter(0),
	)

	srv := httptest.NewServer(newRouter(tr, l, st))
	t.Cleanup(srv.Close)
	return srv, st
}

func createServerUser(t *testing.T, st store.Store, credits int64) string {
	t.Helper()
	u := &model.User{ID: uuid.New().String(), Name: "analyst", Credits: credits, CreatedAt: time.Now().UTC()}
	require.NoError(t, st.CreateUser(context.Background(), u))
	return u.ID
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, body any, out any) int {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestServe_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	var body map[string]any
	status := getJSON(t, srv.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestServe_Modules(t *testing.T) {
	srv, _ := newTestServer(t)

	var catalog []model.ModuleInfo
	status := getJSON(t, srv.URL+"/api/modules", &catalog)
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, catalog, 9)
	assert.Equal(t, model.ModuleIdentity, catalog[0].Name)
}

func TestServe_SubmitSearch_InvalidBody(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/searches", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServe_SubmitSearch_UnknownModule(t *testing.T) {
	srv, st := newTestServer(t)
	userID := createServerUser(t, st, 100)

	status := postJSON(t, srv.URL+"/api/searches", map[string]any{
		"user_id": userID,
		"type":    "phone",
		"value":   "9812345678",
		"modules": []string{"astrology"},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestServe_SubmitSearch_InsufficientCredits(t *testing.T) {
	srv, st := newTestServer(t)
	userID := createServerUser(t, st, 1)

	status := postJSON(t, srv.URL+"/api/searches", map[string]any{
		"user_id": userID,
		"type":    "phone",
		"value":   "9812345678",
		"modules": []string{model.ModuleIdentity},
	}, nil)
	assert.Equal(t, http.StatusPaymentRequired, status)
}

func TestServe_SearchLifecycle(t *testing.T) {
	srv, st := newTestServer(t)
	userID := createServerUser(t, st, 100)

	var search model.Search
	status := postJSON(t, srv.URL+"/api/searches", map[string]any{
		"user_id": userID,
		"case_id": "case-9",
		"type":    "phone",
		"value":   "9812345678",
		"modules": []string{model.ModuleIdentity},
	}, &search)
	require.Equal(t, http.StatusAccepted, status)
	require.NotEmpty(t, search.ID)

	// Execution is async; poll until terminal.
	var result tracker.Result
	require.Eventually(t, func() bool {
		if getJSON(t, srv.URL+"/api/searches/"+search.ID, &result) != http.StatusOK {
			return false
		}
		return result.Search.Status.Terminal()
	}, 5*time.Second, 50*time.Millisecond)

	assert.Equal(t, model.StatusCompleted, result.Search.Status)
	assert.Equal(t, int64(5), result.CreditsUsed)
	require.NotNil(t, result.Summary)
	assert.Equal(t, "RAHUL SHARMA", result.Summary.Identity.PrimaryName)

	// Case listing includes the search.
	var searches []model.Search
	status = getJSON(t, srv.URL+"/api/cases/case-9/searches", &searches)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, searches, 1)

	// Stats reflect the completed search.
	var stats tracker.Stats
	status = getJSON(t, srv.URL+"/api/users/"+userID+"/stats", &stats)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, int64(5), stats.CreditsSpent)
}

func TestServe_GetSearch_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	status := getJSON(t, srv.URL+"/api/searches/nope", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServe_Credits(t *testing.T) {
	srv, st := newTestServer(t)
	userID := createServerUser(t, st, 10)

	var balance map[string]any
	status := getJSON(t, srv.URL+"/api/users/"+userID+"/credits", &balance)
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 10, balance["credits"])

	var txn model.CreditTransaction
	status = postJSON(t, srv.URL+"/api/users/"+userID+"/credits", map[string]any{
		"amount":      50,
		"actor":       "admin-1",
		"description": "top-up",
	}, &txn)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, int64(60), txn.BalanceAfter)

	var txns []model.CreditTransaction
	status = getJSON(t, srv.URL+"/api/users/"+userID+"/transactions", &txns)
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, txns, 1)
}

func TestServe_Credits_RejectsNonPositive(t *testing.T) {
	srv, st := newTestServer(t)
	userID := createServerUser(t, st, 10)

	status := postJSON(t, srv.URL+"/api/users/"+userID+"/credits", map[string]any{
		"amount": -5,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestServe_Credits_UnknownUser(t *testing.T) {
	srv, _ := newTestServer(t)

	status := getJSON(t, srv.URL+"/api/users/ghost/credits", nil)
	assert.Equal(t, http.StatusNotFound, status)
}
