package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/Ranker/internal/broker"
	"github.com/MikeSquared-Agency/Ranker/internal/config"
	"github.com/MikeSquared-Agency/Ranker/internal/csvimport"
	"github.com/MikeSquared-Agency/Ranker/internal/hermes"
	"github.com/MikeSquared-Agency/Ranker/internal/metrics"
	"github.com/MikeSquared-Agency/Ranker/internal/store"
	"github.com/MikeSquared-Agency/Ranker/internal/topsis"
)

type mockHermes struct {
	mu       sync.Mutex
	subjects []string
}

func (m *mockHermes) Publish(subject string, _ interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects = append(m.subjects, subject)
	return nil
}
func (m *mockHermes) Subscribe(_ string, _ func(string, []byte)) error { return nil }
func (m *mockHermes) Close()                                           {}

// failingStore breaks project reads.
type failingStore struct {
	store.Store
}

func (f failingStore) GetProject(context.Context, uuid.UUID) (*store.Project, error) {
	return nil, errors.New("database unavailable")
}

type testEnv struct {
	router http.Handler
	store  store.Store
	hermes *mockHermes
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{AdminToken: "test-token"},
		Limits: config.LimitsConfig{MaxAlternatives: 100, MaxCriteria: 10, CalculationTimeoutMs: 5000},
	}
}

func newEnvWithStore(t *testing.T, wrap func(store.Store) store.Store) *testEnv {
	t.Helper()
	s, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "ranker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	var st store.Store = s
	if wrap != nil {
		st = wrap(st)
	}
	mh := &mockHermes{}
	cfg := testConfig()
	logger := discardLogger()
	b := broker.New(st, mh, metrics.New(prometheus.NewRegistry()), cfg, logger)
	return &testEnv{router: NewRouter(st, mh, b, cfg.Server, logger), store: st, hermes: mh}
}

func newEnv(t *testing.T) *testEnv {
	return newEnvWithStore(t, nil)
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

// seedLaptops builds the three-laptop example through the API.
func (e *testEnv) seedLaptops(t *testing.T) (uuid.UUID, map[string]uuid.UUID) {
	t.Helper()
	w := e.do(t, "POST", "/api/v1/projects", `{"name":"Laptops"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	p := decode[store.Project](t, w)

	criteria := map[string]uuid.UUID{}
	for _, body := range []string{
		`{"name":"Price","criterion_type":"cost","weight":1}`,
		`{"name":"Quality","criterion_type":"benefit","weight":1}`,
		`{"name":"Performance","criterion_type":"Benefit","weight":1}`,
	} {
		w := e.do(t, "POST", "/api/v1/projects/"+p.ID.String()+"/criteria", body)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		c := decode[store.Criterion](t, w)
		criteria[c.Name] = c.ID
	}

	// Price by ID, the rest by name.
	for _, row := range []struct {
		name             string
		price, qual, prf float64
	}{{"A", 100, 8, 7}, {"B", 150, 9, 8}, {"C", 80, 6, 6}} {
		body, _ := json.Marshal(AlternativeRequest{Name: row.name, Values: []ValueInput{
			{CriterionID: criteria["Price"].String(), Value: row.price},
			{Criterion: "Quality", Value: row.qual},
			{Criterion: "Performance", Value: row.prf},
		}})
		w := e.do(t, "POST", "/api/v1/projects/"+p.ID.String()+"/alternatives", string(body))
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
	return p.ID, criteria
}

func TestProjectLifecycle(t *testing.T) {
	env := newEnv(t)
	id, criteria := env.seedLaptops(t)
	base := "/api/v1/projects/" + id.String()

	w := env.do(t, "GET", "/api/v1/projects", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]store.Project](t, w), 1)

	w = env.do(t, "GET", base, "")
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode[store.ProjectDetail](t, w)
	assert.Equal(t, "Laptops", detail.Name)
	require.Len(t, detail.Criteria, 3)
	require.Len(t, detail.Alternatives, 3)
	assert.Equal(t, topsis.Cost, detail.Criteria[0].Type)
	assert.Equal(t, 150.0, detail.Alternatives[1].Values[criteria["Price"]])

	w = env.do(t, "PATCH", base, `{"name":"Work laptops"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Work laptops", decode[store.Project](t, w).Name)

	w = env.do(t, "DELETE", base+"/criteria/"+criteria["Performance"].String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, "DELETE", base+"/criteria/"+criteria["Performance"].String(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, "DELETE", base+"/alternatives/"+detail.Alternatives[2].ID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, "GET", base, "")
	detail = decode[store.ProjectDetail](t, w)
	assert.Len(t, detail.Criteria, 2)
	assert.Len(t, detail.Alternatives, 2)

	w = env.do(t, "DELETE", base, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, "GET", base, "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, "DELETE", base, "").Code)

	assert.Contains(t, env.hermes.subjects, hermes.SubjectProjectCreated(id.String()))
	assert.Contains(t, env.hermes.subjects, hermes.SubjectProjectUpdated(id.String()))
	assert.Contains(t, env.hermes.subjects, hermes.SubjectProjectDeleted(id.String()))
}

func TestCreateProjectValidation(t *testing.T) {
	env := newEnv(t)

	assert.Equal(t, http.StatusBadRequest, env.do(t, "POST", "/api/v1/projects", `{bad`).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, "POST", "/api/v1/projects", `{"name":"  "}`).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, "GET", "/api/v1/projects/not-a-uuid", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, "GET", "/api/v1/projects/"+uuid.NewString(), "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, "GET", "/api/v1/projects?limit=-1", "").Code)
}

func TestAddCriterionRejections(t *testing.T) {
	env := newEnv(t)
	id, _ := env.seedLaptops(t)
	path := "/api/v1/projects/" + id.String() + "/criteria"

	w := env.do(t, "POST", path, `{"name":"Battery","criterion_type":"benefit","weight":0}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decode[ValidationResponse](t, w)
	assert.Equal(t, "weight", resp.Rule)
	assert.Equal(t, topsis.EntityCriterion, resp.Entity)
	assert.Equal(t, "Battery", resp.Name)
	require.NotNil(t, resp.Index)
	assert.Equal(t, 3, *resp.Index)

	w = env.do(t, "POST", path, `{"name":"Battery","criterion_type":"sideways","weight":1}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "orientation", decode[ValidationResponse](t, w).Rule)

	assert.Equal(t, http.StatusBadRequest, env.do(t, "POST", path, `{"name":"Battery","criterion_type":"benefit"}`).Code)
	assert.Equal(t, http.StatusConflict, env.do(t, "POST", path, `{"name":"Price","criterion_type":"cost","weight":1}`).Code)
	assert.Equal(t, http.StatusNotFound,
		env.do(t, "POST", "/api/v1/projects/"+uuid.NewString()+"/criteria", `{"name":"X","criterion_type":"cost","weight":1}`).Code)
}

func TestAddAlternativeRejections(t *testing.T) {
	env := newEnv(t)
	id, _ := env.seedLaptops(t)
	path := "/api/v1/projects/" + id.String() + "/alternatives"

	assert.Equal(t, http.StatusBadRequest, env.do(t, "POST", path, `{"name":""}`).Code)
	assert.Equal(t, http.StatusBadRequest,
		env.do(t, "POST", path, `{"name":"D","values":[{"criterion":"Weight","value":1}]}`).Code)
	assert.Equal(t, http.StatusBadRequest,
		env.do(t, "POST", path, `{"name":"D","values":[{"criterion_id":"`+uuid.NewString()+`","value":1}]}`).Code)
	assert.Equal(t, http.StatusBadRequest,
		env.do(t, "POST", path, `{"name":"D","values":[{"value":1}]}`).Code)
	assert.Equal(t, http.StatusBadRequest,
		env.do(t, "POST", path, `{"name":"D","values":[{"criterion":"Price","value":1},{"criterion":"Price","value":2}]}`).Code)
	assert.Equal(t, http.StatusConflict, env.do(t, "POST", path, `{"name":"A"}`).Code)
}

func TestCalculateAndResults(t *testing.T) {
	env := newEnv(t)
	id, _ := env.seedLaptops(t)
	base := "/api/v1/projects/" + id.String()

	assert.Equal(t, http.StatusNotFound, env.do(t, "GET", base+"/results", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, "GET", base+"/explain", "").Code)

	w := env.do(t, "POST", base+"/calculate", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	calc := decode[store.Calculation](t, w)
	require.NotNil(t, calc.Result)
	assert.Equal(t, []string{"A", "C", "B"}, calc.Result.RankedNames())
	assert.InDelta(t, 0.670, calc.Result.Ranking[0].Closeness, 0.001)
	assert.Len(t, calc.Result.Normalized, 3)

	w = env.do(t, "GET", base+"/results", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, calc.ID, decode[store.Calculation](t, w).ID)

	w = env.do(t, "GET", base+"/explain", "")
	require.Equal(t, http.StatusOK, w.Code)
	explain := decode[ExplainResponse](t, w)
	assert.False(t, explain.Stale)
	assert.Equal(t, []string{"A", "B", "C"}, explain.Frontier)

	// D is beaten by A on every criterion.
	w = env.do(t, "POST", base+"/alternatives",
		`{"name":"D","values":[{"criterion":"Price","value":120},{"criterion":"Quality","value":7},{"criterion":"Performance","value":6}]}`)
	require.Equal(t, http.StatusCreated, w.Code)
	explain = decode[ExplainResponse](t, env.do(t, "GET", base+"/explain", ""))
	assert.True(t, explain.Stale)
	assert.NotContains(t, explain.Frontier, "D")

	assert.Contains(t, env.hermes.subjects, hermes.SubjectCalculationCompleted(id.String()))
}

func TestCalculateRejections(t *testing.T) {
	env := newEnv(t)

	assert.Equal(t, http.StatusNotFound, env.do(t, "POST", "/api/v1/projects/"+uuid.NewString()+"/calculate", "").Code)

	w := env.do(t, "POST", "/api/v1/projects", `{"name":"Empty"}`)
	empty := decode[store.Project](t, w)
	w = env.do(t, "POST", "/api/v1/projects/"+empty.ID.String()+"/calculate", "")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "empty_input", decode[ValidationResponse](t, w).Rule)

	id, _ := env.seedLaptops(t)
	base := "/api/v1/projects/" + id.String()
	w = env.do(t, "POST", base+"/criteria", `{"name":"Battery","criterion_type":"benefit","weight":1}`)
	require.Equal(t, http.StatusCreated, w.Code)
	w = env.do(t, "POST", base+"/calculate", "")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "missing_value", decode[ValidationResponse](t, w).Rule)
	assert.Contains(t, env.hermes.subjects, hermes.SubjectCalculationFailed(id.String()))
}

func TestCompute(t *testing.T) {
	env := newEnv(t)

	body := `{
		"criteria": [
			{"name":"Price","weight":1,"orientation":"cost"},
			{"name":"Quality","weight":1,"orientation":"benefit"},
			{"name":"Performance","weight":1,"orientation":"benefit"}
		],
		"alternatives": [
			{"name":"A","values":[100,8,7]},
			{"name":"B","values":[150,9,8]},
			{"name":"C","values":[80,6,6]}
		]
	}`
	w := env.do(t, "POST", "/api/v1/compute", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[topsis.Result](t, w)
	assert.Equal(t, []string{"A", "C", "B"}, res.RankedNames())

	w = env.do(t, "POST", "/api/v1/compute", `{
		"criteria": [{"name":"Price","weight":1,"orientation":"cost"}],
		"alternatives": [{"name":"A","values":[1]},{"name":"B","values":[1,2]}]
	}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decode[ValidationResponse](t, w)
	assert.Equal(t, "shape", resp.Rule)
	assert.Equal(t, "B", resp.Name)
	require.NotNil(t, resp.Index)
	assert.Equal(t, 1, *resp.Index)

	assert.Equal(t, http.StatusBadRequest, env.do(t, "POST", "/api/v1/compute", `[`).Code)
	assert.Empty(t, env.hermes.subjects)
}

func TestComputeOrientationCaseInsensitive(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, "POST", "/api/v1/compute", `{
		"criteria": [
			{"name":"Price","weight":1,"orientation":"Cost"},
			{"name":"Quality","weight":1,"orientation":"Benefit"},
			{"name":"Performance","weight":1,"orientation":" BENEFIT "}
		],
		"alternatives": [
			{"name":"A","values":[100,8,7]},
			{"name":"B","values":[150,9,8]},
			{"name":"C","values":[80,6,6]}
		]
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[topsis.Result](t, w)
	assert.Equal(t, []string{"A", "C", "B"}, res.RankedNames())

	w = env.do(t, "POST", "/api/v1/compute", `{
		"criteria": [{"name":"Price","weight":1,"orientation":"sideways"}],
		"alternatives": [{"name":"A","values":[1]}]
	}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decode[ValidationResponse](t, w)
	assert.Equal(t, "orientation", resp.Rule)
	assert.Equal(t, "Price", resp.Name)
}

const laptopCSV = "Laptop,Price,Quality,Performance\nA,100,8,7\nB,150,9,8\nC,80,6,6\n"

func TestCSVPreview(t *testing.T) {
	env := newEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "laptops.csv")
	require.NoError(t, err)
	_, _ = part.Write([]byte(laptopCSV))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/v1/csv/preview", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var preview struct {
		Columns   []string            `json:"columns"`
		Preview   []map[string]string `json:"preview"`
		TotalRows int                 `json:"total_rows"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&preview))
	assert.Equal(t, []string{"Laptop", "Price", "Quality", "Performance"}, preview.Columns)
	assert.Equal(t, 3, preview.TotalRows)
	assert.Equal(t, "80", preview.Preview[2]["Price"])

	assert.Equal(t, http.StatusBadRequest, env.do(t, "POST", "/api/v1/csv/preview", "").Code)
}

func TestCSVImport(t *testing.T) {
	env := newEnv(t)

	req := ImportRequest{
		ProjectName: "Imported laptops",
		CSVData:     laptopCSV,
		Criteria: []csvimport.CriterionSpec{
			{Name: "Price", Type: "cost", Weight: 1},
			{Name: "Quality", Type: "benefit", Weight: 1},
			{Name: "Performance", Type: "benefit", Weight: 1},
		},
	}
	body, _ := json.Marshal(req)
	w := env.do(t, "POST", "/api/v1/csv/import", string(body))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	detail := decode[store.ProjectDetail](t, w)
	assert.Len(t, detail.Alternatives, 3)

	w = env.do(t, "POST", "/api/v1/projects/"+detail.ID.String()+"/calculate", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"A", "C", "B"}, decode[store.Calculation](t, w).Result.RankedNames())
	assert.Contains(t, env.hermes.subjects, hermes.SubjectProjectCreated(detail.ID.String()))

	tests := []struct {
		name   string
		mutate func(*ImportRequest)
		status int
		rule   string
	}{
		{"missing fields", func(r *ImportRequest) { r.ProjectName = "" }, http.StatusBadRequest, ""},
		{"bad csv", func(r *ImportRequest) { r.CSVData = "Laptop,Price\nA,cheap\n" }, http.StatusBadRequest, ""},
		{"unknown column", func(r *ImportRequest) { r.Criteria[0].Name = "Weight" }, http.StatusBadRequest, ""},
		{"bad orientation", func(r *ImportRequest) { r.Criteria[0].Type = "sideways" }, http.StatusUnprocessableEntity, "orientation"},
		{"bad weight", func(r *ImportRequest) { r.Criteria[0].Weight = -1 }, http.StatusUnprocessableEntity, "weight"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := req
			r.Criteria = append([]csvimport.CriterionSpec(nil), req.Criteria...)
			tt.mutate(&r)
			body, _ := json.Marshal(r)
			w := env.do(t, "POST", "/api/v1/csv/import", string(body))
			require.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.rule != "" {
				assert.Equal(t, tt.rule, decode[ValidationResponse](t, w).Rule)
			}
		})
	}
}

func TestAdminStats(t *testing.T) {
	env := newEnv(t)
	env.seedLaptops(t)

	assert.Equal(t, http.StatusUnauthorized, env.do(t, "GET", "/api/v1/admin/stats", "").Code)

	req := httptest.NewRequest("GET", "/api/v1/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer test-token")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[store.Stats](t, w)
	assert.Equal(t, 1, stats.Projects)
	assert.Equal(t, 3, stats.Criteria)
	assert.Equal(t, 3, stats.Alternatives)
}

func TestStoreFailure(t *testing.T) {
	env := newEnvWithStore(t, func(s store.Store) store.Store { return failingStore{s} })

	w := env.do(t, "GET", "/api/v1/projects/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, decode[map[string]string](t, w)["error"], "database unavailable")

	w = env.do(t, "POST", "/api/v1/projects/"+uuid.NewString()+"/calculate", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestMetricsRouter(t *testing.T) {
	router := NewMetricsRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "ok"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
