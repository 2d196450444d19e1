package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hannes/gridfinity-cutout/config"
	"github.com/hannes/gridfinity-cutout/dimensions"
	"github.com/hannes/gridfinity-cutout/export"
	"github.com/hannes/gridfinity-cutout/files"
	"github.com/hannes/gridfinity-cutout/gridfinity"
	"github.com/hannes/gridfinity-cutout/identify"
	"github.com/hannes/gridfinity-cutout/storage"
)

type fakeIdentifier struct {
	mu       sync.Mutex
	lastMIME string
	err      error
}

func (f *fakeIdentifier) GetName() string { return "fake" }

func (f *fakeIdentifier) IdentifyText(_ context.Context, text string) (identify.Response, error) {
	if f.err != nil {
		return identify.Response{}, f.err
	}
	return identify.Response{
		Item:       text,
		Candidates: []identify.Candidate{{ID: identify.Slug(text), Name: text, Confidence: 0.9}},
	}, nil
}

func (f *fakeIdentifier) IdentifyImage(_ context.Context, _ []byte, mime string) (identify.Response, error) {
	f.mu.Lock()
	f.lastMIME = mime
	f.mu.Unlock()
	return identify.Response{Item: "photo"}, nil
}

func (f *fakeIdentifier) Close() error { return nil }

type fakeFetcher struct {
	result *dimensions.Result
	err    error
}

func (f *fakeFetcher) Fetch(_ context.Context, q dimensions.Query) (*dimensions.Result, string, error) {
	if q.ID == "" && q.Text == "" && len(q.URLs) == 0 {
		return nil, "", dimensions.ErrNoQuery
	}
	if f.err != nil {
		return nil, "", f.err
	}
	return f.result, "", nil
}

type testEnv struct {
	srv        *Server
	handler    http.Handler
	files      *files.Store
	log        *storage.MemoryStore
	identifier *fakeIdentifier
	fetcher    *fakeFetcher
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Logging.LogRequests = false
	cfg.RateLimit.RequestsPerMinute = 0
	cfg.Generator.PreviewSize = 64
	if mutate != nil {
		mutate(cfg)
	}

	logger := zaptest.NewLogger(t)
	store, err := files.NewStore(t.TempDir(), time.Minute, logger)
	require.NoError(t, err)
	log := storage.NewMemoryStore()
	t.Cleanup(func() { _ = log.Close() })

	env := &testEnv{
		files:      store,
		log:        log,
		identifier: &fakeIdentifier{},
		fetcher: &fakeFetcher{result: &dimensions.Result{
			ItemID:     "Q123",
			Name:       "Widget",
			Dims:       map[string]float64{"L": 60, "W": 40, "H": 30},
			Source:     "wikidata",
			Confidence: 0.876,
		}},
	}
	env.srv, err = NewServer(cfg, Deps{
		Identifier: env.identifier,
		Dimensions: env.fetcher,
		Files:      store,
		Log:        log,
		Logger:     logger,
	})
	require.NoError(t, err)
	env.handler = env.srv.Handler()
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) get(path string) *httptest.ResponseRecorder {
	return e.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (e *testEnv) postJSON(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return e.do(req)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestNewServerRequiresDeps(t *testing.T) {
	_, err := NewServer(config.DefaultConfig(), Deps{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.get("/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := env.do(req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/identify", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	rec := env.do(req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "content-type", rec.Header().Get("Access-Control-Allow-Headers"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")

	rec = env.get("/health")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestIdentifyText(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.postJSON("/identify", `{"input":"  Nintendo Switch  "}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp identify.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Nintendo Switch", resp.Item)
	require.Len(t, resp.Candidates, 1)
	assert.Equal(t, "nintendo_switch", resp.Candidates[0].ID)

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ``},
		{"blank input", `{"input":"   "}`},
		{"bad json", `{"input":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.postJSON("/identify", tt.body)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.NotEmpty(t, decodeBody(t, rec)["detail"])
		})
	}

	env.identifier.err = errors.New("backend down")
	rec = env.postJSON("/identify", `{"input":"thing"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "identification failed", decodeBody(t, rec)["detail"])
}

func multipartImage(t *testing.T, field string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, "photo.png")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/identify-image", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestIdentifyImage(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(multipartImage(t, "file", pngBytes(t)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", env.identifier.lastMIME)
	assert.Equal(t, []any{}, decodeBody(t, rec)["candidates"])

	rec = env.do(multipartImage(t, "file", []byte("definitely not an image")))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = env.do(multipartImage(t, "other", pngBytes(t)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestIdentifyImageTooLarge(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Server.MaxUploadBytes = 16 })
	rec := env.do(multipartImage(t, "file", pngBytes(t)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestDimensions(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.get("/dimensions?id=Q123")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "Q123", body["id"])
	assert.Equal(t, 0.88, body["confidence"])
	assert.Equal(t, []any{}, body["evidence"])
	assert.Equal(t, map[string]any{"L": 60.0, "W": 40.0, "H": 30.0}, body["dims_mm"])

	rec = env.get("/dimensions")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.fetcher.err = dimensions.ErrNotFound
	rec = env.get("/dimensions?q=nothing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Dimensions not found", decodeBody(t, rec)["detail"])

	env.fetcher.err = errors.New("upstream timeout")
	rec = env.get("/dimensions?q=anything")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestProposals(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.postJSON("/proposals", `{"item_id":"Q1","dims_mm":{"L":60,"W":40,"H":30}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Proposals []gridfinity.Proposal `json:"proposals"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, gridfinity.GenerateProposals(gridfinity.Dims{L: 60, W: 40, H: 30}), resp.Proposals)

	rec = env.postJSON("/proposals", `{"dims_mm":{"L":0,"W":40,"H":30}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSTL(t *testing.T) {
	env := newTestEnv(t, nil)
	dims := gridfinity.Dims{L: 60, W: 40, H: 30}
	proposal := gridfinity.GenerateProposals(dims)[0]

	body, err := json.Marshal(map[string]any{
		"item_id":  "../Widget",
		"dims_mm":  dims,
		"proposal": proposal,
	})
	require.NoError(t, err)
	rec := env.postJSON("/stl", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Files []generatedFile `json:"files"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Files, 1)
	name := proposal.FileName("Widget")
	assert.Equal(t, "/files/stl/"+name, resp.Files[0].URL)
	assert.Equal(t, proposal.Type, resp.Files[0].Type)
	assert.Equal(t, "/files/stl/"+strings.TrimSuffix(name, ".stl")+".png", resp.Files[0].PreviewURL)

	info, err := os.Stat(filepath.Join(env.files.NamedPath(), name))
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(84))

	rec = env.get(resp.Files[0].URL)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int(info.Size()), rec.Body.Len())

	rec = env.get(resp.Files[0].PreviewURL)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	rec = env.get("/files/stl/")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSTLWithoutPreview(t *testing.T) {
	env := newTestEnv(t, nil)
	body := `{"item_id":"box","proposal":{"type":"multi","x_slots":2,"y_slots":1,"z_units":3,"compartments":2},"options":{"preview":false}}`
	rec := env.postJSON("/stl", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Files []generatedFile `json:"files"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Files, 1)
	assert.Equal(t, "/files/stl/box_multi_2x1x3.stl", resp.Files[0].URL)
	assert.Empty(t, resp.Files[0].PreviewURL)
}

func TestSTLItemIDsMakeResolvableURLs(t *testing.T) {
	env := newTestEnv(t, nil)
	tests := []struct {
		itemID string
		want   string
	}{
		{"a#b", "/files/stl/a_b_multi_1x1x3.stl"},
		{"x%41y", "/files/stl/x_41y_multi_1x1x3.stl"},
		{"ok_id", "/files/stl/ok_id_multi_1x1x3.stl"},
		{"two words?", "/files/stl/two_words__multi_1x1x3.stl"},
	}
	for _, tt := range tests {
		t.Run(tt.itemID, func(t *testing.T) {
			body, err := json.Marshal(map[string]any{
				"item_id":  tt.itemID,
				"proposal": gridfinity.Proposal{Type: gridfinity.ProposalMulti, XSlots: 1, YSlots: 1, ZUnits: 3, Compartments: 2},
				"options":  map[string]bool{"preview": false},
			})
			require.NoError(t, err)
			rec := env.postJSON("/stl", string(body))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var resp struct {
				Files []generatedFile `json:"files"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.Len(t, resp.Files, 1)
			assert.Equal(t, tt.want, resp.Files[0].URL)

			rec = env.get(resp.Files[0].URL)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Greater(t, rec.Body.Len(), 84)
		})
	}
}

func TestSTLRejectsBadProposals(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Generator.MaxCompartments = 30 })
	tests := []struct {
		name     string
		proposal string
		wantMsg  string
	}{
		{"empty", `{"type":"snug"}`, ""},
		{"too many compartments", `{"type":"multi","x_slots":2,"y_slots":1,"z_units":3,"compartments":100000}`, "compartments must be at most 30"},
		{"too many slots", `{"type":"multi","x_slots":11,"y_slots":1,"z_units":3}`, "must be at most 10"},
		{"too tall", `{"type":"multi","x_slots":1,"y_slots":1,"z_units":500}`, "must be at most 10"},
		{"cells thinner than walls", `{"type":"multi","x_slots":1,"y_slots":1,"z_units":3,"compartments":24}`, "too many compartments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.postJSON("/stl", `{"item_id":"x","proposal":`+tt.proposal+`}`)
			require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
			if tt.wantMsg != "" {
				assert.Contains(t, decodeBody(t, rec)["detail"], tt.wantMsg)
			}
		})
	}
}

func TestGenerateAndDownload(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, ext := range []string{"stl", "step"} {
		t.Run(ext, func(t *testing.T) {
			rec := env.get("/generate?width=50&length=30&height=10&filetype=" + ext)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			url, _ := decodeBody(t, rec)["download_url"].(string)
			require.True(t, strings.HasPrefix(url, "/download/"), url)
			require.True(t, strings.HasSuffix(url, "?filetype="+ext), url)

			rec = env.get(url)
			require.Equal(t, http.StatusOK, rec.Code)
			token := strings.TrimSuffix(strings.TrimPrefix(url, "/download/"), "?filetype="+ext)
			assert.Equal(t, `attachment; filename="gridfinity_container_`+token+`.`+ext+`"`, rec.Header().Get("Content-Disposition"))
			assert.Equal(t, contentTypes[export.Format(ext)], rec.Header().Get("Content-Type"))
			assert.NotZero(t, rec.Body.Len())
		})
	}

	rec := env.get("/generate")
	require.Equal(t, http.StatusOK, rec.Code)
	url, _ := decodeBody(t, rec)["download_url"].(string)
	assert.True(t, strings.HasSuffix(url, "?filetype=stl"))
}

func TestGenerateValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	tests := []struct {
		name  string
		query string
	}{
		{"zero width", "width=0"},
		{"negative height", "height=-5"},
		{"not a number", "length=abc"},
		{"float", "width=4.5"},
		{"too large", "width=5000"},
		{"bad filetype", "filetype=obj"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.get("/generate?" + tt.query)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.NotEmpty(t, decodeBody(t, rec)["detail"])
		})
	}
}

func TestDownloadErrors(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.get("/download/not-a-token?filetype=stl")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "File not found or expired.", decodeBody(t, rec)["error"])

	rec = env.get("/download/0b9c4a5e-1d2f-4e6a-8b7c-9d0e1f2a3b4c?filetype=stl")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.get("/download/0b9c4a5e-1d2f-4e6a-8b7c-9d0e1f2a3b4c?filetype=obj")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	token, err := env.files.CreateToken("stl", func(w io.Writer) error {
		_, err := w.Write([]byte("solid x\nendsolid x\n"))
		return err
	})
	require.NoError(t, err)
	old := time.Now().Add(-2 * time.Hour)
	path := filepath.Join(env.files.Root(), files.TempDir, token+".stl")
	require.NoError(t, os.Chtimes(path, old, old))

	rec = env.get("/download/" + token + "?filetype=stl")
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, "File expired.", decodeBody(t, rec)["error"])

	rec = env.get("/download/" + token + "?filetype=stl")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.RateLimit.RequestsPerMinute = 1
		c.RateLimit.Burst = 2
	})

	for range 2 {
		rec := env.get("/generate?width=10&length=10&height=10")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := env.get("/generate?width=10&length=10&height=10")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, decodeBody(t, rec)["detail"], "rate limit exceeded")

	// other routes are not limited
	assert.Equal(t, http.StatusOK, env.get("/health").Code)
}

func TestIPLimiterPerClient(t *testing.T) {
	l := newIPLimiter(60, 1)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	ok, _ := l.reserve("10.0.0.1")
	assert.True(t, ok)
	ok, wait := l.reserve("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)
	ok, _ = l.reserve("10.0.0.2")
	assert.True(t, ok)

	now = now.Add(time.Second)
	ok, _ = l.reserve("10.0.0.1")
	assert.True(t, ok)

	assert.Nil(t, newIPLimiter(0, 5))
}

func TestLogs(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.get("/logs")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, []any{}, body["logs"])
	assert.Equal(t, 100.0, body["limit"])

	env.postJSON("/identify", `{"input":"first"}`)
	env.postJSON("/identify", `{"input":"second"}`)

	rec = env.get("/logs?limit=1&offset=0")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Logs  []storage.Event `json:"logs"`
		Total int             `json:"total"`
		Limit int             `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, 1, resp.Limit)
	require.Len(t, resp.Logs, 1)
	assert.Equal(t, "second", resp.Logs[0].Detail)
	assert.Equal(t, "identify", resp.Logs[0].Kind)

	rec = env.get("/logs?limit=5000")
	assert.Equal(t, 1000.0, decodeBody(t, rec)["limit"])
}

func TestLogsUnavailable(t *testing.T) {
	cfg := config.DefaultConfig()
	store, err := files.NewStore(t.TempDir(), time.Minute, nil)
	require.NoError(t, err)
	srv, err := NewServer(cfg, Deps{Identifier: &fakeIdentifier{}, Dimensions: &fakeFetcher{}, Files: store})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logs", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t, nil)
	env.get("/health")
	env.get("/dimensions?id=Q1")
	env.get("/no-such-route")

	rec := env.get("/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	text := rec.Body.String()
	assert.Contains(t, text, `gridfinity_http_requests_total{code="200",method="GET",route="GET /health"} 1`)
	assert.Contains(t, text, `route="unmatched"`)
	assert.Contains(t, text, `gridfinity_dimension_lookups_total{source="wikidata"} 1`)
	assert.Contains(t, text, `gridfinity_dimension_cache_total{result="miss"} 1`)
	assert.Contains(t, text, "go_goroutines")
}

func TestRecoverPanics(t *testing.T) {
	env := newTestEnv(t, nil)
	h := env.srv.recoverPanics(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decodeBody(t, rec)["detail"])
}

func TestServeUI(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>cutouts</h1>"), 0o644))
	env := newTestEnv(t, func(c *config.Config) { c.Server.UIPath = dir })

	rec := env.get("/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cutouts")
}

func TestStartShutsDownOnCancel(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Server.Port = "127.0.0.1:0" })
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.srv.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
