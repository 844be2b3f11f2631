package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/blograg/internal/domain"
	assistantuc "github.com/kailas-cloud/blograg/internal/usecase/assistant"
	healthuc "github.com/kailas-cloud/blograg/internal/usecase/health"
	imagegenuc "github.com/kailas-cloud/blograg/internal/usecase/imagegen"
	indexeruc "github.com/kailas-cloud/blograg/internal/usecase/indexer"
	lifecycleuc "github.com/kailas-cloud/blograg/internal/usecase/lifecycle"
	uploadsuc "github.com/kailas-cloud/blograg/internal/usecase/uploads"
)

// --- Mocks ---

type stubPosts struct {
	posts []domain.Post
}

func (s *stubPosts) ListIndexable(_ context.Context, _ int) ([]domain.Post, error) {
	return s.posts, nil
}

func (s *stubPosts) GetByID(_ context.Context, id int64) (domain.Post, error) {
	for _, p := range s.posts {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Post{}, domain.ErrPostNotFound
}

func (s *stubPosts) Eligible(p domain.Post) bool { return len(p.Content) > 50 }

func (s *stubPosts) Ping(_ context.Context) error { return nil }

type stubVectors struct {
	total   int
	matches []domain.Match
}

func (s *stubVectors) Upsert(_ context.Context, records []domain.VectorRecord) int {
	return len(records)
}

func (s *stubVectors) DeleteByPost(_ context.Context, _ int64) (int, error) { return 3, nil }

func (s *stubVectors) DeleteAll(_ context.Context) (int, error) { return s.total, nil }

func (s *stubVectors) Query(_ context.Context, _ []float32, _ int) ([]domain.Match, error) {
	return s.matches, nil
}

func (s *stubVectors) Stats(_ context.Context) (int, error) { return s.total, nil }

func (s *stubVectors) EnsureIndex(_ context.Context) (bool, error) { return false, nil }

func (s *stubVectors) Ping(_ context.Context) error { return nil }

type stubEmbedder struct{}

func (s *stubEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: []float32{0.1}}, nil
}

type stubGenerator struct{ text string }

func (s *stubGenerator) Generate(_ context.Context, _ domain.GenerationRequest) (domain.GenerationResult, error) {
	return domain.GenerationResult{Text: s.text}, nil
}

func (s *stubGenerator) HealthCheck(_ context.Context) error { return nil }

type stubProvider struct{ lastReq domain.ImageRequest }

func (s *stubProvider) Fetch(_ context.Context, req domain.ImageRequest) (domain.ImageResponse, error) {
	s.lastReq = req
	return domain.ImageResponse{StatusCode: 200, ContentType: "image/webp", Body: []byte("img")}, nil
}

type testEnv struct {
	server   *httptest.Server
	manager  *lifecycleuc.Manager
	provider *stubProvider
}

func newTestEnv(t *testing.T, vectors *stubVectors, initialize bool) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	posts := &stubPosts{posts: []domain.Post{
		{ID: 1, Title: "A post", Content: strings.Repeat("real content. ", 20)},
	}}
	gen := &stubGenerator{text: "a helpful answer"}

	indexSvc := indexeruc.New(posts, vectors, &stubEmbedder{}, logger)
	assistantSvc := assistantuc.New(vectors, &stubEmbedder{}, gen, logger)

	uploadSvc, err := uploadsuc.New(t.TempDir(), logger)
	if err != nil {
		t.Fatal(err)
	}
	provider := &stubProvider{}
	imageSvc := imagegenuc.New(nil, provider, uploadSvc.Dir(), logger).
		WithRetryPolicy(1, 0)
	healthSvc := healthuc.New(posts, vectors, gen, logger)

	manager := lifecycleuc.New(posts, vectors, gen, indexSvc, logger).
		WithWarmStart(0, 0)
	if initialize && !manager.InitializeAll(context.Background()) {
		t.Fatal("test initialization failed")
	}

	srv := NewServer(indexSvc, assistantSvc, imageSvc, uploadSvc, healthSvc, manager, vectors,
		Defaults{IndexLimit: 50, ChunkSize: 1000}, logger)

	r := chi.NewRouter()
	srv.Routes(r)

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, manager: manager, provider: provider}
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
	}

	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

// --- Tests ---

func TestEndpoints_NotReady(t *testing.T) {
	env := newTestEnv(t, &stubVectors{}, false)

	endpoints := []struct{ method, path string }{
		{http.MethodPost, "/index"},
		{http.MethodPost, "/query"},
		{http.MethodPost, "/update-blog/1"},
		{http.MethodDelete, "/delete-blog/1"},
		{http.MethodPost, "/refresh-index"},
		{http.MethodPost, "/generate"},
		{http.MethodPost, "/upload"},
	}

	for _, ep := range endpoints {
		resp, body := doJSON(t, ep.method, env.server.URL+ep.path, map[string]any{})
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("%s %s: status = %d, want 503", ep.method, ep.path, resp.StatusCode)
		}
		if body["code"] != "service_unavailable" {
			t.Errorf("%s %s: code = %v", ep.method, ep.path, body["code"])
		}
	}
}

func TestRoot_AlwaysServed(t *testing.T) {
	env := newTestEnv(t, &stubVectors{}, false)

	resp, body := doJSON(t, http.MethodGet, env.server.URL+"/", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["status"] != string(lifecycleuc.StateUninitialized) {
		t.Errorf("status field = %v", body["status"])
	}
	if body["servicesInitialized"] != false {
		t.Errorf("servicesInitialized = %v", body["servicesInitialized"])
	}
}

func TestHealth_AlwaysServed(t *testing.T) {
	env := newTestEnv(t, &stubVectors{}, false)

	resp, body := doJSON(t, http.MethodGet, env.server.URL+"/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["status"] != "healthy" {
		t.Errorf("health status = %v", body["status"])
	}
	if body["database"] != true || body["vectorStore"] != true || body["generative"] != true {
		t.Errorf("unexpected flags: %v", body)
	}
}

func TestIndex(t *testing.T) {
	env := newTestEnv(t, &stubVectors{}, true)

	resp, body := doJSON(t, http.MethodPost, env.server.URL+"/index", map[string]any{"limit": 10})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["blogsProcessed"].(float64) != 1 {
		t.Errorf("blogsProcessed = %v", body["blogsProcessed"])
	}
	if body["chunksCreated"].(float64) < 1 {
		t.Errorf("chunksCreated = %v", body["chunksCreated"])
	}
	if _, ok := body["processingTimeSeconds"]; !ok {
		t.Error("missing processingTimeSeconds")
	}
}

func TestQuery(t *testing.T) {
	vectors := &stubVectors{
		total:   10,
		matches: []domain.Match{{Score: 0.9, Text: "relevant"}},
	}
	env := newTestEnv(t, vectors, true)

	resp, body := doJSON(t, http.MethodPost, env.server.URL+"/query",
		map[string]any{"query": "what is this about?"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["answer"] != "a helpful answer" {
		t.Errorf("answer = %v", body["answer"])
	}
	if body["query"] != "what is this about?" {
		t.Errorf("query echo = %v", body["query"])
	}
}

func TestQuery_MissingQuery(t *testing.T) {
	env := newTestEnv(t, &stubVectors{}, true)

	resp, _ := doJSON(t, http.MethodPost, env.server.URL+"/query", map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestUpdateBlog_NotFound(t *testing.T) {
	env := newTestEnv(t, &stubVectors{}, true)

	resp, body := doJSON(t, http.MethodPost, env.server.URL+"/update-blog/999", map[string]any{})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if body["code"] != "blog_not_found" {
		t.Errorf("code = %v", body["code"])
	}
}

func TestUpdateBlog_BadID(t *testing.T) {
	env := newTestEnv(t, &stubVectors{}, true)

	resp, _ := doJSON(t, http.MethodPost, env.server.URL+"/update-blog/abc", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestDeleteBlog(t *testing.T) {
	env := newTestEnv(t, &stubVectors{}, true)

	resp, body := doJSON(t, http.MethodDelete, env.server.URL+"/delete-blog/1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["deleted"] != true {
		t.Errorf("deleted = %v", body["deleted"])
	}
	if body["vectorsRemoved"].(float64) != 3 {
		t.Errorf("vectorsRemoved = %v", body["vectorsRemoved"])
	}
}

func TestIndexStatus(t *testing.T) {
	env := newTestEnv(t, &stubVectors{total: 77}, true)

	resp, body := doJSON(t, http.MethodGet, env.server.URL+"/index-status", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["totalVectors"].(float64) != 77 {
		t.Errorf("totalVectors = %v", body["totalVectors"])
	}
	if body["status"] != string(lifecycleuc.StateReady) {
		t.Errorf("status = %v", body["status"])
	}
}

func TestGenerate(t *testing.T) {
	env := newTestEnv(t, &stubVectors{}, true)

	resp, body := doJSON(t, http.MethodPost, env.server.URL+"/generate",
		map[string]any{"userInput": "a fox in the snow"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	url, _ := body["imageUrl"].(string)
	if !strings.HasPrefix(url, "/uploads/") {
		t.Errorf("imageUrl = %q", url)
	}
	if body["imageFile"] != url {
		t.Errorf("imageFile = %v, want %q", body["imageFile"], url)
	}
	if body["promptTier"] != string(imagegenuc.TierRawInput) {
		t.Errorf("promptTier = %v", body["promptTier"])
	}
}

func TestGenerate_DefaultSeed(t *testing.T) {
	env := newTestEnv(t, &stubVectors{}, true)

	resp, _ := doJSON(t, http.MethodPost, env.server.URL+"/generate",
		map[string]any{"userInput": "a fox"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if env.provider.lastReq.Seed != 42 {
		t.Errorf("seed = %d, want default 42", env.provider.lastReq.Seed)
	}

	resp, _ = doJSON(t, http.MethodPost, env.server.URL+"/generate",
		map[string]any{"userInput": "a fox", "seed": 7})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if env.provider.lastReq.Seed != 7 {
		t.Errorf("seed = %d, want 7", env.provider.lastReq.Seed)
	}
}

func TestUpload(t *testing.T) {
	env := newTestEnv(t, &stubVectors{}, true)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "picture.png")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte("png data")); err != nil {
		t.Fatal(err)
	}
	_ = mw.Close()

	resp, err := http.Post(env.server.URL+"/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	url, _ := body["url"].(string)
	if !strings.HasPrefix(url, "/uploads/") || !strings.HasSuffix(url, ".png") {
		t.Errorf("url = %q", url)
	}
}

func TestUpload_DisallowedExtension(t *testing.T) {
	env := newTestEnv(t, &stubVectors{}, true)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "malware.exe")
	_, _ = fw.Write([]byte("MZ"))
	_ = mw.Close()

	resp, err := http.Post(env.server.URL+"/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body["code"] != "invalid_upload" {
		t.Errorf("code = %v", body["code"])
	}
}
