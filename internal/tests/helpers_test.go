package tests

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

const testPhone = "+436703596614"

// testServer holds the server and its namespace root
type testServer struct {
	Server *httptest.Server
	Root   string
}

func newTestServer(t *testing.T, configure func(*Options)) *testServer {
	t.Helper()
	opts := Options{
		Root:       t.TempDir(),
		AdminPhone: testPhone,
		Password:   "legacy-password",
		ExposeCode: true,
	}
	if configure != nil {
		configure(&opts)
	}
	handler, closeFn, err := NewHandler(opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(closeFn)

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &testServer{Server: server, Root: opts.Root}
}

func (s *testServer) URL(path string) string { return s.Server.URL + path }

// postJSON sends body as JSON with an optional bearer token and decodes the response.
func (s *testServer) postJSON(t *testing.T, path, token string, body any) (int, map[string]any) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, s.URL(path), bytes.NewReader(b))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.do(t, req)
}

func (s *testServer) upload(t *testing.T, token, category, filename string, content []byte) (int, map[string]any) {
	t.Helper()
	return s.uploadOrdered(t, token, category, filename, content, false)
}

// uploadOrdered sends the multipart upload, writing the file part before
// the category field when fileFirst is set.
func (s *testServer) uploadOrdered(t *testing.T, token, category, filename string, content []byte, fileFirst bool) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	writeFile := func() {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	if fileFirst {
		writeFile()
	}
	require.NoError(t, mw.WriteField("category", category))
	if !fileFirst {
		writeFile()
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, s.URL("/api/admin/upload"), &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.do(t, req)
}

func (s *testServer) get(t *testing.T, path string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.URL(path), nil)
	require.NoError(t, err)
	return s.do(t, req)
}

func (s *testServer) do(t *testing.T, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := s.Server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	return resp.StatusCode, out
}

// login runs login_start and login_verify and returns the credential.
func (s *testServer) login(t *testing.T) string {
	t.Helper()
	status, start := s.postJSON(t, "/api/admin/login_start", "", map[string]string{"phone": testPhone})
	require.Equal(t, http.StatusOK, status, "login_start: %v", start)
	code, _ := start["dev_code"].(string)
	require.Len(t, code, 6)

	status, verify := s.postJSON(t, "/api/admin/login_verify", "", map[string]string{"phone": testPhone, "code": code})
	require.Equal(t, http.StatusOK, status, "login_verify: %v", verify)
	token, _ := verify["token"].(string)
	require.NotEmpty(t, token)
	return token
}
