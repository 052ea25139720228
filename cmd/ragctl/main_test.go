package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorded is one request seen by the fake server.
type recorded struct {
	Method   string
	Path     string
	Tenant   string
	Filename string
	Query    map[string][]string
	Upload   string
}

type fakeServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []recorded
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{
			Method:   r.Method,
			Path:     r.URL.Path,
			Tenant:   r.Header.Get("tenant"),
			Filename: r.Header.Get("filename"),
			Query:    r.URL.Query(),
		}
		if f, fh, err := r.FormFile("file"); err == nil {
			rec.Upload = fh.Filename
			f.Close()
		}
		fs.mu.Lock()
		fs.requests = append(fs.requests, rec)
		fs.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/tenants":
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"token":"tok-1"}`)
		case r.Method == http.MethodHead && r.URL.Path == "/tenants":
			if rec.Tenant != "tok-1" {
				w.WriteHeader(http.StatusNotFound)
			}
		case r.Method == http.MethodPost && r.URL.Path == "/documents":
			w.WriteHeader(http.StatusConflict)
			_, _ = io.WriteString(w, `{"message":"Filename 'policy' already exists. Upload aborted."}`)
		case r.Method == http.MethodGet && r.URL.Path == "/documents":
			_, _ = io.WriteString(w, `{"filenames":["faq","policy"]}`)
		case r.Method == http.MethodDelete && r.URL.Path == "/documents":
			_, _ = io.WriteString(w, `{"message":"3 entities with filename 'policy' were deleted.","deleted":3}`)
		case r.Method == http.MethodPost && r.URL.Path == "/query":
			_, _ = io.WriteString(w, `{"answer":"30 days","hits":[]}`)
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"message":"Something went wrong! Please try again."}`)
		}
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) last(t *testing.T) recorded {
	t.Helper()
	fs.mu.Lock()
	defer fs.mu.Unlock()
	require.NotEmpty(t, fs.requests)
	return fs.requests[len(fs.requests)-1]
}

// execute runs ragctl with args against fs and returns stdout.
func execute(t *testing.T, fs *fakeServer, args ...string) (string, error) {
	t.Helper()
	tenantToken = ""
	queryTopK = 5
	queryFiles = nil

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(append([]string{"--server", fs.URL}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestTenantCreate(t *testing.T) {
	fs := newFakeServer(t)

	out, err := execute(t, fs, "tenant", "create")
	require.NoError(t, err)

	var resp map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "tok-1", resp["token"])
	assert.Contains(t, out, "\n  \"token\"")
}

func TestTenantExists(t *testing.T) {
	fs := newFakeServer(t)

	out, err := execute(t, fs, "--tenant", "tok-1", "tenant", "exists")
	require.NoError(t, err)
	assert.JSONEq(t, `{"exists":true}`, out)

	out, err = execute(t, fs, "--tenant", "other", "tenant", "exists")
	require.NoError(t, err)
	assert.JSONEq(t, `{"exists":false}`, out)
}

func TestTenantRequired(t *testing.T) {
	fs := newFakeServer(t)

	_, err := execute(t, fs, "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant token required")
}

func TestUpload_SurfacesServerMessage(t *testing.T) {
	fs := newFakeServer(t)

	path := filepath.Join(t.TempDir(), "policy.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o600))

	_, err := execute(t, fs, "--tenant", "tok-1", "upload", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
	assert.Contains(t, err.Error(), "Filename 'policy' already exists. Upload aborted.")

	req := fs.last(t)
	assert.Equal(t, "tok-1", req.Tenant)
	assert.Equal(t, "policy.pdf", req.Upload)
}

func TestListAndDelete(t *testing.T) {
	fs := newFakeServer(t)

	out, err := execute(t, fs, "--tenant", "tok-1", "list")
	require.NoError(t, err)
	assert.JSONEq(t, `{"filenames":["faq","policy"]}`, out)

	out, err = execute(t, fs, "--tenant", "tok-1", "delete", "policy")
	require.NoError(t, err)
	assert.Contains(t, out, "3 entities with filename 'policy' were deleted.")
	assert.Equal(t, "policy", fs.last(t).Filename)
}

func TestQuery(t *testing.T) {
	fs := newFakeServer(t)

	out, err := execute(t, fs, "--tenant", "tok-1", "query", "--top-k", "3", "--file", "policy", "--file", "faq", "refund window?")
	require.NoError(t, err)
	assert.JSONEq(t, `{"answer":"30 days","hits":[]}`, out)

	req := fs.last(t)
	assert.Equal(t, []string{"refund window?"}, req.Query["query"])
	assert.Equal(t, []string{"3"}, req.Query["top_k"])
	assert.Equal(t, []string{"policy", "faq"}, req.Query["filenames"])
}

func TestAPIError(t *testing.T) {
	err := &apiError{Status: 500}
	assert.Equal(t, "server returned status 500", err.Error())

	err.Message = "boom"
	assert.Equal(t, "server returned status 500: boom", err.Error())
}
