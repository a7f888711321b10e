package download

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/json":
			assert.Equal(t, "v", r.Header.Get("X-Test"))
			_, _ = w.Write([]byte(`{"status":0,"data":"ok"}`))
		case "/gzip":
			var buf bytes.Buffer
			zw := gzip.NewWriter(&buf)
			_, _ = zw.Write([]byte("hello gzip"))
			_ = zw.Close()
			w.Header().Set("Content-Encoding", "gzip")
			_, _ = w.Write(buf.Bytes())
		case "/big":
			_, _ = w.Write(bytes.Repeat([]byte("a"), 1024))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	j, err := Request{URL: srv.URL + "/json", Header: map[string]string{"X-Test": "v"}}.JSON()
	require.NoError(t, err)
	assert.Equal(t, "ok", j.Get("data").Str)

	b, err := Request{URL: srv.URL + "/gzip"}.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "hello gzip", string(b))

	_, err = Request{URL: srv.URL + "/big", Limit: 16}.Bytes()
	assert.True(t, errors.Is(err, ErrOverSize))

	_, err = Request{URL: srv.URL + "/missing"}.WithTimeout(5e9).Bytes()
	assert.Error(t, err)

	p := filepath.Join(t.TempDir(), "out.txt")
	require.NoError(t, Request{URL: srv.URL + "/gzip"}.WriteToFile(p))
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "hello gzip", string(data))
}
