package report

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forms/chromium/convert/html", r.URL.Path)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "8.27", r.FormValue("paperWidth"))
		assert.Equal(t, "0.4", r.FormValue("marginLeft"))
		assert.Equal(t, "true", r.FormValue("printBackground"))

		file, header, err := r.FormFile("files")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		assert.Equal(t, "index.html", header.Filename)
		html, _ := io.ReadAll(file)
		assert.Equal(t, "<h1>INV-202407-0001</h1>", string(html))

		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	t.Cleanup(srv.Close)

	pdf, err := NewClient(srv.URL+"/").RenderHTML(t.Context(), "<h1>INV-202407-0001</h1>")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(pdf))
}

func TestRenderHTMLCustomPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "8.5", r.FormValue("paperWidth"))
		assert.Empty(t, r.FormValue("marginTop"))
		_, _ = w.Write([]byte("%PDF"))
	}))
	t.Cleanup(srv.Close)

	_, err := NewClient(srv.URL).WithPage(PageOptions{PaperWidth: 8.5, PaperHeight: 11}).RenderHTML(t.Context(), "<p>x</p>")
	require.NoError(t, err)
}

func TestRenderHTMLStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "chromium crashed", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	_, err := NewClient(srv.URL).RenderHTML(t.Context(), "<p>x</p>")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
	assert.Equal(t, "chromium crashed", statusErr.Body)
}

func TestPing(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL)
	assert.NoError(t, client.Ping(t.Context()))
	healthy = false
	assert.Error(t, client.Ping(t.Context()))
}
