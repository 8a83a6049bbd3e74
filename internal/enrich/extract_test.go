package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBody_JoinsParagraphs(t *testing.T) {
	page := `<html><body>
		<h1>Headline</h1>
		<p>First paragraph of the article.</p>
		<div><p>  Second paragraph, nested.  </p></div>
		<p></p>
		<script>ignore()</script>
	</body></html>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	t.Cleanup(srv.Close)

	e := NewPageExtractor(srv.Client())
	body, err := e.ExtractBody(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "First paragraph of the article.\nSecond paragraph, nested.", body)
}

func TestExtractBody_NoParagraphsIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><h1>only a headline</h1></body></html>`))
	}))
	t.Cleanup(srv.Close)

	e := NewPageExtractor(srv.Client())
	_, err := e.ExtractBody(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestExtractBody_HTTPErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	e := NewPageExtractor(srv.Client())
	_, err := e.ExtractBody(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestExtractBody_UnreachableHostIsUnavailable(t *testing.T) {
	e := NewPageExtractor(nil)
	_, err := e.ExtractBody(context.Background(), "http://127.0.0.1:1/article")
	require.ErrorIs(t, err, ErrUnavailable)
}
