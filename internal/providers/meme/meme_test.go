package meme

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		status  int
		body    string
		wantURL string
		wantErr bool
	}{
		{name: "png", status: 200, body: `{"url":"https://i.redd.it/a.png","title":"x"}`, wantURL: "https://i.redd.it/a.png"},
		{name: "uppercase gif", status: 200, body: `{"url":"https://i.redd.it/B.GIF"}`, wantURL: "https://i.redd.it/B.GIF"},
		{name: "extension mid-url", status: 200, body: `{"url":"https://x/a.jpeg?w=1"}`, wantURL: "https://x/a.jpeg?w=1"},
		{name: "video rejected", status: 200, body: `{"url":"https://v.redd.it/abc.mp4"}`, wantErr: true},
		{name: "missing url", status: 200, body: `{}`, wantErr: true},
		{name: "bad json", status: 200, body: `not json`, wantErr: true},
		{name: "non 200", status: 503, body: `{"url":"https://i.redd.it/a.png"}`, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := New(Options{BaseURL: srv.URL})
			got, err := c.Fetch(context.Background())
			if tt.wantErr {
				require.ErrorIs(t, err, ErrNoMeme)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, got)
		})
	}
}

func TestFetchPicksBucketPath(t *testing.T) {
	t.Parallel()
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = w.Write([]byte(`{"url":"https://i.redd.it/a.webp"}`))
	}))
	defer srv.Close()

	c := New(Options{
		BaseURL: srv.URL + "/",
		Buckets: []string{"one", "two", "three"},
		Intn:    func(n int) int { return n - 1 },
	})
	_, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/gimme/three", path)
}

func TestFetchTimeoutIsFailure(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New(Options{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := c.Fetch(context.Background())
	require.ErrorIs(t, err, ErrNoMeme)
}

func TestIsImageURL(t *testing.T) {
	t.Parallel()
	assert.True(t, IsImageURL("https://a/b.JPG"))
	assert.True(t, IsImageURL("https://a/b.webp"))
	assert.False(t, IsImageURL(""))
	assert.False(t, IsImageURL("https://a/b.mp4"))
}
