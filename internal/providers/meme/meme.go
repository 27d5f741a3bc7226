// Package meme fetches random cat images from a meme-api.com compatible service.
package meme

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://meme-api.com"
	DefaultTimeout = 15 * time.Second
)

// DefaultBuckets are the subreddits a fetch picks from.
var DefaultBuckets = []string{"catmemes", "cats", "CatGifs", "blackcats", "orangecats", "IllegallySmolCats"}

var imageExts = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

// ErrNoMeme is returned for every failed fetch: transport error, non-200,
// undecodable body, or a URL that does not look like an image.
var ErrNoMeme = errors.New("meme: none available")

type Options struct {
	BaseURL string
	Buckets []string
	Timeout time.Duration
	// HTTP defaults to a plain client; Timeout is applied per call via context.
	HTTP *http.Client
	// Intn picks the bucket index. Defaults to math/rand/v2.
	Intn func(n int) int
}

type Client struct {
	base    string
	buckets []string
	timeout time.Duration
	http    *http.Client
	intn    func(n int) int
}

func New(opts Options) *Client {
	c := &Client{
		base:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		buckets: opts.Buckets,
		timeout: opts.Timeout,
		http:    opts.HTTP,
		intn:    opts.Intn,
	}
	if c.base == "" {
		c.base = DefaultBaseURL
	}
	if len(c.buckets) == 0 {
		c.buckets = DefaultBuckets
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.intn == nil {
		c.intn = rand.Intn
	}
	return c
}

type gimmeResponse struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	Subreddit string `json:"subreddit"`
	NSFW      bool   `json:"nsfw"`
}

// Fetch returns one image URL from a random bucket.
func (c *Client) Fetch(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	bucket := c.buckets[c.intn(len(c.buckets))]
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/gimme/"+bucket, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoMeme, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoMeme, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("%w: %s returned HTTP %d", ErrNoMeme, bucket, resp.StatusCode)
	}

	var body gimmeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decode: %v", ErrNoMeme, err)
	}
	if !IsImageURL(body.URL) {
		return "", fmt.Errorf("%w: not an image: %q", ErrNoMeme, body.URL)
	}
	return body.URL, nil
}

// IsImageURL reports whether u contains a known image extension anywhere,
// case-insensitively.
func IsImageURL(u string) bool {
	if u == "" {
		return false
	}
	u = strings.ToLower(u)
	for _, ext := range imageExts {
		if strings.Contains(u, ext) {
			return true
		}
	}
	return false
}
