package broadcast

import (
	"context"
	"errors"
	"sync"

	"purrbot/internal/transport"
)

var errBoom = errors.New("boom")

type scriptedRand struct {
	mu     sync.Mutex
	floats []float64
}

func (r *scriptedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.floats) == 0 {
		return 0.999
	}
	f := r.floats[0]
	r.floats = r.floats[1:]
	return f
}

func (r *scriptedRand) Intn(int) int { return 0 }

type post struct {
	channelID string
	text      string
	embed     transport.Embed
	isEmbed   bool
}

type fakeGateway struct {
	mu          sync.Mutex
	communities []transport.Community
	failOn      map[string]bool
	posts       []post
}

func (g *fakeGateway) Communities() []transport.Community {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]transport.Community(nil), g.communities...)
}

func (g *fakeGateway) SendText(_ context.Context, channelID, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.posts = append(g.posts, post{channelID: channelID, text: text})
	if g.failOn[channelID] {
		return errBoom
	}
	return nil
}

func (g *fakeGateway) SendEmbed(_ context.Context, channelID string, e transport.Embed) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.posts = append(g.posts, post{channelID: channelID, embed: e, isEmbed: true})
	if g.failOn[channelID] {
		return errBoom
	}
	return nil
}

func (g *fakeGateway) AddReaction(context.Context, string, string, string) error { return nil }

func (g *fakeGateway) sent() []post {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]post(nil), g.posts...)
}

type memeResult struct {
	url string
	err error
}

// fakeMemes replays results in order, then repeats the last one.
type fakeMemes struct {
	mu      sync.Mutex
	results []memeResult
	calls   int
}

func (f *fakeMemes) Fetch(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.results) == 0 {
		return "", errBoom
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r.url, r.err
}

func (f *fakeMemes) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func guild(id, channelID string) transport.Community {
	return transport.Community{
		ID:   id,
		Name: "guild-" + id,
		Channels: []transport.Channel{
			{ID: channelID, Name: "general", Kind: transport.ChannelText, CanView: true, CanSend: true},
		},
	}
}

func mutedGuild(id string) transport.Community {
	return transport.Community{
		ID: id,
		Channels: []transport.Channel{
			{ID: id + "-ro", Name: "general", Kind: transport.ChannelText, CanView: true},
		},
	}
}
