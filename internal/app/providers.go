package app

import (
	"context"
	"sync/atomic"

	"purrbot/internal/providers/completion"
	"purrbot/internal/providers/meme"
)

// memeSource lets a config reload replace the meme client under running components.
type memeSource struct{ cur atomic.Pointer[meme.Client] }

func newMemeSource(opts meme.Options) *memeSource {
	m := &memeSource{}
	m.Apply(opts)
	return m
}

func (m *memeSource) Apply(opts meme.Options) { m.cur.Store(meme.New(opts)) }

func (m *memeSource) Fetch(ctx context.Context) (string, error) {
	return m.cur.Load().Fetch(ctx)
}

type completer struct{ cur atomic.Pointer[completion.Client] }

func newCompleter(opts completion.Options) *completer {
	c := &completer{}
	c.Apply(opts)
	return c
}

func (c *completer) Apply(opts completion.Options) { c.cur.Store(completion.New(opts)) }

func (c *completer) Enabled() bool { return c.cur.Load().Enabled() }

func (c *completer) Complete(ctx context.Context, userName string, recent []string, text string) (string, error) {
	return c.cur.Load().Complete(ctx, userName, recent, text)
}
