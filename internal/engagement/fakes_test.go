package engagement

import (
	"context"
	"errors"
	"sync"
	"time"

	"purrbot/internal/transport"
	logx "purrbot/pkg/logx"
)

// scriptedRand replays fixed values. Exhausted floats return 0.999 so no
// probabilistic branch enters by accident.
type scriptedRand struct {
	floats []float64
	ints   []int
	fcalls int
}

func (r *scriptedRand) Float64() float64 {
	r.fcalls++
	if len(r.floats) == 0 {
		return 0.999
	}
	f := r.floats[0]
	r.floats = r.floats[1:]
	return f
}

func (r *scriptedRand) Intn(n int) int {
	if len(r.ints) == 0 {
		return 0
	}
	i := r.ints[0]
	r.ints = r.ints[1:]
	return i % n
}

type sent struct {
	kind      string // "text" | "embed" | "reaction"
	channelID string
	messageID string
	body      string
}

type fakeSender struct {
	mu    sync.Mutex
	calls []sent
	err   error
}

func (f *fakeSender) SendText(_ context.Context, channelID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sent{kind: "text", channelID: channelID, body: text})
	return f.err
}

func (f *fakeSender) SendEmbed(_ context.Context, channelID string, e transport.Embed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sent{kind: "embed", channelID: channelID, body: e.ImageURL})
	return f.err
}

func (f *fakeSender) AddReaction(_ context.Context, channelID, messageID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sent{kind: "reaction", channelID: channelID, messageID: messageID, body: emoji})
	return f.err
}

type fakeMemes struct {
	url   string
	err   error
	calls int
}

func (f *fakeMemes) Fetch(context.Context) (string, error) {
	f.calls++
	return f.url, f.err
}

type fakeCompleter struct {
	enabled bool
	reply   string
	err     error

	gotName   string
	gotRecent []string
	gotText   string
	calls     int
}

func (f *fakeCompleter) Enabled() bool { return f.enabled }

func (f *fakeCompleter) Complete(_ context.Context, name string, recent []string, text string) (string, error) {
	f.calls++
	f.gotName, f.gotRecent, f.gotText = name, recent, text
	return f.reply, f.err
}

var errBoom = errors.New("boom")

var t0 = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func msg(user, channel, text string) transport.Message {
	return transport.Message{
		ID:         "m-" + user,
		GuildID:    "g1",
		ChannelID:  channel,
		AuthorID:   user,
		AuthorName: "Name" + user,
		Text:       text,
	}
}

func nopLogger() logx.Logger { return logx.Nop() }
