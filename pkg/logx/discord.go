package logx

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// Discord caps messages at 2000 characters.
const discordTextLimit = 1900

type discordWriter struct{ svc *Service }

func (w *discordWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.InfoLevel, p)
}

func (w *discordWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	s := w.svc
	if s == nil {
		return len(p), nil
	}

	s.mu.Lock()
	channelID := s.channelID
	lim := s.limiter
	minLevel := s.minLevel
	s.mu.Unlock()

	if channelID == "" || lim == nil || level < minLevel {
		return len(p), nil
	}
	if !lim.Allow() {
		return len(p), nil
	}
	msg := formatLine(p)
	if msg == "" {
		return len(p), nil
	}

	// Never block the caller.
	select {
	case s.queue <- sinkItem{channelID: channelID, msg: msg}:
	default:
		s.dropped.Add(1)
	}
	return len(p), nil
}

// formatLine renders a zerolog JSON line as a short code block.
func formatLine(p []byte) string {
	var m map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(p))), &m); err != nil {
		return truncate(strings.TrimSpace(string(p)), discordTextLimit)
	}

	lvl, _ := m["level"].(string)
	msg, _ := m["message"].(string)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case "time", "level", "message":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("```\n")
	if lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	b.WriteString(msg)
	for _, k := range keys {
		b.WriteString("\n- ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(truncate(fmt.Sprint(m[k]), 300))
	}
	out := truncate(b.String(), discordTextLimit-4)
	return out + "\n```"
}

// truncate cuts s to at most maxN bytes without splitting a UTF-8 sequence.
func truncate(s string, maxN int) string {
	if maxN <= 0 || len(s) <= maxN {
		return s
	}
	suffix := ""
	if maxN >= 10 {
		suffix = "..."
		maxN -= len(suffix)
	}
	for maxN > 0 && !utf8.RuneStart(s[maxN]) {
		maxN--
	}
	return s[:maxN] + suffix
}
