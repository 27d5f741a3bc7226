package engagement

import (
	"sync"
	"time"
)

// State holds all mutable engagement state. Every method is one transaction
// under a single mutex; callers never see a half-applied update.
//
// Keys are never evicted. The process is expected to be restarted often
// enough that growth by user/channel count does not matter.
type State struct {
	mu sync.Mutex

	historySize int

	channelLast map[string]time.Time
	userLast    map[string]time.Time
	activity    map[string]int
	history     map[string][]string
}

func NewState(historySize int) *State {
	if historySize <= 0 {
		historySize = 10
	}
	return &State{
		historySize: historySize,
		channelLast: map[string]time.Time{},
		userLast:    map[string]time.Time{},
		activity:    map[string]int{},
		history:     map[string][]string{},
	}
}

// Observe counts one message from userID and appends text to the user's
// history, evicting the oldest entry past the cap. It returns the new count
// and a copy of the history (oldest first).
func (s *State) Observe(userID, text string) (int, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activity[userID]++
	h := append(s.history[userID], text)
	if over := len(h) - s.historySize; over > 0 {
		// copy down instead of reslicing so the backing array stays bounded
		n := copy(h, h[over:])
		h = h[:n]
	}
	s.history[userID] = h
	return s.activity[userID], append([]string(nil), h...)
}

// CoolingDown reports whether either the channel or the user responded to
// within its cooldown window as of now.
func (s *State) CoolingDown(channelID, userID string, now time.Time, channelCD, userCD time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.channelLast[channelID]; ok && now.Sub(last) < channelCD {
		return true
	}
	if last, ok := s.userLast[userID]; ok && now.Sub(last) < userCD {
		return true
	}
	return false
}

// MarkResponded stamps both cooldowns with at.
func (s *State) MarkResponded(channelID, userID string, at time.Time) {
	s.mu.Lock()
	s.channelLast[channelID] = at
	s.userLast[userID] = at
	s.mu.Unlock()
}

func (s *State) Activity(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activity[userID]
}

// History returns a copy of the user's recent messages, oldest first.
func (s *State) History(userID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.history[userID]...)
}

func (s *State) LastChannelReply(channelID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.channelLast[channelID]
	return t, ok
}

func (s *State) LastUserReply(userID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.userLast[userID]
	return t, ok
}

type Stats struct {
	TrackedUsers    int `json:"users_tracked"`
	ActiveUsers     int `json:"active_users"`
	CooledChannels  int `json:"channels_replied"`
	HistoryMessages int `json:"history_messages"`
}

// Snapshot returns aggregate counts; users at or above activeThreshold count as active.
func (s *State) Snapshot(activeThreshold int) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		TrackedUsers:   len(s.activity),
		CooledChannels: len(s.channelLast),
	}
	for _, n := range s.activity {
		if n >= activeThreshold {
			st.ActiveUsers++
		}
	}
	for _, h := range s.history {
		st.HistoryMessages += len(h)
	}
	return st
}
