package notification

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collectingStream struct {
	mu       sync.Mutex
	received []Notification
}

func (s *collectingStream) Send(n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, n)
	return nil
}

func (s *collectingStream) notifications() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.received...)
}

func TestManager_SubscribeAndBroadcast(t *testing.T) {
	m := NewManager()
	s1 := &collectingStream{}
	s2 := &collectingStream{}

	m.Subscribe(s1)
	m.Subscribe(s2)
	require.Equal(t, 2, m.SubscriberCount())

	m.Warn("SoundCloud: track unavailable", `"Some Song" cannot be played`, "geo-blocked")

	for _, s := range []*collectingStream{s1, s2} {
		got := s.notifications()
		require.Len(t, got, 1)
		assert.Equal(t, LevelWarning, got[0].Level)
		assert.Equal(t, "SoundCloud: track unavailable", got[0].Title)
		assert.Equal(t, "geo-blocked", got[0].Detail)
	}
}

func TestManager_Unsubscribe(t *testing.T) {
	m := NewManager()
	s := &collectingStream{}

	id := m.Subscribe(s)
	m.Unsubscribe(id)

	m.Error("Playback failed", "boom", "")
	assert.Empty(t, s.notifications())
	assert.Zero(t, m.SubscriberCount())
}

func TestManager_SlowSubscriberDoesNotBlock(t *testing.T) {
	m := NewManager()
	m.Subscribe(StreamFunc(func(Notification) error {
		time.Sleep(2 * time.Second)
		return nil
	}))

	start := time.Now()
	m.Broadcast(Notification{Level: LevelInfo, Title: "x"})
	assert.Less(t, time.Since(start), time.Second)
}

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "info", LevelInfo.String())
	assert.Equal(t, "warning", LevelWarning.String())
	assert.Equal(t, "error", LevelError.String())
	assert.Equal(t, "unknown", Level(99).String())
}
