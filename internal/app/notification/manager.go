// Package notification provides the notification manager for broadcasting player events.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/groovebox/internal/app/playback"
)

// defaultSendTimeout bounds how long one subscriber may block a broadcast.
const defaultSendTimeout = 500 * time.Millisecond

// Type identifies a notification.
type Type string

const (
	TypeTrackChanged    Type = "track_changed"
	TypeStateChanged    Type = "state_changed"
	TypePosition        Type = "position"
	TypeVolumeChanged   Type = "volume_changed"
	TypeModeChanged     Type = "mode_changed"
	TypePlaylistChanged Type = "playlist_changed"
	TypeTrackFailed     Type = "track_failed"
	TypePlaylistEnded   Type = "playlist_ended"
)

// Notification is what subscribers receive.
type Notification struct {
	Type       Type
	SequenceNo uint64
	Status     playback.Status
	Message    string // Human-readable detail, e.g. why a track was skipped
}

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(*Notification) error
}

// subscription represents a subscriber's subscription.
// At most one send is in flight per subscription; notifications arriving
// while a timed-out send is still blocked are dropped, so a subscriber never
// sees sequence numbers out of order.
type subscription struct {
	id     string
	stream Stream

	mu       sync.Mutex
	inFlight bool
	lastSeq  uint64
}

// begin reserves the stream for the notification numbered seq.
func (s *subscription) begin(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight || seq <= s.lastSeq {
		return false
	}
	s.inFlight = true
	s.lastSeq = seq
	return true
}

func (s *subscription) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
}

// Manager manages notification subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
	sendTimeout   time.Duration
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
		sendTimeout:   defaultSendTimeout,
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:     id,
		stream: stream,
	}
	zlog.Debug().Msgf("notification: subscribed: id=%s", id)
	return id
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
	zlog.Debug().Msgf("notification: unsubscribed: id=%s", subscriptionID)
}

// nextSequenceNo returns the next sequence number.
func (m *Manager) nextSequenceNo() uint64 {
	m.sequenceNoMu.Lock()
	defer m.sequenceNoMu.Unlock()
	m.sequenceNo++
	return m.sequenceNo
}

// Broadcast stamps n with the next sequence number and sends it to all subscribers.
// Each stream send is done in a goroutine with a timeout so a slow
// subscriber cannot stall the others.
func (m *Manager) Broadcast(n Notification) {
	n.SequenceNo = m.nextSequenceNo()

	m.mu.RLock()
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
			defer cancel()

			if !s.begin(n.SequenceNo) {
				zlog.Debug().Msgf("notification: dropped for busy subscriber: id=%s seq=%d", s.id, n.SequenceNo)
				return
			}

			// Each subscriber gets its own copy
			copied := n
			done := make(chan error, 1)
			go func() {
				defer s.end()
				done <- s.stream.Send(&copied)
			}()

			select {
			case err := <-done:
				if err != nil {
					zlog.Debug().Msgf("notification: send failed: id=%s error=%v", s.id, err)
				}
			case <-ctx.Done():
				zlog.Debug().Msgf("notification: send timed out: id=%s", s.id)
			}
		}(sub)
	}

	wg.Wait()
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
}

// FromEvent converts a controller event into a notification.
// Returns false for events subscribers are not told about.
func FromEvent(e playback.Event) (Notification, bool) {
	n := Notification{Status: e.Status}
	switch e.Type {
	case playback.EventTrackChanged:
		n.Type = TypeTrackChanged
	case playback.EventStateChanged:
		n.Type = TypeStateChanged
	case playback.EventPositionTick, playback.EventSeeked:
		n.Type = TypePosition
	case playback.EventVolumeChanged:
		n.Type = TypeVolumeChanged
	case playback.EventModeChanged:
		n.Type = TypeModeChanged
	case playback.EventPlaylistChanged:
		n.Type = TypePlaylistChanged
	case playback.EventTrackFailed:
		n.Type = TypeTrackFailed
		if e.Err != nil {
			n.Message = e.Err.Error()
		}
	case playback.EventPlaylistEnded:
		n.Type = TypePlaylistEnded
	default:
		return Notification{}, false
	}
	return n, true
}
