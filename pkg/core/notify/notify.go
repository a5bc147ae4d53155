package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultDuration is how long a message stays visible before auto-dismissal
const DefaultDuration = 4 * time.Second

// Severity of a feedback message
type Severity string

const (
	Success Severity = "success"
	Info    Severity = "info"
	Warning Severity = "warning"
	Error   Severity = "error"
)

// Message is a transient feedback message. Never persisted.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"createdAt"`
}

// Channel holds at most one active message. Emitting replaces the current
// message and restarts the auto-dismiss timer.
type Channel struct {
	mu       sync.Mutex
	current  *Message
	gen      uint64
	timer    *time.Timer
	duration time.Duration

	// onExpire runs after an auto-dismissal, without the lock held
	onExpire func()
}

func NewChannel(duration time.Duration) *Channel {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Channel{duration: duration}
}

func (c *Channel) Emit(text string, severity Severity) Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := Message{
		ID:        uuid.NewString(),
		Text:      text,
		Severity:  severity,
		CreatedAt: time.Now(),
	}
	c.current = &msg
	c.gen++

	if c.timer != nil {
		c.timer.Stop()
	}
	gen := c.gen
	c.timer = time.AfterFunc(c.duration, func() { c.expire(gen) })

	return msg
}

// expire clears the message only if nothing was emitted since the timer started
func (c *Channel) expire(gen uint64) {
	c.mu.Lock()
	expired := c.gen == gen
	if expired {
		c.current = nil
		c.timer = nil
	}
	onExpire := c.onExpire
	c.mu.Unlock()

	if expired && onExpire != nil {
		onExpire()
	}
}

func (c *Channel) idle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current == nil
}

// Current returns the active message, if any
func (c *Channel) Current() (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return Message{}, false
	}
	return *c.current, true
}

// Dismiss clears the active message. An empty id dismisses whatever is shown;
// otherwise the message is only cleared if it is still the one with that id.
func (c *Channel) Dismiss(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil || (id != "" && c.current.ID != id) {
		return false
	}
	c.clearLocked()
	return true
}

// Close stops the pending timer and drops the message
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

func (c *Channel) clearLocked() {
	c.current = nil
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Registry keeps one Channel per session. A channel only lives while it
// shows a message: it is forgotten on auto-dismissal, dismissal or Drop, so
// sessions that simply expire leave nothing behind.
type Registry struct {
	mu       sync.Mutex
	channels map[string]*Channel
	duration time.Duration
}

func NewRegistry(duration time.Duration) *Registry {
	return &Registry{channels: make(map[string]*Channel), duration: duration}
}

// Channel returns the channel for a session, creating it on first use
func (r *Registry) Channel(session string) *Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.channelLocked(session)
}

func (r *Registry) channelLocked(session string) *Channel {
	ch, ok := r.channels[session]
	if !ok {
		ch = NewChannel(r.duration)
		ch.onExpire = func() { r.forget(session, ch) }
		r.channels[session] = ch
	}
	return ch
}

// Emit holds the registry lock so a concurrent expiry cannot forget the
// channel between lookup and emission
func (r *Registry) Emit(session, text string, severity Severity) Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.channelLocked(session).Emit(text, severity)
}

// Current returns the session's active message without creating a channel
func (r *Registry) Current(session string) (Message, bool) {
	r.mu.Lock()
	ch, ok := r.channels[session]
	r.mu.Unlock()

	if !ok {
		return Message{}, false
	}
	return ch.Current()
}

// Dismiss clears the session's message, see Channel.Dismiss
func (r *Registry) Dismiss(session, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.channels[session]
	if !ok || !ch.Dismiss(id) {
		return false
	}
	delete(r.channels, session)
	return true
}

// Sessions reports how many sessions currently hold a channel
func (r *Registry) Sessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}

// forget drops ch if it is still the session's channel and shows nothing
func (r *Registry) forget(session string, ch *Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channels[session] == ch && ch.idle() {
		delete(r.channels, session)
	}
}

// Drop closes and forgets a session's channel, e.g. on sign-out
func (r *Registry) Drop(session string) {
	r.mu.Lock()
	ch, ok := r.channels[session]
	delete(r.channels, session)
	r.mu.Unlock()

	if ok {
		ch.Close()
	}
}

// Close stops every channel
func (r *Registry) Close() {
	r.mu.Lock()
	channels := r.channels
	r.channels = make(map[string]*Channel)
	r.mu.Unlock()

	for _, ch := range channels {
		ch.Close()
	}
}
