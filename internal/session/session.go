// Package session owns the opaque session id that binds a sequence of
// searches and chat turns to backend-side context.
package session

import (
	"crypto/rand"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Store keys.
const (
	IDKey       = "session.id"
	VerifiedKey = "session.verified"
)

// Store is the key-value port the coordinator persists through.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// Listener is notified with the new id whenever it changes.
type Listener func(id string)

// Coordinator holds the current session id and whether the GPSS credential
// was verified for it. It cannot fail: persistence errors are logged only.
type Coordinator struct {
	mu        sync.Mutex
	id        string
	verified  bool
	listeners []Listener

	store  Store
	logger *zap.Logger
	newID  func() string
}

// New creates a coordinator, restoring a persisted id when store has one.
// store and logger may be nil.
func New(store Store, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{store: store, logger: logger, newID: newULID}
	c.load()
	return c
}

// newULID returns a time-ordered id with a random suffix.
func newULID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Ensure returns the current id, generating and storing one if absent.
func (c *Coordinator) Ensure() string {
	c.mu.Lock()
	if c.id != "" {
		id := c.id
		c.mu.Unlock()
		return id
	}
	c.id = c.newID()
	id := c.id
	c.save(IDKey, id)
	listeners := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Info("session created", zap.String("session_id", id))
	notify(listeners, id)
	return id
}

// Adopt replaces the id with a server-issued one. Listeners run
// synchronously, in subscription order, before Adopt returns.
func (c *Coordinator) Adopt(id string) {
	c.mu.Lock()
	if id == c.id {
		c.mu.Unlock()
		return
	}
	prev := c.id
	c.id = id
	c.save(IDKey, id)
	listeners := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Info("session adopted", zap.String("session_id", id), zap.String("previous", prev))
	notify(listeners, id)
}

// Current returns the id without generating one; "" when unset.
func (c *Coordinator) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Subscribe registers fn for id changes.
func (c *Coordinator) Subscribe(fn Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// MarkVerified records whether the stored credential passed verification.
func (c *Coordinator) MarkVerified(ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verified = ok
	c.save(VerifiedKey, strconv.FormatBool(ok))
}

// Verified reports the last verification result.
func (c *Coordinator) Verified() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.verified
}

// Reset clears the id and the verification flag; listeners get "".
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.id = ""
	c.verified = false
	if c.store != nil {
		for _, key := range []string{IDKey, VerifiedKey} {
			if err := c.store.Delete(key); err != nil {
				c.logger.Warn("failed to clear session state", zap.String("key", key), zap.Error(err))
			}
		}
	}
	listeners := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Info("session reset")
	notify(listeners, "")
}

func (c *Coordinator) snapshotLocked() []Listener {
	out := make([]Listener, len(c.listeners))
	copy(out, c.listeners)
	return out
}

func notify(listeners []Listener, id string) {
	for _, fn := range listeners {
		fn(id)
	}
}

func (c *Coordinator) save(key, value string) {
	if c.store == nil {
		return
	}
	if err := c.store.Set(key, value); err != nil {
		c.logger.Warn("failed to persist session state", zap.String("key", key), zap.Error(err))
	}
}

func (c *Coordinator) load() {
	if c.store == nil {
		return
	}
	if id, ok, err := c.store.Get(IDKey); err != nil {
		c.logger.Warn("failed to load session id", zap.Error(err))
	} else if ok {
		c.id = id
	}
	if v, ok, err := c.store.Get(VerifiedKey); err != nil {
		c.logger.Warn("failed to load verification flag", zap.Error(err))
	} else if ok {
		c.verified, _ = strconv.ParseBool(v)
	}
}
