// Package claim elects one client context to act on a shared event.
//
// Every context writes a random token under the event's key, waits a settle
// window, then reads the key back. Storage is last-write-wins, so after the
// window exactly one token survives and its writer is the winner.
package claim

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultSettleWindow = 50 * time.Millisecond
	DefaultTTL          = 10 * time.Second
)

// Deduplicator decides whether this context acts on a notification.
type Deduplicator struct {
	store  Storage
	settle time.Duration
	ttl    time.Duration
	now    func() time.Time
}

func NewDeduplicator(s Storage, settle, ttl time.Duration) *Deduplicator {
	if settle <= 0 {
		settle = DefaultSettleWindow
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Deduplicator{store: s, settle: settle, ttl: ttl, now: time.Now}
}

// Key returns the storage key for a notification.
func Key(notificationID string) string {
	return "notif:" + notificationID
}

// TryClaim blocks for the settle window and reports whether this context won
// the claim. A claim already present and younger than the TTL short-circuits
// to false. The winner's claim is removed after the TTL.
func (d *Deduplicator) TryClaim(notificationID string) (bool, error) {
	key := Key(notificationID)

	won, token, err := settle(d.store, key, d.settle, d.now, func(existing Record) bool {
		return d.now().Sub(existing.WrittenAt) < d.ttl
	})
	if err != nil || !won {
		return false, err
	}

	time.AfterFunc(d.ttl, func() { d.release(key, token) })
	return true, nil
}

// release deletes the claim only if it still holds our token.
func (d *Deduplicator) release(key, token string) {
	rec, ok, err := d.store.Get(key)
	if err != nil {
		slog.Debug("claim cleanup read failed", "key", key, "error", err)
		return
	}
	if !ok || rec.Token != token {
		return
	}
	if err := d.store.Delete(key); err != nil {
		slog.Debug("claim cleanup failed", "key", key, "error", err)
	}
}

// settle runs the write, wait, re-read protocol. blocked reports whether an
// existing record should stop this context before it writes.
func settle(s Storage, key string, window time.Duration, now func() time.Time, blocked func(Record) bool) (bool, string, error) {
	existing, ok, err := s.Get(key)
	if err != nil {
		return false, "", fmt.Errorf("reading %s: %w", key, err)
	}
	if ok && blocked(existing) {
		return false, "", nil
	}

	token := newToken(now())
	if err := s.Put(key, Record{Token: token, WrittenAt: now()}); err != nil {
		return false, "", fmt.Errorf("writing %s: %w", key, err)
	}

	time.Sleep(window)

	current, ok, err := s.Get(key)
	if err != nil {
		return false, "", fmt.Errorf("re-reading %s: %w", key, err)
	}
	return ok && current.Token == token, token, nil
}

func newToken(at time.Time) string {
	return uuid.NewString() + "-" + strconv.FormatInt(at.UnixNano(), 36)
}
