// Package progress provides a best-effort side channel for human-readable
// status updates from concurrent phase workers. It is deliberately decoupled
// from session state: publishing and polling touch only the channel's own
// lock, so it can never block or deadlock the protocol.
package progress

import (
	"sort"
	"sync"
	"time"

	"github.com/joescharf/quorum/internal/models"
)

// Channel is an append-only in-memory buffer of progress updates.
type Channel struct {
	mu      sync.Mutex
	updates []models.ProgressUpdate
	now     func() time.Time
}

// NewChannel creates an empty progress channel.
func NewChannel() *Channel {
	return &Channel{now: func() time.Time { return time.Now().UTC() }}
}

// Publish records a status message from a participant. Safe to call from any
// goroutine; never fails.
func (c *Channel) Publish(participant, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, models.ProgressUpdate{
		Participant: participant,
		Message:     message,
		Timestamp:   c.now(),
	})
}

// Poll returns all updates strictly after since, sorted by timestamp. There
// is no ordering guarantee beyond the timestamp sort.
func (c *Channel) Poll(since time.Time) []models.ProgressUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []models.ProgressUpdate
	for _, u := range c.updates {
		if u.Timestamp.After(since) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// Len returns the number of buffered updates.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.updates)
}

// Reset discards all buffered updates, for reuse after session completion.
func (c *Channel) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = nil
}
