// Package memory records commit notifications in memory.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/board-crawler/internal/board"
)

// Publisher stores published payloads for inspection. It stands in for
// Pub/Sub when no topic is configured but notifications are still wanted in
// logs or tests.
type Publisher struct {
	mu       sync.RWMutex
	messages []any
}

var _ board.Publisher = (*Publisher)(nil)

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the payload and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, payload)
	return fmt.Sprintf("memory-%d", len(p.messages)), nil
}

// Messages returns a copy of the recorded payloads.
func (p *Publisher) Messages() []any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]any, len(p.messages))
	copy(out, p.messages)
	return out
}
