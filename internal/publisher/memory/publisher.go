// Package memory keeps published book messages in process, for tests and
// dry runs.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
)

// PublishedMessage is one accepted publish. Data holds the JSON encoding the
// network publishers would have sent.
type PublishedMessage struct {
	ID      string
	Key     string
	Payload any
	Data    []byte
}

// Decode unmarshals Data into v.
func (m PublishedMessage) Decode(v any) error {
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode message %s: %w", m.ID, err)
	}
	return nil
}

// Publisher records publishes instead of sending them.
type Publisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
	failure  error
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// FailWith makes every later Publish return err; nil restores success.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	p.failure = err
	p.mu.Unlock()
}

// Publish encodes payload as JSON and records it under a sequential id.
func (p *Publisher) Publish(_ context.Context, key string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failure != nil {
		return "", p.failure
	}
	id := "memory-" + strconv.Itoa(len(p.messages)+1)
	p.messages = append(p.messages, PublishedMessage{ID: id, Key: key, Payload: payload, Data: data})
	return id, nil
}

// Messages returns a copy of the recorded publishes in order.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]PublishedMessage(nil), p.messages...)
}
