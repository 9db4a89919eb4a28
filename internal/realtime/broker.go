// Package realtime fans out store changes and keeps live read projections fresh.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"

	"blogger/internal/models"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "changes:"

// Broker delivers change events to in-process listeners. With Redis every
// instance sees every change; without it changes stay inside this process.
// If the Redis subscription cannot be opened the broker stays local too.
type Broker struct {
	rdb   *redis.Client
	local atomic.Bool

	mu        sync.RWMutex
	listeners map[string]map[uint64]func(models.Change)
	nextID    uint64
}

// NewBroker creates a Broker. rdb may be nil.
func NewBroker(rdb *redis.Client) *Broker {
	return &Broker{
		rdb:       rdb,
		listeners: make(map[string]map[uint64]func(models.Change)),
	}
}

// Publish sends a change to changes:<collection>, or straight to this
// process's listeners when the broker is local.
func (b *Broker) Publish(ctx context.Context, change models.Change) error {
	if b.Local() {
		b.dispatch(change)
		return nil
	}
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	return b.rdb.Publish(ctx, channelPrefix+change.Collection, payload).Err()
}

// Local reports whether changes are dispatched in-process only.
func (b *Broker) Local() bool {
	return b.rdb == nil || b.local.Load()
}

// Start subscribes to every change channel and dispatches until ctx is done.
// It returns once the subscription is confirmed. On failure the broker
// switches to in-process delivery and the error is returned.
func (b *Broker) Start(ctx context.Context) error {
	if b.rdb == nil {
		return nil
	}
	sub := b.rdb.PSubscribe(ctx, channelPrefix+"*")
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		b.local.Store(true)
		return fmt.Errorf("subscribe changes: %w", err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				b.handleMessage(msg.Channel, msg.Payload)
			}
		}
	}()

	return nil
}

func (b *Broker) handleMessage(channel, payload string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC in change subscriber: %v\n%s", r, debug.Stack())
		}
	}()

	var change models.Change
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		log.Printf("dropping malformed change on %s: %v", channel, err)
		return
	}
	if change.Collection == "" {
		change.Collection = strings.TrimPrefix(channel, channelPrefix)
	}
	b.dispatch(change)
}

// Listen registers fn for changes to collection. fn runs on the dispatch
// goroutine and must not block. The returned func removes the listener.
func (b *Broker) Listen(collection string, fn func(models.Change)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	if b.listeners[collection] == nil {
		b.listeners[collection] = make(map[uint64]func(models.Change))
	}
	b.listeners[collection][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.listeners[collection], id)
			if len(b.listeners[collection]) == 0 {
				delete(b.listeners, collection)
			}
		})
	}
}

func (b *Broker) dispatch(change models.Change) {
	b.mu.RLock()
	fns := make([]func(models.Change), 0, len(b.listeners[change.Collection]))
	for _, fn := range b.listeners[change.Collection] {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(change)
	}
}
