// Copyright 2026 the pwsafe-matrix-go authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transport

import (
	"context"
	"sync"
)

// InMemory is a RoomTransport test double: Publish appends to an internal
// log, and Inject lets a test deliver a RemoteEvent to whatever Subscribe
// call is active, without a real matrix homeserver.
type InMemory struct {
	mu        sync.Mutex
	published [][]byte
	events    chan RemoteEvent
}

// NewInMemory returns a transport double with a buffered event queue.
func NewInMemory() *InMemory {
	return &InMemory{events: make(chan RemoteEvent, 64)}
}

// Publish records payload for later inspection via Published.
func (m *InMemory) Publish(ctx context.Context, payload []byte) error {
	m.mu.Lock()
	m.published = append(m.published, append([]byte(nil), payload...))
	m.mu.Unlock()
	return nil
}

// Published returns every payload handed to Publish so far, in order.
func (m *InMemory) Published() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.published...)
}

// Inject delivers ev to the active Subscribe call, blocking if its queue
// is full.
func (m *InMemory) Inject(ev RemoteEvent) {
	m.events <- ev
}

// Subscribe delivers injected events to onEvent until ctx is cancelled or
// onEvent returns an error.
func (m *InMemory) Subscribe(ctx context.Context, onEvent func(RemoteEvent) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-m.events:
			if err := onEvent(ev); err != nil {
				return err
			}
		}
	}
}
