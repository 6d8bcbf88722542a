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

// Package communicator implements the many-producer, single-consumer
// message channel spec.md §4.5 describes: typed messages carrying local
// diffs, remote changesets, sync barriers, and rebase hints, plus a
// watched per-producer acknowledgement map so producers never hold a
// reference into the owned database — they only ever await a published
// sync point. Grounded on the teacher's pubsub abstraction shape
// (`_examples/GoogleChrome-webstatus.dev/lib/gcppubsub`), reworked from a
// network client into an in-process channel.
package communicator

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/pwtypes"
)

// ID identifies a producer. SyncPoint is a producer-local monotonic
// barrier ordinal.
type ID uint64
type SyncPoint uint64

// Kind discriminates Message's payload.
type Kind int

const (
	KindDiff Kind = iota
	KindRemote
	KindSync
	KindRebase
)

// Message is the Communicator's wire type. Payload is the opaque
// serialized Diff for KindDiff/KindRemote; only the fields relevant to Kind
// are populated. The work loop, not the producer, deserializes Payload —
// it must be parsed against the current base's pepper.
type Message struct {
	Kind       Kind
	ProducerID ID
	SyncPoint  SyncPoint
	Payload    []byte
	RemoteTs   pwtypes.Timestamp
}

// Station is the single consumer's inbox plus the watched ack state.
type Station struct {
	ch chan Message

	mu      sync.Mutex
	cond    *sync.Cond
	acked   map[ID]SyncPoint
	nextID  atomic.Uint64
}

// NewStation returns a Station with a channel of the given capacity. A
// capacity of zero makes producer sends synchronous with the work loop's
// receive, which is fine for tests but costs producers latency in
// production; spec.md doesn't mandate a specific bound.
func NewStation(capacity int) *Station {
	s := &Station{
		ch:    make(chan Message, capacity),
		acked: make(map[ID]SyncPoint),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Messages exposes the consumer side for the work loop to range/select over.
func (s *Station) Messages() <-chan Message { return s.ch }

// Ack publishes that producer id's messages up to and including sp have
// been fully absorbed. Acknowledgement is monotonic per id: a smaller sp
// than what's already recorded is ignored, matching invariant 4 (ack
// monotonicity).
func (s *Station) Ack(id ID, sp SyncPoint) {
	s.mu.Lock()
	if cur, ok := s.acked[id]; !ok || sp > cur {
		s.acked[id] = sp
	}
	s.mu.Unlock()
	s.cond.Broadcast()
}

// awaitAck blocks until producer id's acked sync point reaches at least sp,
// or ctx is cancelled.
func (s *Station) awaitAck(ctx context.Context, id ID, sp SyncPoint) error {
	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		// Taking mu orders this wakeup after the waiter has either seen
		// ctx.Done or entered cond.Wait, so the broadcast cannot be missed.
		s.mu.Lock()
		s.mu.Unlock()
		s.cond.Broadcast()
		close(done)
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if cur, ok := s.acked[id]; ok && cur >= sp {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		s.cond.Wait()
	}
}

// Producer is one of many concurrent senders into a Station: the local
// HTTP handler, the transport's inbound subscription, and the periodic
// rebase timer each own one.
type Producer struct {
	id      ID
	station *Station
	counter atomic.Uint64
}

// NewProducer allocates a fresh monotonic producer id against station.
func NewProducer(station *Station) *Producer {
	return &Producer{id: ID(station.nextID.Add(1)), station: station}
}

// ID returns this producer's identity.
func (p *Producer) ID() ID { return p.id }

func (p *Producer) nextSyncPoint() SyncPoint {
	return SyncPoint(p.counter.Add(1))
}

func (p *Producer) send(ctx context.Context, msg Message) error {
	select {
	case p.station.ch <- msg:
	case <-ctx.Done():
		return ctx.Err()
	}

	sp := p.nextSyncPoint()
	select {
	case p.station.ch <- Message{Kind: KindSync, ProducerID: p.id, SyncPoint: sp}:
	case <-ctx.Done():
		return ctx.Err()
	}

	return p.station.awaitAck(ctx, p.id, sp)
}

// SendDiff enqueues a locally-authored change's serialized payload and
// awaits its durability.
func (p *Producer) SendDiff(ctx context.Context, payload []byte) error {
	return p.send(ctx, Message{Kind: KindDiff, ProducerID: p.id, Payload: payload})
}

// SendRemote enqueues a changeset observed on the transport, timestamped by
// the homeserver, and awaits its absorption into the remote base.
func (p *Producer) SendRemote(ctx context.Context, payload []byte, ts pwtypes.Timestamp) error {
	return p.send(ctx, Message{Kind: KindRemote, ProducerID: p.id, Payload: payload, RemoteTs: ts})
}

// Rebase hints that the external editor's lock may have been released.
func (p *Producer) Rebase(ctx context.Context) error {
	return p.send(ctx, Message{Kind: KindRebase, ProducerID: p.id})
}
