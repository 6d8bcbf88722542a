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

// Package workloop implements the single owner of the PwsafeDb: the
// cooperative loop spec.md §4.6 describes, which drains the Communicator
// in batches, applies local and remote changes under the advisory lock,
// and signals producer acknowledgements only once their intent is
// reflected on disk. Grounded on the teacher's batched-consumer worker
// loops (`_examples/GoogleChrome-webstatus.dev/lib/workerpool`) and on
// `_examples/original_source/bin/pwsafe-matrix/src/cmd/sync.rs`.
package workloop

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/awaitts"
	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/communicator"
	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/diff"
	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/pwsafedb"
	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/pwtypes"
)

// DefaultBatchSize bounds how many Communicator messages one iteration
// drains before acting on them.
const DefaultBatchSize = 16

// DefaultPacingInterval is the cooperative-yield tick the loop waits for
// after every iteration, before receiving the next batch.
const DefaultPacingInterval = 50 * time.Microsecond

type ackEntry struct {
	needed awaitts.AwaitTs
	sp     communicator.SyncPoint
}

// Loop is the single owner of a PwsafeDb, draining a Station and advancing
// applied/pending AwaitTs marks as it absorbs messages.
type Loop struct {
	db      *pwsafedb.PwsafeDb
	station *communicator.Station
	logger  *slog.Logger

	batchSize int
	pacing    time.Duration

	applied    awaitts.AwaitTs
	pending    awaitts.AwaitTs
	localCount uint64

	// locals/remotes/remoteTs stage diffs accepted from producers but not
	// yet durably committed. A failed lock attempt (ErrLockBusy) must not
	// lose them — spec.md §4.6 requires staged buffers to survive a failed
	// attempt — so they live here instead of as per-iteration locals, and
	// are only cleared once a WithLock scope actually commits them.
	locals   []*diff.Diff
	remotes  []*diff.Diff
	remoteTs []pwtypes.Timestamp

	acks       map[communicator.ID][]ackEntry
	lockExists bool
}

// Option configures a Loop at construction.
type Option func(*Loop)

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) Option { return func(l *Loop) { l.batchSize = n } }

// WithPacingInterval overrides DefaultPacingInterval.
func WithPacingInterval(d time.Duration) Option { return func(l *Loop) { l.pacing = d } }

// WithLogger attaches a structured logger; defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option { return func(l *Loop) { l.logger = logger } }

// New returns a Loop ready to Run, owning db exclusively from this point on.
func New(db *pwsafedb.PwsafeDb, station *communicator.Station, opts ...Option) *Loop {
	l := &Loop{
		db:        db,
		station:   station,
		logger:    slog.Default(),
		batchSize: DefaultBatchSize,
		pacing:    DefaultPacingInterval,
		acks:      make(map[communicator.ID][]ackEntry),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run drives the loop until ctx is cancelled or a hard error occurs. A
// hard decode error on a remote message terminates the loop and returns
// the error, per spec.md §7's fatal-decode error kind.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.pacing)
	defer ticker.Stop()

	// sentAt holds, per producer, the pending mark in force when that
	// producer's latest non-Sync message was processed. A Sync uses it as
	// its barrier, so a message and its Sync that land in different batches
	// get the same barrier as a pair received in one batch.
	sentAt := make(map[communicator.ID]awaitts.AwaitTs)

	for {
		batch, ok := l.receiveBatch(ctx)
		if !ok {
			return ctx.Err()
		}

		var newLocals int
		lastRemote := l.pending.Remote

		for _, msg := range batch {
			if msg.Kind != communicator.KindSync {
				sentAt[msg.ProducerID] = l.pending
			}
			switch msg.Kind {
			case communicator.KindDiff:
				d, err := l.decodeDiff(msg.Payload)
				if err != nil {
					l.logger.Warn("discarding malformed local diff", "error", err)
					continue
				}
				l.locals = append(l.locals, d)
				newLocals++

			case communicator.KindRemote:
				d, err := l.decodeDiff(msg.Payload)
				if err != nil {
					return fmt.Errorf("workloop: fatal decode of remote diff: %w", err)
				}
				if lastRemote != nil && !lastRemote.LessOrEqual(msg.RemoteTs) {
					return fmt.Errorf("workloop: remote timestamps not monotone: %+v then %+v", *lastRemote, msg.RemoteTs)
				}
				ts := msg.RemoteTs
				lastRemote = &ts
				l.remotes = append(l.remotes, d)
				l.remoteTs = append(l.remoteTs, msg.RemoteTs)

			case communicator.KindSync:
				needed, ok := sentAt[msg.ProducerID]
				if !ok {
					needed = l.pending
				}
				delete(sentAt, msg.ProducerID)
				l.acks[msg.ProducerID] = append(l.acks[msg.ProducerID], ackEntry{needed: needed, sp: msg.SyncPoint})

			case communicator.KindRebase:
				l.lockExists = false
			}
		}

		// pending only advances after every Sync in this batch has
		// captured its "needed" mark, so a producer's own diff-then-sync
		// pair (and a remote event's sync) always records a barrier the
		// pending update that follows is strictly ahead of.
		if newLocals > 0 {
			l.localCount += uint64(newLocals)
			l.pending = l.pending.WithLocal(l.localCount)
		}
		if lastRemote != nil {
			l.pending = l.pending.WithRemote(*lastRemote)
		}

		if !l.lockExists {
			l.attemptLockScope()
		}

		l.fireAcks()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *Loop) decodeDiff(payload []byte) (*diff.Diff, error) {
	d := &diff.Diff{}
	if err := json.Unmarshal(payload, d); err != nil {
		return nil, err
	}
	return d.WithPepper(l.db.Pepper()), nil
}

// receiveBatch blocks for at least one message, then drains up to
// batchSize-1 more without blocking, giving the loop its batching without
// ever spinning on an empty channel.
func (l *Loop) receiveBatch(ctx context.Context) ([]communicator.Message, bool) {
	var batch []communicator.Message

	select {
	case msg, open := <-l.station.Messages():
		if !open {
			return nil, false
		}
		batch = append(batch, msg)
	case <-ctx.Done():
		return nil, false
	}

	for len(batch) < l.batchSize {
		select {
		case msg, open := <-l.station.Messages():
			if !open {
				return batch, true
			}
			batch = append(batch, msg)
		default:
			return batch, true
		}
	}
	return batch, true
}

// attemptLockScope is the body of spec.md §4.6 step 3: refresh, drain
// locals, rebase remotes, rewrite — all inside one lock acquisition. It
// reads the Loop's own staged buffers rather than taking them as
// parameters, since a failed attempt (lock busy, or any other error) must
// leave them in place for the next iteration to retry — nothing is
// dropped, and applied only advances once Rewrite has actually committed.
func (l *Loop) attemptLockScope() {
	locals := l.locals
	remotes := l.remotes
	remoteTs := l.remoteTs

	err := l.db.WithLock(func(lock *pwsafedb.PwsafeLock) error {
		if err := lock.Refresh(); err != nil {
			return fmt.Errorf("refresh: %w", err)
		}

		for _, d := range locals {
			lock.PushLocal(d)
		}

		if len(remotes) > 0 {
			if err := lock.Rebase(remotes, remoteTs); err != nil {
				return fmt.Errorf("rebase: %w", err)
			}
		}

		return lock.Rewrite()
	})

	if err == nil {
		if len(remotes) > 0 {
			l.applied = l.applied.WithRemote(remoteTs[len(remoteTs)-1])
		}
		l.applied = l.applied.WithLocal(l.localCount)
		l.locals = nil
		l.remotes = nil
		l.remoteTs = nil
		return
	}

	if err == pwsafedb.ErrLockBusy {
		l.lockExists = true
		l.logger.Debug("rewrite deferred, external editor holds the lock")
		return
	}

	l.logger.Error("rewrite attempt failed, will retry", "error", err)
}

// fireAcks pops and acknowledges every producer's barrier whose recorded
// need is strictly less than the new applied mark (spec.md §4.7: the
// comparison must be strict, or incomparable progress would cross-ack).
func (l *Loop) fireAcks() {
	for id, queue := range l.acks {
		i := 0
		for i < len(queue) && queue[i].needed.Less(l.applied) {
			l.station.Ack(id, queue[i].sp)
			i++
		}
		l.acks[id] = queue[i:]
	}
}
