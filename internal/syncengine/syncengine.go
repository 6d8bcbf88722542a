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

// Package syncengine holds the two long-running producers that feed the
// work loop from outside of an HTTP request: a periodic rebase hint (so an
// external editor releasing the lock file is noticed even with no other
// traffic) and the bridge from a RoomTransport's inbound event stream into
// the Communicator. Grounded on
// `_examples/original_source/bin/pwsafe-matrix/src/cmd/sync.rs`'s `refresh`
// and transport-forwarding tasks.
package syncengine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/communicator"
	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/transport"
)

// DefaultRebaseInterval is how often RefreshTask prods the work loop to
// retry the advisory lock, matching the original's fixed 10-second poll.
const DefaultRebaseInterval = 10 * time.Second

// RefreshTask periodically sends a Rebase hint so a work loop that's
// waiting on lock_exists notices an external editor has let go even when
// no local edit or remote event would otherwise wake it.
type RefreshTask struct {
	Producer *communicator.Producer
	Interval time.Duration
	Logger   *slog.Logger
}

// Run blocks until ctx is cancelled, sending a Rebase hint on every tick.
func (t RefreshTask) Run(ctx context.Context) error {
	interval := t.Interval
	if interval <= 0 {
		interval = DefaultRebaseInterval
	}
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := t.Producer.Rebase(ctx); err != nil {
				logger.DebugContext(ctx, "rebase hint not delivered", "error", err)
			}
		}
	}
}

// TransportTask forwards a RoomTransport's inbound events into the
// Communicator as KindRemote messages, reconnecting with backoff on
// transport errors (see transport.SubscribeWithBackoff).
type TransportTask struct {
	Producer  *communicator.Producer
	Transport transport.RoomTransport
}

// Run blocks until ctx is cancelled or the transport's backoff gives up.
func (t TransportTask) Run(ctx context.Context) error {
	err := transport.SubscribeWithBackoff(ctx, t.Transport, func(ev transport.RemoteEvent) error {
		return t.Producer.SendRemote(ctx, ev.Payload, ev.Ts)
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("syncengine: transport session ended: %w", err)
	}
	return ctx.Err()
}
