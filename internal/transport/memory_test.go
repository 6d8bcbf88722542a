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

package transport_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/pwtypes"
	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/transport"
)

func TestInMemoryPublishRecordsPayloads(t *testing.T) {
	m := transport.NewInMemory()

	require.NoError(t, m.Publish(context.Background(), []byte("one")))
	require.NoError(t, m.Publish(context.Background(), []byte("two")))

	published := m.Published()
	require.Equal(t, [][]byte{[]byte("one"), []byte("two")}, published)
}

func TestInMemorySubscribeDeliversInjectedEvents(t *testing.T) {
	m := transport.NewInMemory()
	ts := pwtypes.Timestamp{}

	received := make(chan transport.RemoteEvent, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- m.Subscribe(ctx, func(ev transport.RemoteEvent) error {
			received <- ev
			return nil
		})
	}()

	m.Inject(transport.RemoteEvent{Payload: []byte("remote-diff"), Ts: ts})

	select {
	case ev := <-received:
		require.Equal(t, []byte("remote-diff"), ev.Payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for injected event")
	}

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestInMemorySubscribeStopsOnHandlerError(t *testing.T) {
	m := transport.NewInMemory()
	boom := context.DeadlineExceeded

	done := make(chan error, 1)
	go func() {
		done <- m.Subscribe(context.Background(), func(transport.RemoteEvent) error {
			return boom
		})
	}()

	m.Inject(transport.RemoteEvent{})

	select {
	case err := <-done:
		require.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Subscribe to return")
	}
}
