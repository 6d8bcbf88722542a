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

package communicator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSendDiffBlocksUntilAck(t *testing.T) {
	station := NewStation(4)
	producer := NewProducer(station)

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		done <- producer.SendDiff(ctx, nil)
	}()

	msg := <-station.Messages()
	require.Equal(t, KindDiff, msg.Kind)

	syncMsg := <-station.Messages()
	require.Equal(t, KindSync, syncMsg.Kind)

	select {
	case err := <-done:
		t.Fatalf("producer returned before ack: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	station.Ack(syncMsg.ProducerID, syncMsg.SyncPoint)
	require.NoError(t, <-done)
}

func TestAckIsMonotonic(t *testing.T) {
	station := NewStation(1)
	station.Ack(1, 5)
	station.Ack(1, 3)
	require.Equal(t, SyncPoint(5), station.acked[1])
}

func TestAwaitAckRespectsContextCancellation(t *testing.T) {
	station := NewStation(1)
	producer := NewProducer(station)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- producer.SendDiff(ctx, nil) }()

	<-station.Messages()
	<-station.Messages()
	cancel()

	err := <-errCh
	require.ErrorIs(t, err, context.Canceled)
}
