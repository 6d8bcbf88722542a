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
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// flaky fails its first n Subscribe calls, then blocks on ctx like a real
// long-lived subscription would.
type flaky struct {
	failures int32
	failed   atomic.Int32
}

func (f *flaky) Publish(ctx context.Context, payload []byte) error { return nil }

func (f *flaky) Subscribe(ctx context.Context, onEvent func(RemoteEvent) error) error {
	if f.failed.Add(1) <= f.failures {
		return errors.New("simulated disconnect")
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestSubscribeWithBackoffRetriesThenBlocks(t *testing.T) {
	f := &flaky{failures: 2}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := SubscribeWithBackoff(ctx, f, func(RemoteEvent) error { return nil })
	require.Error(t, err)
	require.GreaterOrEqual(t, f.failed.Load(), int32(3))
}
