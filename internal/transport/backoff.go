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

	"github.com/cenkalti/backoff/v5"
)

// SubscribeWithBackoff drives Subscribe, reconnecting with exponential
// backoff whenever it returns an error instead of letting a single
// homeserver hiccup become the fatal "transport session" error kind
// spec.md §7 reserves for something harder. ctx cancellation is the only
// way out once Subscribe keeps failing; there's no max-elapsed-time bound
// since a room sync task is meant to run for the life of the process.
func SubscribeWithBackoff(ctx context.Context, t RoomTransport, onEvent func(RemoteEvent) error) error {
	operation := func() (struct{}, error) {
		return struct{}{}, t.Subscribe(ctx, onEvent)
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(0),
	)
	return err
}
