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

// Package transport defines the engine's view of the matrix room: a source
// of timestamped remote changesets and a sink for publishing local ones.
// The real session-bearing client is an external collaborator (spec.md
// §1); this package only states the shape the work loop's supervising
// tasks consume, grounded on the teacher's pubsub client interface
// (`_examples/GoogleChrome-webstatus.dev/lib/gcppubsub/client.go`'s
// Publish/Subscribe split).
package transport

import (
	"context"

	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/pwtypes"
)

// RemoteEvent is one inbound room message, already split into its opaque
// diff payload and the homeserver-assigned timestamp that orders it.
type RemoteEvent struct {
	Payload []byte
	Ts      pwtypes.Timestamp
}

// RoomTransport is the interface the supervised sync task drives: Publish
// ships a locally-authored diff out to the room, Subscribe streams
// inbound events until ctx is cancelled or the session dies.
type RoomTransport interface {
	Publish(ctx context.Context, payload []byte) error
	Subscribe(ctx context.Context, onEvent func(RemoteEvent) error) error
}
