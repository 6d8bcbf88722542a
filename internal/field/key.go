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

package field

import (
	"crypto/sha256"

	"github.com/awnumar/memguard"
)

// Key wraps a password's first SHA-256 digest, locked in non-swappable
// memory, so that deriving a key under several candidate (salt, iter) pairs
// (as the reader does while probing a file) never touches a plaintext
// passphrase more than once. Mirrors pwsafer's key.rs `PwsafeKey`.
type Key struct {
	prepared *memguard.LockedBuffer
}

// NewKey digests password once and locks the digest. password is not
// retained; callers that read it from a file should wipe their own copy
// after this call.
func NewKey(password []byte) *Key {
	sum := sha256.Sum256(password)
	lb := memguard.NewBufferFromBytes(sum[:])
	return &Key{prepared: lb}
}

// Hash runs the key-stretching loop: sha256(digest || salt), then iter
// rounds of sha256(prev). Returns a 32-byte locked buffer the caller must
// Destroy.
func (k *Key) Hash(salt []byte, iter uint32) *memguard.LockedBuffer {
	h := sha256.New()
	h.Write(k.prepared.Bytes())
	h.Write(salt)
	sum := h.Sum(nil)

	for i := uint32(0); i < iter; i++ {
		sum = hashOnce(sum)
	}

	return memguard.NewBufferFromBytes(sum)
}

func hashOnce(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// Destroy wipes the underlying digest.
func (k *Key) Destroy() { k.prepared.Destroy() }
