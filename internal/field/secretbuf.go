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

import "github.com/awnumar/memguard"

// secretBuffer is an appendable buffer backed by mlock'd, zero-on-destroy
// memory. It plays the role of pwsafer's secrets_vec.rs `SecretBuffer`: a
// growable version of a fixed-size locked buffer, since memguard (like the
// Rust `secrets` crate) only hands out fixed-capacity allocations.
type secretBuffer struct {
	inner *memguard.LockedBuffer
	len   int
}

func newSecretBuffer() *secretBuffer {
	return &secretBuffer{inner: memguard.NewBuffer(0)}
}

// secretBufferFromDestructive takes ownership of data, which is wiped as a
// side effect, and uses it as the initial locked contents.
func secretBufferFromDestructive(data []byte) *secretBuffer {
	lb := memguard.NewBufferFromBytes(data)
	return &secretBuffer{inner: lb, len: lb.Size()}
}

func (b *secretBuffer) Len() int { return b.len }

func (b *secretBuffer) Bytes() []byte {
	return b.inner.Bytes()[:b.len]
}

func (b *secretBuffer) extendFromSlice(data []byte) {
	if needed := b.len + len(data); needed > b.inner.Size() {
		b.relocate(growTarget(b.inner.Size(), needed))
	}
	copy(b.inner.Bytes()[b.len:], data)
	b.len += len(data)
}

func (b *secretBuffer) relocate(newCap int) {
	next := memguard.NewBuffer(newCap)
	copy(next.Bytes(), b.inner.Bytes()[:b.len])
	b.inner.Destroy()
	b.inner = next
}

func (b *secretBuffer) clone() *secretBuffer {
	out := &secretBuffer{inner: memguard.NewBuffer(b.inner.Size()), len: b.len}
	copy(out.inner.Bytes(), b.inner.Bytes()[:b.len])
	return out
}

func (b *secretBuffer) destroy() {
	b.inner.Destroy()
	b.len = 0
}

// growTarget mirrors secrets_vec.rs's needs_grow_to: double the capacity,
// or take the requested length if doubling does not cover it, with a
// minimum of 32.
func growTarget(capacity, needed int) int {
	const growthFactor = 2
	const minimum = 32

	newCap := capacity * growthFactor
	if newCap < needed {
		newCap = needed
	}
	if newCap < minimum {
		newCap = minimum
	}
	return newCap
}

// secretCursor is a read cursor over a secretBuffer, mirroring
// SecretCursor. Each Reader owns one; rewinding it lets diff.Visit and the
// diff-apply pass walk the same remote base bytes in turn.
type secretCursor struct {
	buffer *secretBuffer
	pos    int
}

func newSecretCursor(buffer *secretBuffer) *secretCursor {
	return &secretCursor{buffer: buffer}
}

func (c *secretCursor) withBuf(fn func(tail []byte) (consumed int)) {
	tail := c.buffer.Bytes()[c.pos:]
	c.pos += fn(tail)
}

func (c *secretCursor) setPosition(pos int) { c.pos = pos }
