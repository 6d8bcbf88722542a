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
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	key := NewKey([]byte("correct horse battery staple"))
	defer key.Destroy()

	w, err := NewWriter(&buf, 2048, key)
	require.NoError(t, err)

	w.WriteField(byte(0x00), []byte{0x0e, 0x0a})
	w.WriteField(byte(0xff), nil)

	w.WriteField(byte(0x01), bytes.Repeat([]byte{0xAB}, 16))
	w.WriteField(byte(0x04), []byte("alice"))
	longNote := bytes.Repeat([]byte("this note is long enough to span several 16-byte blocks"), 3)
	w.WriteField(byte(0x05), longNote)
	w.WriteField(byte(0x06), []byte("hunter2"))
	w.WriteField(byte(0xff), nil)

	require.NoError(t, w.Finish())

	r, err := NewReader(bytes.NewReader(buf.Bytes()), key)
	require.NoError(t, err)
	defer r.Destroy()

	type field struct {
		fieldType byte
		data      []byte
	}
	var got []field
	for {
		ft, data, ok := r.ReadField()
		if !ok {
			break
		}
		got = append(got, field{ft, append([]byte(nil), data...)})
	}

	require.Len(t, got, 7)
	require.Equal(t, byte(0x01), got[2].fieldType)
	require.Equal(t, bytes.Repeat([]byte{0xAB}, 16), got[2].data)
	require.Equal(t, "alice", string(got[3].data))
	require.Equal(t, longNote, got[4].data)
	require.Equal(t, "hunter2", string(got[5].data))
}

func TestReaderRejectsWrongPassword(t *testing.T) {
	var buf bytes.Buffer
	key := NewKey([]byte("the right one"))
	defer key.Destroy()

	w, err := NewWriter(&buf, 2048, key)
	require.NoError(t, err)
	w.WriteField(byte(0x01), []byte("x"))
	require.NoError(t, w.Finish())

	wrong := NewKey([]byte("the wrong one"))
	defer wrong.Destroy()

	_, err = NewReader(bytes.NewReader(buf.Bytes()), wrong)
	require.ErrorIs(t, err, ErrInvalidPassword)
}

func TestReaderRejectsBadTag(t *testing.T) {
	key := NewKey([]byte("whatever"))
	defer key.Destroy()

	_, err := NewReader(bytes.NewReader([]byte("not a pwsafe file at all")), key)
	require.ErrorIs(t, err, ErrInvalidTag)
}

func TestReaderRejectsTamperedBody(t *testing.T) {
	var buf bytes.Buffer
	key := NewKey([]byte("correct horse battery staple"))
	defer key.Destroy()

	w, err := NewWriter(&buf, 2048, key)
	require.NoError(t, err)
	w.WriteField(byte(0x01), bytes.Repeat([]byte("0123456789abcdef"), 8))
	require.NoError(t, w.Finish())

	raw := buf.Bytes()
	// Flip a byte inside the encrypted body, well past the header.
	raw[len(raw)-60] ^= 0xFF

	_, err = NewReader(bytes.NewReader(raw), key)
	require.ErrorIs(t, err, ErrMacMismatch)
}
