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
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
	"io"

	"github.com/andreburgaud/crypt2go/twofish"
)

// DefaultIter is the key-stretching round count used for newly written
// databases. pwsafe's own reference implementation has raised this several
// times as hardware got faster; 2048 matches the floor pwsafer's writer.rs
// uses when the caller doesn't otherwise have an existing file's iter count
// to preserve.
const DefaultIter = 2048

// Writer serializes a field stream back into the PWS3 container format.
// WriteField must be called in the same order Reader.ReadField would
// produce it (header fields, then each record's fields terminated by
// FieldEndOfRecord), and Finish must be called exactly once, last.
type Writer struct {
	inner      io.Writer
	dataCipher cipher.Block
	iv         [16]byte
	buffer     *secretBuffer
	mac        hash.Hash
}

// NewWriter writes the PWS3 header (fresh random salt, K, L, IV) to w under
// key, stretched with iter rounds, and returns a Writer ready for
// WriteField calls.
func NewWriter(w io.Writer, iter uint32, key *Key) (*Writer, error) {
	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("field: generating salt: %w", err)
	}

	derived := key.Hash(salt, iter)
	defer derived.Destroy()

	stretchCipher, err := twofish.NewCipher(derived.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCipherKey, err)
	}

	k := make([]byte, 32)
	l := make([]byte, 32)
	iv := make([]byte, 16)
	if _, err := rand.Read(k); err != nil {
		return nil, fmt.Errorf("field: generating K: %w", err)
	}
	if _, err := rand.Read(l); err != nil {
		return nil, fmt.Errorf("field: generating L: %w", err)
	}
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("field: generating IV: %w", err)
	}

	dataCipher, err := twofish.NewCipher(k)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCipherKey, err)
	}

	encK := append([]byte(nil), k...)
	encL := append([]byte(nil), l...)
	ecbEncryptInPlace(stretchCipher, encK)
	ecbEncryptInPlace(stretchCipher, encL)

	trueHash := sha256.Sum256(derived.Bytes())

	var iterBuf [4]byte
	binary.LittleEndian.PutUint32(iterBuf[:], iter)

	for _, chunk := range [][]byte{[]byte("PWS3"), salt, iterBuf[:], trueHash[:], encK, encL, iv} {
		if _, err := w.Write(chunk); err != nil {
			return nil, fmt.Errorf("field: writing header: %w", err)
		}
	}

	wr := &Writer{
		inner:      w,
		dataCipher: dataCipher,
		buffer:     newSecretBuffer(),
		mac:        hmac.New(sha256.New, l),
	}
	copy(wr.iv[:], iv)
	return wr, nil
}

// WriteField appends one field to the pending plaintext block stream,
// block-aligning and padding it with random bytes exactly as pwsafer's
// writer.rs write_field does.
func (w *Writer) WriteField(fieldType byte, data []byte) {
	w.mac.Write(data)

	var header [16]byte
	binary.LittleEndian.PutUint32(header[:4], uint32(len(data)))
	header[4] = fieldType

	if len(data) <= 11 {
		copy(header[5:], data)
		randFill(header[5+len(data):])
		w.buffer.extendFromSlice(header[:])
		return
	}

	copy(header[5:], data[:11])
	w.buffer.extendFromSlice(header[:])

	tail := data[11:]
	full := len(tail) / 16 * 16
	w.buffer.extendFromSlice(tail[:full])

	remainder := tail[full:]
	if len(remainder) == 0 {
		return
	}
	var last [16]byte
	copy(last[:], remainder)
	randFill(last[len(remainder):])
	w.buffer.extendFromSlice(last[:])
}

// Finish CBC-encrypts the accumulated field blocks, appends the literal EOF
// marker and the HMAC computed over every field's data, and flushes
// everything to the underlying writer. The Writer must not be used
// afterward.
func (w *Writer) Finish() error {
	defer w.buffer.destroy()

	plainText := append([]byte(nil), w.buffer.Bytes()...)
	cbc := cipher.NewCBCEncrypter(w.dataCipher, w.iv[:])
	if len(plainText) > 0 {
		cbc.CryptBlocks(plainText, plainText)
	}

	if _, err := w.inner.Write(plainText); err != nil {
		return fmt.Errorf("field: writing body: %w", err)
	}
	if _, err := w.inner.Write(eofMarker[:]); err != nil {
		return fmt.Errorf("field: writing EOF marker: %w", err)
	}
	if _, err := w.inner.Write(w.mac.Sum(nil)); err != nil {
		return fmt.Errorf("field: writing HMAC: %w", err)
	}
	return nil
}

func randFill(buf []byte) {
	if len(buf) == 0 {
		return
	}
	// Random padding is cosmetic (it only fills out a field to a 16-byte
	// block boundary) but pwsafe always uses CSPRNG padding rather than
	// zeros, so a captured file doesn't leak field-length alignment beyond
	// what the length prefix already reveals.
	_, _ = rand.Read(buf)
}
