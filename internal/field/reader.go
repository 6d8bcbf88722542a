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

// Package field adapts the PWS3 binary format — the "given" cryptographic
// container spec.md §4.1 and §6 describe — into a typed, length-prefixed
// field stream. It is a direct Go translation of
// `_examples/original_source/third-party/pwsafer` (the `pwsafer` crate),
// swapping the RustCrypto stack for `crypt2go`'s Twofish block cipher,
// stdlib `crypto/{sha256,hmac,cipher}`, and `memguard` locked buffers in
// place of the `secrets` crate.
package field

import (
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/andreburgaud/crypt2go/twofish"
)

// ErrMacMismatch means the trailing HMAC did not match the decrypted field
// stream — the file was truncated, corrupted, or tampered with.
var ErrMacMismatch = errors.New("pwsafe: HMAC verification failed")

var eofMarker = [16]byte{'P', 'W', 'S', '3', '-', 'E', 'O', 'F', 'P', 'W', 'S', '3', '-', 'E', 'O', 'F'}

// Reader walks the decrypted field stream of an opened PWS3 database.
type Reader struct {
	cursor *secretCursor
	buffer *secretBuffer
	iter   uint32
}

// NewReader opens r under key, verifying the key hash and the trailing HMAC
// before any field is readable. It returns ErrInvalidTag for a malformed
// container, ErrInvalidPassword when the derived key does not match the
// stored hash, ErrMacMismatch when the trailing HMAC does not match the
// decrypted fields, and a wrapped I/O error when the input cannot be read.
func NewReader(r io.Reader, key *Key) (*Reader, error) {
	iter, buffer, err := readFrom(r, key)
	if err != nil {
		return nil, err
	}
	return &Reader{cursor: newSecretCursor(buffer), buffer: buffer, iter: iter}, nil
}

func readFrom(r io.Reader, key *Key) (uint32, *secretBuffer, error) {
	tag := make([]byte, 4)
	if _, err := io.ReadFull(r, tag); err != nil {
		return 0, nil, ErrInvalidTag
	}
	if string(tag) != "PWS3" {
		return 0, nil, ErrInvalidTag
	}

	salt := make([]byte, 32)
	if _, err := io.ReadFull(r, salt); err != nil {
		return 0, nil, fmt.Errorf("field: reading salt: %w", err)
	}

	var iterBuf [4]byte
	if _, err := io.ReadFull(r, iterBuf[:]); err != nil {
		return 0, nil, fmt.Errorf("field: reading iteration count: %w", err)
	}
	iter := binary.LittleEndian.Uint32(iterBuf[:])

	trueHash := make([]byte, 32)
	if _, err := io.ReadFull(r, trueHash); err != nil {
		return 0, nil, fmt.Errorf("field: reading key hash: %w", err)
	}

	encK := make([]byte, 32)
	encL := make([]byte, 32)
	iv := make([]byte, 16)
	if _, err := io.ReadFull(r, encK); err != nil {
		return 0, nil, fmt.Errorf("field: reading K: %w", err)
	}
	if _, err := io.ReadFull(r, encL); err != nil {
		return 0, nil, fmt.Errorf("field: reading L: %w", err)
	}
	if _, err := io.ReadFull(r, iv); err != nil {
		return 0, nil, fmt.Errorf("field: reading IV: %w", err)
	}

	derived := key.Hash(salt, iter)
	defer derived.Destroy()

	check := sha256.Sum256(derived.Bytes())
	if !hmac.Equal(check[:], trueHash) {
		return 0, nil, ErrInvalidPassword
	}

	stretchCipher, err := twofish.NewCipher(derived.Bytes())
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrInvalidCipherKey, err)
	}

	k := make([]byte, 32)
	l := make([]byte, 32)
	ecbDecryptInPlace(stretchCipher, encK, k)
	ecbDecryptInPlace(stretchCipher, encL, l)

	// K is the CBC key for the field stream; L is the HMAC key. Neither is
	// the stretched passphrase key, which exists only to unwrap these two.
	dataCipher, err := twofish.NewCipher(k)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrInvalidCipherKey, err)
	}

	rest, err := io.ReadAll(r)
	if err != nil {
		return 0, nil, fmt.Errorf("field: reading body: %w", err)
	}

	// 48 bytes of trailer: the literal EOF marker and a 32-byte HMAC.
	if len(rest) < 48 || (len(rest)-48)%16 != 0 {
		return 0, nil, ErrInvalidTag
	}

	dataLen := len(rest) - 48
	plainText := rest[:dataLen]
	eof := rest[dataLen : dataLen+16]
	innerMac := rest[dataLen+16:]

	if string(eof) != string(eofMarker[:]) {
		return 0, nil, ErrInvalidTag
	}

	cbc := cipher.NewCBCDecrypter(dataCipher, iv)
	cbc.CryptBlocks(plainText, plainText)

	mac := hmac.New(sha256.New, l)
	walkFields(plainText, func(fieldType byte, data []byte) {
		mac.Write(data)
	})
	sum := mac.Sum(nil)
	if !hmac.Equal(sum, innerMac) {
		return 0, nil, ErrMacMismatch
	}

	return iter, secretBufferFromDestructive(plainText), nil
}

// ReadField returns the next field's type and data, or ok=false once the
// record stream (and implicitly the file) is exhausted.
func (r *Reader) ReadField() (fieldType byte, data []byte, ok bool) {
	r.cursor.withBuf(func(tail []byte) int {
		ft, d, consumed, found := nextBufferedField(tail)
		if !found {
			ok = false
			return 0
		}
		fieldType = ft
		data = append([]byte(nil), d...)
		ok = true
		return consumed
	})
	return fieldType, data, ok
}

// Restart rewinds the read cursor to the first field, used by pwsafedb
// when the same decrypted image is visited more than once (an original
// parse followed by a diff apply over the same remote base, for instance).
func (r *Reader) Restart() { r.cursor.setPosition(0) }

// Iter returns the key-stretching iteration count read from the header.
func (r *Reader) Iter() uint32 { return r.iter }

// Destroy wipes the decrypted image. Safe to call once the reader is no
// longer needed; further ReadField calls are undefined afterward.
func (r *Reader) Destroy() { r.buffer.destroy() }

// walkFields calls fn for every (type, data) field present in a plaintext
// buffer, in order. Used both for HMAC computation over a freshly-decrypted
// image and wherever a caller wants a read-only pass without a cursor.
func walkFields(data []byte, fn func(fieldType byte, data []byte)) {
	for {
		ft, d, consumed, ok := nextBufferedField(data)
		if !ok {
			return
		}
		fn(ft, d)
		data = data[consumed:]
	}
}

// nextBufferedField decodes one field from the head of data, returning the
// number of bytes consumed (always a multiple of 16). It mirrors pwsafer's
// `next_buffered_field` byte for byte, including its block-counting loop.
func nextBufferedField(data []byte) (fieldType byte, fieldData []byte, consumed int, ok bool) {
	if len(data) < 16 {
		return 0, nil, 0, false
	}
	header := data[:16]
	if string(header) == string(eofMarker[:]) {
		return 0, nil, 0, false
	}

	fieldLength := binary.LittleEndian.Uint32(header[:4])
	fieldType = header[4]

	dataContainingTail := data[5:]
	blockTail := data[16:]
	remaining := fieldLength

	for remaining > 11 {
		if len(blockTail) < 16 {
			return 0, nil, 0, false
		}
		blockTail = blockTail[16:]
		if remaining > 16 {
			remaining -= 16
		} else {
			remaining = 0
		}
	}

	if int(fieldLength) > len(dataContainingTail) {
		return 0, nil, 0, false
	}

	fieldData = dataContainingTail[:fieldLength]
	consumed = len(data) - len(blockTail)
	return fieldType, fieldData, consumed, true
}

func ecbDecryptInPlace(block cipher.Block, src, dst []byte) {
	bs := block.BlockSize()
	for i := 0; i+bs <= len(src); i += bs {
		block.Decrypt(dst[i:i+bs], src[i:i+bs])
	}
}

func ecbEncryptInPlace(block cipher.Block, buf []byte) {
	bs := block.BlockSize()
	for i := 0; i+bs <= len(buf); i += bs {
		block.Encrypt(buf[i:i+bs], buf[i:i+bs])
	}
}
