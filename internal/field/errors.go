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

import "errors"

// Sentinel errors surfaced by the reader, matching pwsafer's reader.rs Error
// enum (§4.1): InvalidTag / InvalidPassword / InvalidHeader, plus IO errors
// which are returned wrapped rather than as a sentinel.
var (
	ErrInvalidTag       = errors.New("pwsafe: not a Password Safe v3 database file")
	ErrInvalidPassword  = errors.New("pwsafe: invalid password")
	ErrInvalidHeader    = errors.New("pwsafe: invalid header")
	ErrInvalidCipherKey = errors.New("pwsafe: invalid block cipher key")
)
