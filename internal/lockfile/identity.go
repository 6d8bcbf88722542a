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

package lockfile

import (
	"fmt"
	"os"
	"os/user"
)

// Identity formats the lock file contents "<user>@<host>:<pid>". Lookup
// failure is fatal at startup per spec.md §7 ("Lock-file user-info
// lookup"); callers should treat a non-nil error as unrecoverable.
func Identity() (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("lockfile: looking up current user: %w", err)
	}
	host, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("lockfile: looking up hostname: %w", err)
	}
	return fmt.Sprintf("%s@%s:%d", u.Username, host, os.Getpid()), nil
}
