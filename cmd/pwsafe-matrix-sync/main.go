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

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/communicator"
	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/field"
	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/httpadmin"
	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/lockfile"
	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/pwsafedb"
	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/supervise"
	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/syncengine"
	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/transport"
	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/workloop"
)

func parseEnvVarDuration(key string, fallback time.Duration) time.Duration {
	raw, found := os.LookupEnv(key)
	if !found {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		slog.Error("unable to parse duration", "key", key, "input value", raw)
		os.Exit(1)
	}
	return d
}

func requireEnvVar(key string) string {
	v, found := os.LookupEnv(key)
	if !found || v == "" {
		slog.Error("missing required environment variable", "key", key)
		os.Exit(1)
	}
	return v
}

func main() {
	ctx := context.Background()

	dbPath := requireEnvVar("PWSAFE_DB_PATH")
	password := []byte(requireEnvVar("PWSAFE_PASSWORD"))

	identity, err := lockfile.Identity()
	if err != nil {
		slog.ErrorContext(ctx, "failed to resolve lock file identity", "error", err.Error())
		os.Exit(1)
	}

	// The initial open can race a sibling process mid-rewrite; a short
	// exponential backoff absorbs that without treating it as the
	// cryptographic/passphrase failure kind, which is fatal outright.
	openDb := func() (*pwsafedb.PwsafeDb, error) {
		db, err := pwsafedb.Open(dbPath, password, identity)
		if errors.Is(err, field.ErrInvalidPassword) {
			return nil, backoff.Permanent(err)
		}
		return db, err
	}
	db, err := backoff.Retry(ctx, openDb,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(30*time.Second),
	)
	if err != nil {
		slog.ErrorContext(ctx, "failed to open database", "path", dbPath, "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()

	station := communicator.NewStation(64)
	loop := workloop.New(db, station, workloop.WithLogger(slog.Default()))

	scope := supervise.New()
	scope.AddSignalWatcher()
	scope.Add(loop.Run)
	scope.Add(syncengine.RefreshTask{
		Producer: communicator.NewProducer(station),
		Interval: parseEnvVarDuration("PWSAFE_REBASE_INTERVAL", syncengine.DefaultRebaseInterval),
		Logger:   slog.Default(),
	}.Run)

	// The session-bearing matrix client is an external collaborator per
	// spec.md §1's scope boundary; this binary wires the RoomTransport
	// seam but has nothing real to plug into it, so room traffic is a
	// no-op in-memory stand-in until a homeserver client is supplied.
	roomTransport := transport.NewInMemory()
	scope.Add(syncengine.TransportTask{
		Producer:  communicator.NewProducer(station),
		Transport: roomTransport,
	}.Run)

	if addr, found := os.LookupEnv("PWSAFE_ADMIN_ADDR"); found && addr != "" {
		token := requireEnvVar("PWSAFE_ADMIN_TOKEN")
		opts := []httpadmin.Option{httpadmin.WithLogger(slog.Default())}
		if _, ready := os.LookupEnv("PWSAFE_ADMIN_READY"); ready {
			opts = append(opts, httpadmin.WithReadySignal())
		}
		admin, err := httpadmin.NewServer(addr, token, communicator.NewProducer(station), opts...)
		if err != nil {
			slog.ErrorContext(ctx, "failed to configure admin endpoint", "error", err.Error())
			os.Exit(1)
		}
		scope.Add(admin.Run)
	}

	if err := scope.Run(ctx); err != nil {
		slog.ErrorContext(ctx, "exiting after unrecoverable error", "error", err.Error())
		os.Exit(1)
	}
}
