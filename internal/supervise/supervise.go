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

// Package supervise implements the "first-task-finishes-all-stop"
// supervision pattern spec.md §5 describes: every task runs under one
// cancellable scope, the first one to return (with or without an error)
// cancels the rest, and the scope's result is that first return's error.
// Built on golang.org/x/sync/errgroup, the same primitive the pack's
// worker/mapper code (`other_examples/.../worker-restore_map.go.go`) uses
// for a fan-out-then-join scope, here used for a long-lived fan-out of
// heterogeneous tasks instead of identical workers.
package supervise

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"
)

// Task is one of the engine's long-running jobs: the work loop, the
// transport sync task, the periodic rebaser, or the optional HTTP server.
// It must return promptly once ctx is cancelled.
type Task func(ctx context.Context) error

// Scope runs every task concurrently under a shared context. The first
// task to return cancels the context for the rest; Run waits for all of
// them to unwind and returns that first task's error (nil if it returned
// nil).
type Scope struct {
	tasks []Task
}

// New returns an empty Scope.
func New() *Scope { return &Scope{} }

// Add registers a task to run when Run is called.
func (s *Scope) Add(t Task) { s.tasks = append(s.tasks, t) }

// AddSignalWatcher registers the ctrl-c task: it returns as soon as SIGINT
// or SIGTERM arrives, or when ctx is cancelled by some other task first.
func (s *Scope) AddSignalWatcher() {
	s.Add(func(ctx context.Context) error {
		sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-sigCtx.Done()
		return nil
	})
}

// Run blocks until every task has returned. The first task to return at
// all, successful or not, cancels the shared context so the rest unwind;
// Run then returns that first task's error (nil on a graceful stop), not
// whatever the cancelled siblings happened to return.
func (s *Scope) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		once     sync.Once
		firstErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range s.tasks {
		t := t
		g.Go(func() error {
			err := t(gctx)
			once.Do(func() {
				firstErr = err
				cancel()
			})
			return err
		})
	}
	_ = g.Wait()

	if firstErr != nil && !errors.Is(firstErr, context.Canceled) {
		return firstErr
	}
	return nil
}
