// Copyright © 2025 Kaleido, Inc.
//
// SPDX-License-Identifier: Apache-2.0
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

package inflight

import (
	"context"
	"sync"
	"time"

	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/kaleido-io/wagechain/internal/msgs"
)

// Manager tracks at most one in-flight operation per logical key.
// The first caller for a key becomes the leader and performs the work;
// later callers for the same key join the existing request and wait for
// the leader's outcome rather than starting a duplicate operation.
type Manager[K comparable, T any] struct {
	lock     sync.Mutex
	requests map[K]*Request[K, T]
	closed   bool
}

type Request[K comparable, T any] struct {
	ctx       context.Context
	cancelCtx context.CancelFunc
	ifm       *Manager[K, T]
	id        K
	queued    time.Time
	done      chan struct{}
	result    T
	err       error
}

func NewManager[K comparable, T any]() *Manager[K, T] {
	return &Manager[K, T]{
		requests: make(map[K]*Request[K, T]),
	}
}

// AddOrJoin returns the in-flight request for the key, creating it if none
// exists. leader is true only for the caller that created the request; that
// caller must finish with Complete or Cancel.
func (ifm *Manager[K, T]) AddOrJoin(ctx context.Context, id K) (req *Request[K, T], leader bool) {
	ifm.lock.Lock()
	defer ifm.lock.Unlock()
	if existing := ifm.requests[id]; existing != nil {
		return existing, false
	}
	req = &Request[K, T]{
		ifm:    ifm,
		id:     id,
		queued: time.Now(),
		done:   make(chan struct{}),
	}
	req.ctx, req.cancelCtx = context.WithCancel(ctx)
	ifm.requests[id] = req
	if ifm.closed {
		req.cancelCtx()
	}
	return req, true
}

func (ifm *Manager[K, T]) GetInflight(id K) *Request[K, T] {
	ifm.lock.Lock()
	defer ifm.lock.Unlock()
	return ifm.requests[id]
}

func (ifm *Manager[K, T]) InFlightCount() int {
	ifm.lock.Lock()
	defer ifm.lock.Unlock()
	return len(ifm.requests)
}

func (ifm *Manager[K, T]) remove(req *Request[K, T]) {
	ifm.lock.Lock()
	defer ifm.lock.Unlock()
	req.cancelCtx()
	delete(ifm.requests, req.id)
}

func (ifm *Manager[K, T]) Close() {
	ifm.lock.Lock()
	defer ifm.lock.Unlock()
	ifm.closed = true
	for _, req := range ifm.requests {
		req.cancelCtx()
		delete(ifm.requests, req.id)
	}
}

func (req *Request[K, T]) ID() K {
	return req.id
}

func (req *Request[K, T]) Age() time.Duration {
	return time.Since(req.queued)
}

// Complete records the leader's outcome, releases all waiters, and removes
// the request from the manager. Safe to call exactly once.
func (req *Request[K, T]) Complete(v T, err error) {
	req.result = v
	req.err = err
	close(req.done)
	req.ifm.remove(req)
}

// Cancel releases the key without an outcome. Waiters see a cancellation error.
func (req *Request[K, T]) Cancel() {
	req.ifm.remove(req)
}

// Wait blocks until the leader completes, or the request/supplied context
// is cancelled.
func (req *Request[K, T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-req.done:
		return req.result, req.err
	case <-ctx.Done():
		return *new(T), i18n.NewError(ctx, msgs.MsgInflightRequestCancelled, req.Age())
	case <-req.ctx.Done():
		return *new(T), i18n.NewError(req.ctx, msgs.MsgInflightRequestCancelled, req.Age())
	}
}
