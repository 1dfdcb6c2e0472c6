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

package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/Code-Hex/go-generics-cache/policy/lru"
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/kaleido-io/wagechain/internal/confutil"
	"github.com/kaleido-io/wagechain/internal/msgs"
)

type Config struct {
	Capacity *int    `yaml:"capacity"`
	TTL      *string `yaml:"ttl"`
}

var Defaults = &Config{
	Capacity: confutil.P(1000),
	TTL:      confutil.P("30s"),
}

// Store is a time-boxed read-through cache. Values are only served while
// younger than the TTL, and writers evict by key prefix before returning,
// so the next read after a mutation always hits the fetcher.
type Store interface {
	GetOrFetch(ctx context.Context, key string, fetch func(ctx context.Context) (any, error)) (any, error)
	Invalidate(prefix string)
	InvalidateAll()
}

type entry struct {
	value     any
	fetchedAt time.Time
}

type store struct {
	lock sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	lru  *lru.Cache[string, *entry]
	keys map[string]struct{}
}

func NewStore(conf *Config) Store {
	return &store{
		ttl: confutil.DurationMin(conf.TTL, 0, confutil.Duration(Defaults.TTL, 0)),
		now: time.Now,
		lru: lru.NewCache[string, *entry](
			lru.WithCapacity(confutil.IntMin(conf.Capacity, 1, *Defaults.Capacity)),
		),
		keys: make(map[string]struct{}),
	}
}

// NewStoreWithClock substitutes a deterministic clock for tests.
func NewStoreWithClock(conf *Config, now func() time.Time) Store {
	s := NewStore(conf).(*store)
	s.now = now
	return s
}

// Key builds the canonical cache key for an endpoint and its parameters.
// encoding/json writes map keys in sorted order, so equal parameter sets
// always produce equal keys.
func Key(endpoint string, params any) string {
	if params == nil {
		return endpoint
	}
	b, _ := json.Marshal(params)
	return endpoint + "|" + string(b)
}

func (s *store) GetOrFetch(ctx context.Context, key string, fetch func(ctx context.Context) (any, error)) (any, error) {
	s.lock.Lock()
	if e, ok := s.lru.Get(key); ok && s.now().Sub(e.fetchedAt) < s.ttl {
		s.lock.Unlock()
		log.L(ctx).Tracef("cache hit %s", key)
		return e.value, nil
	}
	s.lock.Unlock()

	v, err := fetch(ctx)
	if err != nil {
		return nil, i18n.WrapError(ctx, err, msgs.MsgCacheFetchFailed, key)
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.lru.Set(key, &entry{value: v, fetchedAt: s.now()})
	s.keys[key] = struct{}{}
	return v, nil
}

func (s *store) Invalidate(prefix string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for k := range s.keys {
		if strings.HasPrefix(k, prefix) {
			s.lru.Delete(k)
			delete(s.keys, k)
		}
	}
}

func (s *store) InvalidateAll() {
	s.lock.Lock()
	defer s.lock.Unlock()
	for k := range s.keys {
		s.lru.Delete(k)
		delete(s.keys, k)
	}
}
