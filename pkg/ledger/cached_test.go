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

package ledger

import (
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/kaleido-io/wagechain/internal/cache"
	"github.com/kaleido-io/wagechain/internal/confutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedEmployeeListInvalidation(t *testing.T) {
	var hits int32
	ctx, client, done := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"name": "alice", "status": "invited"}]`))
	})
	defer done()

	reads := NewCachedReads(client, cache.NewStore(&cache.Config{
		Capacity: confutil.P(10),
		TTL:      confutil.P("1h"),
	}))

	employees, err := reads.ListEmployees(ctx, testAdmin)
	require.NoError(t, err)
	require.Len(t, employees, 1)
	_, err = reads.ListEmployees(ctx, testAdmin)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	// A mutation evicts, so the next read refetches
	reads.InvalidateEmployees(testAdmin)
	_, err = reads.ListEmployees(ctx, testAdmin)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestCachedTransactionsPerPage(t *testing.T) {
	var hits int32
	ctx, client, done := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items": [], "total": 0}`))
	})
	defer done()

	reads := NewCachedReads(client, cache.NewStore(&cache.Config{
		Capacity: confutil.P(10),
		TTL:      confutil.P("1h"),
	}))

	// Distinct pages are distinct cache entries
	_, err := reads.ListTransactions(ctx, testAdmin, 0)
	require.NoError(t, err)
	_, err = reads.ListTransactions(ctx, testAdmin, 1)
	require.NoError(t, err)
	_, err = reads.ListTransactions(ctx, testAdmin, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))

	// InvalidateWallet drops all pages at once
	reads.InvalidateWallet(testAdmin)
	_, err = reads.ListTransactions(ctx, testAdmin, 0)
	require.NoError(t, err)
	_, err = reads.ListTransactions(ctx, testAdmin, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(4), atomic.LoadInt32(&hits))
}

func TestCachedDashboardAndNotifications(t *testing.T) {
	var hits int32
	ctx, client, done := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/dashboard/stats":
			_, _ = w.Write([]byte(`{"employeeCount": 2, "pendingCount": 0}`))
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	})
	defer done()

	reads := NewCachedReads(client, cache.NewStore(&cache.Config{
		Capacity: confutil.P(10),
		TTL:      confutil.P("1h"),
	}))

	stats, err := reads.GetDashboardStats(ctx, testAdmin)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.EmployeeCount)
	_, err = reads.GetDashboardStats(ctx, testAdmin)
	require.NoError(t, err)
	_, err = reads.ListNotifications(ctx, testAdmin)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}
