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
	"context"

	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"github.com/kaleido-io/wagechain/internal/cache"
	"github.com/kaleido-io/wagechain/pkg/payroll"
)

// Cache key prefixes. Writers invalidate by prefix before returning, so the
// very next read through CachedReads is guaranteed fresh.
const (
	keyPrefixEmployees     = "employees|"
	keyPrefixTransactions  = "transactions|"
	keyPrefixDashboard     = "dashboard|"
	keyPrefixNotifications = "notifications|"
)

// CachedReads fronts the read-heavy list/aggregate endpoints with the
// time-boxed store. Reads that feed execution preconditions must NOT go
// through here - liquidity snapshots are always fetched directly.
type CachedReads struct {
	client *Client
	store  cache.Store
}

func NewCachedReads(client *Client, store cache.Store) *CachedReads {
	return &CachedReads{client: client, store: store}
}

func (cr *CachedReads) Client() *Client {
	return cr.client
}

func (cr *CachedReads) ListEmployees(ctx context.Context, admin *ethtypes.Address0xHex) ([]*payroll.Employee, error) {
	key := cache.Key(keyPrefixEmployees+admin.String(), nil)
	v, err := cr.store.GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		return cr.client.ListEmployees(ctx, admin)
	})
	if err != nil {
		return nil, err
	}
	return v.([]*payroll.Employee), nil
}

func (cr *CachedReads) ListTransactions(ctx context.Context, wallet *ethtypes.Address0xHex, page int) (*TransactionPage, error) {
	key := cache.Key(keyPrefixTransactions+wallet.String(), map[string]any{"page": page})
	v, err := cr.store.GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		return cr.client.ListTransactions(ctx, wallet, page)
	})
	if err != nil {
		return nil, err
	}
	return v.(*TransactionPage), nil
}

func (cr *CachedReads) GetDashboardStats(ctx context.Context, wallet *ethtypes.Address0xHex) (*payroll.DashboardStats, error) {
	key := cache.Key(keyPrefixDashboard+wallet.String(), nil)
	v, err := cr.store.GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		return cr.client.GetDashboardStats(ctx, wallet)
	})
	if err != nil {
		return nil, err
	}
	return v.(*payroll.DashboardStats), nil
}

func (cr *CachedReads) ListNotifications(ctx context.Context, wallet *ethtypes.Address0xHex) ([]*payroll.Notification, error) {
	key := cache.Key(keyPrefixNotifications+wallet.String(), nil)
	v, err := cr.store.GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		return cr.client.ListNotifications(ctx, wallet)
	})
	if err != nil {
		return nil, err
	}
	return v.([]*payroll.Notification), nil
}

// InvalidateEmployees evicts the employee list for an admin wallet.
func (cr *CachedReads) InvalidateEmployees(admin *ethtypes.Address0xHex) {
	cr.store.Invalidate(keyPrefixEmployees + admin.String())
}

// InvalidateAllEmployees evicts every cached employee list. Used on claim,
// where the claimer does not know which admin wallet owns the record.
func (cr *CachedReads) InvalidateAllEmployees() {
	cr.store.Invalidate(keyPrefixEmployees)
}

// InvalidateWallet evicts every per-wallet aggregate view - transactions,
// dashboard and notifications - for one wallet identity.
func (cr *CachedReads) InvalidateWallet(wallet *ethtypes.Address0xHex) {
	cr.store.Invalidate(keyPrefixTransactions + wallet.String())
	cr.store.Invalidate(keyPrefixDashboard + wallet.String())
	cr.store.Invalidate(keyPrefixNotifications + wallet.String())
}
