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

// Package reconcile projects confirmed on-chain distributions into the
// off-chain ledger. One batch distribution becomes N+1 ledger rows - a
// salary credit per paid recipient plus one aggregate debit for the admin,
// all sharing the transaction hash. The chain is the source of truth: a
// missed projection is repaired by Sweep from the contract's event log,
// never the other way round.
package reconcile

import (
	"context"
	"math/big"
	"strings"

	"github.com/hyperledger/firefly-common/pkg/fftypes"
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"github.com/kaleido-io/wagechain/internal/msgs"
	"github.com/kaleido-io/wagechain/pkg/chain"
	"github.com/kaleido-io/wagechain/pkg/ledger"
	"github.com/kaleido-io/wagechain/pkg/payroll"
)

type Reconciler struct {
	reads    *ledger.CachedReads
	contract *chain.PayrollContract
	admin    *ethtypes.Address0xHex
}

func NewReconciler(reads *ledger.CachedReads, contract *chain.PayrollContract, admin *ethtypes.Address0xHex) *Reconciler {
	return &Reconciler{reads: reads, contract: contract, admin: admin}
}

// RecordDistribution fans a confirmed distribution out to the ledger. Row
// writes are idempotent on (wallet, txHash, type), so re-running after a
// partial failure fills only the gaps. Affected caches are dropped before
// return: the next dashboard read after a payout must not serve the
// pre-payout snapshot, stale-while-revalidate is not acceptable here.
func (r *Reconciler) RecordDistribution(ctx context.Context, txHash ethtypes.HexBytes0xPrefix) error {
	employees, err := r.reads.Client().ListEmployees(ctx, r.admin)
	if err != nil {
		return err
	}

	total := new(big.Int)
	written := 0
	attempted := 0
	var firstErr error
	for _, emp := range employees {
		if emp.Status != payroll.EmployeeActive || emp.Wallet == nil {
			continue
		}
		attempted++
		total = total.Add(total, emp.Salary.Int())
		err := r.reads.Client().CreateTransaction(ctx, &payroll.TransactionRecord{
			Wallet: emp.Wallet,
			TxHash: txHash,
			Type:   payroll.TxTypeDistribute,
			Amount: emp.Salary,
			Status: payroll.TxStatusSuccess,
			Metadata: fftypes.JSONObject{
				"direction": "credit",
				"employee":  emp.Name,
			},
		})
		if err != nil {
			log.L(ctx).Errorf("fan-out row for %s (tx %s) failed: %s", emp.Wallet, txHash, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		written++
		r.reads.InvalidateWallet(emp.Wallet)
	}

	// Admin row carries the aggregate debit for the whole batch
	attempted++
	err = r.reads.Client().CreateTransaction(ctx, &payroll.TransactionRecord{
		Wallet: r.admin,
		TxHash: txHash,
		Type:   payroll.TxTypeDistribute,
		Amount: (*fftypes.FFBigInt)(total),
		Status: payroll.TxStatusSuccess,
		Metadata: fftypes.JSONObject{
			"direction":  "debit",
			"recipients": written,
		},
	})
	if err != nil {
		log.L(ctx).Errorf("fan-out admin row for tx %s failed: %s", txHash, err)
		if firstErr == nil {
			firstErr = err
		}
	} else {
		written++
	}
	r.reads.InvalidateWallet(r.admin)

	if firstErr != nil {
		return i18n.WrapError(ctx, firstErr, msgs.MsgReconcilePartialFanOut, written, attempted, txHash)
	}
	return nil
}

// IsSeedHash reports whether a transaction hash is a development seed
// fixture rather than a real chain hash. Seed rows are minted from small
// integers zero-padded to hash width, so the predicate is: 64 hex digits
// whose value fits in the last 4. Real keccak hashes are indistinguishable
// from random and never match.
func IsSeedHash(txHash string) bool {
	h := strings.TrimPrefix(strings.ToLower(txHash), "0x")
	if len(h) != 64 {
		return false
	}
	anySet := false
	for i, c := range h {
		isHex := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
		if !isHex {
			return false
		}
		if c != '0' {
			if i < 60 {
				return false
			}
			anySet = true
		}
	}
	return anySet
}

// ListTransactions serves the wallet's transaction history, paged and with
// seed fixtures filtered out. Filtering happens after the ledger page is
// fetched, so a page can come back shorter than the page size without
// being the last one - Total still counts the unfiltered rows.
func (r *Reconciler) ListTransactions(ctx context.Context, wallet *ethtypes.Address0xHex, page int) (*ledger.TransactionPage, error) {
	if page < 0 {
		return nil, i18n.NewError(ctx, msgs.MsgReconcileInvalidPage, page)
	}
	fetched, err := r.reads.ListTransactions(ctx, wallet, page)
	if err != nil {
		return nil, err
	}
	filtered := make([]*payroll.TransactionRecord, 0, len(fetched.Items))
	for _, record := range fetched.Items {
		if IsSeedHash(record.TxHash.String()) {
			continue
		}
		filtered = append(filtered, record)
	}
	return &ledger.TransactionPage{Items: filtered, Total: fetched.Total, Page: fetched.Page}, nil
}

// Sweep re-derives missing fan-out rows from the contract's Distribution
// events. Run it after a crash between chain confirmation and ledger
// fan-out: every event is replayed through the idempotent row writes, so
// fully-projected distributions are no-ops.
func (r *Reconciler) Sweep(ctx context.Context, fromBlock uint64) (int, error) {
	events, err := r.contract.Distributions(ctx, fromBlock)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, ev := range events {
		if ev.Admin == nil || *ev.Admin != *r.admin {
			continue
		}
		if err := r.RecordDistribution(ctx, ev.TxHash); err != nil {
			return swept, err
		}
		swept++
	}
	return swept, nil
}
