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

// Package invites implements the commit-reveal onboarding workflow. The
// employer publishes only a one-way hash of a locally generated secret; the
// employee later presents the secret itself, and the contract re-derives the
// hash to validate the claim. The on-chain commitment is the source of
// truth throughout - the ledger record is a best-effort mirror, synced
// idempotently.
package invites

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/hyperledger/firefly-common/pkg/fftypes"
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"github.com/kaleido-io/wagechain/internal/inflight"
	"github.com/kaleido-io/wagechain/internal/msgs"
	"github.com/kaleido-io/wagechain/internal/retry"
	"github.com/kaleido-io/wagechain/pkg/chain"
	"github.com/kaleido-io/wagechain/pkg/ledger"
	"github.com/kaleido-io/wagechain/pkg/payroll"
	"golang.org/x/crypto/sha3"
)

const secretLen = 32

// Revert reason strings defined by the payroll contract.
const (
	revertSecretMismatch = "SecretMismatch"
	revertAlreadyClaimed = "AlreadyClaimed"
)

type claimKey struct {
	contract   ethtypes.Address0xHex
	secretHash [secretLen]byte
}

// Manager drives invite state through Draft -> Committed -> Claimed.
type Manager struct {
	gw        chain.Gateway
	contract  *chain.PayrollContract
	admin     *ethtypes.Address0xHex
	reads     *ledger.CachedReads
	syncRetry *retry.Retry
	claims    *inflight.Manager[claimKey, *ClaimResult]
}

// NewManager binds an employer session to its contract. Employee sessions
// that only claim can pass a nil contract and admin.
func NewManager(gw chain.Gateway, contract *chain.PayrollContract, admin *ethtypes.Address0xHex, reads *ledger.CachedReads, syncRetryConf *retry.ConfigWithMax) *Manager {
	return &Manager{
		gw:        gw,
		contract:  contract,
		admin:     admin,
		reads:     reads,
		syncRetry: retry.NewRetryLimited(syncRetryConf),
		claims:    inflight.NewManager[claimKey, *ClaimResult](),
	}
}

// SecretHash derives the on-chain commitment from an invite secret.
// Deterministic, collision-resistant: keccak256.
func SecretHash(secret []byte) []byte {
	hash := sha3.NewLegacyKeccak256()
	_, _ = hash.Write(secret)
	return hash.Sum(nil)
}

// CreatedInvite is returned exactly once per invite. Secret is shown to the
// employer at this point and never stored on-chain - only its hash is.
type CreatedInvite struct {
	Secret       string                    `json:"secret"`
	SecretHash   ethtypes.HexBytes0xPrefix `json:"secretHash"`
	TxHash       ethtypes.HexBytes0xPrefix `json:"txHash"`
	LedgerSynced bool                      `json:"ledgerSynced"`
}

// CreateInvite generates a high-entropy secret locally, commits its hash
// with the payee binding on-chain, and mirrors an "invited" employee record
// to the ledger. A ledger failure after the chain write succeeded is
// non-fatal: the returned invite carries LedgerSynced=false and
// RetryLedgerSync repairs it later.
func (m *Manager) CreateInvite(ctx context.Context, payeeName string, salary *big.Int) (*CreatedInvite, error) {
	// A pending invite for the same payee is ambiguous to overwrite, so it
	// is rejected outright
	existing, err := m.reads.Client().ListEmployees(ctx, m.admin)
	if err != nil {
		return nil, err
	}
	for _, emp := range existing {
		if emp.Name == payeeName && emp.Status == payroll.EmployeeInvited {
			return nil, i18n.NewError(ctx, msgs.MsgInviteAlreadyPending, payeeName)
		}
	}

	secret := make([]byte, secretLen)
	if _, err := rand.Read(secret); err != nil {
		return nil, i18n.WrapError(ctx, err, msgs.MsgInviteSecretGeneration)
	}
	secretHash := SecretHash(secret)

	txHash, err := m.contract.CreateInvite(ctx, secretHash, payeeName, salary)
	if err != nil {
		return nil, i18n.WrapError(ctx, err, msgs.MsgInviteCommitFailed)
	}
	if _, err := m.gw.AwaitInclusion(ctx, txHash); err != nil {
		return nil, i18n.WrapError(ctx, err, msgs.MsgInviteCommitFailed)
	}

	invite := &CreatedInvite{
		Secret:     hex.EncodeToString(secret),
		SecretHash: secretHash,
		TxHash:     txHash,
	}
	invite.LedgerSynced = m.syncInvitedRecord(ctx, payeeName, salary, invite.Secret)
	return invite, nil
}

// RetryLedgerSync idempotently re-runs the ledger mirror of a committed
// invite whose first sync failed.
func (m *Manager) RetryLedgerSync(ctx context.Context, invite *CreatedInvite, payeeName string, salary *big.Int) bool {
	if invite.LedgerSynced {
		return true
	}
	invite.LedgerSynced = m.syncInvitedRecord(ctx, payeeName, salary, invite.Secret)
	return invite.LedgerSynced
}

func (m *Manager) syncInvitedRecord(ctx context.Context, payeeName string, salary *big.Int, recoveryCode string) bool {
	err := m.syncRetry.Do(ctx, func(attempt int) (bool, error) {
		_, err := m.reads.Client().CreateEmployee(ctx, &payroll.Employee{
			AdminWallet:  m.admin,
			Name:         payeeName,
			Salary:       (*fftypes.FFBigInt)(salary),
			Status:       payroll.EmployeeInvited,
			RecoveryCode: recoveryCode,
		})
		return true, err
	})
	if err != nil {
		log.L(ctx).Warnf("invite for %s committed on-chain but ledger sync failed: %s", payeeName, err)
		return false
	}
	m.reads.InvalidateEmployees(m.admin)
	return true
}

type ClaimResult struct {
	TxHash ethtypes.HexBytes0xPrefix `json:"txHash"`
	Wallet *ethtypes.Address0xHex    `json:"wallet"`
}

// ClaimInvite presents the secret to the target contract. The contract
// re-derives the hash independently; a mismatch or repeat claim comes back
// as a named condition, never retried. Claims are single-flight per
// (contract, secretHash): a concurrent duplicate joins the in-flight
// attempt instead of double-submitting.
func (m *Manager) ClaimInvite(ctx context.Context, contractAddr *ethtypes.Address0xHex, presentedSecret string, claimer *ethtypes.Address0xHex) (*ClaimResult, error) {
	secret, err := hex.DecodeString(strings.TrimPrefix(presentedSecret, "0x"))
	if err != nil || len(secret) != secretLen {
		return nil, i18n.NewError(ctx, msgs.MsgInviteBadSecret, secretLen)
	}

	key := claimKey{contract: *contractAddr, secretHash: [secretLen]byte(SecretHash(secret))}
	req, leader := m.claims.AddOrJoin(ctx, key)
	if !leader {
		log.L(ctx).Debugf("joining in-flight claim for %s", contractAddr)
		return req.Wait(ctx)
	}

	result, err := m.submitClaim(ctx, contractAddr, secret, claimer)
	req.Complete(result, err)
	return result, err
}

// AutoClaim is the wallet-connect entry point: if the UI captured a secret
// and target address before a wallet existed, the claim fires once on
// connect. The single-flight guard makes a repeat invocation a join, so the
// write is never duplicated.
func (m *Manager) AutoClaim(ctx context.Context, contractAddr *ethtypes.Address0xHex, capturedSecret string, claimer *ethtypes.Address0xHex) (*ClaimResult, error) {
	return m.ClaimInvite(ctx, contractAddr, capturedSecret, claimer)
}

func (m *Manager) submitClaim(ctx context.Context, contractAddr *ethtypes.Address0xHex, secret []byte, claimer *ethtypes.Address0xHex) (*ClaimResult, error) {
	contract := chain.NewPayrollContract(m.gw, contractAddr)
	txHash, err := contract.ClaimInvite(ctx, secret)
	if err != nil {
		return nil, m.mapClaimError(ctx, err)
	}
	if _, err := m.gw.AwaitInclusion(ctx, txHash); err != nil {
		return nil, m.mapClaimError(ctx, err)
	}

	// The chain says claimed; mirror invited -> active in the ledger. The
	// sync is idempotent so a duplicate notification is a no-op.
	syncErr := m.syncRetry.Do(ctx, func(attempt int) (bool, error) {
		return true, m.reads.Client().SyncClaim(ctx, &ledger.ClaimSync{
			ContractAddress: contractAddr,
			SecretHash:      SecretHash(secret),
			Wallet:          claimer,
		})
	})
	if syncErr != nil {
		log.L(ctx).Warnf("claim %s confirmed on-chain but ledger sync failed: %s", txHash, syncErr)
	}
	m.reads.InvalidateAllEmployees()
	m.reads.InvalidateWallet(claimer)

	return &ClaimResult{TxHash: txHash, Wallet: claimer}, nil
}

// mapClaimError turns the contract's revert reasons into the named invite
// conditions. Reason matching only applies to reverts; transport and
// signer failures are wrapped as a generic claim failure.
func (m *Manager) mapClaimError(ctx context.Context, err error) error {
	if msgs.Matches(err, msgs.MsgChainReverted) {
		errString := err.Error()
		switch {
		case strings.Contains(errString, revertSecretMismatch):
			return i18n.NewError(ctx, msgs.MsgInviteSecretMismatch)
		case strings.Contains(errString, revertAlreadyClaimed):
			return i18n.NewError(ctx, msgs.MsgInviteAlreadyClaimed)
		}
	}
	return i18n.WrapError(ctx, err, msgs.MsgInviteClaimFailed)
}
