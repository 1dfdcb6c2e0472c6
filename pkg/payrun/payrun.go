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

// Package payrun drives a payroll distribution through its review and
// confirmation gates to the single on-chain batch write. The state machine
// is deliberately strict: money moves exactly once, behind fresh liquidity
// reads and explicit operator acknowledgements, and a failed write parks
// the run for the operator rather than retrying.
package payrun

import (
	"context"
	"sync"

	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"github.com/kaleido-io/wagechain/internal/msgs"
	"github.com/kaleido-io/wagechain/pkg/chain"
	"github.com/kaleido-io/wagechain/pkg/payroll"
)

type State string

const (
	StateReview    State = "review"
	StateConfirm   State = "confirm"
	StateExecuting State = "executing"
	StateSucceeded State = "succeeded"
	// StateFailed marks a confirmed on-chain revert of the distribution.
	// Terminal for this run: the only way forward is a fresh Review, which
	// re-snapshots the contract before any re-attempt. Failures before
	// inclusion return to StateConfirm instead.
	StateFailed State = "failed"
)

// Acks are the three operator acknowledgements that gate execution. All
// three must be set on the Confirm screen before Execute is accepted.
type Acks struct {
	AmountsReviewed bool `json:"amountsReviewed"`
	RecipientsValid bool `json:"recipientsValid"`
	IrreversibleOK  bool `json:"irreversibleOk"`
}

func (a Acks) complete() bool {
	return a.AmountsReviewed && a.RecipientsValid && a.IrreversibleOK
}

// Settler fans the completed distribution out to the off-chain ledger.
// Settlement is best-effort: its failure never changes the outcome of the
// run itself.
type Settler interface {
	RecordDistribution(ctx context.Context, txHash ethtypes.HexBytes0xPrefix) error
}

type Result struct {
	TxHash            ethtypes.HexBytes0xPrefix `json:"txHash"`
	Total             string                    `json:"total"`
	ReconcileComplete bool                      `json:"reconcileComplete"`
}

// Orchestrator owns one payroll run. It is safe for concurrent use; a
// second Execute while one is in flight is rejected, not queued.
type Orchestrator struct {
	contract *chain.PayrollContract
	settler  Settler

	mux      sync.Mutex
	state    State
	snapshot *payroll.Snapshot
	acks     Acks
	result   *Result
	lastErr  error
}

func NewOrchestrator(contract *chain.PayrollContract, settler Settler) *Orchestrator {
	return &Orchestrator{
		contract: contract,
		settler:  settler,
		state:    StateReview,
	}
}

func (o *Orchestrator) State() State {
	o.mux.Lock()
	defer o.mux.Unlock()
	return o.state
}

func (o *Orchestrator) Result() *Result {
	o.mux.Lock()
	defer o.mux.Unlock()
	return o.result
}

func (o *Orchestrator) LastError() error {
	o.mux.Lock()
	defer o.mux.Unlock()
	return o.lastErr
}

// Review reads a fresh snapshot of employee count, aggregate salary and
// contract liquidity. The snapshot is ephemeral - a re-entry to Review
// always re-reads, and nothing here is served from cache.
func (o *Orchestrator) Review(ctx context.Context) (*payroll.Snapshot, error) {
	o.mux.Lock()
	if o.state == StateExecuting {
		o.mux.Unlock()
		return nil, i18n.NewError(ctx, msgs.MsgPayrunExecutionInFlight)
	}
	o.mux.Unlock()

	status, err := o.contract.Status(ctx)
	if err != nil {
		return nil, err
	}
	snapshot := &payroll.Snapshot{
		EmployeeCount:  int(status.EmployeeCount.Int().Int64()),
		RequiredSalary: status.TotalSalary.Int(),
		Liquidity:      status.Balance.Int(),
	}

	o.mux.Lock()
	o.state = StateReview
	o.snapshot = snapshot
	o.acks = Acks{}
	o.result = nil
	o.lastErr = nil
	o.mux.Unlock()
	return snapshot, nil
}

// Confirm advances the run to the confirmation gate. The liquidity
// precondition is checked against the reviewed snapshot: a shortfall blocks
// the transition so the execute path is unreachable while underfunded.
func (o *Orchestrator) Confirm(ctx context.Context) error {
	o.mux.Lock()
	defer o.mux.Unlock()
	if o.state != StateReview && o.state != StateConfirm {
		return i18n.NewError(ctx, msgs.MsgPayrunInvalidTransition, o.state)
	}
	if o.snapshot == nil {
		return i18n.NewError(ctx, msgs.MsgPayrunNoSnapshot)
	}
	if shortfall := o.snapshot.Shortfall(); shortfall != nil {
		return i18n.NewError(ctx, msgs.MsgPayrunInsufficientLiquidity,
			o.snapshot.Liquidity.String(), o.snapshot.RequiredSalary.String(), shortfall.String())
	}
	o.state = StateConfirm
	return nil
}

// Acknowledge records the operator's confirmation checkboxes.
func (o *Orchestrator) Acknowledge(ctx context.Context, acks Acks) error {
	o.mux.Lock()
	defer o.mux.Unlock()
	if o.state != StateConfirm {
		return i18n.NewError(ctx, msgs.MsgPayrunInvalidTransition, o.state)
	}
	o.acks = acks
	return nil
}

// Execute submits the single batch distribution write. Preconditions are
// re-validated under the lock, the in-flight guard makes a concurrent
// duplicate an error, and a failed or reverted write returns the run to
// Confirm with the cause recorded - there is no automatic retry of a
// money-moving transaction.
func (o *Orchestrator) Execute(ctx context.Context) (*Result, error) {
	o.mux.Lock()
	switch o.state {
	case StateExecuting:
		o.mux.Unlock()
		return nil, i18n.NewError(ctx, msgs.MsgPayrunExecutionInFlight)
	case StateConfirm:
	default:
		state := o.state
		o.mux.Unlock()
		return nil, i18n.NewError(ctx, msgs.MsgPayrunInvalidTransition, state)
	}
	if !o.acks.complete() {
		o.mux.Unlock()
		return nil, i18n.NewError(ctx, msgs.MsgPayrunAcksIncomplete)
	}
	snapshot := o.snapshot
	o.state = StateExecuting
	o.mux.Unlock()

	txHash, err := o.contract.Distribute(ctx)
	var conf *chain.Confirmation
	if err == nil {
		conf, err = o.contract.Gateway().AwaitInclusion(ctx, txHash)
	}
	if err != nil {
		log.L(ctx).Errorf("distribution failed: %s", err)
		o.mux.Lock()
		// A confirmed on-chain revert is a definitive outcome for this run.
		// Anything before inclusion (signer decline, transport) leaves the
		// run at the confirmation gate for the operator to resubmit.
		if conf != nil && !conf.Success {
			o.state = StateFailed
		} else {
			o.state = StateConfirm
		}
		o.lastErr = i18n.WrapError(ctx, err, msgs.MsgPayrunDistributeFailed)
		failErr := o.lastErr
		o.mux.Unlock()
		return nil, failErr
	}

	result := &Result{
		TxHash: txHash,
		Total:  snapshot.RequiredSalary.String(),
	}
	// The chain outcome is already final here. Settlement repairs the
	// off-chain view and must not be able to fail the run.
	if settleErr := o.settler.RecordDistribution(ctx, txHash); settleErr != nil {
		log.L(ctx).Warnf("distribution %s confirmed but ledger settlement incomplete: %s", txHash, settleErr)
	} else {
		result.ReconcileComplete = true
	}

	o.mux.Lock()
	o.state = StateSucceeded
	o.result = result
	o.mux.Unlock()
	return result, nil
}
