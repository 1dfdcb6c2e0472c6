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

package payrun

import (
	"context"
	"math/big"

	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"github.com/kaleido-io/wagechain/internal/msgs"
	"github.com/kaleido-io/wagechain/pkg/chain"
)

// Provisioner funds the payroll contract from the admin's token balance.
// The token approve must be mined before the deposit is submitted - the
// contract pulls the funds via transferFrom, so a deposit racing its own
// approval reverts with a confusing allowance error. The ordering is
// enforced here, not left to the caller.
type Provisioner struct {
	token   *chain.TokenContract
	payroll *chain.PayrollContract
}

func NewProvisioner(token *chain.TokenContract, payrollContract *chain.PayrollContract) *Provisioner {
	return &Provisioner{token: token, payroll: payrollContract}
}

type DepositResult struct {
	ApproveTxHash ethtypes.HexBytes0xPrefix `json:"approveTxHash"`
	DepositTxHash ethtypes.HexBytes0xPrefix `json:"depositTxHash"`
}

// Deposit runs the two-phase funding flow: approve the payroll contract
// for the amount, await inclusion of the approval, then deposit.
func (p *Provisioner) Deposit(ctx context.Context, amount *big.Int) (*DepositResult, error) {
	approveTx, err := p.token.Approve(ctx, p.payroll.Address, amount)
	if err != nil {
		return nil, err
	}
	conf, err := p.payroll.Gateway().AwaitInclusion(ctx, approveTx)
	if err != nil {
		return nil, err
	}
	if !conf.Success {
		// The deposit below must never follow an unconfirmed approve
		return nil, i18n.NewError(ctx, msgs.MsgPayrunDepositWithoutApprove)
	}
	log.L(ctx).Debugf("approval %s included, submitting deposit of %s", approveTx, amount)

	depositTx, err := p.payroll.Deposit(ctx, amount)
	if err != nil {
		return nil, err
	}
	if _, err := p.payroll.Gateway().AwaitInclusion(ctx, depositTx); err != nil {
		return nil, err
	}
	return &DepositResult{ApproveTxHash: approveTx, DepositTxHash: depositTx}, nil
}
