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

package chain

import (
	"context"
	"math/big"

	"github.com/hyperledger/firefly-common/pkg/fftypes"
	"github.com/hyperledger/firefly-signer/pkg/abi"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
)

// The fixed external interface of the payroll contract and its token. This
// module is the caller of this interface, never the definer - the entries
// below must track the deployed contract exactly.
var (
	fnCreateCompany = &abi.Entry{Type: abi.Function, Name: "createCompany", Inputs: abi.ParameterArray{
		{Name: "name", Type: "string"},
	}}
	fnCreateInvite = &abi.Entry{Type: abi.Function, Name: "createInvite", Inputs: abi.ParameterArray{
		{Name: "secretHash", Type: "bytes32"},
		{Name: "name", Type: "string"},
		{Name: "salary", Type: "uint256"},
	}}
	fnClaimInvite = &abi.Entry{Type: abi.Function, Name: "claimInvite", Inputs: abi.ParameterArray{
		{Name: "secret", Type: "bytes"},
	}}
	fnDeposit = &abi.Entry{Type: abi.Function, Name: "deposit", Inputs: abi.ParameterArray{
		{Name: "amount", Type: "uint256"},
	}}
	fnDistribute = &abi.Entry{Type: abi.Function, Name: "distribute", Inputs: abi.ParameterArray{}}

	fnGetEmployee = &abi.Entry{Type: abi.Function, Name: "getEmployee", Inputs: abi.ParameterArray{
		{Name: "wallet", Type: "address"},
	}, Outputs: abi.ParameterArray{
		{Name: "name", Type: "string"},
		{Name: "salary", Type: "uint256"},
		{Name: "active", Type: "bool"},
	}}
	fnPayrollStatus = &abi.Entry{Type: abi.Function, Name: "payrollStatus", Inputs: abi.ParameterArray{}, Outputs: abi.ParameterArray{
		{Name: "employeeCount", Type: "uint256"},
		{Name: "totalSalary", Type: "uint256"},
		{Name: "balance", Type: "uint256"},
	}}

	evDistribution = &abi.Entry{Type: abi.Event, Name: "Distribution", Inputs: abi.ParameterArray{
		{Name: "admin", Type: "address", Indexed: true},
		{Name: "total", Type: "uint256"},
		{Name: "employeeCount", Type: "uint256"},
	}}

	fnApprove = &abi.Entry{Type: abi.Function, Name: "approve", Inputs: abi.ParameterArray{
		{Name: "spender", Type: "address"},
		{Name: "amount", Type: "uint256"},
	}}
	fnBalanceOf = &abi.Entry{Type: abi.Function, Name: "balanceOf", Inputs: abi.ParameterArray{
		{Name: "owner", Type: "address"},
	}, Outputs: abi.ParameterArray{
		{Name: "balance", Type: "uint256"},
	}}
)

// PayrollContract binds the gateway to one employer's deployed contract.
type PayrollContract struct {
	Address *ethtypes.Address0xHex
	gw      Gateway
}

func NewPayrollContract(gw Gateway, address *ethtypes.Address0xHex) *PayrollContract {
	return &PayrollContract{Address: address, gw: gw}
}

func (pc *PayrollContract) Gateway() Gateway {
	return pc.gw
}

func (pc *PayrollContract) CreateCompany(ctx context.Context, name string) (ethtypes.HexBytes0xPrefix, error) {
	return pc.gw.SubmitWrite(ctx, pc.Address, fnCreateCompany, map[string]any{"name": name})
}

func (pc *PayrollContract) CreateInvite(ctx context.Context, secretHash []byte, name string, salary *big.Int) (ethtypes.HexBytes0xPrefix, error) {
	return pc.gw.SubmitWrite(ctx, pc.Address, fnCreateInvite, map[string]any{
		"secretHash": ethtypes.HexBytes0xPrefix(secretHash).String(),
		"name":       name,
		"salary":     salary.String(),
	})
}

func (pc *PayrollContract) ClaimInvite(ctx context.Context, secret []byte) (ethtypes.HexBytes0xPrefix, error) {
	return pc.gw.SubmitWrite(ctx, pc.Address, fnClaimInvite, map[string]any{
		"secret": ethtypes.HexBytes0xPrefix(secret).String(),
	})
}

func (pc *PayrollContract) Deposit(ctx context.Context, amount *big.Int) (ethtypes.HexBytes0xPrefix, error) {
	return pc.gw.SubmitWrite(ctx, pc.Address, fnDeposit, map[string]any{"amount": amount.String()})
}

func (pc *PayrollContract) Distribute(ctx context.Context) (ethtypes.HexBytes0xPrefix, error) {
	return pc.gw.SubmitWrite(ctx, pc.Address, fnDistribute, map[string]any{})
}

type OnChainEmployee struct {
	Name   string            `json:"name"`
	Salary *fftypes.FFBigInt `json:"salary"`
	Active bool              `json:"active"`
}

func (pc *PayrollContract) GetEmployee(ctx context.Context, wallet *ethtypes.Address0xHex) (*OnChainEmployee, error) {
	var emp OnChainEmployee
	err := pc.gw.ReadView(ctx, pc.Address, fnGetEmployee, map[string]any{"wallet": wallet.String()}, &emp)
	if err != nil {
		return nil, err
	}
	return &emp, nil
}

type PayrollStatus struct {
	EmployeeCount *fftypes.FFBigInt `json:"employeeCount"`
	TotalSalary   *fftypes.FFBigInt `json:"totalSalary"`
	Balance       *fftypes.FFBigInt `json:"balance"`
}

func (pc *PayrollContract) Status(ctx context.Context) (*PayrollStatus, error) {
	var status PayrollStatus
	err := pc.gw.ReadView(ctx, pc.Address, fnPayrollStatus, map[string]any{}, &status)
	if err != nil {
		return nil, err
	}
	return &status, nil
}

type DistributionEvent struct {
	TxHash        ethtypes.HexBytes0xPrefix
	Admin         *ethtypes.Address0xHex
	Total         *big.Int
	EmployeeCount int
}

// Distributions reads the raw Distribution events since fromBlock, for
// reconciliation sweeps that re-derive ledger rows after a crash.
func (pc *PayrollContract) Distributions(ctx context.Context, fromBlock uint64) ([]*DistributionEvent, error) {
	logs, err := pc.gw.QueryLogs(ctx, pc.Address, evDistribution, fromBlock)
	if err != nil {
		return nil, err
	}
	events := make([]*DistributionEvent, 0, len(logs))
	for _, l := range logs {
		ev := &DistributionEvent{TxHash: l.TxHash}
		if len(l.Topics) > 1 && len(l.Topics[1]) == 32 {
			// Indexed address topics are left-padded to 32 bytes
			a := ethtypes.Address0xHex([20]byte(l.Topics[1][12:32]))
			ev.Admin = &a
		}
		if s, ok := l.Data["total"].(string); ok {
			ev.Total, _ = new(big.Int).SetString(s, 10)
		}
		if s, ok := l.Data["employeeCount"].(string); ok {
			count, _ := new(big.Int).SetString(s, 10)
			if count != nil {
				ev.EmployeeCount = int(count.Int64())
			}
		}
		events = append(events, ev)
	}
	return events, nil
}

// TokenContract binds the gateway to the stable-value token that funds the
// payroll contract.
type TokenContract struct {
	Address *ethtypes.Address0xHex
	gw      Gateway
}

func NewTokenContract(gw Gateway, address *ethtypes.Address0xHex) *TokenContract {
	return &TokenContract{Address: address, gw: gw}
}

func (tc *TokenContract) Approve(ctx context.Context, spender *ethtypes.Address0xHex, amount *big.Int) (ethtypes.HexBytes0xPrefix, error) {
	return tc.gw.SubmitWrite(ctx, tc.Address, fnApprove, map[string]any{
		"spender": spender.String(),
		"amount":  amount.String(),
	})
}

func (tc *TokenContract) BalanceOf(ctx context.Context, owner *ethtypes.Address0xHex) (*big.Int, error) {
	var out struct {
		Balance *fftypes.FFBigInt `json:"balance"`
	}
	err := tc.gw.ReadView(ctx, tc.Address, fnBalanceOf, map[string]any{"owner": owner.String()}, &out)
	if err != nil {
		return nil, err
	}
	return out.Balance.Int(), nil
}
