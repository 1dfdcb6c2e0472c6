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

package payroll

import (
	"math/big"

	"github.com/google/uuid"
	"github.com/hyperledger/firefly-common/pkg/fftypes"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
)

// All monetary amounts are smallest-unit integers of the payroll token.
// There is no floating point anywhere in this package.

type EmployeeStatus string

const (
	EmployeeInvited  EmployeeStatus = "invited"
	EmployeeActive   EmployeeStatus = "active"
	EmployeeInactive EmployeeStatus = "inactive"
)

// Employee is the ledger-side record of a person to be paid. The transition
// invited -> active happens exactly once, on a successful invite claim, and
// never reverses.
type Employee struct {
	ID           *uuid.UUID             `json:"id,omitempty"`
	AdminWallet  *ethtypes.Address0xHex `json:"adminWallet"`
	Name         string                 `json:"name"`
	Wallet       *ethtypes.Address0xHex `json:"wallet,omitempty"`
	Salary       *fftypes.FFBigInt      `json:"salary"`
	Status       EmployeeStatus         `json:"status"`
	RecoveryCode string                 `json:"recoveryCode,omitempty"`
	ContractEnd  *fftypes.FFTime        `json:"contractEnd,omitempty"`
	Created      *fftypes.FFTime        `json:"created,omitempty"`
}

type TxType string

const (
	TxTypeDistribute TxType = "distribute"
	TxTypeDeposit    TxType = "deposit"
	TxTypeApprove    TxType = "approve"
	TxTypeInvite     TxType = "invite"
	TxTypeClaim      TxType = "claim"
)

type TxStatus string

const (
	TxStatusPending TxStatus = "pending"
	TxStatusSuccess TxStatus = "success"
	TxStatusFailed  TxStatus = "failed"
)

// TransactionRecord is a ledger row keyed by (wallet, txHash, type). A batch
// distribution produces one row per paid recipient plus one for the admin,
// all sharing the same transaction hash.
type TransactionRecord struct {
	ID       *uuid.UUID                `json:"id,omitempty"`
	Wallet   *ethtypes.Address0xHex    `json:"wallet"`
	TxHash   ethtypes.HexBytes0xPrefix `json:"txHash"`
	Type     TxType                    `json:"type"`
	Amount   *fftypes.FFBigInt         `json:"amount"`
	Status   TxStatus                  `json:"status"`
	Metadata fftypes.JSONObject        `json:"metadata,omitempty"`
	Created  *fftypes.FFTime           `json:"created,omitempty"`
}

type Company struct {
	ID              *uuid.UUID             `json:"id,omitempty"`
	Name            string                 `json:"name"`
	AdminWallet     *ethtypes.Address0xHex `json:"adminWallet"`
	ContractAddress *ethtypes.Address0xHex `json:"contractAddress,omitempty"`
	Created         *fftypes.FFTime        `json:"created,omitempty"`
}

// Snapshot is the ephemeral pre-execution read of payroll state. It is never
// persisted or cached - liquidity can change between screens, so it is
// recomputed for every precondition check.
type Snapshot struct {
	EmployeeCount  int      `json:"employeeCount"`
	RequiredSalary *big.Int `json:"requiredSalary"`
	Liquidity      *big.Int `json:"liquidity"`
}

// Shortfall returns the amount by which liquidity misses the required
// aggregate salary, or nil when the precondition holds.
func (s *Snapshot) Shortfall() *big.Int {
	if s.Liquidity.Cmp(s.RequiredSalary) >= 0 {
		return nil
	}
	return new(big.Int).Sub(s.RequiredSalary, s.Liquidity)
}

type Notification struct {
	ID      *uuid.UUID             `json:"id,omitempty"`
	Wallet  *ethtypes.Address0xHex `json:"wallet"`
	Message string                 `json:"message"`
	Read    bool                   `json:"read"`
	Created *fftypes.FFTime        `json:"created,omitempty"`
}

type Schedule struct {
	ID          *uuid.UUID             `json:"id,omitempty"`
	AdminWallet *ethtypes.Address0xHex `json:"adminWallet"`
	DayOfMonth  int                    `json:"dayOfMonth"`
	Enabled     bool                   `json:"enabled"`
	Created     *fftypes.FFTime        `json:"created,omitempty"`
}

type DashboardStats struct {
	EmployeeCount int               `json:"employeeCount"`
	MonthlyTotal  *fftypes.FFBigInt `json:"monthlyTotal"`
	LastRunHash   string            `json:"lastRunHash,omitempty"`
	PendingCount  int               `json:"pendingCount"`
}
