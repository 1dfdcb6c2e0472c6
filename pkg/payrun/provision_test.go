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
	"fmt"
	"math/big"
	"testing"

	"github.com/kaleido-io/wagechain/pkg/chain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvisioner(gw *fakeGateway) *Provisioner {
	return NewProvisioner(
		chain.NewTokenContract(gw, testToken),
		chain.NewPayrollContract(gw, testContract),
	)
}

func TestDepositStrictOrdering(t *testing.T) {
	gw := &fakeGateway{}
	p := newTestProvisioner(gw)

	result, err := p.Deposit(context.Background(), big.NewInt(5000000))
	require.NoError(t, err)
	assert.Equal(t, testTxHash, result.ApproveTxHash)
	assert.Equal(t, testTxHash, result.DepositTxHash)

	// The approve must be mined before the deposit is even submitted
	assert.Equal(t, []string{"submit:approve", "await", "submit:deposit", "await"}, gw.Trace())
}

func TestDepositApproveNotMined(t *testing.T) {
	gw := &fakeGateway{
		awaitErr: fmt.Errorf("WC010104: Timed out waiting for inclusion"),
	}
	p := newTestProvisioner(gw)

	_, err := p.Deposit(context.Background(), big.NewInt(5000000))
	assert.Regexp(t, "WC010104", err)

	// No deposit left the building
	assert.Equal(t, []string{"submit:approve", "await"}, gw.Trace())
}

func TestDepositApproveRejected(t *testing.T) {
	gw := &fakeGateway{
		submitErr: map[string]error{"approve": fmt.Errorf("WC010103: Signing request was rejected by the signer")},
	}
	p := newTestProvisioner(gw)

	_, err := p.Deposit(context.Background(), big.NewInt(5000000))
	assert.Regexp(t, "WC010103", err)
	assert.Equal(t, []string{"submit:approve"}, gw.Trace())
}

func TestDepositSubmitFails(t *testing.T) {
	gw := &fakeGateway{
		submitErr: map[string]error{"deposit": fmt.Errorf("WC010102: Transaction submission failed")},
	}
	p := newTestProvisioner(gw)

	_, err := p.Deposit(context.Background(), big.NewInt(5000000))
	assert.Regexp(t, "WC010102", err)
	assert.Equal(t, []string{"submit:approve", "await", "submit:deposit"}, gw.Trace())
}
