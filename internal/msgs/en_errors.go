// Copyright © 2025 Kaleido, Inc.
//
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package msgs

import (
	"fmt"
	"strings"

	"github.com/hyperledger/firefly-common/pkg/i18n"
	"golang.org/x/text/language"
)

const wagechainPrefix = "WC01"

var registered = false
var ffe = func(key, translation string, statusHint ...int) i18n.ErrorMessageKey {
	if !registered {
		i18n.RegisterPrefix(wagechainPrefix, "Wagechain Payroll Core")
		registered = true
	}
	if !strings.HasPrefix(key, wagechainPrefix) {
		panic(fmt.Errorf("must have prefix '%s': %s", wagechainPrefix, key))
	}
	return i18n.FFE(language.AmericanEnglish, key, translation, statusHint...)
}

// Matches checks whether an error carries the given catalog code.
// Errors raised from the catalog keep the code at the front of the
// message, so a prefix check is sufficient.
func Matches(err error, key i18n.ErrorMessageKey) bool {
	return err != nil && strings.HasPrefix(err.Error(), string(key))
}

var (

	// Common WC0100XX
	MsgContextCanceled          = ffe("WC010000", "Context canceled")
	MsgInflightRequestCancelled = ffe("WC010001", "In-flight request cancelled after %s")
	MsgCacheFetchFailed         = ffe("WC010002", "Fetch failed for cache key '%s'")

	// Chain gateway WC0101XX
	MsgChainInvalidHTTPURL      = ffe("WC010100", "Invalid chain JSON/RPC URL: '%s'")
	MsgChainIDFailed            = ffe("WC010101", "Failed to query the chain ID")
	MsgChainSubmitFailed        = ffe("WC010102", "Transaction submission failed")
	MsgChainRejectedBySigner    = ffe("WC010103", "Signing request was rejected by the signer")
	MsgChainInclusionTimeout    = ffe("WC010104", "Timed out after %s waiting for inclusion of transaction %s")
	MsgChainReverted            = ffe("WC010105", "Transaction %s reverted: %s")
	MsgChainInvalidInput        = ffe("WC010107", "Invalid input for function '%s'")
	MsgChainMissingTo           = ffe("WC010108", "Missing contract address for call")
	MsgChainReceiptNotAvailable = ffe("WC010109", "Receipt not available for transaction %s")
	MsgChainRevertNotDecoded    = ffe("WC010110", "Transaction reverted with undecodable data: %s")
	MsgChainRevertNotAvailable  = ffe("WC010111", "Transaction reverted with no revert data")
	MsgChainViewFailed          = ffe("WC010112", "View function '%s' failed")

	// Ledger client WC0102XX
	MsgLedgerInvalidURL    = ffe("WC010200", "Invalid ledger API URL: '%s'")
	MsgLedgerUnavailable   = ffe("WC010201", "Ledger API request failed to complete")
	MsgLedgerRequestFailed = ffe("WC010202", "Ledger API returned [%d] for %s %s")

	// Invite protocol WC0103XX
	MsgInviteSecretGeneration = ffe("WC010300", "Failed to generate invite secret")
	MsgInviteSecretMismatch   = ffe("WC010301", "Presented secret does not match the on-chain commitment")
	MsgInviteAlreadyClaimed   = ffe("WC010302", "Invite has already been claimed")
	MsgInviteAlreadyPending   = ffe("WC010303", "An invite for payee '%s' is already pending")
	MsgInviteBadSecret        = ffe("WC010304", "Invite secret must be %d hex-encoded bytes")
	MsgInviteCommitFailed     = ffe("WC010305", "On-chain invite commitment failed")
	MsgInviteClaimFailed      = ffe("WC010306", "On-chain invite claim failed")

	// Payroll execution WC0104XX
	MsgPayrunInsufficientLiquidity = ffe("WC010400", "Contract liquidity %s is short of the required aggregate salary %s (shortfall %s)")
	MsgPayrunInvalidTransition     = ffe("WC010401", "Invalid payroll run transition from state '%s'")
	MsgPayrunAcksIncomplete        = ffe("WC010402", "All confirmation acknowledgements must be set before execution")
	MsgPayrunExecutionInFlight     = ffe("WC010403", "A distribution is already executing for this payroll run")
	MsgPayrunDepositWithoutApprove = ffe("WC010404", "Deposit submitted without an awaited approval confirmation")
	MsgPayrunDistributeFailed      = ffe("WC010405", "Batch distribution failed")
	MsgPayrunNoSnapshot            = ffe("WC010406", "Payroll run has no reviewed snapshot")

	// Reconciliation WC0105XX
	MsgReconcilePartialFanOut = ffe("WC010500", "Ledger fan-out incomplete: %d of %d records written for transaction %s")
	MsgReconcileInvalidPage   = ffe("WC010501", "Page number must not be negative: %d")
)
