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
	"github.com/hyperledger/firefly-signer/pkg/abi"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
)

type txReceiptJSONRPC struct {
	BlockHash        ethtypes.HexBytes0xPrefix  `json:"blockHash"`
	BlockNumber      *ethtypes.HexInteger       `json:"blockNumber"`
	ContractAddress  *ethtypes.Address0xHex     `json:"contractAddress"`
	From             *ethtypes.Address0xHex     `json:"from"`
	GasUsed          *ethtypes.HexInteger       `json:"gasUsed"`
	Status           *ethtypes.HexInteger       `json:"status"`
	To               *ethtypes.Address0xHex     `json:"to"`
	TransactionHash  ethtypes.HexBytes0xPrefix  `json:"transactionHash"`
	TransactionIndex *ethtypes.HexInteger       `json:"transactionIndex"`
	RevertReason     *ethtypes.HexBytes0xPrefix `json:"revertReason"`
}

type logJSONRPC struct {
	Removed         bool                        `json:"removed"`
	LogIndex        *ethtypes.HexInteger        `json:"logIndex"`
	BlockNumber     *ethtypes.HexInteger        `json:"blockNumber"`
	TransactionHash ethtypes.HexBytes0xPrefix   `json:"transactionHash"`
	Address         *ethtypes.Address0xHex      `json:"address"`
	Topics          []ethtypes.HexBytes0xPrefix `json:"topics"`
	Data            ethtypes.HexBytes0xPrefix   `json:"data"`
}

// The serializer used everywhere ABI-validated data is turned back into
// JSON for callers: integers as base-10 strings, bytes as 0x hex.
func abiSerializer() *abi.Serializer {
	return abi.NewSerializer().
		SetFormattingMode(abi.FormatAsObjects).
		SetIntSerializer(abi.Base10StringIntSerializer).
		SetFloatSerializer(abi.Base10StringFloatSerializer).
		SetByteSerializer(abi.HexByteSerializer0xPrefix)
}
