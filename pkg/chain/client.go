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
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/hyperledger/firefly-signer/pkg/abi"
	"github.com/hyperledger/firefly-signer/pkg/ethsigner"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"github.com/hyperledger/firefly-signer/pkg/rpcbackend"
	"github.com/hyperledger/firefly-signer/pkg/secp256k1"
	"github.com/kaleido-io/wagechain/internal/confutil"
	"github.com/kaleido-io/wagechain/internal/msgs"
	"github.com/kaleido-io/wagechain/internal/retry"
	"golang.org/x/crypto/sha3"
)

// Gateway is the single capability for writing to and reading from a payroll
// contract on the base ledger. A successful write changes on-chain state that
// is not reflected anywhere else until a caller explicitly re-reads it -
// there is no automatic propagation to the off-chain ledger.
type Gateway interface {
	// SubmitWrite signs and broadcasts one contract function invocation.
	// It returns as soon as the network accepts the broadcast - it never
	// waits for inclusion.
	SubmitWrite(ctx context.Context, to *ethtypes.Address0xHex, fn *abi.Entry, inputs any) (ethtypes.HexBytes0xPrefix, error)
	// AwaitInclusion blocks until the transaction is included, the revert is
	// observed, or the configured inclusion timeout pops. A submitted write
	// cannot be recalled - cancellation only stops the waiting.
	AwaitInclusion(ctx context.Context, txHash ethtypes.HexBytes0xPrefix) (*Confirmation, error)
	// ReadView executes a view function and decodes the result into output.
	ReadView(ctx context.Context, to *ethtypes.Address0xHex, fn *abi.Entry, inputs any, output any) error
	// QueryLogs returns decoded occurrences of an event since fromBlock.
	QueryLogs(ctx context.Context, to *ethtypes.Address0xHex, event *abi.Entry, fromBlock uint64) ([]*DecodedLog, error)
	ChainID() int64
}

// Signer abstracts the wallet holding the employer or employee key. An error
// from Sign is treated as the user declining the signature - the wallet is
// interactive and transport problems surface from its own implementation.
type Signer interface {
	Address(ctx context.Context) (*ethtypes.Address0xHex, error)
	Sign(ctx context.Context, payload []byte) ([]byte, error)
}

// Confirmation is the terminal observation of a submitted write.
type Confirmation struct {
	TxHash          ethtypes.HexBytes0xPrefix `json:"txHash"`
	BlockNumber     *ethtypes.HexInteger      `json:"blockNumber"`
	Success         bool                      `json:"success"`
	RevertReason    string                    `json:"revertReason,omitempty"`
	ContractAddress *ethtypes.Address0xHex    `json:"contractAddress,omitempty"`
}

type DecodedLog struct {
	TxHash      ethtypes.HexBytes0xPrefix
	BlockNumber uint64
	Topics      []ethtypes.HexBytes0xPrefix
	Data        map[string]any
}

type gateway struct {
	chainID           int64
	gasEstimateFactor float64
	inclusionTimeout  time.Duration
	receiptRetry      *retry.Retry
	rpc               rpcbackend.RPC
	signer            Signer
}

var (
	// The default error for `revert("some error")` is a function Error(string)
	defaultError = &abi.Entry{
		Type: abi.Error,
		Name: "Error",
		Inputs: abi.ParameterArray{
			{Type: "string"},
		},
	}
	defaultErrorID = defaultError.FunctionSelectorBytes()
)

func NewGateway(ctx context.Context, signer Signer, conf *Config) (Gateway, error) {
	u, err := url.Parse(conf.HTTP.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, i18n.WrapError(ctx, err, msgs.MsgChainInvalidHTTPURL, conf.HTTP.URL)
	}
	client := resty.New().
		SetBaseURL(conf.HTTP.URL).
		SetTimeout(confutil.DurationMin(conf.HTTP.RequestTimeout, 0, confutil.Duration(Defaults.HTTP.RequestTimeout, 0)))
	return WrapRPCClient(ctx, signer, rpcbackend.NewRPCClient(client), conf)
}

// WrapRPCClient allows direct injection of an RPC client, for tests and for
// callers that manage their own connection.
func WrapRPCClient(ctx context.Context, signer Signer, rpc rpcbackend.RPC, conf *Config) (Gateway, error) {
	gw := &gateway{
		signer:            signer,
		rpc:               rpc,
		gasEstimateFactor: confutil.Float64Min(conf.GasEstimateFactor, 1.0, *Defaults.GasEstimateFactor),
		inclusionTimeout:  confutil.DurationMin(conf.InclusionTimeout, 0, confutil.Duration(Defaults.InclusionTimeout, 0)),
		receiptRetry:      retry.NewRetryIndefinite(&conf.ReceiptPoll),
	}
	if err := gw.setupChainID(ctx); err != nil {
		return nil, err
	}
	return gw, nil
}

func (gw *gateway) ChainID() int64 {
	return gw.chainID
}

func (gw *gateway) setupChainID(ctx context.Context) error {
	var chainID ethtypes.HexUint64
	if rpcErr := gw.rpc.CallRPC(ctx, &chainID, "eth_chainId"); rpcErr != nil {
		log.L(ctx).Errorf("eth_chainId failed: %+v", rpcErr)
		return i18n.WrapError(ctx, rpcErr.Error(), msgs.MsgChainIDFailed)
	}
	gw.chainID = int64(chainID.Uint64())
	return nil
}

func buildCallData(ctx context.Context, fn *abi.Entry, inputs any) (ethtypes.HexBytes0xPrefix, error) {
	var inputMap map[string]any
	var err error
	switch in := inputs.(type) {
	case nil:
		inputMap = map[string]any{}
	case map[string]any:
		inputMap = in
	default:
		var jsonInput []byte
		jsonInput, err = json.Marshal(inputs)
		if err == nil {
			err = json.Unmarshal(jsonInput, &inputMap)
		}
	}
	var selector []byte
	if err == nil {
		selector, err = fn.GenerateFunctionSelectorCtx(ctx)
	}
	var tc abi.TypeComponent
	if err == nil {
		tc, err = fn.Inputs.TypeComponentTreeCtx(ctx)
	}
	var cv *abi.ComponentValue
	if err == nil {
		cv, err = tc.ParseExternalCtx(ctx, inputMap)
	}
	var encoded []byte
	if err == nil {
		encoded, err = cv.EncodeABIDataCtx(ctx)
	}
	if err != nil {
		return nil, i18n.WrapError(ctx, err, msgs.MsgChainInvalidInput, fn.Name)
	}
	data := make([]byte, len(selector)+len(encoded))
	copy(data, selector)
	copy(data[len(selector):], encoded)
	return data, nil
}

func (gw *gateway) SubmitWrite(ctx context.Context, to *ethtypes.Address0xHex, fn *abi.Entry, inputs any) (ethtypes.HexBytes0xPrefix, error) {
	if to == nil {
		return nil, i18n.NewError(ctx, msgs.MsgChainMissingTo)
	}
	data, err := buildCallData(ctx, fn, inputs)
	if err != nil {
		return nil, err
	}
	fromAddr, err := gw.signer.Address(ctx)
	if err != nil {
		return nil, i18n.WrapError(ctx, err, msgs.MsgChainSubmitFailed)
	}
	tx := &ethsigner.Transaction{
		To:   to,
		Data: data,
	}
	tx.From = json.RawMessage(`"` + fromAddr.String() + `"`)

	// Trivial nonce management - the wallet submits one write at a time,
	// so the node mempool count is sufficient
	var nonce ethtypes.HexUint64
	if rpcErr := gw.rpc.CallRPC(ctx, &nonce, "eth_getTransactionCount", fromAddr, "latest"); rpcErr != nil {
		log.L(ctx).Errorf("eth_getTransactionCount(%s) failed: %+v", fromAddr, rpcErr)
		return nil, i18n.WrapError(ctx, rpcErr.Error(), msgs.MsgChainSubmitFailed)
	}
	tx.Nonce = ethtypes.NewHexInteger(new(big.Int).SetUint64(nonce.Uint64()))

	var gasEstimate ethtypes.HexInteger
	if rpcErr := gw.rpc.CallRPC(ctx, &gasEstimate, "eth_estimateGas", tx); rpcErr != nil {
		// Gas estimation executes the call, so a precondition failure in the
		// contract surfaces here before anything is signed
		log.L(ctx).Errorf("eth_estimateGas failed: %+v", rpcErr)
		if reason := revertReasonFromRPCError(rpcErr); reason != "" {
			return nil, i18n.NewError(ctx, msgs.MsgChainReverted, fn.Name, reason)
		}
		return nil, i18n.WrapError(ctx, rpcErr.Error(), msgs.MsgChainSubmitFailed)
	}
	gasLimitFactored := new(big.Float).SetInt(gasEstimate.BigInt())
	gasLimitFactored = gasLimitFactored.Mul(gasLimitFactored, big.NewFloat(gw.gasEstimateFactor))
	gasLimit, _ := gasLimitFactored.Int(nil)
	tx.GasLimit = ethtypes.NewHexInteger(gasLimit)

	sigPayload := tx.SignaturePayloadEIP1559(gw.chainID)
	hash := sha3.NewLegacyKeccak256()
	_, _ = hash.Write(sigPayload.Bytes())
	signature, err := gw.signer.Sign(ctx, hash.Sum(nil))
	if err != nil {
		log.L(ctx).Infof("signer declined for %s: %s", fn.Name, err)
		return nil, i18n.WrapError(ctx, err, msgs.MsgChainRejectedBySigner)
	}
	sig, err := secp256k1.DecodeCompactRSV(ctx, signature)
	var rawTX []byte
	if err == nil {
		rawTX, err = tx.FinalizeEIP1559WithSignature(sigPayload, sig)
	}
	if err != nil {
		log.L(ctx).Errorf("transaction finalization failed (from=%s): %s", fromAddr, err)
		return nil, i18n.WrapError(ctx, err, msgs.MsgChainSubmitFailed)
	}

	var txHash ethtypes.HexBytes0xPrefix
	if rpcErr := gw.rpc.CallRPC(ctx, &txHash, "eth_sendRawTransaction", ethtypes.HexBytes0xPrefix(rawTX)); rpcErr != nil {
		log.L(ctx).Errorf("eth_sendRawTransaction failed: %+v", rpcErr)
		return nil, i18n.WrapError(ctx, rpcErr.Error(), msgs.MsgChainSubmitFailed)
	}
	log.L(ctx).Infof("submitted %s as %s", fn.Name, txHash)
	return txHash, nil
}

func (gw *gateway) AwaitInclusion(ctx context.Context, txHash ethtypes.HexBytes0xPrefix) (*Confirmation, error) {
	waitCtx, cancel := context.WithTimeout(ctx, gw.inclusionTimeout)
	defer cancel()

	var receipt *txReceiptJSONRPC
	err := gw.receiptRetry.Do(waitCtx, func(attempt int) (retryable bool, err error) {
		rpcErr := gw.rpc.CallRPC(waitCtx, &receipt, "eth_getTransactionReceipt", txHash)
		if rpcErr != nil {
			return true, rpcErr.Error()
		}
		if receipt == nil {
			return true, i18n.NewError(waitCtx, msgs.MsgChainReceiptNotAvailable, txHash)
		}
		return false, nil
	})
	if err != nil {
		if waitCtx.Err() != nil && ctx.Err() == nil {
			return nil, i18n.NewError(ctx, msgs.MsgChainInclusionTimeout, gw.inclusionTimeout, txHash)
		}
		return nil, err
	}

	conf := &Confirmation{
		TxHash:          receipt.TransactionHash,
		BlockNumber:     receipt.BlockNumber,
		Success:         receipt.Status != nil && receipt.Status.BigInt().Int64() > 0,
		ContractAddress: receipt.ContractAddress,
	}
	if !conf.Success {
		conf.RevertReason = gw.decodeRevertReason(ctx, receipt.RevertReason)
		return conf, i18n.NewError(ctx, msgs.MsgChainReverted, txHash, conf.RevertReason)
	}
	return conf, nil
}

func (gw *gateway) ReadView(ctx context.Context, to *ethtypes.Address0xHex, fn *abi.Entry, inputs any, output any) error {
	if to == nil {
		return i18n.NewError(ctx, msgs.MsgChainMissingTo)
	}
	data, err := buildCallData(ctx, fn, inputs)
	if err != nil {
		return err
	}
	tx := &ethsigner.Transaction{
		To:   to,
		Data: data,
	}
	var resData ethtypes.HexBytes0xPrefix
	if rpcErr := gw.rpc.CallRPC(ctx, &resData, "eth_call", tx, "latest"); rpcErr != nil {
		log.L(ctx).Errorf("eth_call %s failed: %+v", fn.Name, rpcErr)
		return i18n.WrapError(ctx, rpcErr.Error(), msgs.MsgChainViewFailed, fn.Name)
	}
	outputs, err := fn.Outputs.TypeComponentTreeCtx(ctx)
	if err != nil {
		return err
	}
	cv, err := outputs.DecodeABIDataCtx(ctx, resData, 0)
	var jsonData []byte
	if err == nil {
		jsonData, err = abiSerializer().SerializeJSONCtx(ctx, cv)
	}
	if err == nil {
		err = json.Unmarshal(jsonData, output)
	}
	if err != nil {
		return i18n.WrapError(ctx, err, msgs.MsgChainViewFailed, fn.Name)
	}
	return nil
}

func (gw *gateway) QueryLogs(ctx context.Context, to *ethtypes.Address0xHex, event *abi.Entry, fromBlock uint64) ([]*DecodedLog, error) {
	topic0, err := event.SignatureHash()
	if err != nil {
		return nil, err
	}
	var rawLogs []*logJSONRPC
	if rpcErr := gw.rpc.CallRPC(ctx, &rawLogs, "eth_getLogs", map[string]any{
		"address":   to,
		"fromBlock": ethtypes.HexUint64(fromBlock),
		"toBlock":   "latest",
		"topics":    []any{topic0},
	}); rpcErr != nil {
		log.L(ctx).Errorf("eth_getLogs failed: %+v", rpcErr)
		return nil, i18n.WrapError(ctx, rpcErr.Error(), msgs.MsgChainViewFailed, event.Name)
	}

	// Only the non-indexed inputs travel in the data section
	dataParams := abi.ParameterArray{}
	for _, input := range event.Inputs {
		if !input.Indexed {
			dataParams = append(dataParams, input)
		}
	}
	tc, err := dataParams.TypeComponentTreeCtx(ctx)
	if err != nil {
		return nil, err
	}

	logs := make([]*DecodedLog, 0, len(rawLogs))
	for _, l := range rawLogs {
		if l.Removed {
			continue
		}
		decoded := &DecodedLog{
			TxHash: l.TransactionHash,
			Topics: l.Topics,
			Data:   map[string]any{},
		}
		if l.BlockNumber != nil {
			decoded.BlockNumber = l.BlockNumber.BigInt().Uint64()
		}
		cv, err := tc.DecodeABIDataCtx(ctx, l.Data, 0)
		if err != nil {
			log.L(ctx).Warnf("skipping undecodable %s log in tx %s: %s", event.Name, l.TransactionHash, err)
			continue
		}
		jsonData, err := abiSerializer().SerializeJSONCtx(ctx, cv)
		if err == nil {
			err = json.Unmarshal(jsonData, &decoded.Data)
		}
		if err != nil {
			log.L(ctx).Warnf("skipping unserializable %s log in tx %s: %s", event.Name, l.TransactionHash, err)
			continue
		}
		logs = append(logs, decoded)
	}
	return logs, nil
}

func (gw *gateway) decodeRevertReason(ctx context.Context, revertFromReceipt *ethtypes.HexBytes0xPrefix) string {
	var revertReason string
	if revertFromReceipt != nil {
		revertReason = revertFromReceipt.String()
	}
	returnDataBytes, _ := hex.DecodeString(padHexData(revertReason))
	if len(returnDataBytes) > 4 && bytes.Equal(returnDataBytes[0:4], defaultErrorID) {
		value, err := defaultError.DecodeCallDataCtx(ctx, returnDataBytes)
		if err == nil {
			return value.Children[0].Value.(string)
		}
	}
	if len(returnDataBytes) > 0 {
		return i18n.NewError(ctx, msgs.MsgChainRevertNotDecoded, revertReason).Error()
	}
	return i18n.NewError(ctx, msgs.MsgChainRevertNotAvailable).Error()
}

// revertReasonFromRPCError recognizes an "execution reverted" JSON/RPC error
// response. Nodes append the Error(string) reason to the message text, which
// is what precondition matching keys off.
func revertReasonFromRPCError(rpcErr *rpcbackend.RPCError) string {
	errString := rpcErr.Error().Error()
	if !strings.Contains(strings.ToLower(errString), "revert") {
		return ""
	}
	return errString
}

func padHexData(hexString string) string {
	hexString = strings.TrimPrefix(hexString, "0x")
	if len(hexString)%2 == 1 {
		hexString = "0" + hexString
	}
	return hexString
}
