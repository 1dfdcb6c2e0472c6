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
	"encoding/json"
	"fmt"
	"testing"

	"github.com/hyperledger/firefly-signer/pkg/abi"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"github.com/hyperledger/firefly-signer/pkg/rpcbackend"
	"github.com/kaleido-io/wagechain/internal/confutil"
	"github.com/kaleido-io/wagechain/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRPC struct {
	t     *testing.T
	calls map[string]func(params []interface{}) (interface{}, *rpcbackend.RPCError)
}

func (m *mockRPC) CallRPC(ctx context.Context, result interface{}, method string, params ...interface{}) *rpcbackend.RPCError {
	handler, ok := m.calls[method]
	if !ok {
		return &rpcbackend.RPCError{Message: fmt.Sprintf("no handler for %s", method)}
	}
	res, rpcErr := handler(params)
	if rpcErr != nil {
		return rpcErr
	}
	if res != nil {
		b, err := json.Marshal(res)
		require.NoError(m.t, err)
		require.NoError(m.t, json.Unmarshal(b, result))
	}
	return nil
}

type mockSigner struct {
	addr    ethtypes.Address0xHex
	signErr error
	signed  int
}

func (s *mockSigner) Address(ctx context.Context) (*ethtypes.Address0xHex, error) {
	return &s.addr, nil
}

func (s *mockSigner) Sign(ctx context.Context, payload []byte) ([]byte, error) {
	if s.signErr != nil {
		return nil, s.signErr
	}
	s.signed++
	sig := make([]byte, 65)
	for i := range sig {
		sig[i] = byte(i + 1)
	}
	sig[64] = 1
	return sig, nil
}

func testConfig() *Config {
	return &Config{
		GasEstimateFactor: confutil.P(1.5),
		InclusionTimeout:  confutil.P("250ms"),
		ReceiptPoll: retry.Config{
			InitialDelay: confutil.P("1ms"),
			MaxDelay:     confutil.P("5ms"),
			Factor:       confutil.P(1.5),
		},
	}
}

func newTestGateway(t *testing.T, signer Signer, calls map[string]func(params []interface{}) (interface{}, *rpcbackend.RPCError)) (context.Context, Gateway) {
	ctx := context.Background()
	if calls == nil {
		calls = map[string]func(params []interface{}) (interface{}, *rpcbackend.RPCError){}
	}
	if _, ok := calls["eth_chainId"]; !ok {
		calls["eth_chainId"] = func(params []interface{}) (interface{}, *rpcbackend.RPCError) {
			return "0x539", nil // 1337
		}
	}
	gw, err := WrapRPCClient(ctx, signer, &mockRPC{t: t, calls: calls}, testConfig())
	require.NoError(t, err)
	return ctx, gw
}

var testTo = ethtypes.MustNewAddress("0x05d936207F04D81a85881b72A0D17854Ee8BE45A")

var fnSetValue = &abi.Entry{
	Type: abi.Function,
	Name: "setValue",
	Inputs: abi.ParameterArray{
		{Name: "value", Type: "uint256"},
	},
}

func TestNewGatewayBadURL(t *testing.T) {
	_, err := NewGateway(context.Background(), &mockSigner{}, &Config{
		HTTP: HTTPConfig{URL: "wss://not.http"},
	})
	assert.Regexp(t, "WC010100", err)
}

func TestChainIDFailure(t *testing.T) {
	_, err := WrapRPCClient(context.Background(), &mockSigner{}, &mockRPC{t: t, calls: map[string]func(params []interface{}) (interface{}, *rpcbackend.RPCError){
		"eth_chainId": func(params []interface{}) (interface{}, *rpcbackend.RPCError) {
			return nil, &rpcbackend.RPCError{Message: "pop"}
		},
	}}, testConfig())
	assert.Regexp(t, "WC010101", err)
}

func TestSubmitWriteOK(t *testing.T) {
	signer := &mockSigner{}
	var sentRaw ethtypes.HexBytes0xPrefix
	ctx, gw := newTestGateway(t, signer, map[string]func(params []interface{}) (interface{}, *rpcbackend.RPCError){
		"eth_getTransactionCount": func(params []interface{}) (interface{}, *rpcbackend.RPCError) {
			return "0x5", nil
		},
		"eth_estimateGas": func(params []interface{}) (interface{}, *rpcbackend.RPCError) {
			return "0x5208", nil
		},
		"eth_sendRawTransaction": func(params []interface{}) (interface{}, *rpcbackend.RPCError) {
			sentRaw = params[0].(ethtypes.HexBytes0xPrefix)
			return "0x2d6d4bcd2a4965db49d0e31ba3accae8c1620bf3b6a18e5550ba8b72f4b7b496", nil
		},
	})

	assert.Equal(t, int64(1337), gw.ChainID())

	txHash, err := gw.SubmitWrite(ctx, testTo, fnSetValue, map[string]any{"value": "42"})
	require.NoError(t, err)
	assert.Len(t, txHash, 32)
	assert.NotEmpty(t, sentRaw)
	assert.Equal(t, 1, signer.signed)
}

func TestSubmitWriteMissingTo(t *testing.T) {
	ctx, gw := newTestGateway(t, &mockSigner{}, nil)
	_, err := gw.SubmitWrite(ctx, nil, fnSetValue, map[string]any{"value": "42"})
	assert.Regexp(t, "WC010108", err)
}

func TestSubmitWriteBadInput(t *testing.T) {
	ctx, gw := newTestGateway(t, &mockSigner{}, nil)
	_, err := gw.SubmitWrite(ctx, testTo, fnSetValue, map[string]any{"value": "not a number"})
	assert.Regexp(t, "WC010107.*setValue", err)
}

func TestSubmitWriteSignerDeclined(t *testing.T) {
	signer := &mockSigner{signErr: fmt.Errorf("user closed the wallet popup")}
	ctx, gw := newTestGateway(t, signer, map[string]func(params []interface{}) (interface{}, *rpcbackend.RPCError){
		"eth_getTransactionCount": func(params []interface{}) (interface{}, *rpcbackend.RPCError) {
			return "0x0", nil
		},
		"eth_estimateGas": func(params []interface{}) (interface{}, *rpcbackend.RPCError) {
			return "0x5208", nil
		},
	})

	_, err := gw.SubmitWrite(ctx, testTo, fnSetValue, map[string]any{"value": "42"})
	assert.Regexp(t, "WC010103", err)
}

func TestSubmitWriteEstimateGasRevert(t *testing.T) {
	ctx, gw := newTestGateway(t, &mockSigner{}, map[string]func(params []interface{}) (interface{}, *rpcbackend.RPCError){
		"eth_getTransactionCount": func(params []interface{}) (interface{}, *rpcbackend.RPCError) {
			return "0x0", nil
		},
		"eth_estimateGas": func(params []interface{}) (interface{}, *rpcbackend.RPCError) {
			return nil, &rpcbackend.RPCError{Message: "execution reverted: SecretMismatch"}
		},
	})

	_, err := gw.SubmitWrite(ctx, testTo, fnSetValue, map[string]any{"value": "42"})
	assert.Regexp(t, "WC010105.*SecretMismatch", err)
}

func TestSubmitWriteSendFail(t *testing.T) {
	ctx, gw := newTestGateway(t, &mockSigner{}, map[string]func(params []interface{}) (interface{}, *rpcbackend.RPCError){
		"eth_getTransactionCount": func(params []interface{}) (interface{}, *rpcbackend.RPCError) {
			return "0x0", nil
		},
		"eth_estimateGas": func(params []interface{}) (interface{}, *rpcbackend.RPCError) {
			return "0x5208", nil
		},
		"eth_sendRawTransaction": func(params []interface{}) (interface{}, *rpcbackend.RPCError) {
			return nil, &rpcbackend.RPCError{Message: "mempool full"}
		},
	})

	_, err := gw.SubmitWrite(ctx, testTo, fnSetValue, map[string]any{"value": "42"})
	assert.Regexp(t, "WC010102", err)
}

const testTxHash = "0x6807fc268004d80de19b554b759f1911cea6b38db8ffcdbcbdd5ff426dcdfb72"

func TestAwaitInclusionSuccess(t *testing.T) {
	polls := 0
	ctx, gw := newTestGateway(t, &mockSigner{}, map[string]func(params []interface{}) (interface{}, *rpcbackend.RPCError){
		"eth_getTransactionReceipt": func(params []interface{}) (interface{}, *rpcbackend.RPCError) {
			polls++
			if polls < 3 {
				return nil, nil // not mined yet
			}
			return map[string]any{
				"transactionHash": testTxHash,
				"blockNumber":     "0x100",
				"status":          "0x1",
			}, nil
		},
	})

	conf, err := gw.AwaitInclusion(ctx, ethtypes.MustNewHexBytes0xPrefix(testTxHash))
	require.NoError(t, err)
	assert.True(t, conf.Success)
	assert.Equal(t, int64(256), conf.BlockNumber.BigInt().Int64())
	assert.Equal(t, 3, polls)
}

func TestAwaitInclusionRevert(t *testing.T) {
	// Error("AlreadyClaimed") encoded as the standard Error(string) revert
	revertData := "0x08c379a0" +
		"0000000000000000000000000000000000000000000000000000000000000020" +
		"000000000000000000000000000000000000000000000000000000000000000e" +
		"416c7265616479436c61696d6564000000000000000000000000000000000000"
	ctx, gw := newTestGateway(t, &mockSigner{}, map[string]func(params []interface{}) (interface{}, *rpcbackend.RPCError){
		"eth_getTransactionReceipt": func(params []interface{}) (interface{}, *rpcbackend.RPCError) {
			return map[string]any{
				"transactionHash": testTxHash,
				"blockNumber":     "0x100",
				"status":          "0x0",
				"revertReason":    revertData,
			}, nil
		},
	})

	conf, err := gw.AwaitInclusion(ctx, ethtypes.MustNewHexBytes0xPrefix(testTxHash))
	assert.Regexp(t, "WC010105.*AlreadyClaimed", err)
	require.NotNil(t, conf)
	assert.False(t, conf.Success)
	assert.Equal(t, "AlreadyClaimed", conf.RevertReason)
}

func TestAwaitInclusionRevertNoData(t *testing.T) {
	ctx, gw := newTestGateway(t, &mockSigner{}, map[string]func(params []interface{}) (interface{}, *rpcbackend.RPCError){
		"eth_getTransactionReceipt": func(params []interface{}) (interface{}, *rpcbackend.RPCError) {
			return map[string]any{
				"transactionHash": testTxHash,
				"blockNumber":     "0x100",
				"status":          "0x0",
			}, nil
		},
	})

	conf, err := gw.AwaitInclusion(ctx, ethtypes.MustNewHexBytes0xPrefix(testTxHash))
	assert.Regexp(t, "WC010105", err)
	require.NotNil(t, conf)
	assert.Regexp(t, "WC010111", conf.RevertReason)
}

func TestAwaitInclusionTimeout(t *testing.T) {
	ctx, gw := newTestGateway(t, &mockSigner{}, map[string]func(params []interface{}) (interface{}, *rpcbackend.RPCError){
		"eth_getTransactionReceipt": func(params []interface{}) (interface{}, *rpcbackend.RPCError) {
			return nil, nil // never mined
		},
	})

	_, err := gw.AwaitInclusion(ctx, ethtypes.MustNewHexBytes0xPrefix(testTxHash))
	assert.Regexp(t, "WC010104", err)
}

func TestAwaitInclusionCallerCancel(t *testing.T) {
	ctx, gw := newTestGateway(t, &mockSigner{}, map[string]func(params []interface{}) (interface{}, *rpcbackend.RPCError){
		"eth_getTransactionReceipt": func(params []interface{}) (interface{}, *rpcbackend.RPCError) {
			return nil, nil
		},
	})

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err := gw.AwaitInclusion(cancelled, ethtypes.MustNewHexBytes0xPrefix(testTxHash))
	require.Error(t, err)
	assert.NotRegexp(t, "WC010104", err)
}

func TestReadViewOK(t *testing.T) {
	fnGetValues := &abi.Entry{
		Type: abi.Function,
		Name: "getValues",
		Outputs: abi.ParameterArray{
			{Name: "name", Type: "string"},
			{Name: "salary", Type: "uint256"},
			{Name: "active", Type: "bool"},
		},
	}

	// Encode the return data with the same ABI the client decodes with
	encoded, err := fnGetValues.Outputs.EncodeABIDataJSON([]byte(`{
		"name":   "alice",
		"salary": "2500000",
		"active": true
	}`))
	require.NoError(t, err)

	ctx, gw := newTestGateway(t, &mockSigner{}, map[string]func(params []interface{}) (interface{}, *rpcbackend.RPCError){
		"eth_call": func(params []interface{}) (interface{}, *rpcbackend.RPCError) {
			return ethtypes.HexBytes0xPrefix(encoded), nil
		},
	})

	var out struct {
		Name   string `json:"name"`
		Salary string `json:"salary"`
		Active bool   `json:"active"`
	}
	err = gw.ReadView(ctx, testTo, fnGetValues, map[string]any{}, &out)
	require.NoError(t, err)
	assert.Equal(t, "alice", out.Name)
	assert.Equal(t, "2500000", out.Salary)
	assert.True(t, out.Active)
}

func TestReadViewCallFail(t *testing.T) {
	ctx, gw := newTestGateway(t, &mockSigner{}, map[string]func(params []interface{}) (interface{}, *rpcbackend.RPCError){
		"eth_call": func(params []interface{}) (interface{}, *rpcbackend.RPCError) {
			return nil, &rpcbackend.RPCError{Message: "pop"}
		},
	})

	var out map[string]any
	err := gw.ReadView(ctx, testTo, fnSetValue, map[string]any{"value": "1"}, &out)
	assert.Regexp(t, "WC010112", err)
}

func TestQueryLogsOK(t *testing.T) {
	event := &abi.Entry{
		Type: abi.Event,
		Name: "ValueChanged",
		Inputs: abi.ParameterArray{
			{Name: "who", Type: "address", Indexed: true},
			{Name: "value", Type: "uint256"},
		},
	}
	data, err := abi.ParameterArray{{Name: "value", Type: "uint256"}}.EncodeABIDataJSON([]byte(`{"value": "7000000"}`))
	require.NoError(t, err)

	topic0, err := event.SignatureHash()
	require.NoError(t, err)

	ctx, gw := newTestGateway(t, &mockSigner{}, map[string]func(params []interface{}) (interface{}, *rpcbackend.RPCError){
		"eth_getLogs": func(params []interface{}) (interface{}, *rpcbackend.RPCError) {
			filter := params[0].(map[string]any)
			assert.Equal(t, []any{topic0}, filter["topics"].([]any))
			return []map[string]any{{
				"transactionHash": testTxHash,
				"blockNumber":     "0x20",
				"topics": []string{
					ethtypes.HexBytes0xPrefix(topic0).String(),
					"0x00000000000000000000000005d936207f04d81a85881b72a0d17854ee8be45a",
				},
				"data": ethtypes.HexBytes0xPrefix(data).String(),
			}, {
				"removed":         true,
				"transactionHash": testTxHash,
				"data":            ethtypes.HexBytes0xPrefix(data).String(),
			}},
			nil
		},
	})

	logs, err := gw.QueryLogs(ctx, testTo, event, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1) // removed log dropped
	assert.Equal(t, uint64(32), logs[0].BlockNumber)
	assert.Equal(t, "7000000", logs[0].Data["value"])
}

func TestQueryLogsFail(t *testing.T) {
	event := &abi.Entry{Type: abi.Event, Name: "ValueChanged", Inputs: abi.ParameterArray{}}
	ctx, gw := newTestGateway(t, &mockSigner{}, map[string]func(params []interface{}) (interface{}, *rpcbackend.RPCError){
		"eth_getLogs": func(params []interface{}) (interface{}, *rpcbackend.RPCError) {
			return nil, &rpcbackend.RPCError{Message: "pop"}
		},
	})
	_, err := gw.QueryLogs(ctx, testTo, event, 0)
	assert.Regexp(t, "WC010112", err)
}
