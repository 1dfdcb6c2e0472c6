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

package inflight

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaderAndJoiner(t *testing.T) {
	ctx := context.Background()
	ifm := NewManager[string, string]()

	req1, leader1 := ifm.AddOrJoin(ctx, "claim1")
	assert.True(t, leader1)
	req2, leader2 := ifm.AddOrJoin(ctx, "claim1")
	assert.False(t, leader2)
	assert.Same(t, req1, req2)
	assert.Equal(t, 1, ifm.InFlightCount())

	waited := make(chan struct{})
	var joinResult string
	var joinErr error
	go func() {
		joinResult, joinErr = req2.Wait(ctx)
		close(waited)
	}()

	req1.Complete("0xhash", nil)
	<-waited
	require.NoError(t, joinErr)
	assert.Equal(t, "0xhash", joinResult)
	assert.Equal(t, 0, ifm.InFlightCount())

	// Key is free again once completed
	_, leader3 := ifm.AddOrJoin(ctx, "claim1")
	assert.True(t, leader3)
}

func TestCompleteWithError(t *testing.T) {
	ctx := context.Background()
	ifm := NewManager[string, string]()

	req, _ := ifm.AddOrJoin(ctx, "k")
	req.Complete("", fmt.Errorf("pop"))

	_, err := req.Wait(ctx)
	assert.Regexp(t, "pop", err)
}

func TestWaitCancelled(t *testing.T) {
	ifm := NewManager[string, string]()

	req, _ := ifm.AddOrJoin(context.Background(), "k")
	waitCtx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := req.Wait(waitCtx)
	assert.Regexp(t, "WC010001", err)
}

func TestCancelReleasesKey(t *testing.T) {
	ctx := context.Background()
	ifm := NewManager[string, int]()

	req, _ := ifm.AddOrJoin(ctx, "k")
	assert.NotNil(t, ifm.GetInflight("k"))
	req.Cancel()
	assert.Nil(t, ifm.GetInflight("k"))

	_, err := req.Wait(ctx)
	assert.Regexp(t, "WC010001", err)
}

func TestCloseCancelsAll(t *testing.T) {
	ctx := context.Background()
	ifm := NewManager[string, int]()

	req, _ := ifm.AddOrJoin(ctx, "k")
	ifm.Close()
	assert.Equal(t, 0, ifm.InFlightCount())

	_, err := req.Wait(ctx)
	assert.Regexp(t, "WC010001", err)

	// New requests after close are born cancelled
	late, leader := ifm.AddOrJoin(ctx, "k2")
	assert.True(t, leader)
	_, err = late.Wait(ctx)
	assert.Regexp(t, "WC010001", err)
}
