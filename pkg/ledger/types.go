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

package ledger

import (
	"github.com/google/uuid"
	"github.com/hyperledger/firefly-common/pkg/fftypes"
)

type TaxRequest struct {
	Gross  *fftypes.FFBigInt `json:"gross"`
	Region string            `json:"region,omitempty"`
}

type TaxResult struct {
	Gross *fftypes.FFBigInt `json:"gross"`
	Tax   *fftypes.FFBigInt `json:"tax"`
	Net   *fftypes.FFBigInt `json:"net"`
}

type PayslipRequest struct {
	EmployeeID *uuid.UUID `json:"employeeId"`
	Period     string     `json:"period"`
	Format     string     `json:"format,omitempty"`
}
