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
	"github.com/kaleido-io/wagechain/internal/confutil"
	"github.com/kaleido-io/wagechain/internal/retry"
)

type Config struct {
	URL               string              `yaml:"url"`
	ConnectionTimeout *string             `yaml:"connectionTimeout"`
	RequestTimeout    *string             `yaml:"requestTimeout"`
	PageSize          *int                `yaml:"pageSize"`
	SyncRetry         retry.ConfigWithMax `yaml:"syncRetry"`
}

var Defaults = &Config{
	ConnectionTimeout: confutil.P("30s"),
	RequestTimeout:    confutil.P("30s"),
	PageSize:          confutil.P(10),
	SyncRetry: retry.ConfigWithMax{
		Config: retry.Config{
			InitialDelay: confutil.P("500ms"),
			MaxDelay:     confutil.P("10s"),
			Factor:       confutil.P(2.0),
		},
		MaxAttempts: confutil.P(3),
	},
}
