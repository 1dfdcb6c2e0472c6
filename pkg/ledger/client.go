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
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"github.com/kaleido-io/wagechain/internal/confutil"
	"github.com/kaleido-io/wagechain/internal/msgs"
	"github.com/kaleido-io/wagechain/pkg/payroll"
	"github.com/sirupsen/logrus"
)

// Client is the typed wrapper around the backend record-keeping API. It is
// an opaque RPC surface from this module's point of view - the only contract
// beyond the types is that transaction creation is idempotent on the
// (wallet, txHash, type) identity, reported by the API as a conflict.
type Client struct {
	http     *resty.Client
	pageSize int
}

func NewClient(ctx context.Context, conf *Config) (*Client, error) {
	u, err := url.Parse(conf.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, i18n.WrapError(ctx, err, msgs.MsgLedgerInvalidURL, conf.URL)
	}
	client := resty.New().
		SetBaseURL(conf.URL).
		SetTimeout(confutil.DurationMin(conf.RequestTimeout, 0, confutil.Duration(Defaults.RequestTimeout, 0)))
	client.OnBeforeRequest(func(c *resty.Client, req *resty.Request) error {
		log.L(req.Context()).Debugf("==> %s %s", req.Method, req.URL)
		req.SetContext(context.WithValue(req.Context(), startTimeCtxKey{}, time.Now()))
		return nil
	})
	client.OnAfterResponse(func(c *resty.Client, resp *resty.Response) error {
		level := logrus.DebugLevel
		if resp.StatusCode() >= 300 {
			level = logrus.ErrorLevel
		}
		elapsed := time.Duration(0)
		if start, ok := resp.Request.Context().Value(startTimeCtxKey{}).(time.Time); ok {
			elapsed = time.Since(start)
		}
		log.L(resp.Request.Context()).Logf(level, "<== %s %s [%d] (%dms)", resp.Request.Method, resp.Request.URL, resp.StatusCode(), elapsed.Milliseconds())
		return nil
	})
	return &Client{
		http:     client,
		pageSize: confutil.IntMin(conf.PageSize, 1, *Defaults.PageSize),
	}, nil
}

type startTimeCtxKey struct{}

func (c *Client) PageSize() int {
	return c.pageSize
}

func (c *Client) checkResponse(ctx context.Context, res *resty.Response, err error) error {
	if err != nil {
		return i18n.WrapError(ctx, err, msgs.MsgLedgerUnavailable)
	}
	if res.IsError() {
		return i18n.NewError(ctx, msgs.MsgLedgerRequestFailed, res.StatusCode(), res.Request.Method, res.Request.URL)
	}
	return nil
}

func (c *Client) GetCompany(ctx context.Context, wallet *ethtypes.Address0xHex) (*payroll.Company, error) {
	var company payroll.Company
	res, err := c.http.R().SetContext(ctx).
		SetResult(&company).
		Get(fmt.Sprintf("/api/v1/companies/%s", wallet))
	if res != nil && res.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if err := c.checkResponse(ctx, res, err); err != nil {
		return nil, err
	}
	return &company, nil
}

func (c *Client) CreateCompany(ctx context.Context, company *payroll.Company) (*payroll.Company, error) {
	var created payroll.Company
	res, err := c.http.R().SetContext(ctx).
		SetBody(company).
		SetResult(&created).
		Post("/api/v1/companies")
	if err := c.checkResponse(ctx, res, err); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) ListEmployees(ctx context.Context, admin *ethtypes.Address0xHex) ([]*payroll.Employee, error) {
	var employees []*payroll.Employee
	res, err := c.http.R().SetContext(ctx).
		SetQueryParam("adminWallet", admin.String()).
		SetResult(&employees).
		Get("/api/v1/employees")
	if err := c.checkResponse(ctx, res, err); err != nil {
		return nil, err
	}
	return employees, nil
}

// CreateEmployee is idempotent on (adminWallet, name, status=invited): a
// conflict means an earlier attempt already recorded the invite, which
// callers treat as success.
func (c *Client) CreateEmployee(ctx context.Context, employee *payroll.Employee) (*payroll.Employee, error) {
	var created payroll.Employee
	res, err := c.http.R().SetContext(ctx).
		SetBody(employee).
		SetResult(&created).
		Post("/api/v1/employees")
	if res != nil && res.StatusCode() == http.StatusConflict {
		log.L(ctx).Debugf("employee %s already recorded", employee.Name)
		return employee, nil
	}
	if err := c.checkResponse(ctx, res, err); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) UpdateEmployee(ctx context.Context, employee *payroll.Employee) (*payroll.Employee, error) {
	var updated payroll.Employee
	res, err := c.http.R().SetContext(ctx).
		SetBody(employee).
		SetResult(&updated).
		Put(fmt.Sprintf("/api/v1/employees/%s", employee.ID))
	if err := c.checkResponse(ctx, res, err); err != nil {
		return nil, err
	}
	return &updated, nil
}

// ClaimSync tells the ledger an invite was claimed on-chain, binding the
// claimer's wallet and moving the employee record invited -> active.
type ClaimSync struct {
	ContractAddress *ethtypes.Address0xHex    `json:"contractAddress"`
	SecretHash      ethtypes.HexBytes0xPrefix `json:"secretHash"`
	Wallet          *ethtypes.Address0xHex    `json:"wallet"`
}

// SyncClaim is idempotent: a second notification for an already-active
// record reports a conflict, which is success. Network retries deliver
// duplicates, so this must never be an error path.
func (c *Client) SyncClaim(ctx context.Context, sync *ClaimSync) error {
	res, err := c.http.R().SetContext(ctx).
		SetBody(sync).
		Post("/api/v1/employees/claim")
	if res != nil && res.StatusCode() == http.StatusConflict {
		log.L(ctx).Debugf("claim for %s already recorded", sync.SecretHash)
		return nil
	}
	return c.checkResponse(ctx, res, err)
}

// CreateTransaction is idempotent on the (wallet, txHash, type) identity.
// A conflict response means the record already exists and is success.
func (c *Client) CreateTransaction(ctx context.Context, record *payroll.TransactionRecord) error {
	res, err := c.http.R().SetContext(ctx).
		SetBody(record).
		Post("/api/v1/transactions")
	if res != nil && res.StatusCode() == http.StatusConflict {
		log.L(ctx).Debugf("transaction record (%s,%s,%s) already recorded", record.Wallet, record.TxHash, record.Type)
		return nil
	}
	return c.checkResponse(ctx, res, err)
}

type TransactionPage struct {
	Items []*payroll.TransactionRecord `json:"items"`
	Total int                          `json:"total"`
	Page  int                          `json:"page"`
}

// ListTransactions returns one offset page, newest first. Total is advisory
// while writes are happening concurrently with browsing.
func (c *Client) ListTransactions(ctx context.Context, wallet *ethtypes.Address0xHex, page int) (*TransactionPage, error) {
	var result TransactionPage
	res, err := c.http.R().SetContext(ctx).
		SetQueryParam("wallet", wallet.String()).
		SetQueryParam("page", strconv.Itoa(page)).
		SetQueryParam("limit", strconv.Itoa(c.pageSize)).
		SetQueryParam("sort", "-created").
		SetResult(&result).
		Get("/api/v1/transactions")
	if err := c.checkResponse(ctx, res, err); err != nil {
		return nil, err
	}
	result.Page = page
	return &result, nil
}

func (c *Client) GetDashboardStats(ctx context.Context, wallet *ethtypes.Address0xHex) (*payroll.DashboardStats, error) {
	var stats payroll.DashboardStats
	res, err := c.http.R().SetContext(ctx).
		SetQueryParam("wallet", wallet.String()).
		SetResult(&stats).
		Get("/api/v1/dashboard/stats")
	if err := c.checkResponse(ctx, res, err); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) ListNotifications(ctx context.Context, wallet *ethtypes.Address0xHex) ([]*payroll.Notification, error) {
	var notifications []*payroll.Notification
	res, err := c.http.R().SetContext(ctx).
		SetQueryParam("wallet", wallet.String()).
		SetResult(&notifications).
		Get("/api/v1/notifications")
	if err := c.checkResponse(ctx, res, err); err != nil {
		return nil, err
	}
	return notifications, nil
}

func (c *Client) CreateNotification(ctx context.Context, notification *payroll.Notification) error {
	res, err := c.http.R().SetContext(ctx).
		SetBody(notification).
		Post("/api/v1/notifications")
	return c.checkResponse(ctx, res, err)
}

func (c *Client) GetSchedule(ctx context.Context, admin *ethtypes.Address0xHex) (*payroll.Schedule, error) {
	var schedule payroll.Schedule
	res, err := c.http.R().SetContext(ctx).
		SetResult(&schedule).
		Get(fmt.Sprintf("/api/v1/schedules/%s", admin))
	if res != nil && res.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if err := c.checkResponse(ctx, res, err); err != nil {
		return nil, err
	}
	return &schedule, nil
}

func (c *Client) UpsertSchedule(ctx context.Context, schedule *payroll.Schedule) (*payroll.Schedule, error) {
	var updated payroll.Schedule
	res, err := c.http.R().SetContext(ctx).
		SetBody(schedule).
		SetResult(&updated).
		Put(fmt.Sprintf("/api/v1/schedules/%s", schedule.AdminWallet))
	if err := c.checkResponse(ctx, res, err); err != nil {
		return nil, err
	}
	return &updated, nil
}

// CalculateTax passes a gross amount through the opaque tax calculator.
// The bracket logic lives entirely behind the API.
func (c *Client) CalculateTax(ctx context.Context, request *TaxRequest) (*TaxResult, error) {
	var result TaxResult
	res, err := c.http.R().SetContext(ctx).
		SetBody(request).
		SetResult(&result).
		Post("/api/v1/tax/calculate")
	if err := c.checkResponse(ctx, res, err); err != nil {
		return nil, err
	}
	return &result, nil
}

// RenderPayslip returns the rendered payslip document for an employee and
// period. Rendering is the API's concern - this is bytes in, bytes out.
func (c *Client) RenderPayslip(ctx context.Context, request *PayslipRequest) ([]byte, error) {
	res, err := c.http.R().SetContext(ctx).
		SetBody(request).
		Post("/api/v1/payslips/render")
	if err := c.checkResponse(ctx, res, err); err != nil {
		return nil, err
	}
	return res.Body(), nil
}
