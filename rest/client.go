// Copyright 2026 The Deployctl Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dukebot/deployctl"
)

// Client talks to a deployctl serve instance.
type Client struct {
	base   string
	client *http.Client
}

// NewClient returns a client rooted at base, e.g.
// "http://127.0.0.1:8080".  hc may be nil for http.DefaultClient.
func NewClient(base string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{base: base, client: hc}
}

func (c *Client) url(parts ...string) string {
	u := c.base
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	return u
}

func (c *Client) do(ctx context.Context, method, u string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return err
	}
	rsp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer rsp.Body.Close()

	body, err := io.ReadAll(rsp.Body)
	if err != nil {
		return err
	}
	if rsp.StatusCode != http.StatusOK {
		e := &Error{}
		if json.Unmarshal(body, e) == nil && e.Message != "" {
			e.Code = rsp.StatusCode
			return e
		}
		return fmt.Errorf("HTTP %s", rsp.Status)
	}
	if v == nil {
		return nil
	}
	return json.Unmarshal(body, v)
}

// Services lists every supervised service.
func (c *Client) Services(ctx context.Context) ([]*ServiceInfo, error) {
	var l []*ServiceInfo
	if err := c.do(ctx, "GET", c.url("services"), &l); err != nil {
		return nil, err
	}
	return l, nil
}

// Service fetches one service by name.
func (c *Client) Service(ctx context.Context, name string) (*ServiceInfo, error) {
	info := &ServiceInfo{}
	if err := c.do(ctx, "GET", c.url("services", name), info); err != nil {
		return nil, err
	}
	return info, nil
}

// RestartService stops and relaunches one service.
func (c *Client) RestartService(ctx context.Context, name string) error {
	return c.do(ctx, "POST", c.url("services", name, "restart"), nil)
}

// StopService stops one service.
func (c *Client) StopService(ctx context.Context, name string) error {
	return c.do(ctx, "POST", c.url("services", name, "stop"), nil)
}

// Log fetches orchestrator log records after the cursor; pass 0 for
// the full retained log.
func (c *Client) Log(ctx context.Context, since int64) (*LogChunk, error) {
	chunk := &LogChunk{}
	u := c.url("log") + "?since=" + strconv.FormatInt(since, 10)
	if err := c.do(ctx, "GET", u, chunk); err != nil {
		return nil, err
	}
	return chunk, nil
}

// Runs fetches up to limit past run summaries, newest first.
func (c *Client) Runs(ctx context.Context, limit int) ([]deploy.RunSummary, error) {
	var runs []deploy.RunSummary
	u := c.url("runs") + "?limit=" + strconv.Itoa(limit)
	if err := c.do(ctx, "GET", u, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// LastRun fetches the most recent run result.
func (c *Client) LastRun(ctx context.Context) (*RunInfo, error) {
	info := &RunInfo{}
	if err := c.do(ctx, "GET", c.url("runs", "latest"), info); err != nil {
		return nil, err
	}
	return info, nil
}
