/**
 * Copyright 2025 ByteDance Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/schema"
	"github.com/cloudwego/promptchain/internal/utils"
	"github.com/cloudwego/promptchain/llm/log"
)

var _ Backend = (*Client)(nil)

type ClientOptions struct {
	Name    string        `json:"name"`
	Retries int           `json:"retries"` // Number of retries, default: 3, negative disables
	Timeout time.Duration `json:"timeout"` // Per-attempt timeout, default: 600s
}

// Client adapts an eino ChatModel to Backend, adding a per-attempt timeout
// and retries for transient transport errors. It holds no per-call state.
type Client struct {
	name    string
	model   ChatModel
	retries int
	timeout time.Duration
	backoff func(attempt int) time.Duration
}

func NewClient(m ChatModel, opts ClientOptions) *Client {
	retries := opts.Retries
	if retries == 0 {
		retries = defaultRetries
	} else if retries < 0 {
		retries = 0
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		name:    opts.Name,
		model:   m,
		retries: retries,
		timeout: timeout,
		backoff: expBackoff,
	}
}

func (c *Client) Name() string {
	return c.name
}

// Exponential backoff: wait 1s, 2s, 4s... capped at 10s.
func expBackoff(attempt int) time.Duration {
	wait := time.Duration(1<<uint(attempt-1)) * time.Second
	if wait > 10*time.Second {
		wait = 10 * time.Second
	}
	return wait
}

func (c *Client) Generate(ctx context.Context, msgs []*schema.Message) (string, error) {
	ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      c.name,
		Component: components.ComponentOfChatModel,
	}, CallbackHandler{})

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			log.Info("Retrying LLM call %s (attempt %d/%d)...", c.name, attempt+1, c.retries+1)
			select {
			case <-ctx.Done():
				return "", &BackendError{Model: c.name, Err: utils.WrapError(ctx.Err(), "retry aborted")}
			case <-time.After(c.backoff(attempt)):
			}
		}

		out, err := c.call(ctx, msgs)
		if err == nil {
			if out == nil || out.Content == "" {
				return "", &BackendError{Model: c.name, Err: ErrEmptyResponse}
			}
			return out.Content, nil
		}
		lastErr = err

		if ctx.Err() != nil || !isRetryable(err) {
			log.Error("Non-retryable error occurred: %v", err)
			return "", &BackendError{Model: c.name, Err: utils.WrapError(err, "generate")}
		}
		log.Info("Retryable error occurred (attempt %d/%d): %v", attempt+1, c.retries+1, err)
	}

	// All retries exhausted
	return "", &BackendError{
		Model: c.name,
		Err:   utils.WrapError(lastErr, "failed after %d attempts", c.retries+1),
	}
}

func (c *Client) call(ctx context.Context, msgs []*schema.Message) (*schema.Message, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.model.Generate(attemptCtx, msgs)
}

func isRetryable(err error) bool {
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "operation timed out") ||
		strings.Contains(errStr, "context deadline exceeded") ||
		strings.Contains(errStr, "read tcp") ||
		strings.Contains(errStr, "write tcp") ||
		strings.Contains(errStr, "429")
}

type CallbackHandler struct{}

var _ callbacks.Handler = (*CallbackHandler)(nil)

func (h CallbackHandler) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	log.Debug("<OnStart>\n\tINFO: %+v\n</OnStart>", info)
	return ctx
}

func (h CallbackHandler) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	log.Debug("<OnEnd>\n\tINFO %+v\n\tOUTPUT: %v\n</OnEnd>", info, output)
	return ctx
}

func (h CallbackHandler) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	log.Error("<OnError>\n\tINFO: %+v\n\tERROR: %v\n</OnError>", info, err)
	return ctx
}

func (h CallbackHandler) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo,
	input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	input.Close()
	return ctx
}

func (h CallbackHandler) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo,
	output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	output.Close()
	return ctx
}

// String is used in log lines.
func (c *Client) String() string {
	return fmt.Sprintf("llm.Client(%s, retries=%d, timeout=%s)", c.name, c.retries, c.timeout)
}
