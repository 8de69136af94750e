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
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChatModel replies from a script; each entry is either a reply or an error.
type fakeChatModel struct {
	replies []string
	errs    []error
	calls   int
	got     [][]*schema.Message
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	i := f.calls
	f.calls++
	f.got = append(f.got, input)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.replies) {
		return schema.AssistantMessage(f.replies[i], nil), nil
	}
	return schema.AssistantMessage("", nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}

func newTestClient(m ChatModel, retries int) *Client {
	c := NewClient(m, ClientOptions{Name: "fake", Retries: retries, Timeout: time.Second})
	c.backoff = func(int) time.Duration { return 0 }
	return c
}

func TestClient_Generate(t *testing.T) {
	fm := &fakeChatModel{replies: []string{"A prince seeks revenge."}}
	c := newTestClient(fm, -1)

	msgs := []*schema.Message{schema.UserMessage("Summarize Hamlet.")}
	out, err := c.Generate(context.Background(), msgs)
	require.NoError(t, err)
	assert.Equal(t, "A prince seeks revenge.", out)
	assert.Equal(t, 1, fm.calls)
	assert.Equal(t, msgs, fm.got[0])
}

func TestClient_RetryTransient(t *testing.T) {
	fm := &fakeChatModel{
		errs:    []error{errors.New("read tcp: connection reset by peer"), errors.New("request timeout")},
		replies: []string{"", "", "ok"},
	}
	c := newTestClient(fm, 2)

	out, err := c.Generate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, fm.calls)
}

func TestClient_RetriesExhausted(t *testing.T) {
	transient := errors.New("connection refused")
	fm := &fakeChatModel{errs: []error{transient, transient}}
	c := newTestClient(fm, 1)

	_, err := c.Generate(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, 2, fm.calls)

	var berr *BackendError
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, "fake", berr.Model)
	assert.True(t, errors.Is(err, transient))
}

func TestClient_NonRetryable(t *testing.T) {
	auth := errors.New("401 unauthorized")
	fm := &fakeChatModel{errs: []error{auth}}
	c := newTestClient(fm, 3)

	_, err := c.Generate(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, 1, fm.calls)
	assert.True(t, errors.Is(err, auth))
}

func TestClient_EmptyResponse(t *testing.T) {
	c := newTestClient(&fakeChatModel{}, -1)
	_, err := c.Generate(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrEmptyResponse))
}

func TestClient_Defaults(t *testing.T) {
	c := NewClient(&fakeChatModel{}, ClientOptions{Name: "x"})
	assert.Equal(t, defaultRetries, c.retries)
	assert.Equal(t, defaultTimeout, c.timeout)
	assert.Equal(t, "x", c.Name())

	c = NewClient(&fakeChatModel{}, ClientOptions{Retries: -1})
	assert.Equal(t, 0, c.retries)

	assert.Equal(t, time.Second, expBackoff(1))
	assert.Equal(t, 4*time.Second, expBackoff(3))
	assert.Equal(t, 10*time.Second, expBackoff(6))
}

func TestNewModelType(t *testing.T) {
	assert.Equal(t, ModelTypeClaude, NewModelType("Anthropic"))
	assert.Equal(t, ModelTypeDashScope, NewModelType("qwen"))
	assert.Equal(t, ModelTypeARK, NewModelType("doubao"))
	assert.Equal(t, ModelTypeUnknown, NewModelType("llama.cpp"))
}

func TestNewChatModel_Unsupported(t *testing.T) {
	_, err := NewChatModel(context.Background(), ModelConfig{APIType: ModelTypeUnknown})
	assert.Error(t, err)
}

func TestModelConfig_ResolveAPIKey(t *testing.T) {
	t.Setenv("PROMPTCHAIN_TEST_KEY", "from-env")
	assert.Equal(t, "inline", ModelConfig{APIKey: "inline", APIKeyEnv: "PROMPTCHAIN_TEST_KEY"}.ResolveAPIKey())
	assert.Equal(t, "from-env", ModelConfig{APIKeyEnv: "PROMPTCHAIN_TEST_KEY"}.ResolveAPIKey())
	assert.Equal(t, "", ModelConfig{}.ResolveAPIKey())
}
