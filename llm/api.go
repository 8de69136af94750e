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
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

type ModelConfig struct {
	Name        string    `json:"name" mapstructure:"name"` // alias of the config, not endpoint!
	APIType     ModelType `json:"type" mapstructure:"type"`
	BaseURL     string    `json:"base_url" mapstructure:"base_url"`
	APIKey      string    `json:"api_key" mapstructure:"api_key"`
	APIKeyEnv   string    `json:"api_key_env" mapstructure:"api_key_env"` // read the key from this env var when APIKey is empty
	ModelName   string    `json:"model_name" mapstructure:"model_name"`   // the endpoint of the model, like `claude-opus-4-20250514`
	Temperature *float32  `json:"temperature" mapstructure:"temperature"`
	// TopP        *float32  `json:"top_p"`
	MaxTokens int           `json:"max_tokens" mapstructure:"max_tokens"`
	Timeout   time.Duration `json:"timeout" mapstructure:"timeout"` // HTTP request timeout, default: 600s
	Retries   int           `json:"retries" mapstructure:"retries"` // Number of retries on failure, default: 3, negative disables
}

// ResolveAPIKey returns APIKey, falling back to the APIKeyEnv variable.
func (m ModelConfig) ResolveAPIKey() string {
	if m.APIKey != "" {
		return m.APIKey
	}
	if m.APIKeyEnv != "" {
		return os.Getenv(m.APIKeyEnv)
	}
	return ""
}

type ModelType string

func NewModelType(t string) ModelType {
	switch strings.ToLower(t) {
	case "ollama":
		return ModelTypeOllama
	case "ark", "doubao":
		return ModelTypeARK
	case "openai", "gpt":
		return ModelTypeOpenAI
	case "claude", "anthropic":
		return ModelTypeClaude
	case "dashscope", "qwen", "tongyi":
		return ModelTypeDashScope
	case "deepseek":
		return ModelTypeDeepSeek
	}
	return ModelTypeUnknown
}

const (
	ModelTypeUnknown   ModelType = ""
	ModelTypeOllama    ModelType = "ollama"
	ModelTypeARK       ModelType = "ark"
	ModelTypeOpenAI    ModelType = "openai"
	ModelTypeClaude    ModelType = "claude"
	ModelTypeDashScope ModelType = "dashscope"
	ModelTypeDeepSeek  ModelType = "deepseek"
)

// ChatModel is the interface for making LLM backend.
type ChatModel interface {
	model.BaseChatModel
}

// Backend turns a rendered conversation into the model's text reply.
// Implementations must be safe for use by several steps at once.
type Backend interface {
	Generate(ctx context.Context, msgs []*schema.Message) (string, error)
}

var (
	ErrEmptyResponse = errors.New("empty response from model")
	ErrNoBackend     = errors.New("no backend configured")
)

// BackendError is any failure of the remote call: network, authentication,
// rate limiting or a malformed/empty response.
type BackendError struct {
	Model string
	Err   error
}

func (e *BackendError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("backend: %v", e.Err)
	}
	return fmt.Sprintf("backend %s: %v", e.Model, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}
