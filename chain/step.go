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

package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/promptchain/llm"
	"github.com/cloudwego/promptchain/llm/log"
	"github.com/cloudwego/promptchain/llm/prompt"
)

// Executor runs against one input value and yields text.
type Executor interface {
	Execute(ctx context.Context, input any) (string, error)
}

// Step is one link of a Sequential chain. Prompt gives mutable access to the
// step's prompt template so a caller can append messages between runs.
type Step interface {
	Executor
	Prompt() *prompt.Template
}

// Named steps report their name in logs and run history.
type Named interface {
	Name() string
}

func stepName(i int, s Step) string {
	if n, ok := s.(Named); ok && n.Name() != "" {
		return n.Name()
	}
	return fmt.Sprintf("step-%d", i)
}

var (
	_ Step  = (*LLMChain)(nil)
	_ Named = (*LLMChain)(nil)
)

// LLMChain renders its prompt against the input and sends it to a backend.
// The backend is shared and must outlive the chain; the prompt is owned.
type LLMChain struct {
	name    string
	backend llm.Backend
	prompt  *prompt.Template
}

type Option func(*LLMChain)

func WithName(name string) Option {
	return func(c *LLMChain) {
		c.name = name
	}
}

func NewLLMChain(backend llm.Backend, tpl *prompt.Template, opts ...Option) *LLMChain {
	if tpl == nil {
		tpl = prompt.NewMessages()
	}
	c := &LLMChain{backend: backend, prompt: tpl}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ErrNilStep is returned by a nil *LLMChain.
var ErrNilStep = errors.New("chain: nil LLMChain")

func (c *LLMChain) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

func (c *LLMChain) Prompt() *prompt.Template {
	if c == nil {
		return nil
	}
	return c.prompt
}

// Execute fails with *prompt.RenderError when the input lacks a referenced
// variable, before any backend call, and otherwise returns whatever the
// backend returns. A chain without a backend fails with a *llm.BackendError
// wrapping llm.ErrNoBackend.
func (c *LLMChain) Execute(ctx context.Context, input any) (string, error) {
	if c == nil {
		return "", ErrNilStep
	}
	vars, err := prompt.Vars(input)
	if err != nil {
		return "", err
	}
	msgs, err := c.prompt.Render(ctx, vars)
	if err != nil {
		return "", err
	}
	if c.backend == nil {
		return "", &llm.BackendError{Model: c.name, Err: llm.ErrNoBackend}
	}
	log.Debug("[LLMChain %s] sending %d messages", c.name, len(msgs))
	return c.backend.Generate(ctx, msgs)
}
