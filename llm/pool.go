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
	"sync"
)

// Pool builds one Backend per model alias on first use and shares it
// afterwards.
type Pool struct {
	ctx    context.Context
	lookup func(alias string) (ModelConfig, error)
	build  func(ctx context.Context, m ModelConfig) (Backend, error)

	mu      sync.Mutex
	clients map[string]Backend
}

// NewPool resolves aliases with lookup and builds clients with
// NewClientFromConfig.
func NewPool(ctx context.Context, lookup func(alias string) (ModelConfig, error)) *Pool {
	return &Pool{
		ctx:    ctx,
		lookup: lookup,
		build: func(ctx context.Context, m ModelConfig) (Backend, error) {
			return NewClientFromConfig(ctx, m)
		},
		clients: map[string]Backend{},
	}
}

// Get returns the backend for alias, building it once.
func (p *Pool) Get(alias string) (Backend, error) {
	m, err := p.lookup(alias)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[m.Name]; ok {
		return c, nil
	}
	c, err := p.build(p.ctx, m)
	if err != nil {
		return nil, err
	}
	p.clients[m.Name] = c
	return c, nil
}
