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

package mcp

import (
	"context"
	"sync"

	"github.com/cloudwego/promptchain/internal/chainfile"
	"github.com/cloudwego/promptchain/llm/log"
	"github.com/mark3labs/mcp-go/server"
)

type ServerOptions struct {
	ServerName    string
	ServerVersion string
	Verbose       bool

	Registry *chainfile.Registry
	Backends chainfile.BackendFunc
	// Watch reloads the registry and the exposed tools when chain files change.
	Watch bool
}

// Server exposes every chain of a registry as an MCP tool and an MCP prompt.
type Server struct {
	Server *server.MCPServer
	opts   ServerOptions

	mu      sync.Mutex
	tools   []string
	prompts []string
}

func NewServer(opts ServerOptions) *Server {
	if opts.Verbose {
		log.SetLogLevel(log.DebugLevel)
	}
	s := &Server{
		Server: server.NewMCPServer(opts.ServerName, opts.ServerVersion,
			server.WithToolCapabilities(true),
			server.WithPromptCapabilities(true),
			server.WithRecovery(),
		),
		opts: opts,
	}
	s.Sync()
	return s
}

// Sync replaces the registered tools and prompts with the registry content.
func (s *Server) Sync() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.tools) > 0 {
		s.Server.DeleteTools(s.tools...)
	}
	if len(s.prompts) > 0 {
		s.Server.DeletePrompts(s.prompts...)
	}
	s.tools = s.tools[:0]
	s.prompts = s.prompts[:0]

	for _, def := range s.opts.Registry.List() {
		t, err := s.chainTool(def)
		if err != nil {
			log.Error("Failed to expose chain %s: %v", def.Name, err)
			continue
		}
		s.Server.AddTool(t.Tool, t.Handler)
		s.Server.AddPrompt(chainPrompt(def), s.handlePrompt)
		s.tools = append(s.tools, def.Name)
		s.prompts = append(s.prompts, def.Name)
	}
	log.Info("MCP server exposes %d chains", len(s.tools))
}

// ServeStdio serves over stdin/stdout until the input is closed.
func (s *Server) ServeStdio() error {
	if s.opts.Watch {
		if err := s.opts.Registry.Watch(s.Sync); err != nil {
			return err
		}
		defer s.opts.Registry.Close()
	}
	return server.ServeStdio(s.Server)
}

// Call runs a chain the same way a tool call does.
func (s *Server) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	def, err := s.lookup(name)
	if err != nil {
		return "", err
	}
	out, run, err := def.Run(ctx, s.opts.Backends, args)
	if run != nil {
		log.Info("chain %s run %s finished with %d steps", name, run.RunID, len(run.History))
	}
	return out, err
}
