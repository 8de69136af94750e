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
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/schema"
	"github.com/cloudwego/promptchain/internal/chainfile"
	"github.com/cloudwego/promptchain/internal/utils"
	"github.com/invopop/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"
)

type Tool struct {
	mcp.Tool
	Handler func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// NewTool binds the call arguments to R and returns the handler's text as
// the tool result. Handler errors become error results, not protocol errors.
func NewTool[R any](name string, desc string, inputSchema json.RawMessage, handler func(ctx context.Context, req R) (string, error)) Tool {
	return Tool{
		Tool: mcp.NewToolWithRawSchema(name, desc, inputSchema),
		Handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var req R
			if err := request.BindArguments(&req); err != nil {
				return nil, err
			}
			final, err := handler(ctx, req)
			isError := false
			if err != nil {
				isError = true
				final = err.Error()
			}
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(final),
				},
				IsError: isError,
			}, nil
		},
	}
}

func (s *Server) lookup(name string) (*chainfile.Definition, error) {
	def, ok := s.opts.Registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("chain %q not found", name)
	}
	return def, nil
}

func (s *Server) chainTool(def *chainfile.Definition) (Tool, error) {
	inputSchema, err := InputSchema(def)
	if err != nil {
		return Tool{}, err
	}
	name := def.Name
	return NewTool(name, toolDescription(def), inputSchema, func(ctx context.Context, args map[string]any) (string, error) {
		return s.Call(ctx, name, args)
	}), nil
}

func toolDescription(def *chainfile.Definition) string {
	if def.Description != "" {
		return def.Description
	}
	return fmt.Sprintf("Run the %d-step prompt chain %s", len(def.Steps), def.Name)
}

// InputSchema describes the chain variables as a JSON object schema. Variables
// referenced by the prompts but not declared are strings, required unless
// every step guards them.
func InputSchema(def *chainfile.Definition) (json.RawMessage, error) {
	props := jsonschema.NewProperties()
	var required []string
	declared := map[string]bool{}
	for _, v := range def.Variables {
		declared[v.Name] = true
		props.Set(v.Name, &jsonschema.Schema{
			Type:        schemaType(v.Default),
			Description: v.Description,
			Default:     v.Default,
		})
		if v.Required && v.Default == nil {
			required = append(required, v.Name)
		}
	}
	needed := map[string]bool{}
	for _, name := range def.Required() {
		needed[name] = true
	}
	for _, name := range def.Referenced() {
		if declared[name] {
			continue
		}
		props.Set(name, &jsonschema.Schema{Type: "string"})
		if needed[name] {
			required = append(required, name)
		}
	}

	js, err := utils.MarshalJSONBytes(&jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   required,
	})
	if err != nil {
		return nil, utils.WrapError(err, "marshal schema of %s", def.Name)
	}
	return js, nil
}

func schemaType(v any) string {
	switch v.(type) {
	case bool:
		return "boolean"
	case int, int64, float64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return "string"
}

// chainPrompt declares the chain variables as prompt arguments, followed by
// undeclared ones the prompts reference. An undeclared argument is required
// when the first step cannot render without it.
func chainPrompt(def *chainfile.Definition) mcp.Prompt {
	opts := []mcp.PromptOption{mcp.WithPromptDescription(toolDescription(def))}
	declared := map[string]bool{}
	for _, v := range def.Variables {
		declared[v.Name] = true
		aopts := []mcp.ArgumentOption{mcp.ArgumentDescription(v.Description)}
		if v.Required && v.Default == nil {
			aopts = append(aopts, mcp.RequiredArgument())
		}
		opts = append(opts, mcp.WithArgument(v.Name, aopts...))
	}

	first := map[string]bool{}
	for _, name := range def.Template(0).Required() {
		first[name] = true
	}
	for _, name := range def.Referenced() {
		if declared[name] {
			continue
		}
		var aopts []mcp.ArgumentOption
		if first[name] {
			aopts = append(aopts, mcp.RequiredArgument())
		}
		opts = append(opts, mcp.WithArgument(name, aopts...))
	}
	return mcp.NewPrompt(def.Name, opts...)
}

// handlePrompt renders the first step of the named chain.
func (s *Server) handlePrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	def, err := s.lookup(request.Params.Name)
	if err != nil {
		return nil, err
	}
	args := make(map[string]any, len(request.Params.Arguments))
	for k, v := range request.Params.Arguments {
		args[k] = v
	}
	msgs, err := def.Template(0).Render(ctx, def.ApplyDefaults(args))
	if err != nil {
		return nil, err
	}

	res := &mcp.GetPromptResult{Description: toolDescription(def)}
	for _, m := range msgs {
		role := mcp.RoleUser
		if m.Role == schema.Assistant {
			role = mcp.RoleAssistant
		}
		res.Messages = append(res.Messages, mcp.PromptMessage{
			Role: role,
			Content: mcp.TextContent{
				Type: "text",
				Text: m.Content,
			},
		})
	}
	return res, nil
}
