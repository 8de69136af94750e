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
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/cloudwego/promptchain/internal/chainfile"
	"github.com/cloudwego/promptchain/llm"
	alog "github.com/cloudwego/promptchain/llm/log"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reviewChain = `
name: review
description: Summarise then critique
variables:
  - name: topic
    description: the work to review
    required: true
  - name: words
    default: 50
steps:
  - name: summarize
    messages:
      - role: system
        content: "Answer in {{words}} words."
      - role: user
        content: "Summarize {{topic}}."
  - name: critique
    messages:
      - role: ai
        content: "Review this summary of {{topic}} in the voice of {{critic}}:"
`

type echoBackend struct {
	mu    sync.Mutex
	calls int
	fail  error
}

func (b *echoBackend) Generate(ctx context.Context, msgs []*schema.Message) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.fail != nil {
		return "", b.fail
	}
	return msgs[len(msgs)-1].Content + " ok", nil
}

func newTestServer(t *testing.T, backend llm.Backend) *Server {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "review.yaml"), []byte(reviewChain), 0o644))
	reg := chainfile.NewRegistry(dir)
	require.NoError(t, reg.Load())
	return NewServer(ServerOptions{
		ServerName:    "promptchain",
		ServerVersion: "1.0.0",
		Registry:      reg,
		Backends:      func(string) (llm.Backend, error) { return backend, nil },
	})
}

func TestInputSchema(t *testing.T) {
	def, err := chainfile.Parse([]byte(reviewChain), "")
	require.NoError(t, err)

	raw, err := InputSchema(def)
	require.NoError(t, err)

	var got struct {
		Type       string                    `json:"type"`
		Properties map[string]map[string]any `json:"properties"`
		Required   []string                  `json:"required"`
	}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "object", got.Type)
	assert.Equal(t, "string", got.Properties["topic"]["type"])
	assert.Equal(t, "the work to review", got.Properties["topic"]["description"])
	assert.Equal(t, "number", got.Properties["words"]["type"])
	assert.Equal(t, "string", got.Properties["critic"]["type"])
	assert.ElementsMatch(t, []string{"topic", "critic"}, got.Required)
}

func TestInputSchema_GuardedVariable(t *testing.T) {
	def, err := chainfile.Parse([]byte(`
name: guarded
steps:
  - messages:
      - role: user
        content: "{{ topic }} in a {{ tone | default('neutral') }} voice"
`), "")
	require.NoError(t, err)

	raw, err := InputSchema(def)
	require.NoError(t, err)
	var got struct {
		Properties map[string]map[string]any `json:"properties"`
		Required   []string                  `json:"required"`
	}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Contains(t, got.Properties, "tone")
	assert.Equal(t, []string{"topic"}, got.Required)
}

func TestChainPrompt_Arguments(t *testing.T) {
	def, err := chainfile.Parse([]byte(reviewChain), "")
	require.NoError(t, err)
	args := map[string]bool{}
	for _, a := range chainPrompt(def).Arguments {
		args[a.Name] = a.Required
	}
	// critic is only needed by the second step
	assert.Equal(t, map[string]bool{"topic": true, "words": false, "critic": false}, args)

	def, err = chainfile.Parse([]byte(`
name: ask
steps:
  - messages:
      - role: user
        content: "Answer {{ question }}{% if lang is defined %} in {{ lang }}{% endif %}."
`), "")
	require.NoError(t, err)
	args = map[string]bool{}
	for _, a := range chainPrompt(def).Arguments {
		args[a.Name] = a.Required
	}
	assert.Equal(t, map[string]bool{"question": true, "lang": false}, args)
}

func TestChainTool(t *testing.T) {
	backend := &echoBackend{}
	svr := newTestServer(t, backend)
	def, ok := svr.opts.Registry.Get("review")
	require.True(t, ok)

	tool, err := svr.chainTool(def)
	require.NoError(t, err)
	assert.Equal(t, "review", tool.Name)
	assert.Equal(t, "Summarise then critique", tool.Description)

	req := mcp.CallToolRequest{}
	req.Params.Name = "review"
	req.Params.Arguments = map[string]any{"topic": "Hamlet", "critic": "a pirate"}
	res, err := tool.Handler(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.IsError)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	assert.Equal(t, "Summarize Hamlet. ok ok", text.Text)
	assert.Equal(t, 2, backend.calls)

	// missing variable is reported as a tool error, not a protocol error
	req.Params.Arguments = map[string]any{"topic": "Hamlet"}
	res, err = tool.Handler(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.IsError)
	text, _ = res.Content[0].(mcp.TextContent)
	assert.Contains(t, text.Text, "critic")
	assert.Equal(t, 2, backend.calls)
}

func TestServer_CallBackendError(t *testing.T) {
	backend := &echoBackend{fail: &llm.BackendError{Model: "fake", Err: errors.New("401 unauthorized")}}
	svr := newTestServer(t, backend)

	_, err := svr.Call(context.Background(), "review", map[string]any{"topic": "Hamlet", "critic": "x"})
	var berr *llm.BackendError
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, 1, backend.calls)

	_, err = svr.Call(context.Background(), "absent", nil)
	assert.ErrorContains(t, err, "not found")
}

func TestHandlePrompt(t *testing.T) {
	svr := newTestServer(t, &echoBackend{})

	req := mcp.GetPromptRequest{}
	req.Params.Name = "review"
	req.Params.Arguments = map[string]string{"topic": "Hamlet"}
	res, err := svr.handlePrompt(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Messages, 2)
	assert.Equal(t, mcp.RoleUser, res.Messages[0].Role)
	assert.Equal(t, "Answer in 50 words.", res.Messages[0].Content.(mcp.TextContent).Text)
	assert.Equal(t, "Summarize Hamlet.", res.Messages[1].Content.(mcp.TextContent).Text)

	req.Params.Arguments = nil
	_, err = svr.handlePrompt(context.Background(), req)
	assert.Error(t, err)
}

func sendAndRecv(t *testing.T, request any, stdinWriter *io.PipeWriter, scanner *bufio.Scanner) map[string]any {
	requestBytes, err := json.Marshal(request)
	if err != nil {
		t.Fatal(err)
	}
	_, err = stdinWriter.Write(append(requestBytes, '\n'))
	if err != nil {
		t.Fatal(err)
	}

	if !scanner.Scan() {
		t.Fatal("failed to read response")
	}
	var response map[string]any
	if err := json.Unmarshal(scanner.Bytes(), &response); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return response
}

func TestStdioServer(t *testing.T) {
	alog.SetLogLevel(alog.DebugLevel)
	defer alog.SetLogLevel(alog.InfoLevel)
	svr := newTestServer(t, &echoBackend{})

	stdinReader, stdinWriter := io.Pipe()
	stdoutReader, stdoutWriter := io.Pipe()

	stdioServer := server.NewStdioServer(svr.Server)
	stdioServer.SetErrorLogger(log.New(io.Discard, "", 0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverErrCh := make(chan error, 1)
	go func() {
		err := stdioServer.Listen(ctx, stdinReader, stdoutWriter)
		if err != nil && err != io.EOF && err != context.Canceled {
			serverErrCh <- err
		}
		stdoutWriter.Close()
		close(serverErrCh)
	}()

	time.Sleep(100 * time.Millisecond)
	scanner := bufio.NewScanner(stdoutReader)

	resp := sendAndRecv(t, map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "initialize",
		"params": map[string]any{
			"protocolVersion": "2024-11-05",
			"clientInfo": map[string]any{
				"name":    "test-client",
				"version": "1.0.0",
			},
		},
	}, stdinWriter, scanner)
	require.Contains(t, resp, "result")

	resp = sendAndRecv(t, map[string]any{
		"jsonrpc": "2.0",
		"id":      2,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      "review",
			"arguments": map[string]any{"topic": "Hamlet", "critic": "Yorick"},
		},
	}, stdinWriter, scanner)
	result, ok := resp["result"].(map[string]any)
	require.True(t, ok, "resp %#v", resp)
	content := result["content"].([]any)
	require.Len(t, content, 1)
	assert.Equal(t, "Summarize Hamlet. ok ok", content[0].(map[string]any)["text"])

	cancel()
	stdinWriter.Close()
	if err := <-serverErrCh; err != nil {
		t.Errorf("unexpected server error: %v", err)
	}
}

// listNames sends a tools/list or prompts/list request and returns the names.
func listNames(t *testing.T, svr *Server, method, key string) []string {
	t.Helper()
	msg := svr.Server.HandleMessage(context.Background(),
		json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"`+method+`"}`))
	bs, err := json.Marshal(msg)
	require.NoError(t, err)

	var resp struct {
		Result map[string]json.RawMessage `json:"result"`
	}
	require.NoError(t, json.Unmarshal(bs, &resp), string(bs))
	var items []struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(resp.Result[key], &items), string(bs))
	names := []string{}
	for _, item := range items {
		names = append(names, item.Name)
	}
	return names
}

func TestSync_Reload(t *testing.T) {
	svr := newTestServer(t, &echoBackend{})
	assert.Equal(t, []string{"review"}, listNames(t, svr, "tools/list", "tools"))
	assert.Equal(t, []string{"review"}, listNames(t, svr, "prompts/list", "prompts"))

	dir := svr.opts.Registry.Dir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "echo.yaml"),
		[]byte("name: echo\nsteps: [{messages: [{role: user, content: 'say {{text}}'}]}]"), 0o644))
	require.NoError(t, svr.opts.Registry.Load())
	svr.Sync()
	assert.Equal(t, []string{"echo", "review"}, listNames(t, svr, "tools/list", "tools"))
	assert.Equal(t, []string{"echo", "review"}, listNames(t, svr, "prompts/list", "prompts"))

	require.NoError(t, os.Remove(filepath.Join(dir, "review.yaml")))
	require.NoError(t, svr.opts.Registry.Load())
	svr.Sync()
	assert.Equal(t, []string{"echo"}, listNames(t, svr, "tools/list", "tools"))
	assert.Equal(t, []string{"echo"}, listNames(t, svr, "prompts/list", "prompts"))

	req := mcp.GetPromptRequest{}
	req.Params.Name = "review"
	_, err := svr.handlePrompt(context.Background(), req)
	assert.ErrorContains(t, err, "not found")
}
