// Copyright 2025 ByteDance Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloudwego/promptchain/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "promptchain.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
chains_dir: my-chains
default_model: critic
models:
  - name: fast
    type: openai
    model_name: gpt-4o-mini
    api_key_env: OPENAI_API_KEY
  - name: critic
    type: anthropic
    model_name: claude-sonnet
    timeout: 90s
    retries: -1
    max_tokens: 2048
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, path, cfg.File)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "my-chains"), cfg.ChainsDir)
	require.Len(t, cfg.Models, 2)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Models[0].APIKeyEnv)
	assert.Equal(t, 90*time.Second, cfg.Models[1].Timeout)
	assert.Equal(t, -1, cfg.Models[1].Retries)
	assert.Equal(t, 2048, cfg.Models[1].MaxTokens)

	m, err := cfg.Model("")
	require.NoError(t, err)
	assert.Equal(t, "critic", m.Name)
	assert.Equal(t, llm.ModelTypeClaude, m.APIType)

	m, err = cfg.Model("fast")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", m.ModelName)

	_, err = cfg.Model("missing")
	assert.Error(t, err)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, "log_level: info\n")
	t.Setenv("PROMPTCHAIN_LOG_LEVEL", "error")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeConfig(t, `
models:
  - name: a
    type: openai
  - name: a
    type: openai
`))
	assert.ErrorContains(t, err, "duplicate")

	_, err = Load(writeConfig(t, `
models:
  - name: a
    type: llama.cpp
`))
	assert.ErrorContains(t, err, "unsupported type")

	_, err = Load(writeConfig(t, "default_model: nope\n"))
	assert.ErrorContains(t, err, "default_model")

	_, err = Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestModel_FirstWhenNoDefault(t *testing.T) {
	cfg := &Config{Models: []llm.ModelConfig{{Name: "one", APIType: "gpt"}, {Name: "two", APIType: "ollama"}}}
	m, err := cfg.Model("")
	require.NoError(t, err)
	assert.Equal(t, "one", m.Name)
	assert.Equal(t, llm.ModelTypeOpenAI, m.APIType)

	_, err = (&Config{}).Model("")
	assert.Error(t, err)
}
