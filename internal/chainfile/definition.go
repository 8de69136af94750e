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

package chainfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/cloudwego/promptchain/chain"
	"github.com/cloudwego/promptchain/llm"
	"github.com/cloudwego/promptchain/llm/log"
	"github.com/cloudwego/promptchain/llm/prompt"
	"gopkg.in/yaml.v3"
)

// Definition is a chain described in YAML.
type Definition struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Format      string     `yaml:"format"`
	Variables   []Variable `yaml:"variables"`
	Steps       []StepDef  `yaml:"steps"`

	Path   string            `yaml:"-"` // file the definition was read from
	format prompt.FormatType `yaml:"-"`
}

type Variable struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Required    bool   `yaml:"required"`
	Default     any    `yaml:"default"`
}

type StepDef struct {
	Name     string       `yaml:"name"`
	Model    string       `yaml:"model"` // model alias, empty selects the default model
	Messages []MessageDef `yaml:"messages"`
}

type MessageDef struct {
	Role        string `yaml:"role"`
	Content     string `yaml:"content"`
	ContentFile string `yaml:"content_file"` // relative to the chain file
}

// BackendFunc resolves a model alias to a backend.
type BackendFunc func(alias string) (llm.Backend, error)

// ParseFile reads and validates the chain file at path.
func ParseFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain file %s: %w", path, err)
	}
	def, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	def.Path = path
	return def, nil
}

// Parse decodes a chain definition. content_file entries are read relative to
// baseDir and inlined.
func Parse(data []byte, baseDir string) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse chain YAML: %w", err)
	}
	if err := def.validate(); err != nil {
		return nil, err
	}

	for i := range def.Steps {
		for j := range def.Steps[i].Messages {
			m := &def.Steps[i].Messages[j]
			if m.ContentFile == "" {
				continue
			}
			path := m.ContentFile
			if !filepath.IsAbs(path) {
				path = filepath.Join(baseDir, path)
			}
			e, err := prompt.FileMessage(m.Role, path)
			if err != nil {
				return nil, fmt.Errorf("step %q: %w", def.Steps[i].Name, err)
			}
			m.Content = e.Text
		}
	}

	if undeclared := def.undeclared(); len(undeclared) > 0 {
		log.Warn("chain %s references undeclared variables %v", def.Name, undeclared)
	}
	return &def, nil
}

// Template returns a fresh prompt template for step i.
func (d *Definition) Template(i int) *prompt.Template {
	s := d.Steps[i]
	entries := make([]prompt.Entry, 0, len(s.Messages))
	for _, m := range s.Messages {
		entries = append(entries, prompt.Message(m.Role, m.Content))
	}
	return prompt.NewMessages(entries...).SetFormat(d.format)
}

// Referenced lists the variables used by any step, sorted.
func (d *Definition) Referenced() []string {
	return d.collect((*prompt.Template).Variables)
}

// Required lists the variables some step cannot render without, sorted.
// Names a step guards with a default filter or an "is defined" test are
// left out for that step.
func (d *Definition) Required() []string {
	return d.collect((*prompt.Template).Required)
}

func (d *Definition) collect(names func(*prompt.Template) []string) []string {
	set := map[string]bool{}
	for i := range d.Steps {
		for _, v := range names(d.Template(i)) {
			set[v] = true
		}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (d *Definition) undeclared() []string {
	declared := map[string]bool{}
	for _, v := range d.Variables {
		declared[v.Name] = true
	}
	var out []string
	for _, v := range d.Referenced() {
		if !declared[v] {
			out = append(out, v)
		}
	}
	return out
}

// ApplyDefaults returns a copy of vars with absent declared variables set
// to their defaults. Optional variables without a default become "".
func (d *Definition) ApplyDefaults(vars map[string]any) map[string]any {
	out := make(map[string]any, len(vars)+len(d.Variables))
	for k, v := range vars {
		out[k] = v
	}
	for _, v := range d.Variables {
		if _, ok := out[v.Name]; ok {
			continue
		}
		switch {
		case v.Default != nil:
			out[v.Name] = v.Default
		case !v.Required:
			out[v.Name] = ""
		}
	}
	return out
}

// Inputs applies defaults and checks that every required variable, declared
// or referenced, has a value. Absent names yield a *prompt.RenderError before
// any step runs.
func (d *Definition) Inputs(vars map[string]any) (map[string]any, error) {
	out := d.ApplyDefaults(vars)
	var missing []string
	seen := map[string]bool{}
	for _, v := range d.Variables {
		seen[v.Name] = true
		if _, ok := out[v.Name]; !ok && v.Required {
			missing = append(missing, v.Name)
		}
	}
	for _, name := range d.Required() {
		if _, ok := out[name]; !ok && !seen[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &prompt.RenderError{Missing: missing}
	}
	return out, nil
}

// Build links one LLMChain per step into a new Sequential. Every call returns
// chains with fresh templates.
func (d *Definition) Build(backends BackendFunc) (*chain.Sequential, error) {
	seq := chain.NewSequential()
	for i, s := range d.Steps {
		backend, err := backends(s.Model)
		if err != nil {
			return nil, fmt.Errorf("chain %s step %q: %w", d.Name, s.Name, err)
		}
		seq.Link(chain.NewLLMChain(backend, d.Template(i), chain.WithName(s.Name)))
	}
	return seq, nil
}

// Run builds a fresh chain, applies variable defaults and executes it.
func (d *Definition) Run(ctx context.Context, backends BackendFunc, vars map[string]any) (string, *chain.RunState, error) {
	input, err := d.Inputs(vars)
	if err != nil {
		return "", nil, err
	}
	seq, err := d.Build(backends)
	if err != nil {
		return "", nil, err
	}
	log.Info("running chain %s (%d steps)", d.Name, seq.Len())
	out, err := seq.Execute(ctx, input)
	return out, seq.LastRun(), err
}
