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
	"fmt"
	"strings"
	"unicode"

	"github.com/cloudwego/promptchain/llm/prompt"
)

// ValidateName checks a chain name is usable as an MCP tool name:
// 1-64 characters of lowercase letters, digits, '-' and '_', not starting
// or ending with a separator.
func ValidateName(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("chain name cannot be empty")
	}
	if len(name) > 64 {
		return fmt.Errorf("chain name must be 1-64 characters, got %d", len(name))
	}
	for _, r := range name {
		if !unicode.IsLower(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
			return fmt.Errorf("chain name can only contain lowercase letters, numbers, '-' and '_', got '%c'", r)
		}
	}
	if strings.HasPrefix(name, "-") || strings.HasPrefix(name, "_") {
		return fmt.Errorf("chain name cannot start with a separator")
	}
	if strings.HasSuffix(name, "-") || strings.HasSuffix(name, "_") {
		return fmt.Errorf("chain name cannot end with a separator")
	}
	return nil
}

func (d *Definition) validate() error {
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	f, err := prompt.ParseFormat(d.Format)
	if err != nil {
		return err
	}
	d.format = f

	seen := map[string]bool{}
	for i, v := range d.Variables {
		if v.Name == "" {
			return fmt.Errorf("variables[%d]: name is required", i)
		}
		if seen[v.Name] {
			return fmt.Errorf("variables[%d]: duplicate name %q", i, v.Name)
		}
		seen[v.Name] = true
	}

	if len(d.Steps) == 0 {
		return fmt.Errorf("chain %s has no steps", d.Name)
	}
	for i := range d.Steps {
		s := &d.Steps[i]
		if s.Name == "" {
			s.Name = fmt.Sprintf("step-%d", i)
		}
		if len(s.Messages) == 0 {
			return fmt.Errorf("step %q has no messages", s.Name)
		}
		for j, m := range s.Messages {
			if m.Role == "" {
				return fmt.Errorf("step %q messages[%d]: role is required", s.Name, j)
			}
			if (m.Content == "") == (m.ContentFile == "") {
				return fmt.Errorf("step %q messages[%d]: exactly one of content and content_file is required", s.Name, j)
			}
		}
	}
	return nil
}
