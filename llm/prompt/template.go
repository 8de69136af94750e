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

package prompt

import (
	"context"
	"fmt"
	"os"
	"strings"

	eprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// Role labels understood by RoleType. Other labels are sent to the backend as-is.
const (
	RoleUser      = "user"
	RoleHuman     = "human"
	RoleAI        = "ai"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type FormatType string

const (
	FormatJinja2     FormatType = "jinja2"
	FormatFString    FormatType = "fstring"
	FormatGoTemplate FormatType = "go-template"
)

// ParseFormat accepts the names used in chain files; empty means jinja2.
func ParseFormat(s string) (FormatType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "jinja2", "jinja":
		return FormatJinja2, nil
	case "fstring", "f-string":
		return FormatFString, nil
	case "go-template", "gotemplate", "go":
		return FormatGoTemplate, nil
	}
	return "", fmt.Errorf("unsupported prompt format %q", s)
}

func (f FormatType) schemaFormat() (schema.FormatType, error) {
	switch f {
	case FormatJinja2, "":
		return schema.Jinja2, nil
	case FormatFString:
		return schema.FString, nil
	case FormatGoTemplate:
		return schema.GoTemplate, nil
	}
	return 0, fmt.Errorf("unsupported prompt format %q", string(f))
}

// Entry is one labelled message of a Template. Literal entries are sent
// verbatim and never go through the template engine.
type Entry struct {
	Role    string
	Text    string
	Literal bool
}

// Message builds a templated entry.
func Message(role, text string) Entry {
	return Entry{Role: role, Text: text}
}

// FileMessage builds a templated entry whose text is read from path.
func FileMessage(role, path string) (Entry, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, fmt.Errorf("read prompt file %s: %w", path, err)
	}
	return Entry{Role: role, Text: string(bs)}, nil
}

// Template is an ordered, mutable list of message entries. Entry order is
// the order in which messages reach the backend.
type Template struct {
	format  FormatType
	entries []Entry
}

// New returns a single user message template.
func New(text string) *Template {
	return NewMessages(Message(RoleUser, text))
}

// NewMessages returns a jinja2 template holding entries in the given order.
func NewMessages(entries ...Entry) *Template {
	t := &Template{format: FormatJinja2}
	t.entries = append(t.entries, entries...)
	return t
}

func (t *Template) Format() FormatType {
	return t.format
}

func (t *Template) SetFormat(f FormatType) *Template {
	t.format = f
	return t
}

// Add appends a templated message.
func (t *Template) Add(role, text string) *Template {
	t.entries = append(t.entries, Message(role, text))
	return t
}

// AddLiteral appends a message that is sent exactly as given.
func (t *Template) AddLiteral(role, text string) *Template {
	t.entries = append(t.entries, Entry{Role: role, Text: text, Literal: true})
	return t
}

func (t *Template) Len() int {
	return len(t.entries)
}

// Entries returns a copy of the entries in order.
func (t *Template) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Last returns the most recently added entry.
func (t *Template) Last() (Entry, bool) {
	if len(t.entries) == 0 {
		return Entry{}, false
	}
	return t.entries[len(t.entries)-1], true
}

func (t *Template) Clone() *Template {
	return &Template{format: t.format, entries: t.Entries()}
}

func (t *Template) String() string {
	var sb strings.Builder
	for i, e := range t.entries {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("[")
		sb.WriteString(e.Role)
		sb.WriteString("] ")
		sb.WriteString(e.Text)
	}
	return sb.String()
}

// Render formats every templated entry with vars and returns the messages in
// entry order. A Required variable absent from vars fails the whole render.
func (t *Template) Render(ctx context.Context, vars map[string]any) ([]*schema.Message, error) {
	ft, err := t.format.schemaFormat()
	if err != nil {
		return nil, &RenderError{Err: err}
	}
	if missing := t.missing(vars); len(missing) > 0 {
		return nil, &RenderError{Missing: missing}
	}

	tpls := make([]schema.MessagesTemplate, 0, len(t.entries))
	for _, e := range t.entries {
		msg := &schema.Message{Role: RoleType(e.Role), Content: e.Text}
		if e.Literal {
			tpls = append(tpls, literal{msg: msg})
			continue
		}
		tpls = append(tpls, msg)
	}

	if vars == nil {
		vars = map[string]any{}
	}
	msgs, err := eprompt.FromMessages(ft, tpls...).Format(ctx, vars)
	if err != nil {
		return nil, &RenderError{Err: err}
	}
	return msgs, nil
}

func (t *Template) missing(vars map[string]any) []string {
	var out []string
	for _, name := range t.Required() {
		if _, ok := vars[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}

// RoleType maps a role label onto the eino message role.
func RoleType(label string) schema.RoleType {
	switch strings.ToLower(label) {
	case RoleUser, RoleHuman:
		return schema.User
	case RoleAI, RoleAssistant:
		return schema.Assistant
	case RoleSystem:
		return schema.System
	}
	return schema.RoleType(label)
}

// literal satisfies schema.MessagesTemplate without formatting its content.
type literal struct {
	msg *schema.Message
}

func (l literal) Format(_ context.Context, _ map[string]any, _ schema.FormatType) ([]*schema.Message, error) {
	return []*schema.Message{l.msg}, nil
}
