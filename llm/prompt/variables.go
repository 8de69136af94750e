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
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
)

// RenderError reports a prompt that could not be rendered against its input.
type RenderError struct {
	Missing []string // referenced variables absent from the input
	Err     error
}

func (e *RenderError) Error() string {
	if len(e.Missing) > 0 {
		return "render prompt: missing variables: " + strings.Join(e.Missing, ", ")
	}
	if e.Err == nil {
		return "render prompt: unknown error"
	}
	return "render prompt: " + e.Err.Error()
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

var (
	jinjaExpr  = regexp.MustCompile(`\{\{-?\s*([A-Za-z_][A-Za-z0-9_]*)`)
	jinjaFor   = regexp.MustCompile(`\{%-?\s*for\s+([A-Za-z_][A-Za-z0-9_,\s]*?)\s+in\s`)
	jinjaSet   = regexp.MustCompile(`\{%-?\s*set\s+([A-Za-z_][A-Za-z0-9_]*)`)
	jinjaStmt  = regexp.MustCompile(`\{%-?\s*(?:for\s+[A-Za-z0-9_,\s]+?\s+in|if|elif)\s+(?:not\s+)?([A-Za-z_][A-Za-z0-9_]*)`)
	fstringVar = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)`)
	goTplVar   = regexp.MustCompile(`\{\{-?\s*(?:(?:if|with|range)\s+)?\.([A-Za-z_][A-Za-z0-9_]*)`)

	// names gonja renders without complaint when absent
	jinjaDefault = regexp.MustCompile(`\{\{-?\s*([A-Za-z_][A-Za-z0-9_]*)(?:\s*\|\s*[A-Za-z_][A-Za-z0-9_]*(?:\([^)]*\))?)*?\s*\|\s*(?:default|d)\b`)
	jinjaDefined = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\s+is\s+(?:not\s+)?defined\b`)
)

var jinjaBuiltins = map[string]bool{
	"true": true, "false": true, "none": true,
	"True": true, "False": true, "None": true,
	"loop": true, "range": true,
}

// Variables lists the top-level input names referenced by templated entries,
// sorted and de-duplicated. Literal entries are ignored.
func (t *Template) Variables() []string {
	return t.scan(false)
}

// Required is Variables without the jinja2 names guarded by a default
// filter or an "is defined" test; Render fails when one of these is absent.
func (t *Template) Required() []string {
	return t.scan(true)
}

func (t *Template) scan(requiredOnly bool) []string {
	seen := map[string]bool{}
	optional := map[string]bool{}
	for _, e := range t.entries {
		if e.Literal {
			continue
		}
		for _, name := range referenced(t.format, e.Text) {
			seen[name] = true
		}
		if requiredOnly {
			for _, name := range guarded(t.format, e.Text) {
				optional[name] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		if !optional[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func guarded(f FormatType, text string) []string {
	if f != FormatJinja2 && f != "" {
		return nil
	}
	var names []string
	for _, re := range []*regexp.Regexp{jinjaDefault, jinjaDefined} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			names = append(names, m[1])
		}
	}
	return names
}

func referenced(f FormatType, text string) []string {
	var names []string
	switch f {
	case FormatFString:
		text = strings.NewReplacer("{{", "", "}}", "").Replace(text)
		for _, m := range fstringVar.FindAllStringSubmatch(text, -1) {
			names = append(names, m[1])
		}
	case FormatGoTemplate:
		for _, m := range goTplVar.FindAllStringSubmatch(text, -1) {
			names = append(names, m[1])
		}
	default:
		bound := map[string]bool{}
		for _, m := range jinjaFor.FindAllStringSubmatch(text, -1) {
			for _, v := range strings.Split(m[1], ",") {
				bound[strings.TrimSpace(v)] = true
			}
		}
		for _, m := range jinjaSet.FindAllStringSubmatch(text, -1) {
			bound[m[1]] = true
		}
		for _, re := range []*regexp.Regexp{jinjaExpr, jinjaStmt} {
			for _, m := range re.FindAllStringSubmatch(text, -1) {
				if bound[m[1]] || jinjaBuiltins[m[1]] {
					continue
				}
				names = append(names, m[1])
			}
		}
	}
	return names
}

// Vars converts a step input into template variables. Maps keyed by string
// are used directly; anything else must encode to a JSON object.
func Vars(input any) (map[string]any, error) {
	switch v := input.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	case map[string]string:
		out := make(map[string]any, len(v))
		for k, s := range v {
			out[k] = s
		}
		return out, nil
	}

	bs, err := sonic.Marshal(input)
	if err != nil {
		return nil, &RenderError{Err: fmt.Errorf("encode input: %w", err)}
	}
	var out map[string]any
	if err := sonic.Unmarshal(bs, &out); err != nil || out == nil {
		return nil, &RenderError{Err: fmt.Errorf("input %T is not a record of named fields", input)}
	}
	return out, nil
}
