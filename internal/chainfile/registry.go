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
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cloudwego/promptchain/internal/utils"
	"github.com/cloudwego/promptchain/llm/log"
	"github.com/fsnotify/fsnotify"
)

// Registry holds the chain definitions found directly under a directory.
type Registry struct {
	dir  string
	mu   sync.RWMutex
	defs map[string]*Definition
	stop func() error
}

func NewRegistry(dir string) *Registry {
	return &Registry{dir: dir, defs: map[string]*Definition{}}
}

func (r *Registry) Dir() string {
	return r.dir
}

func isChainFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Load replaces the registry content with the chains currently on disk.
// Invalid files and duplicate names are logged and skipped. A missing
// directory yields an empty registry.
func (r *Registry) Load() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read chains dir %s: %w", r.dir, err)
	}

	defs := make(map[string]*Definition, len(entries))
	for _, e := range entries {
		if e.IsDir() || !isChainFile(e.Name()) {
			continue
		}
		path := filepath.Join(r.dir, e.Name())
		def, err := ParseFile(path)
		if err != nil {
			log.Error("Failed to load chain %s: %v", path, err)
			continue
		}
		if prev, ok := defs[def.Name]; ok {
			log.Error("Chain %s in %s duplicates %s, skipped", def.Name, path, prev.Path)
			continue
		}
		defs[def.Name] = def
	}

	r.mu.Lock()
	r.defs = defs
	r.mu.Unlock()
	log.Info("Loaded %d chains from %s", len(defs), r.dir)
	return nil
}

func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[name]
	return d, ok
}

// List returns the definitions sorted by name.
func (r *Registry) List() []*Definition {
	r.mu.RLock()
	out := make([]*Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Watch reloads the registry whenever a chain file under the directory
// changes, then calls onChange if it is not nil.
func (r *Registry) Watch(onChange func()) error {
	stop, err := utils.WatchDir(r.dir, func(op fsnotify.Op, file string) {
		if !isChainFile(file) {
			return
		}
		if op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
			return
		}
		log.Debug("chain file %s changed (%s), reloading", file, op)
		if err := r.Load(); err != nil {
			log.Error("reload chains: %v", err)
			return
		}
		if onChange != nil {
			onChange()
		}
	})
	if err != nil {
		return utils.WrapError(err, "watch %s", r.dir)
	}
	r.mu.Lock()
	r.stop = stop
	r.mu.Unlock()
	return nil
}

// Close stops watching.
func (r *Registry) Close() error {
	r.mu.Lock()
	stop := r.stop
	r.stop = nil
	r.mu.Unlock()
	if stop == nil {
		return nil
	}
	return stop()
}
