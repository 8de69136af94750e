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

package utils

import (
	"path/filepath"

	"github.com/cloudwego/promptchain/llm/log"
	"github.com/fsnotify/fsnotify"
)

// WatchDir calls cb for every change of a file directly under dir until the
// returned stop function is called.
func WatchDir(dir string, cb func(op fsnotify.Op, file string)) (stop func() error, err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				cb(ev.Op, filepath.Clean(ev.Name))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Error("watch %s: %v", dir, err)
			}
		}
	}()
	return watcher.Close, nil
}
