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

package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cloudwego/promptchain/llm/log"
	"github.com/cloudwego/promptchain/llm/prompt"
)

var _ Executor = (*Sequential)(nil)

// Sequential runs its steps in link order, appending each step's output to
// the next step's prompt as a user message before that step runs.
//
// Execute mutates the prompts of the linked steps, so calls on one Sequential
// are serialised. Build a fresh chain when prompts must start clean.
type Sequential struct {
	exec sync.Mutex // held for the duration of Execute

	mu    sync.Mutex
	steps []Step
	last  *RunState
}

func NewSequential() *Sequential {
	return &Sequential{}
}

// Link appends step and returns s so links can be chained.
func (s *Sequential) Link(step Step) *Sequential {
	s.mu.Lock()
	s.steps = append(s.steps, step)
	s.mu.Unlock()
	return s
}

func (s *Sequential) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps)
}

// Steps returns the linked steps in execution order.
func (s *Sequential) Steps() []Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Step, len(s.steps))
	copy(out, s.steps)
	return out
}

// LastRun returns the history of the most recent Execute, or nil.
func (s *Sequential) LastRun() *RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	return s.last.clone()
}

// Execute runs every step with the same input and returns the last step's
// output. The first failing step stops the chain and its error is returned
// unchanged; no later step runs. An empty chain returns "".
func (s *Sequential) Execute(ctx context.Context, input any) (string, error) {
	s.exec.Lock()
	defer s.exec.Unlock()

	run := newRunState()
	defer func() {
		s.mu.Lock()
		s.last = run
		s.mu.Unlock()
	}()

	var response string
	for i, step := range s.Steps() {
		if step == nil {
			err := fmt.Errorf("chain: step %d is nil", i)
			run.History = append(run.History, StepRecord{Index: i, Status: StepFailed, Error: err.Error(), Time: time.Now()})
			run.finish(err)
			return "", err
		}
		name := stepName(i, step)

		if err := ctx.Err(); err != nil {
			run.History = append(run.History, StepRecord{Index: i, StepName: name, Status: StepCancelled, Error: err.Error(), Time: time.Now()})
			run.finish(err)
			return "", err
		}

		injected := false
		if response != "" {
			if p := step.Prompt(); p != nil {
				p.AddLiteral(prompt.RoleUser, response)
				injected = true
			}
		} else if i > 0 {
			log.Warn("chain: step %d (%s) follows an empty output, no context injected", i, name)
		}

		start := time.Now()
		out, err := step.Execute(ctx, input)
		rec := StepRecord{
			Index:    i,
			StepName: name,
			Injected: injected,
			Duration: time.Since(start),
			Time:     start,
		}
		if err != nil {
			rec.Status = StepFailed
			rec.Error = err.Error()
			run.History = append(run.History, rec)
			run.finish(err)
			log.Error("chain: step %d (%s) failed: %v", i, name, err)
			return "", err
		}

		rec.Status = StepOK
		rec.OutputHash = hashOutput(out)
		run.History = append(run.History, rec)
		log.Debug("chain: step %d (%s) done in %s", i, name, rec.Duration)
		response = out
	}

	run.finish(nil)
	return response, nil
}
