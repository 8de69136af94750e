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
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// RunState records one Sequential.Execute call. It is observation only.
type RunState struct {
	RunID      string       `json:"run_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	History    []StepRecord `json:"history"`
	Error      string       `json:"error,omitempty"`
}

// StepRecord is an immutable log entry for one step execution.
type StepRecord struct {
	Index      int           `json:"index"`
	StepName   string        `json:"step_name"`
	Status     StepStatus    `json:"status"`
	Injected   bool          `json:"injected"`              // prior output was appended to the step's prompt
	OutputHash string        `json:"output_hash,omitempty"` // hex-encoded sha256 of the output
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
	Time       time.Time     `json:"time"`
}

// StepStatus is the outcome of a step run.
type StepStatus string

const (
	StepOK        StepStatus = "ok"
	StepFailed    StepStatus = "failed"
	StepCancelled StepStatus = "cancelled"
)

func newRunState() *RunState {
	return &RunState{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
}

func (r *RunState) finish(err error) {
	r.FinishedAt = time.Now()
	if err != nil {
		r.Error = err.Error()
	}
}

// Failed returns the record of the step that stopped the run.
func (r *RunState) Failed() (StepRecord, bool) {
	for _, rec := range r.History {
		if rec.Status != StepOK {
			return rec, true
		}
	}
	return StepRecord{}, false
}

func (r *RunState) clone() *RunState {
	cp := *r
	cp.History = append([]StepRecord(nil), r.History...)
	return &cp
}

func hashOutput(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}
