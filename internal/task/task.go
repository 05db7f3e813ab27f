package task

import (
	"encoding/json"
	"fmt"
)

// Init describes how a task should be processed: which files to read from
// and write to. Mirrors the `init` object original_source/manage.py writes
// when it creates a task (`{'input_file': ..., 'output_file': ...}`).
// Immutable once the task is created — no Handle operation ever rewrites it.
type Init struct {
	InputFile  string `json:"input_file"`
	OutputFile string `json:"output_file"`
}

// Progress is the task's processing progress, matching spec §3's
// `{count, total, rate?, avg_rate?}`. Rate and AvgRate are only populated
// once at least one chunk (full or a shorter final one) has been processed.
type Progress struct {
	Count   int64    `json:"count"`
	Total   int64    `json:"total"`
	Rate    *float64 `json:"rate,omitempty"`
	AvgRate *float64 `json:"avg_rate,omitempty"`
}

// State is the full JSON document stored at a task's key. Field names and
// casing match original_source/etcd_task.py's schemaless dict exactly, so
// a controller or worker written in either language can interoperate
// against the same etcd cluster.
//
// Unknown top-level fields are preserved across marshal/unmarshal round
// trips via extra, so a future protocol revision that adds a field this
// build doesn't know about survives being read and rewritten by this code
// instead of being silently dropped.
type State struct {
	Status   Status    `json:"status"`
	Init     *Init     `json:"init,omitempty"`
	Progress *Progress `json:"progress,omitempty"`
	Result   *int64    `json:"result,omitempty"`
	Error    string    `json:"error,omitempty"`

	extra map[string]json.RawMessage
}

var knownStateFields = map[string]bool{
	"status": true, "init": true, "progress": true, "result": true, "error": true,
}

// NewPendingState builds the initial document for a freshly created task.
func NewPendingState(init Init) *State {
	return &State{Status: StatusPending, Init: &init}
}

// MarshalJSON merges the known fields with whatever unrecognized fields
// were captured on a previous UnmarshalJSON, so round-tripping a document
// written by a newer protocol revision doesn't lose data.
func (s *State) MarshalJSON() ([]byte, error) {
	merged := make(map[string]json.RawMessage, len(s.extra)+5)
	for k, v := range s.extra {
		merged[k] = v
	}

	statusJSON, err := json.Marshal(s.Status)
	if err != nil {
		return nil, err
	}
	merged["status"] = statusJSON

	if s.Init != nil {
		initJSON, err := json.Marshal(s.Init)
		if err != nil {
			return nil, err
		}
		merged["init"] = initJSON
	} else {
		delete(merged, "init")
	}

	if s.Progress != nil {
		progressJSON, err := json.Marshal(s.Progress)
		if err != nil {
			return nil, err
		}
		merged["progress"] = progressJSON
	} else {
		delete(merged, "progress")
	}

	if s.Result != nil {
		resultJSON, err := json.Marshal(*s.Result)
		if err != nil {
			return nil, err
		}
		merged["result"] = resultJSON
	} else {
		delete(merged, "result")
	}

	if s.Error != "" {
		errJSON, err := json.Marshal(s.Error)
		if err != nil {
			return nil, err
		}
		merged["error"] = errJSON
	} else {
		delete(merged, "error")
	}

	return json.Marshal(merged)
}

// UnmarshalJSON decodes the known fields and stashes everything else in
// extra so it survives a future MarshalJSON call untouched.
func (s *State) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("task: decode state: %w", err)
	}

	if v, ok := raw["status"]; ok {
		if err := json.Unmarshal(v, &s.Status); err != nil {
			return fmt.Errorf("task: decode status: %w", err)
		}
	}
	if v, ok := raw["init"]; ok {
		var init Init
		if err := json.Unmarshal(v, &init); err != nil {
			return fmt.Errorf("task: decode init: %w", err)
		}
		s.Init = &init
	}
	if v, ok := raw["progress"]; ok && len(v) > 0 {
		var p Progress
		if err := json.Unmarshal(v, &p); err != nil {
			return fmt.Errorf("task: decode progress: %w", err)
		}
		s.Progress = &p
	}
	if v, ok := raw["result"]; ok && len(v) > 0 {
		var r int64
		if err := json.Unmarshal(v, &r); err != nil {
			return fmt.Errorf("task: decode result: %w", err)
		}
		s.Result = &r
	}
	if v, ok := raw["error"]; ok {
		if err := json.Unmarshal(v, &s.Error); err != nil {
			return fmt.Errorf("task: decode error: %w", err)
		}
	}

	s.extra = make(map[string]json.RawMessage)
	for k, v := range raw {
		if !knownStateFields[k] {
			s.extra[k] = v
		}
	}

	return nil
}

// SetProgress overwrites the task's progress, verbatim (no merge), matching
// Task.set_progress() in original_source/etcd_task.py.
func (s *State) SetProgress(p Progress) {
	s.Progress = &p
}

// SetResult stores the final processed-item count on successful completion.
func (s *State) SetResult(count int64) {
	s.Result = &count
}
