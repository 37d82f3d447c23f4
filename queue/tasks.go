package queue

import "encoding/json"

const TypeToolProcess = "tool:process"

// ProcessPayload is the task body handed to the processing workers. Data is
// the tool-specific options blob, passed through untouched.
type ProcessPayload struct {
	JobID     string          `json:"job_id"`
	ToolID    string          `json:"tool_id"`
	InputPath string          `json:"input_path"`
	FileName  string          `json:"file_name"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func (p ProcessPayload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

func UnmarshalProcessPayload(b []byte) (ProcessPayload, error) {
	var p ProcessPayload
	err := json.Unmarshal(b, &p)
	return p, err
}
