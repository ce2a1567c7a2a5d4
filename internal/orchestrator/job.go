package orchestrator

import "encoding/json"

// GradingJob is the queue payload for one submission. FileRef and KeyRef
// accept s3://, http(s)://, file:// or plain filesystem paths.
type GradingJob struct {
	JobID          string  `json:"job_id"`
	FileRef        string  `json:"file_ref"`
	KeyRef         string  `json:"key_ref,omitempty"`
	StudentName    string  `json:"student_name,omitempty"`
	Engine         string  `json:"ai_engine,omitempty"`
	MaxScore       float64 `json:"max_score,omitempty"`
	Source         string  `json:"source"`
	IdempotencyKey string  `json:"idempotency_key"`
	Attempt        int     `json:"attempt"`
}

func (j GradingJob) Marshal() []byte {
	b, _ := json.Marshal(j)
	return b
}

func ParseJob(data []byte) (GradingJob, error) {
	var j GradingJob
	if err := json.Unmarshal(data, &j); err != nil {
		return GradingJob{}, err
	}
	return j, nil
}
