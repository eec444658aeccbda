package entities

// ErrorResponse is the standard error envelope returned by the API
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SuccessResponse wraps successful API payloads
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

// WorkerStatus reports queue depth and schedule health for the admin
// worker-status endpoint
type WorkerStatus struct {
	Jobs       []JobStatus `json:"jobs"`
	QueueDepth int         `json:"queue_depth"`
}

// JobStatus describes one scheduled job
type JobStatus struct {
	JobID       string  `json:"job_id"`
	Schedule    string  `json:"schedule"`
	LastRunAt   *string `json:"last_run_at,omitempty"`
	LastOutcome string  `json:"last_outcome,omitempty"`
	NextRunAt   *string `json:"next_run_at,omitempty"`
	Running     bool    `json:"running"`
}
