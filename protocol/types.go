package protocol

// Wire types shared by the backend endpoint and the agent. The agent never
// imports backend code; both sides speak through this package only.

type DBInitResponse struct {
	JobID          string `json:"job_id"`
	TotalTables    int    `json:"total_tables"`
	EstimatedRows  int64  `json:"estimated_rows"`
	EstimatedBytes int64  `json:"estimated_bytes"`
	ChunkSize      int    `json:"chunk_size"`
	ArtifactName   string `json:"artifact_name"`
	BytesWritten   int64  `json:"bytes_written"`
}

type DBProcessRequest struct {
	JobID        string `json:"job_id"`
	TimeBudgetMs int    `json:"time_budget_ms,omitempty"`
}

type DBProcessResponse struct {
	JobID           string `json:"job_id"`
	BytesWritten    int64  `json:"bytes_written"`
	RowsEmitted     int    `json:"rows_emitted"`
	CompletedTables int    `json:"completed_tables"`
	TotalTables     int    `json:"total_tables"`
	ChunkSize       int    `json:"chunk_size"`
	Done            bool   `json:"done"`
}

type JobRequest struct {
	JobID string `json:"job_id"`
}

type ManifestInitResponse struct {
	JobID      string `json:"job_id"`
	TotalFiles int    `json:"total_files"`
	TotalBytes int64  `json:"total_bytes"`
}

// FileEntry is one file in the site manifest. Path is slash-separated and
// relative to the site root.
type FileEntry struct {
	Path  string `json:"path"`
	Size  int64  `json:"size"`
	MTime int64  `json:"mtime"`
}

type ManifestPageResponse struct {
	JobID      string      `json:"job_id"`
	Files      []FileEntry `json:"files"`
	TotalFiles int         `json:"total_files"`
	TotalBytes int64       `json:"total_bytes"`
}

type BatchRequest struct {
	Paths []string `json:"paths"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// AccessKeyHeader carries the shared secret on every request. The key may
// also be passed as the "key" query parameter for stream endpoints.
const AccessKeyHeader = "X-Access-Key"
