// Package chunkedupload implements the process-local resumable upload
// session manager (component D): per-session scratch directory, sequential
// chunk persistence, finalize-by-concatenation, and an explicit progress
// state machine. State lives in process memory only — it does not survive
// a restart; a single process owns the in-flight request.
package chunkedupload

import "time"

// Status is the upload session's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Phase describes which leg of the pipeline is currently active.
type Phase string

const (
	PhaseClientUpload  Phase = "client-upload"
	PhaseServerAssemble Phase = "server-assemble"
	PhaseServerZipExtract Phase = "server-zip-extract"
	PhaseServerUpload  Phase = "server-upload"
)

// Progress is the mutable state a poller observes for one session.
type Progress struct {
	Status        Status  `json:"status"`
	Phase         Phase   `json:"phase"`
	UploadedBytes int64   `json:"uploadedBytes"`
	TotalBytes    int64   `json:"totalBytes"`
	ProcessedFiles *int   `json:"processedFiles"`
	TotalFiles     *int   `json:"totalFiles"`
	Error         *string `json:"error"`
}

// Session is one resumable upload's full state.
type Session struct {
	UploadID    string
	FileName    string
	FileType    string
	TotalSize   int64
	GalleryName string
	GuildID     string
	TempDir     string
	CreatedAt   time.Time
	Progress    Progress

	chunksReceived map[int]bool
}
