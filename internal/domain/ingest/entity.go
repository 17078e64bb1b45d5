// Package ingest implements the ZIP ingestion pipeline (component E): the
// uploadToGallery decision tree, the persisted upload-job record, and the
// async streamed ZIP extraction with bounded entries/bytes/duration.
package ingest

// Status is an upload job's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// UploadedFile is one successfully ingested ZIP entry.
type UploadedFile struct {
	Key         string `json:"key"`
	ContentType string `json:"contentType"`
}

// FailedFile is one ZIP entry that could not be ingested.
type FailedFile struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// Progress is the job's materializing ingestion state. UploadedFiles and
// FailedFiles are always present (never nil) even when empty, per the
// adopted Open Question decision standardizing on empty arrays over field
// omission.
type Progress struct {
	ProcessedFiles int            `json:"processedFiles"`
	TotalFiles     int            `json:"totalFiles"`
	UploadedFiles  []UploadedFile `json:"uploadedFiles"`
	FailedFiles    []FailedFile   `json:"failedFiles"`
}

// NewProgress returns a zero-value Progress with the array fields
// initialized to empty (not nil) slices.
func NewProgress(totalFiles int) Progress {
	return Progress{
		TotalFiles:    totalFiles,
		UploadedFiles: []UploadedFile{},
		FailedFiles:   []FailedFile{},
	}
}

// Job is the persisted record for one asynchronous ZIP ingestion.
type Job struct {
	JobID       string   `json:"jobId"`
	GuildID     string   `json:"guildId"`
	GalleryName string   `json:"galleryName"`
	Filename    string   `json:"filename"`
	FileSize    int64    `json:"fileSize"`
	Status      Status   `json:"status"`
	CreatedAt   int64    `json:"createdAt"`
	StartedAt   *int64   `json:"startedAt,omitempty"`
	CompletedAt *int64   `json:"completedAt,omitempty"`
	Error       *string  `json:"error,omitempty"`
	Progress    Progress `json:"progress"`
}

// SingleImageResult is returned from the synchronous single-image ingest
// path.
type SingleImageResult struct {
	Type     string         `json:"type"` // always "sync"
	Uploaded []UploadedFile `json:"uploaded"`
}

// AsyncResult is returned from the ZIP decision-tree branch.
type AsyncResult struct {
	Type  string `json:"type"` // always "async"
	JobID string `json:"jobId"`
}
