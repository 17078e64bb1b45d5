package chunkedupload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gallerybot/gallery-api/internal/pkg/apperror"
)

const MaxChunkSize = 10 * 1024 * 1024

// Manager owns every in-flight upload session for this process. Sessions
// are keyed by uploadId and never shared across processes — a restart
// loses in-flight uploads.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	baseDir  string
	maxAge   time.Duration
}

// NewManager creates a Manager rooted at baseDir for scratch directories.
func NewManager(baseDir string, maxAge time.Duration) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		baseDir:  baseDir,
		maxAge:   maxAge,
	}
}

// Init starts a new upload session and returns its id.
func (m *Manager) Init(fileName, fileType string, totalSize int64, galleryName, guildID string) (string, error) {
	if fileName == "" || galleryName == "" || guildID == "" {
		return "", errInvalidInput("fileName, galleryName and guildId are required")
	}
	if totalSize <= 0 {
		return "", errInvalidInput("totalSize must be > 0")
	}

	uploadID := uuid.New().String()
	tempDir := filepath.Join(m.baseDir, uploadID)
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return "", apperror.Wrap(apperror.Fatal, "create scratch directory", err)
	}

	totalFiles := 1
	session := &Session{
		UploadID:    uploadID,
		FileName:    fileName,
		FileType:    fileType,
		TotalSize:   totalSize,
		GalleryName: galleryName,
		GuildID:     guildID,
		TempDir:     tempDir,
		CreatedAt:   time.Now(),
		Progress: Progress{
			Status:         StatusPending,
			Phase:          PhaseClientUpload,
			TotalBytes:     totalSize,
			ProcessedFiles: nil,
			TotalFiles:     &totalFiles,
		},
		chunksReceived: make(map[int]bool),
	}

	m.mu.Lock()
	m.sessions[uploadID] = session
	m.mu.Unlock()

	return uploadID, nil
}

// Get returns the session for uploadID, or NotFound.
func (m *Manager) Get(uploadID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[uploadID]
	if !ok {
		return nil, errNotFound(fmt.Sprintf("upload session %q not found", uploadID))
	}
	return s, nil
}

// SaveChunk writes one chunk to the session's scratch directory. Chunks
// larger than MaxChunkSize are rejected with ResourceLimit (maps to HTTP
// 413 at the handler).
func (m *Manager) SaveChunk(uploadID string, index int, data []byte) error {
	if len(data) > MaxChunkSize {
		return errResourceLimit("chunk exceeds maximum size of 10MiB")
	}

	m.mu.Lock()
	session, ok := m.sessions[uploadID]
	if !ok {
		m.mu.Unlock()
		return errNotFound(fmt.Sprintf("upload session %q not found", uploadID))
	}
	if session.Progress.Status == StatusPending {
		session.Progress.Status = StatusUploading
		session.Progress.Phase = PhaseClientUpload
	}
	session.chunksReceived[index] = true
	session.Progress.UploadedBytes += int64(len(data))
	m.mu.Unlock()

	chunkPath := filepath.Join(session.TempDir, fmt.Sprintf("chunk-%d", index))
	if err := os.WriteFile(chunkPath, data, 0o644); err != nil {
		return apperror.Wrap(apperror.Fatal, "write chunk to disk", err)
	}
	return nil
}

// Finalize sequentially concatenates chunks 0..k-1 into a single file,
// streaming rather than buffering, then removes the scratch directory.
// It returns the absolute path of the assembled file.
func (m *Manager) Finalize(uploadID string) (string, error) {
	m.mu.Lock()
	session, ok := m.sessions[uploadID]
	if !ok {
		m.mu.Unlock()
		return "", errNotFound(fmt.Sprintf("upload session %q not found", uploadID))
	}
	session.Progress.Status = StatusProcessing
	session.Progress.Phase = PhaseServerAssemble
	chunkCount := len(session.chunksReceived)
	tempDir := session.TempDir
	fileName := session.FileName
	m.mu.Unlock()

	assembledPath := filepath.Join(filepath.Dir(tempDir), fmt.Sprintf("%s-%s", uploadID, fileName))
	out, err := os.Create(assembledPath)
	if err != nil {
		return "", apperror.Wrap(apperror.Fatal, "create assembled file", err)
	}
	defer out.Close()

	for i := 0; i < chunkCount; i++ {
		chunkPath := filepath.Join(tempDir, fmt.Sprintf("chunk-%d", i))
		if err := appendChunk(out, chunkPath); err != nil {
			return "", apperror.Wrap(apperror.Fatal, fmt.Sprintf("append chunk %d", i), err)
		}
	}

	if err := os.RemoveAll(tempDir); err != nil {
		log.Warn().Err(err).Str("uploadId", uploadID).Msg("failed to remove scratch directory after finalize")
	}

	return assembledPath, nil
}

func appendChunk(dst *os.File, chunkPath string) error {
	src, err := os.Open(chunkPath)
	if err != nil {
		return err
	}
	defer src.Close()

	_, err = io.Copy(dst, src)
	return err
}

// UpdateProgress applies a bounded mutation to the session's progress
// record: status/phase transition plus an incremental byte delta.
func (m *Manager) UpdateProgress(uploadID string, status Status, phase Phase, deltaBytes int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[uploadID]
	if !ok {
		return errNotFound(fmt.Sprintf("upload session %q not found", uploadID))
	}
	session.Progress.Status = status
	session.Progress.Phase = phase
	session.Progress.UploadedBytes += deltaBytes
	return nil
}

// MarkCompleted sets a session's terminal success state.
func (m *Manager) MarkCompleted(uploadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[uploadID]
	if !ok {
		return errNotFound(fmt.Sprintf("upload session %q not found", uploadID))
	}
	session.Progress.Status = StatusCompleted
	return nil
}

// MarkFailed sets a session's terminal failure state with the given error.
func (m *Manager) MarkFailed(uploadID string, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[uploadID]
	if !ok {
		return errNotFound(fmt.Sprintf("upload session %q not found", uploadID))
	}
	msg := cause.Error()
	session.Progress.Status = StatusFailed
	session.Progress.Error = &msg
	return nil
}

// CleanupExpired removes sessions older than maxAge, deleting their
// scratch directories. Intended to run on a periodic ticker.
func (m *Manager) CleanupExpired() int {
	cutoff := time.Now().Add(-m.maxAge)

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.CreatedAt.Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		if err := os.RemoveAll(s.TempDir); err != nil {
			log.Warn().Err(err).Str("uploadId", s.UploadID).Msg("failed to remove expired scratch directory")
		}
	}
	return len(expired)
}
