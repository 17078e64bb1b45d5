package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"

	"github.com/gallerybot/gallery-api/internal/domain/gallery"
	"github.com/gallerybot/gallery-api/internal/pkg/objectkey"
	"github.com/gallerybot/gallery-api/internal/pkg/objectstore"
)

// Pipeline runs one ZIP archive's async extraction and upload, writing
// progress back through repo as it goes, under bounded entry count,
// uncompressed size, and wall-clock duration limits.
type Pipeline struct {
	repo      *Repository
	objects   objectstore.Store
	galleries *gallery.Service
	gradients GradientEnqueuer
	cfg       Config
}

// Run extracts and uploads archive (held in memory, already assembled by
// chunkedupload.Manager.Finalize and read by the caller) under objectPath,
// tracking progress on the job identified by jobID.
func (p *Pipeline) Run(ctx context.Context, jobID, guildID, galleryName, objectPath string, archive []byte) {
	job, err := p.repo.Get(ctx, jobID)
	if err != nil {
		log.Error().Err(err).Str("jobId", jobID).Msg("zip pipeline: job vanished before start")
		return
	}

	startedAt := time.Now().UnixMilli()
	job.StartedAt = &startedAt
	job.Status = StatusProcessing
	if err := p.repo.Update(ctx, job, p.cfg.JobTTL); err != nil {
		log.Warn().Err(err).Str("jobId", jobID).Msg("zip pipeline: failed to mark job processing")
	}

	deadline := time.Now().Add(p.cfg.MaxProcessingDuration)

	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		p.fail(ctx, job, "archive is not a valid zip file")
		return
	}

	entries := make([]*zip.File, 0, len(reader.File))
	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if !allowedImageExt[strings.ToLower(filepath.Ext(f.Name))] {
			continue
		}
		entries = append(entries, f)
	}

	if len(entries) == 0 {
		p.fail(ctx, job, "ZIP contained no supported image files")
		return
	}
	if len(entries) > p.cfg.MaxZIPEntries {
		p.fail(ctx, job, fmt.Sprintf("ZIP limits exceeded: %d entries exceeds the limit of %d", len(entries), p.cfg.MaxZIPEntries))
		return
	}

	var totalUncompressed int64
	for _, f := range entries {
		totalUncompressed += int64(f.UncompressedSize64)
	}
	if totalUncompressed > p.cfg.MaxZIPUncompressedBytes {
		p.fail(ctx, job, fmt.Sprintf("ZIP limits exceeded: uncompressed size %d exceeds the limit of %d bytes", totalUncompressed, p.cfg.MaxZIPUncompressedBytes))
		return
	}

	timestamp := time.Now().UnixMilli()
	var uploaded []UploadedFile
	var failed []FailedFile
	processed := 0

	for i, f := range entries {
		if time.Now().After(deadline) {
			p.fail(ctx, job, "ZIP processing timed out")
			return
		}

		uf, err := p.processEntry(ctx, f, guildID, galleryName, objectPath, timestamp, i)
		if err != nil {
			failed = append(failed, FailedFile{Filename: f.Name, Error: err.Error()})
		} else {
			uploaded = append(uploaded, *uf)
		}
		processed++

		if processed%p.cfg.ProgressUpdateInterval == 0 {
			job.Progress = Progress{
				ProcessedFiles: processed,
				TotalFiles:     len(entries),
				UploadedFiles:  []UploadedFile{},
				FailedFiles:    []FailedFile{},
			}
			if err := p.repo.Update(ctx, job, p.cfg.JobTTL); err != nil {
				log.Warn().Err(err).Str("jobId", jobID).Msg("zip pipeline: failed to write progress update")
			}
		}
	}

	if len(uploaded) == 0 {
		p.fail(ctx, job, "ZIP contained no supported image files")
		return
	}

	job.Progress = Progress{
		ProcessedFiles: processed,
		TotalFiles:     len(entries),
		UploadedFiles:  nonNil(uploaded),
		FailedFiles:    nonNilFailed(failed),
	}
	completedAt := time.Now().UnixMilli()
	job.CompletedAt = &completedAt
	job.Status = StatusCompleted
	if err := p.repo.Update(ctx, job, p.cfg.JobTerminalTTL); err != nil {
		log.Warn().Err(err).Str("jobId", jobID).Msg("zip pipeline: failed to mark job completed")
	}
}

func nonNil(u []UploadedFile) []UploadedFile {
	if u == nil {
		return []UploadedFile{}
	}
	return u
}

func nonNilFailed(f []FailedFile) []FailedFile {
	if f == nil {
		return []FailedFile{}
	}
	return f
}

// sniffLen is how many header bytes processEntry buffers to identify an
// entry's content type before streaming the rest straight to the object
// store, matching mimetype's own recommended detection window.
const sniffLen = 3072

func (p *Pipeline) processEntry(ctx context.Context, f *zip.File, guildID, galleryName, objectPath string, timestamp int64, sequence int) (*UploadedFile, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open entry: %w", err)
	}
	defer rc.Close()

	header := make([]byte, sniffLen)
	n, err := io.ReadFull(rc, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("read entry header: %w", err)
	}
	header = header[:n]

	contentType := mimetype.Detect(header).String()
	objectName := objectkey.SanitizeFilename(fmt.Sprintf("%s/%d-%d-%s", strings.TrimSuffix(objectPath, "/"), timestamp, sequence, filepath.Base(f.Name)))

	body := io.MultiReader(bytes.NewReader(header), rc)
	if err := p.objects.PutStream(ctx, objectName, body, int64(f.UncompressedSize64), contentType, nil); err != nil {
		return nil, fmt.Errorf("upload to object store: %w", err)
	}

	if err := p.galleries.IncrementItemCount(ctx, guildID, galleryName, 1); err != nil {
		log.Warn().Err(err).Str("storageKey", objectName).Msg("zip pipeline: failed to increment gallery item count")
	}

	if p.gradients != nil {
		if _, err := p.gradients.Enqueue(ctx, guildID, galleryName, objectName, objectName); err != nil {
			log.Warn().Err(err).Str("storageKey", objectName).Msg("zip pipeline: failed to enqueue gradient job")
		}
	}

	return &UploadedFile{Key: objectName, ContentType: contentType}, nil
}

func (p *Pipeline) fail(ctx context.Context, job *Job, reason string) {
	completedAt := time.Now().UnixMilli()
	job.CompletedAt = &completedAt
	job.Status = StatusFailed
	job.Error = &reason
	if err := p.repo.Update(ctx, job, p.cfg.JobTerminalTTL); err != nil {
		log.Warn().Err(err).Str("jobId", job.JobID).Msg("zip pipeline: failed to mark job failed")
	}
}
