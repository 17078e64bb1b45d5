package ingest

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gallerybot/gallery-api/internal/domain/gallery"
	"github.com/gallerybot/gallery-api/internal/pkg/apperror"
	"github.com/gallerybot/gallery-api/internal/pkg/objectkey"
	"github.com/gallerybot/gallery-api/internal/pkg/objectstore"
)

var allowedImageExt = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true,
	".gif": true, ".avif": true, ".heic": true,
}

// GradientEnqueuer is the write-side contract Service uses to schedule
// gradient extraction after a successful single-image or ZIP-entry
// upload, implemented by the gradient domain package.
type GradientEnqueuer interface {
	Enqueue(ctx context.Context, guildID, galleryName, storageKey, itemID string) (string, error)
}

// Config bounds the async ZIP pipeline.
type Config struct {
	MaxZIPEntries           int
	MaxZIPUncompressedBytes int64
	MaxProcessingDuration   time.Duration
	ProgressUpdateInterval  int
	JobTTL                  time.Duration
	JobTerminalTTL          time.Duration
}

// Service implements the uploadToGallery decision tree and owns the async
// ZIP pipeline's lifecycle (job creation, background dispatch).
type Service struct {
	repo      *Repository
	objects   objectstore.Store
	galleries *gallery.Service
	gradients GradientEnqueuer
	cfg       Config
}

// NewService builds a Service.
func NewService(repo *Repository, objects objectstore.Store, galleries *gallery.Service, gradients GradientEnqueuer, cfg Config) *Service {
	return &Service{repo: repo, objects: objects, galleries: galleries, gradients: gradients, cfg: cfg}
}

// UploadToGallery is the upload decision tree entry point: a single image
// is ingested synchronously; a ZIP archive spawns an async job and returns
// immediately; anything else is rejected.
func (s *Service) UploadToGallery(ctx context.Context, guildID, galleryName, objectPath, filename string, data []byte) (interface{}, error) {
	if len(data) == 0 {
		return nil, errInvalidInput("file is empty")
	}

	mtype := mimetype.Detect(data)
	ext := strings.ToLower(filepath.Ext(filename))

	switch {
	case strings.HasPrefix(mtype.String(), "image/") || allowedImageExt[ext]:
		return s.uploadSingleImage(ctx, guildID, galleryName, objectPath, filename, data, mtype.String())

	case isZIP(data) || ext == ".zip" || mtype.String() == "application/zip":
		return s.createZIPJob(ctx, guildID, galleryName, objectPath, filename, data)

	default:
		return nil, ErrUnsupportedMimeType
	}
}

func isZIP(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	sig := data[:4]
	return bytes.Equal(sig, []byte{'P', 'K', 0x03, 0x04}) ||
		bytes.Equal(sig, []byte{'P', 'K', 0x05, 0x06}) ||
		bytes.Equal(sig, []byte{'P', 'K', 0x07, 0x08})
}

func (s *Service) uploadSingleImage(ctx context.Context, guildID, galleryName, objectPath, filename string, data []byte, contentType string) (*SingleImageResult, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	objectName := fmt.Sprintf("%s/%d-%s%s", strings.TrimSuffix(objectPath, "/"), time.Now().UnixMilli(), sanitizedBase(filename), ext)
	objectName = objectkey.SanitizeFilename(objectName)

	if err := s.objects.PutBuffer(ctx, objectName, data, contentType, nil); err != nil {
		return nil, apperror.Wrap(apperror.Transient, "upload image to object store", err)
	}

	if err := s.galleries.IncrementItemCount(ctx, guildID, galleryName, 1); err != nil {
		log.Warn().Err(err).Msg("failed to increment gallery item count after single-image upload")
	}

	if s.gradients != nil {
		if _, err := s.gradients.Enqueue(ctx, guildID, galleryName, objectName, objectName); err != nil {
			log.Warn().Err(err).Str("storageKey", objectName).Msg("failed to enqueue gradient job")
		}
	}

	return &SingleImageResult{
		Type:     "sync",
		Uploaded: []UploadedFile{{Key: objectName, ContentType: contentType}},
	}, nil
}

func sanitizedBase(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	return objectkey.SanitizeFilename(base)
}

func (s *Service) createZIPJob(ctx context.Context, guildID, galleryName, objectPath, filename string, data []byte) (*AsyncResult, error) {
	jobID := "upload-" + uuid.New().String()
	job := &Job{
		JobID:       jobID,
		GuildID:     guildID,
		GalleryName: galleryName,
		Filename:    filename,
		FileSize:    int64(len(data)),
		Status:      StatusPending,
		CreatedAt:   time.Now().UnixMilli(),
		Progress:    NewProgress(0),
	}

	if err := s.repo.Create(ctx, job, s.cfg.JobTTL); err != nil {
		return nil, apperror.Wrap(apperror.Fatal, "persist upload job", err)
	}

	pipeline := &Pipeline{
		repo:      s.repo,
		objects:   s.objects,
		galleries: s.galleries,
		gradients: s.gradients,
		cfg:       s.cfg,
	}
	go pipeline.Run(context.Background(), job.JobID, guildID, galleryName, objectPath, data)

	return &AsyncResult{Type: "async", JobID: jobID}, nil
}

// GetJob fetches a job's current state for polling clients.
func (s *Service) GetJob(ctx context.Context, jobID string) (*Job, error) {
	job, err := s.repo.Get(ctx, jobID)
	if err != nil {
		return nil, errNotFound(fmt.Sprintf("upload job %q not found", jobID))
	}
	return job, nil
}
