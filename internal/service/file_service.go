package service

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/college-portal-api/internal/models"
	appErrors "github.com/noah-isme/college-portal-api/pkg/errors"
	"github.com/noah-isme/college-portal-api/pkg/jobs"
	"github.com/noah-isme/college-portal-api/pkg/storage"
)

// FileCleanupJobType tags jobs that delete a stored file.
const FileCleanupJobType = "file-cleanup"

var mimeExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"application/pdf": ".pdf",
}

type photoRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdatePhoto(ctx context.Context, id string, photoRef *string, updatedAt time.Time) error
}

type fileStore interface {
	Save(ref string, r io.Reader, limit int64) (string, error)
	Open(ref string) (*os.File, error)
	Delete(ref string) error
}

type jobQueue interface {
	Enqueue(job jobs.Job) error
}

// FileConfig bounds uploads and shapes signed links.
type FileConfig struct {
	MaxBytes     int64
	AllowedMIMEs []string
	APIPrefix    string
}

// PhotoLink is a signed, expiring download link.
type PhotoLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// FileService stores student photos and removes replaced files in the background.
type FileService struct {
	repo    photoRepository
	store   fileStore
	signer  *storage.SignedURLSigner
	queue   jobQueue
	metrics *MetricsService
	cfg     FileConfig
	allowed map[string]bool
	logger  *zap.Logger
}

// NewFileService constructs the service. Attach the cleanup queue with UseCleanupQueue once it is built.
func NewFileService(repo photoRepository, store fileStore, signer *storage.SignedURLSigner, metrics *MetricsService, cfg FileConfig, logger *zap.Logger) *FileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 5 * 1024 * 1024
	}
	allowed := map[string]bool{}
	for _, mime := range cfg.AllowedMIMEs {
		allowed[strings.ToLower(strings.TrimSpace(mime))] = true
	}
	if len(allowed) == 0 {
		allowed["image/jpeg"] = true
		allowed["image/png"] = true
	}
	return &FileService{repo: repo, store: store, signer: signer, metrics: metrics, cfg: cfg, allowed: allowed, logger: logger}
}

// UseCleanupQueue sets the queue that receives file deletions.
func (s *FileService) UseCleanupQueue(queue jobQueue) {
	s.queue = queue
}

// UploadPhoto stores a new photo for the student and schedules removal of the previous one.
// The content type is sniffed from the body; the client-declared type is ignored.
func (s *FileService) UploadPhoto(ctx context.Context, studentID string, size int64, body io.Reader) (*models.User, error) {
	if size > s.cfg.MaxBytes {
		return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, "")
	}

	student, err := s.student(ctx, studentID)
	if err != nil {
		return nil, err
	}

	reader := bufio.NewReaderSize(body, 512)
	head, err := reader.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unreadable upload")
	}
	if len(head) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is empty")
	}
	mime := strings.SplitN(http.DetectContentType(head), ";", 2)[0]
	ext, known := mimeExtensions[mime]
	if !known || !s.allowed[mime] {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported file type "+mime)
	}

	ref := path.Join("photos", studentID, uuid.NewString()+ext)
	if _, err := s.store.Save(ref, reader, s.cfg.MaxBytes); err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store photo")
	}

	if err := s.repo.UpdatePhoto(ctx, studentID, &ref, time.Now().UTC()); err != nil {
		if delErr := s.store.Delete(ref); delErr != nil {
			s.logger.Warn("failed to remove orphaned photo", zap.String("ref", ref), zap.Error(delErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save photo reference")
	}

	if student.HasPhoto() {
		s.ScheduleCleanup(*student.PhotoRef)
	}
	student.PhotoRef = &ref
	return student, nil
}

// PhotoLink signs a download link for the student's current photo.
func (s *FileService) PhotoLink(ctx context.Context, studentID string) (*PhotoLink, error) {
	student, err := s.student(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if !student.HasPhoto() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student has no photo")
	}
	token, expiresAt, err := s.signer.Generate(student.ID, *student.PhotoRef)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign link")
	}
	return &PhotoLink{URL: strings.TrimRight(s.cfg.APIPrefix, "/") + "/files/" + token, ExpiresAt: expiresAt}, nil
}

// OpenSigned resolves a signed token to the file it grants. Links to replaced or deleted photos stop working.
func (s *FileService) OpenSigned(ctx context.Context, token string) (*os.File, string, error) {
	subject, ref, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, "", appErrors.Clone(appErrors.ErrForbidden, "link expired")
		}
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "invalid link")
	}

	owner, err := s.repo.FindByID(ctx, subject)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve file owner")
	}
	if models.StringValue(owner.PhotoRef) != ref {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "file not found")
	}

	file, err := s.store.Open(ref)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "file not found")
	}
	return file, contentTypeFor(ref), nil
}

// ScheduleCleanup queues deletion of a stored file. Failures to enqueue are logged and counted; the request never fails on them.
func (s *FileService) ScheduleCleanup(ref string) {
	if ref == "" {
		return
	}
	if s.queue == nil {
		s.logger.Warn("no cleanup queue configured, file left in place", zap.String("ref", ref))
		s.metrics.RecordFileCleanup(false)
		return
	}
	if err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: FileCleanupJobType, Payload: ref}); err != nil {
		s.logger.Warn("failed to enqueue file cleanup", zap.String("ref", ref), zap.Error(err))
		s.metrics.RecordFileCleanup(false)
	}
}

// HandleCleanup is the worker handler for file-cleanup jobs.
func (s *FileService) HandleCleanup(ctx context.Context, job jobs.Job) error {
	return s.store.Delete(job.Payload)
}

// ObserveCleanup records the final outcome of a cleanup job.
func (s *FileService) ObserveCleanup(job jobs.Job, err error) {
	if err != nil {
		s.logger.Error("file cleanup failed", zap.String("ref", job.Payload), zap.Error(err))
	}
	s.metrics.RecordFileCleanup(err == nil)
}

func (s *FileService) student(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if user.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return user, nil
}

func contentTypeFor(ref string) string {
	ext := strings.ToLower(path.Ext(ref))
	for mime, known := range mimeExtensions {
		if known == ext {
			return mime
		}
	}
	return "application/octet-stream"
}
