package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nreshetnikov/image-recognition-service/internal/core/domain"
	"github.com/nreshetnikov/image-recognition-service/internal/core/ports"
)

// Magic byte sequences accepted by the recognition provider. Checking them
// before the provider call filters out non-images (including glued
// multi-format files whose JPEG body lacks the trailing marker) without
// spending a billable request.
var (
	jpegHeader = []byte{0xff, 0xd8, 0xff}
	jpegFooter = []byte{0xff, 0xd9}
	pngHeader  = []byte{0x89, 0x50, 0x4e, 0x47}
)

type RecognizeUseCase struct {
	tasks    ports.TaskRepository
	cache    ports.ResultCache
	storage  ports.ObjectStorage
	provider ports.RecognitionProvider
	bus      ports.EventBus
	logger   *slog.Logger

	maxBytes      int64
	cacheLifetime time.Duration
}

func NewRecognizeUseCase(
	tasks ports.TaskRepository,
	cache ports.ResultCache,
	storage ports.ObjectStorage,
	provider ports.RecognitionProvider,
	bus ports.EventBus,
	logger *slog.Logger,
	maxBytes int64,
	cacheLifetime time.Duration,
) *RecognizeUseCase {
	return &RecognizeUseCase{
		tasks:         tasks,
		cache:         cache,
		storage:       storage,
		provider:      provider,
		bus:           bus,
		logger:        logger,
		maxBytes:      maxBytes,
		cacheLifetime: cacheLifetime,
	}
}

// Process handles one storage event. It is idempotent under redelivery:
// the terminal task write is a conditional upsert keyed by task id, and
// recomputing the outcome for the same fingerprint either matches the first
// run or turns into a cache hit.
func (uc *RecognizeUseCase) Process(ctx context.Context, event domain.StorageEvent) error {
	taskID := event.StorageRef // blob key convention: the key is the task id
	now := time.Now().UTC()

	// Input already known to be rejected: skip both the cache read and the
	// provider. The failure is still cached against the fingerprint, since
	// the same bytes will never fit.
	if event.SizeBytes > uc.maxBytes {
		fail := domain.ContentFailure(413, "File too large")
		return uc.completeFailure(ctx, taskID, event.Fingerprint, fail, now)
	}

	hit, err := uc.cache.Lookup(ctx, event.Fingerprint)
	if err != nil {
		return fmt.Errorf("cache lookup: %w", err)
	}
	if hit != nil {
		return uc.completeFromCache(ctx, taskID, hit)
	}

	blob, err := uc.readBlob(ctx, taskID)
	if err != nil {
		uc.logger.Error("blob_unreadable", "task_id", taskID, "error", err)
		// No fingerprint-level conclusion can be drawn when the object
		// itself cannot be read, so nothing is cached.
		return uc.complete(ctx, taskID, domain.StatusFailedRecognition, nil, "500 Uploaded file could not be read")
	}

	if fail := validateImageFormat(blob); fail != nil {
		return uc.completeFailure(ctx, taskID, event.Fingerprint, fail, now)
	}

	labels, err := uc.provider.DetectLabels(ctx, blob)
	if err != nil {
		var fail *domain.RecognitionFailure
		if !errors.As(err, &fail) {
			fail = domain.ProviderFailure(500, "Internal server error")
		}
		return uc.completeFailure(ctx, taskID, event.Fingerprint, fail, now)
	}

	if err := uc.complete(ctx, taskID, domain.StatusSuccessfulRecognition, labels, ""); err != nil {
		return err
	}
	if err := uc.cache.Store(ctx, domain.NewSuccessEntry(event.Fingerprint, labels, now, uc.cacheLifetime)); err != nil {
		return fmt.Errorf("cache recognition result: %w", err)
	}
	// The blob served its purpose; storage is not an archive.
	if err := uc.storage.Delete(ctx, taskID); err != nil {
		uc.logger.Warn("blob_cleanup_failed", "task_id", taskID, "error", err)
	}
	return nil
}

func (uc *RecognizeUseCase) completeFromCache(ctx context.Context, taskID string, entry *domain.CacheEntry) error {
	if entry.Kind == domain.OutcomePermanentFailure {
		return uc.complete(ctx, taskID, domain.StatusFailedCached, nil, entry.Failure)
	}
	return uc.complete(ctx, taskID, domain.StatusSuccessfulCached, entry.Labels, "")
}

func (uc *RecognizeUseCase) completeFailure(ctx context.Context, taskID, fingerprint string, fail *domain.RecognitionFailure, now time.Time) error {
	if err := uc.complete(ctx, taskID, domain.StatusFailedRecognition, nil, fail.Error()); err != nil {
		return err
	}
	if fail.Cacheable() {
		if err := uc.cache.Store(ctx, domain.NewFailureEntry(fingerprint, fail.Error(), now)); err != nil {
			return fmt.Errorf("cache recognition failure: %w", err)
		}
	}
	return nil
}

// complete writes the terminal state and, when the write actually flipped
// the task out of AWAITING_UPLOAD, feeds the change to the dispatcher. A
// redelivered event finds the task already terminal and produces no second
// change notification.
func (uc *RecognizeUseCase) complete(ctx context.Context, taskID string, status domain.TaskStatus, labels []domain.Label, errMessage string) error {
	transitioned, err := uc.tasks.Complete(ctx, taskID, status, labels, errMessage)
	if err != nil {
		return fmt.Errorf("complete task %s: %w", taskID, err)
	}
	if !transitioned {
		uc.logger.Info("task_already_terminal", "task_id", taskID, "status", status)
		return nil
	}
	uc.logger.Info("task_completed", "task_id", taskID, "status", status, "error", errMessage)
	if err := uc.bus.PublishTaskChanged(ctx, taskID); err != nil {
		return fmt.Errorf("publish task change: %w", err)
	}
	return nil
}

func (uc *RecognizeUseCase) readBlob(ctx context.Context, key string) ([]byte, error) {
	reader, err := uc.storage.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	defer reader.Close()

	blob, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return blob, nil
}

func validateImageFormat(blob []byte) *domain.RecognitionFailure {
	if bytes.HasPrefix(blob, jpegHeader) {
		if bytes.HasSuffix(blob, jpegFooter) {
			return nil
		}
		return domain.ContentFailure(415, "Invalid image format")
	}
	if bytes.HasPrefix(blob, pngHeader) {
		return nil
	}
	return domain.ContentFailure(415, "Invalid image format")
}
