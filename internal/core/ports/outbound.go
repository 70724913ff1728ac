package ports

import (
	"context"
	"io"

	"github.com/nreshetnikov/image-recognition-service/internal/core/domain"
)

// TaskRepository persists recognition task state. All writes are
// single-record operations keyed by task id and safe under at-least-once
// redelivery of the triggering event.
type TaskRepository interface {
	Create(ctx context.Context, task *domain.Task) error
	GetByID(ctx context.Context, id string) (*domain.Task, error)
	// Complete upserts the terminal outcome for a task. Only a task that is
	// still AWAITING_UPLOAD (or absent) takes the new value; a task already
	// in a terminal status is left untouched. The returned bool reports
	// whether a transition actually happened.
	Complete(ctx context.Context, id string, status domain.TaskStatus, result []domain.Label, errMessage string) (bool, error)
	// ClaimCallback marks the task as having an in-flight delivery attempt.
	// At most one caller ever gets true for a given task.
	ClaimCallback(ctx context.Context, id string) (bool, error)
	// RecordCallbackOutcome writes the delivery outcome. It is a no-op if an
	// outcome was already recorded.
	RecordCallbackOutcome(ctx context.Context, id string, delivered bool, message string) error
}

// ResultCache stores recognition outcomes keyed by content fingerprint.
type ResultCache interface {
	// Lookup returns nil when no entry exists or a success entry has
	// expired. Permanent failures are returned regardless of age.
	Lookup(ctx context.Context, fingerprint string) (*domain.CacheEntry, error)
	// Store upserts unconditionally, last write wins.
	Store(ctx context.Context, entry domain.CacheEntry) error
}

// ObjectStorage holds uploaded blobs between upload and recognition.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// EventBus carries storage events to the orchestrator and task change
// notifications to the callback dispatcher. Delivery is at least once.
type EventBus interface {
	PublishBlobStored(ctx context.Context, event domain.StorageEvent) error
	SubscribeBlobStored(ctx context.Context, handler func(context.Context, domain.StorageEvent) error) error
	PublishTaskChanged(ctx context.Context, taskID string) error
	SubscribeTaskChanged(ctx context.Context, handler func(context.Context, string) error) error
}

// RecognitionProvider is the external, metered label detection capability.
// Failed calls return *domain.RecognitionFailure so the orchestrator can
// tell content defects from provider faults.
type RecognitionProvider interface {
	DetectLabels(ctx context.Context, image []byte) ([]domain.Label, error)
}

// CallbackSender performs one outbound delivery of a terminal task state.
// Failures come back as *domain.CallbackFailure with a caller-readable
// message.
type CallbackSender interface {
	Send(ctx context.Context, task *domain.Task) error
}

// FingerprintDigest accumulates uploaded bytes into a content fingerprint.
type FingerprintDigest interface {
	io.Writer
	Fingerprint() string
	Size() int64
}

// Fingerprinter creates digests for uploaded blobs.
type Fingerprinter interface {
	New() FingerprintDigest
}
