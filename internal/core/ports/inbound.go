package ports

import (
	"context"
	"io"

	"github.com/nreshetnikov/image-recognition-service/internal/core/domain"
)

// TaskIntake registers a new recognition task and hands out the upload
// target for it.
type TaskIntake interface {
	CreateTask(ctx context.Context, callbackURL string, allowInsecure bool) (*domain.Task, domain.UploadTarget, error)
}

// BlobReceiver accepts the uploaded bytes for a registered task, stores
// them and announces the storage event.
type BlobReceiver interface {
	Receive(ctx context.Context, taskID string, body io.Reader) error
}

// RecognitionProcessor handles one storage event end to end: cache lookup,
// provider call on a miss, and the terminal task write.
type RecognitionProcessor interface {
	Process(ctx context.Context, event domain.StorageEvent) error
}

// CallbackDispatcher handles one task change notification and performs at
// most one callback delivery per task.
type CallbackDispatcher interface {
	Dispatch(ctx context.Context, taskID string) error
}

// TaskReader is the read model behind the status endpoint.
type TaskReader interface {
	GetByID(ctx context.Context, id string) (*domain.Task, error)
}
