package usecase

import (
	"context"
	"fmt"
	"io"

	"github.com/nreshetnikov/image-recognition-service/internal/core/domain"
	"github.com/nreshetnikov/image-recognition-service/internal/core/ports"
)

type UploadUseCase struct {
	tasks   ports.TaskRepository
	storage ports.ObjectStorage
	prints  ports.Fingerprinter
	bus     ports.EventBus
}

func NewUploadUseCase(
	tasks ports.TaskRepository,
	storage ports.ObjectStorage,
	prints ports.Fingerprinter,
	bus ports.EventBus,
) *UploadUseCase {
	return &UploadUseCase{
		tasks:   tasks,
		storage: storage,
		prints:  prints,
		bus:     bus,
	}
}

// Receive stores the uploaded bytes under the task id, fingerprints them on
// the way through, and publishes the storage event that triggers
// recognition. Uploading to an unknown task id is rejected; re-uploading to
// a task that already reached a terminal status is rejected as well, since
// terminal results are immutable.
func (uc *UploadUseCase) Receive(ctx context.Context, taskID string, body io.Reader) error {
	task, err := uc.tasks.GetByID(ctx, taskID)
	if err != nil {
		return fmt.Errorf("resolve upload task: %w", err)
	}
	if task.Status.Terminal() {
		return domain.WrapError(domain.ErrInvalidInput, "receive upload",
			fmt.Errorf("task %s is already %s", taskID, task.Status))
	}

	digest := uc.prints.New()
	if err := uc.storage.Save(ctx, taskID, io.TeeReader(body, digest)); err != nil {
		return fmt.Errorf("save blob: %w", err)
	}

	event := domain.StorageEvent{
		StorageRef:  taskID,
		Fingerprint: digest.Fingerprint(),
		SizeBytes:   digest.Size(),
	}
	if err := uc.bus.PublishBlobStored(ctx, event); err != nil {
		return fmt.Errorf("publish storage event: %w", err)
	}
	return nil
}
