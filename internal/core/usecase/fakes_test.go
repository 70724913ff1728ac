package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/nreshetnikov/image-recognition-service/internal/core/domain"
	"github.com/nreshetnikov/image-recognition-service/internal/core/ports"
)

type completeCall struct {
	status domain.TaskStatus
	labels []domain.Label
	errMsg string
}

type taskRepoFake struct {
	tasks map[string]*domain.Task

	createErr   error
	getErr      error
	completeErr error
	claimErr    error
	claimDenied bool
	recordErr   error

	completeCalls []completeCall
	claimCalls    int
	recordedOK    []bool
	recordedMsg   []string
}

func newTaskRepoFake(tasks ...*domain.Task) *taskRepoFake {
	f := &taskRepoFake{tasks: map[string]*domain.Task{}}
	for _, task := range tasks {
		f.tasks[task.ID] = task
	}
	return f
}

func (f *taskRepoFake) Create(_ context.Context, task *domain.Task) error {
	if f.createErr != nil {
		return f.createErr
	}
	copyTask := *task
	f.tasks[task.ID] = &copyTask
	return nil
}

func (f *taskRepoFake) GetByID(_ context.Context, id string) (*domain.Task, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	task, ok := f.tasks[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrTaskNotFound, "get task", fmt.Errorf("id %s", id))
	}
	copyTask := *task
	return &copyTask, nil
}

func (f *taskRepoFake) Complete(_ context.Context, id string, status domain.TaskStatus, labels []domain.Label, errMsg string) (bool, error) {
	if f.completeErr != nil {
		return false, f.completeErr
	}
	f.completeCalls = append(f.completeCalls, completeCall{status: status, labels: labels, errMsg: errMsg})

	task, ok := f.tasks[id]
	if ok && task.Status.Terminal() {
		return false, nil
	}
	if !ok {
		task = &domain.Task{ID: id}
		f.tasks[id] = task
	}
	task.Status = status
	task.Result = labels
	task.Error = errMsg
	return true, nil
}

func (f *taskRepoFake) ClaimCallback(_ context.Context, id string) (bool, error) {
	if f.claimErr != nil {
		return false, f.claimErr
	}
	f.claimCalls++
	if f.claimDenied {
		return false, nil
	}
	task, ok := f.tasks[id]
	if !ok || task.CallbackOutcome != domain.CallbackPending {
		return false, nil
	}
	return true, nil
}

func (f *taskRepoFake) RecordCallbackOutcome(_ context.Context, id string, delivered bool, message string) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	f.recordedOK = append(f.recordedOK, delivered)
	f.recordedMsg = append(f.recordedMsg, message)
	if task, ok := f.tasks[id]; ok {
		if delivered {
			task.CallbackOutcome = domain.CallbackDelivered
		} else {
			task.CallbackOutcome = domain.CallbackFailed
		}
		task.CallbackError = message
	}
	return nil
}

type cacheFake struct {
	entries map[string]*domain.CacheEntry

	lookupErr   error
	storeErr    error
	lookupCalls int
	stored      []domain.CacheEntry
}

func newCacheFake() *cacheFake {
	return &cacheFake{entries: map[string]*domain.CacheEntry{}}
}

func (f *cacheFake) Lookup(_ context.Context, fingerprint string) (*domain.CacheEntry, error) {
	f.lookupCalls++
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	entry, ok := f.entries[fingerprint]
	if !ok {
		return nil, nil
	}
	copyEntry := *entry
	return &copyEntry, nil
}

func (f *cacheFake) Store(_ context.Context, entry domain.CacheEntry) error {
	if f.storeErr != nil {
		return f.storeErr
	}
	f.stored = append(f.stored, entry)
	return nil
}

type storageFake struct {
	blobs map[string][]byte

	saveErr   error
	openErr   error
	deleteErr error
	deleted   []string
}

func newStorageFake() *storageFake {
	return &storageFake{blobs: map[string][]byte{}}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	blob, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.blobs[key] = blob
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	blob, ok := f.blobs[key]
	if !ok {
		return nil, fmt.Errorf("no blob %s", key)
	}
	return io.NopCloser(bytes.NewReader(blob)), nil
}

func (f *storageFake) Delete(_ context.Context, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, key)
	delete(f.blobs, key)
	return nil
}

type providerFake struct {
	labels []domain.Label
	err    error
	calls  int
}

func (f *providerFake) DetectLabels(_ context.Context, _ []byte) ([]domain.Label, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.labels, nil
}

type busFake struct {
	publishStorageErr error
	publishTaskErr    error

	storageEvents []domain.StorageEvent
	taskChanges   []string
}

func (f *busFake) PublishBlobStored(_ context.Context, event domain.StorageEvent) error {
	if f.publishStorageErr != nil {
		return f.publishStorageErr
	}
	f.storageEvents = append(f.storageEvents, event)
	return nil
}

func (f *busFake) SubscribeBlobStored(context.Context, func(context.Context, domain.StorageEvent) error) error {
	return nil
}

func (f *busFake) PublishTaskChanged(_ context.Context, taskID string) error {
	if f.publishTaskErr != nil {
		return f.publishTaskErr
	}
	f.taskChanges = append(f.taskChanges, taskID)
	return nil
}

func (f *busFake) SubscribeTaskChanged(context.Context, func(context.Context, string) error) error {
	return nil
}

type senderFake struct {
	err   error
	calls int
	sent  *domain.Task
}

func (f *senderFake) Send(_ context.Context, task *domain.Task) error {
	f.calls++
	f.sent = task
	return f.err
}

type digestFake struct {
	fingerprint string
	size        int64
}

func (d *digestFake) Write(p []byte) (int, error) {
	d.size += int64(len(p))
	return len(p), nil
}

func (d *digestFake) Fingerprint() string { return d.fingerprint }
func (d *digestFake) Size() int64         { return d.size }

type fingerprinterFake struct {
	fingerprint string
	last        *digestFake
}

func (f *fingerprinterFake) New() ports.FingerprintDigest {
	f.last = &digestFake{fingerprint: f.fingerprint}
	return f.last
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
