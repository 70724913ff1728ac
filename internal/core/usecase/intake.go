package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/nreshetnikov/image-recognition-service/internal/core/domain"
	"github.com/nreshetnikov/image-recognition-service/internal/core/ports"
)

const uploadTargetTTL = 3600 // seconds

type IntakeUseCase struct {
	tasks    ports.TaskRepository
	maxBytes int64
}

func NewIntakeUseCase(tasks ports.TaskRepository, maxBytes int64) *IntakeUseCase {
	return &IntakeUseCase{
		tasks:    tasks,
		maxBytes: maxBytes,
	}
}

func (uc *IntakeUseCase) CreateTask(ctx context.Context, callbackURL string, allowInsecure bool) (*domain.Task, domain.UploadTarget, error) {
	if callbackURL != "" {
		if err := validateCallbackURL(callbackURL); err != nil {
			return nil, domain.UploadTarget{}, domain.WrapError(domain.ErrInvalidInput, "validate callback url", err)
		}
	}

	now := time.Now().UTC()
	task := &domain.Task{
		ID:                    uuid.NewString(),
		Status:                domain.StatusAwaitingUpload,
		CallbackURL:           callbackURL,
		AllowInsecureCallback: allowInsecure && callbackURL != "",
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if err := uc.tasks.Create(ctx, task); err != nil {
		return nil, domain.UploadTarget{}, fmt.Errorf("create task record: %w", err)
	}

	target := domain.UploadTarget{
		URL:       "/v1/uploads/" + task.ID,
		Method:    "PUT",
		MaxBytes:  uc.maxBytes,
		ExpiresIn: uploadTargetTTL,
	}
	return task, target, nil
}

func validateCallbackURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse callback url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("callback_url only supports http and https protocols")
	}
	if parsed.Host == "" {
		return errors.New("callback_url has no host")
	}
	return nil
}
