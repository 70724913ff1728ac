package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nreshetnikov/image-recognition-service/internal/core/domain"
	"github.com/nreshetnikov/image-recognition-service/internal/core/ports"
)

type CallbackUseCase struct {
	tasks   ports.TaskRepository
	sender  ports.CallbackSender
	logger  *slog.Logger
	timeout time.Duration
}

func NewCallbackUseCase(
	tasks ports.TaskRepository,
	sender ports.CallbackSender,
	logger *slog.Logger,
	timeout time.Duration,
) *CallbackUseCase {
	return &CallbackUseCase{
		tasks:   tasks,
		sender:  sender,
		logger:  logger,
		timeout: timeout,
	}
}

// Dispatch performs at most one delivery attempt for the task. The change
// feed is at-least-once, so eligibility is re-checked against durable state
// and the attempt itself is fenced by a single-shot claim. Whatever the
// attempt's fate — success, timeout, refusal — an outcome is recorded, which
// makes every later notification for this task a no-op. No retries.
func (uc *CallbackUseCase) Dispatch(ctx context.Context, taskID string) error {
	task, err := uc.tasks.GetByID(ctx, taskID)
	if err != nil {
		if domain.IsKind(err, domain.ErrTaskNotFound) {
			uc.logger.Warn("change_for_unknown_task", "task_id", taskID)
			return nil
		}
		return fmt.Errorf("load task %s: %w", taskID, err)
	}
	if !task.CallbackEligible() {
		return nil
	}

	claimed, err := uc.tasks.ClaimCallback(ctx, taskID)
	if err != nil {
		return fmt.Errorf("claim callback for %s: %w", taskID, err)
	}
	if !claimed {
		// Another dispatcher invocation got here first.
		return nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	if err := uc.sender.Send(sendCtx, task); err != nil {
		message := deliveryErrorMessage(err)
		uc.logger.Warn("callback_failed", "task_id", taskID, "callback_error", message)
		if recErr := uc.tasks.RecordCallbackOutcome(ctx, taskID, false, message); recErr != nil {
			return fmt.Errorf("record callback failure for %s: %w", taskID, recErr)
		}
		return nil
	}

	uc.logger.Info("callback_delivered", "task_id", taskID)
	if err := uc.tasks.RecordCallbackOutcome(ctx, taskID, true, ""); err != nil {
		return fmt.Errorf("record callback delivery for %s: %w", taskID, err)
	}
	return nil
}

func deliveryErrorMessage(err error) string {
	var fail *domain.CallbackFailure
	if errors.As(err, &fail) {
		return fail.Message
	}
	return "General error while calling back"
}
