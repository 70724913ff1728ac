package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nreshetnikov/image-recognition-service/internal/core/domain"
)

func terminalTask() *domain.Task {
	return &domain.Task{
		ID:          "task-1",
		Status:      domain.StatusSuccessfulRecognition,
		CallbackURL: "https://example.com/hook",
		Result:      []domain.Label{{Name: "Cat", Confidence: 99}},
	}
}

func TestDispatchDeliversAndRecordsOutcome(t *testing.T) {
	repo := newTaskRepoFake(terminalTask())
	sender := &senderFake{}
	uc := NewCallbackUseCase(repo, sender, testLogger(), time.Second)

	if err := uc.Dispatch(context.Background(), "task-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sender.calls != 1 {
		t.Fatalf("sender calls = %d, want 1", sender.calls)
	}
	if repo.tasks["task-1"].CallbackOutcome != domain.CallbackDelivered {
		t.Fatalf("outcome = %q, want DELIVERED", repo.tasks["task-1"].CallbackOutcome)
	}
}

func TestDispatchRecordsFailureMessage(t *testing.T) {
	repo := newTaskRepoFake(terminalTask())
	sender := &senderFake{err: &domain.CallbackFailure{Message: "Server responded with code 500"}}
	uc := NewCallbackUseCase(repo, sender, testLogger(), time.Second)

	if err := uc.Dispatch(context.Background(), "task-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	task := repo.tasks["task-1"]
	if task.CallbackOutcome != domain.CallbackFailed {
		t.Fatalf("outcome = %q, want FAILED", task.CallbackOutcome)
	}
	if task.CallbackError != "Server responded with code 500" {
		t.Fatalf("callback error = %q", task.CallbackError)
	}
}

func TestDispatchGenericSendErrorMessage(t *testing.T) {
	repo := newTaskRepoFake(terminalTask())
	sender := &senderFake{err: errors.New("dial tcp: timeout")}
	uc := NewCallbackUseCase(repo, sender, testLogger(), time.Second)

	if err := uc.Dispatch(context.Background(), "task-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.tasks["task-1"].CallbackError != "General error while calling back" {
		t.Fatalf("callback error = %q", repo.tasks["task-1"].CallbackError)
	}
}

func TestDispatchSkipsTaskWithoutCallbackURL(t *testing.T) {
	task := terminalTask()
	task.CallbackURL = ""
	repo := newTaskRepoFake(task)
	sender := &senderFake{}
	uc := NewCallbackUseCase(repo, sender, testLogger(), time.Second)

	if err := uc.Dispatch(context.Background(), "task-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sender.calls != 0 {
		t.Fatal("no delivery expected without a callback url")
	}
	if repo.claimCalls != 0 {
		t.Fatal("ineligible task must not be claimed")
	}
}

func TestDispatchSkipsNonTerminalTask(t *testing.T) {
	task := terminalTask()
	task.Status = domain.StatusAwaitingUpload
	repo := newTaskRepoFake(task)
	sender := &senderFake{}
	uc := NewCallbackUseCase(repo, sender, testLogger(), time.Second)

	if err := uc.Dispatch(context.Background(), "task-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sender.calls != 0 {
		t.Fatal("non-terminal task must not trigger delivery")
	}
}

func TestDispatchAtMostOnce(t *testing.T) {
	task := terminalTask()
	task.CallbackOutcome = domain.CallbackFailed
	task.CallbackError = "General error while calling back"
	repo := newTaskRepoFake(task)
	sender := &senderFake{}
	uc := NewCallbackUseCase(repo, sender, testLogger(), time.Second)

	// Redelivered change notification after a failed attempt.
	if err := uc.Dispatch(context.Background(), "task-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sender.calls != 0 {
		t.Fatal("a recorded outcome forbids any further attempt")
	}
}

func TestDispatchLosingClaimRaceIsSilent(t *testing.T) {
	repo := newTaskRepoFake(terminalTask())
	repo.claimDenied = true
	sender := &senderFake{}
	uc := NewCallbackUseCase(repo, sender, testLogger(), time.Second)

	if err := uc.Dispatch(context.Background(), "task-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.claimCalls != 1 {
		t.Fatalf("claim calls = %d, want 1", repo.claimCalls)
	}
	if sender.calls != 0 {
		t.Fatal("losing the claim race must not send")
	}
	if len(repo.recordedOK) != 0 {
		t.Fatal("no outcome may be recorded by the losing dispatcher")
	}
}

func TestDispatchUnknownTaskIsDropped(t *testing.T) {
	repo := newTaskRepoFake()
	sender := &senderFake{}
	uc := NewCallbackUseCase(repo, sender, testLogger(), time.Second)

	if err := uc.Dispatch(context.Background(), "ghost"); err != nil {
		t.Fatalf("unknown task should be dropped, got %v", err)
	}
	if sender.calls != 0 {
		t.Fatal("no delivery for unknown tasks")
	}
}
