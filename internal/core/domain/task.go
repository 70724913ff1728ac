package domain

import "time"

type TaskStatus string

const (
	// StatusAwaitingUpload is the initial state: the task id is registered
	// but the file has not landed in storage yet.
	StatusAwaitingUpload TaskStatus = "AWAITING_UPLOAD"
	// StatusSuccessfulRecognition means the provider recognized the image.
	StatusSuccessfulRecognition TaskStatus = "SUCCESSFUL_RECOGNITION"
	// StatusFailedRecognition means recognition failed, either on the
	// content or on the provider side. The error field carries the detail.
	StatusFailedRecognition TaskStatus = "FAILED_RECOGNITION"
	// StatusSuccessfulCached means the same content was recognized recently
	// and the result came from the cache without a provider call.
	StatusSuccessfulCached TaskStatus = "SUCCESSFUL_CACHED"
	// StatusFailedCached means the same content was rejected before and the
	// failure came from the cache without a provider call.
	StatusFailedCached TaskStatus = "FAILED_CACHED"
)

// Terminal reports whether no further status transition is allowed.
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusSuccessfulRecognition, StatusFailedRecognition,
		StatusSuccessfulCached, StatusFailedCached:
		return true
	}
	return false
}

func (s TaskStatus) Valid() bool {
	return s == StatusAwaitingUpload || s.Terminal()
}

// CanTransition encodes the one-way state machine: the only legal move is
// from AWAITING_UPLOAD into a terminal status.
func CanTransition(from, to TaskStatus) bool {
	return from == StatusAwaitingUpload && to.Terminal()
}

type CallbackOutcome string

const (
	// CallbackPending means no delivery attempt has been recorded yet.
	CallbackPending   CallbackOutcome = ""
	CallbackDelivered CallbackOutcome = "DELIVERED"
	CallbackFailed    CallbackOutcome = "FAILED"
)

// BoundingBox positions a detected instance as fractional ratios of the
// image dimensions. JSON field names follow the provider wire format.
type BoundingBox struct {
	Width  float64 `json:"Width"`
	Height float64 `json:"Height"`
	Left   float64 `json:"Left"`
	Top    float64 `json:"Top"`
}

type LabelInstance struct {
	BoundingBox BoundingBox `json:"BoundingBox"`
	Confidence  float64     `json:"Confidence"`
}

type LabelParent struct {
	Name string `json:"Name"`
}

// Label is a single recognized entity with optional located instances and
// parent labels in the provider's taxonomy.
type Label struct {
	Name       string          `json:"Name"`
	Confidence float64         `json:"Confidence"`
	Instances  []LabelInstance `json:"Instances"`
	Parents    []LabelParent   `json:"Parents"`
}

// Task is one submitted recognition request. The id is caller-visible,
// immutable and unique. Result is set only on success, Error only on
// failure; both are immutable once the status is terminal.
type Task struct {
	ID                    string          `json:"task_id"`
	Status                TaskStatus      `json:"status"`
	CallbackURL           string          `json:"callback_url,omitempty"`
	AllowInsecureCallback bool            `json:"allow_insecure_callback,omitempty"`
	Result                []Label         `json:"result,omitempty"`
	Error                 string          `json:"error,omitempty"`
	CallbackOutcome       CallbackOutcome `json:"-"`
	CallbackError         string          `json:"callback_error,omitempty"`
	CreatedAt             time.Time       `json:"-"`
	UpdatedAt             time.Time       `json:"-"`
}

// CallbackEligible reports whether the dispatcher should attempt delivery:
// the task reached a terminal status, a callback URL is set, and no delivery
// outcome has been recorded yet.
func (t *Task) CallbackEligible() bool {
	return t.Status.Terminal() &&
		t.CallbackURL != "" &&
		t.CallbackOutcome == CallbackPending
}

// UploadTarget tells the caller where to put the file and which size ceiling
// is enforced at upload time.
type UploadTarget struct {
	URL       string `json:"url"`
	Method    string `json:"method"`
	MaxBytes  int64  `json:"max_bytes"`
	ExpiresIn int64  `json:"expires_in"`
}

// StorageEvent announces that an uploaded object landed in blob storage.
type StorageEvent struct {
	StorageRef  string `json:"storage_ref"`
	Fingerprint string `json:"fingerprint"`
	SizeBytes   int64  `json:"size_bytes"`
}
