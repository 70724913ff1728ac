package domain

import "time"

type OutcomeKind string

const (
	OutcomeSuccess          OutcomeKind = "SUCCESS"
	OutcomePermanentFailure OutcomeKind = "PERMANENT_FAILURE"
)

// CacheEntry records the recognition outcome for one content fingerprint.
// Success entries expire so results get re-checked as the provider's model
// improves; permanent failures never expire because the defect is in the
// bytes themselves.
type CacheEntry struct {
	Fingerprint string
	Kind        OutcomeKind
	Labels      []Label
	Failure     string
	RecordedAt  time.Time
	ExpiresAt   *time.Time
}

func NewSuccessEntry(fingerprint string, labels []Label, now time.Time, lifetime time.Duration) CacheEntry {
	expires := now.Add(lifetime)
	return CacheEntry{
		Fingerprint: fingerprint,
		Kind:        OutcomeSuccess,
		Labels:      labels,
		RecordedAt:  now,
		ExpiresAt:   &expires,
	}
}

func NewFailureEntry(fingerprint, failure string, now time.Time) CacheEntry {
	return CacheEntry{
		Fingerprint: fingerprint,
		Kind:        OutcomePermanentFailure,
		Failure:     failure,
		RecordedAt:  now,
	}
}

// Expired reports whether the entry must be treated as absent. Permanent
// failures are never stale.
func (e CacheEntry) Expired(now time.Time) bool {
	if e.Kind == OutcomePermanentFailure || e.ExpiresAt == nil {
		return false
	}
	return !now.Before(*e.ExpiresAt)
}
