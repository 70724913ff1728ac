package metrics

import (
	"context"

	"github.com/nreshetnikov/image-recognition-service/internal/core/domain"
	"github.com/nreshetnikov/image-recognition-service/internal/core/ports"
)

// InstrumentedResultCache counts lookups so the cache hit ratio (and with
// it the provider bill) stays observable.
type InstrumentedResultCache struct {
	next    ports.ResultCache
	metrics *WorkerMetrics
	service string
}

func NewInstrumentedResultCache(next ports.ResultCache, m *WorkerMetrics, service string) *InstrumentedResultCache {
	return &InstrumentedResultCache{next: next, metrics: m, service: service}
}

func (c *InstrumentedResultCache) Lookup(ctx context.Context, fingerprint string) (*domain.CacheEntry, error) {
	entry, err := c.next.Lookup(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	switch {
	case entry == nil:
		c.metrics.RecordCacheLookup(c.service, "miss")
	case entry.Kind == domain.OutcomePermanentFailure:
		c.metrics.RecordCacheLookup(c.service, "hit_failure")
	default:
		c.metrics.RecordCacheLookup(c.service, "hit_success")
	}
	return entry, nil
}

func (c *InstrumentedResultCache) Store(ctx context.Context, entry domain.CacheEntry) error {
	return c.next.Store(ctx, entry)
}

// InstrumentedProvider counts billable provider calls by outcome.
type InstrumentedProvider struct {
	next    ports.RecognitionProvider
	metrics *WorkerMetrics
	service string
}

func NewInstrumentedProvider(next ports.RecognitionProvider, m *WorkerMetrics, service string) *InstrumentedProvider {
	return &InstrumentedProvider{next: next, metrics: m, service: service}
}

func (p *InstrumentedProvider) DetectLabels(ctx context.Context, image []byte) ([]domain.Label, error) {
	labels, err := p.next.DetectLabels(ctx, image)
	if err != nil {
		p.metrics.RecordProviderCall(p.service, "error")
		return nil, err
	}
	p.metrics.RecordProviderCall(p.service, "success")
	return labels, nil
}
