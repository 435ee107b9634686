package service

import (
	"context"
	"fmt"

	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/valueobject"
)

// ErrCircuitOpen is returned in place of a collaborator call while its
// circuit breaker is open — ClassifyError matches no category pattern in its
// message, so it is classified as unknown (retryable).
var ErrCircuitOpen = fmt.Errorf("circuit breaker open")

// CircuitBreakingZoteroClient wraps a ZoteroClient so a run of consecutive
// failures trips the breaker and short-circuits further calls until the
// recovery timeout elapses.
type CircuitBreakingZoteroClient struct {
	inner   ZoteroClient
	breaker *CircuitBreaker
}

// NewCircuitBreakingZoteroClient wraps inner with breaker.
func NewCircuitBreakingZoteroClient(inner ZoteroClient, breaker *CircuitBreaker) *CircuitBreakingZoteroClient {
	return &CircuitBreakingZoteroClient{inner: inner, breaker: breaker}
}

var _ ZoteroClient = (*CircuitBreakingZoteroClient)(nil)

func (c *CircuitBreakingZoteroClient) ProcessIdentifier(ctx context.Context, id valueobject.Identifier) (ZoteroProcessResult, error) {
	if !c.breaker.Allow() {
		return ZoteroProcessResult{}, ErrCircuitOpen
	}
	result, err := c.inner.ProcessIdentifier(ctx, id)
	c.record(err)
	return result, err
}

func (c *CircuitBreakingZoteroClient) ProcessURL(ctx context.Context, url string) (ZoteroProcessResult, error) {
	if !c.breaker.Allow() {
		return ZoteroProcessResult{}, ErrCircuitOpen
	}
	result, err := c.inner.ProcessURL(ctx, url)
	c.record(err)
	return result, err
}

func (c *CircuitBreakingZoteroClient) CreateItem(ctx context.Context, payload ItemPayload) (ZoteroProcessResult, error) {
	if !c.breaker.Allow() {
		return ZoteroProcessResult{}, ErrCircuitOpen
	}
	result, err := c.inner.CreateItem(ctx, payload)
	c.record(err)
	return result, err
}

func (c *CircuitBreakingZoteroClient) UpdateItem(ctx context.Context, itemKey string, partial map[string]interface{}) error {
	if !c.breaker.Allow() {
		return ErrCircuitOpen
	}
	err := c.inner.UpdateItem(ctx, itemKey, partial)
	c.record(err)
	return err
}

func (c *CircuitBreakingZoteroClient) GetItem(ctx context.Context, itemKey string) (ZoteroItem, error) {
	if !c.breaker.Allow() {
		return ZoteroItem{}, ErrCircuitOpen
	}
	result, err := c.inner.GetItem(ctx, itemKey)
	c.record(err)
	return result, err
}

func (c *CircuitBreakingZoteroClient) DeleteItem(ctx context.Context, itemKey string) error {
	if !c.breaker.Allow() {
		return ErrCircuitOpen
	}
	err := c.inner.DeleteItem(ctx, itemKey)
	c.record(err)
	return err
}

func (c *CircuitBreakingZoteroClient) ValidateCitation(ctx context.Context, itemKey string) (CitationValidation, error) {
	if !c.breaker.Allow() {
		return CitationValidation{}, ErrCircuitOpen
	}
	result, err := c.inner.ValidateCitation(ctx, itemKey)
	c.record(err)
	return result, err
}

func (c *CircuitBreakingZoteroClient) record(err error) {
	if err != nil {
		c.breaker.RecordFailure()
		return
	}
	c.breaker.RecordSuccess()
}

// CircuitBreakingLLMExtractor wraps an LLMExtractor with the same
// fail-fast-on-outage behavior.
type CircuitBreakingLLMExtractor struct {
	inner   LLMExtractor
	breaker *CircuitBreaker
}

// NewCircuitBreakingLLMExtractor wraps inner with breaker.
func NewCircuitBreakingLLMExtractor(inner LLMExtractor, breaker *CircuitBreaker) *CircuitBreakingLLMExtractor {
	return &CircuitBreakingLLMExtractor{inner: inner, breaker: breaker}
}

var _ LLMExtractor = (*CircuitBreakingLLMExtractor)(nil)

func (c *CircuitBreakingLLMExtractor) ExtractMetadata(ctx context.Context, contentRef string) (LLMExtraction, error) {
	if !c.breaker.Allow() {
		return LLMExtraction{}, ErrCircuitOpen
	}
	result, err := c.inner.ExtractMetadata(ctx, contentRef)
	if err != nil {
		c.breaker.RecordFailure()
	} else {
		c.breaker.RecordSuccess()
	}
	return result, err
}
