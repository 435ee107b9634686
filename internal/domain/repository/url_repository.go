package repository

import (
	"context"

	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/entity"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/valueobject"
)

// URLRepository is defined in the domain layer and implemented in
// infrastructure/persistence (gorm, §6.1's persistence contract).
// Every mutation that changes ProcessingStatus or appends to ProcessingHistory
// must be exclusive per-row — the state machine is the only writer that calls
// AppendProcessingAttempt + UpdateStatus together, and it does so under a
// single row lock (see service.StateMachine.Transition).
type URLRepository interface {
	// FindByID loads a URL by id. Returns entity.ErrURLNotFound if absent.
	FindByID(ctx context.Context, id string) (*entity.URL, error)

	// FindAll returns every tracked URL, optionally filtered by status/intent.
	FindAll(ctx context.Context, filter URLFilter) ([]*entity.URL, error)

	// FindByStatus returns every URL currently at one of the given statuses —
	// used by the startup orphan sweep (§7) to find stuck processing_* rows.
	FindByStatus(ctx context.Context, statuses ...valueobject.ProcessingStatus) ([]*entity.URL, error)

	// Save creates or updates a URL (upsert by ID).
	Save(ctx context.Context, url *entity.URL) error

	// Delete removes a URL. The core itself never calls this outside tests;
	// deletion of user data is out of scope for the processing core.
	Delete(ctx context.Context, id string) error

	// WithRowLock runs fn with an exclusive lock held on the identified URL
	// row, reloading it fresh inside the lock and persisting whatever fn
	// leaves in place on success. This is the sole mechanism by which
	// service.StateMachine.Transition satisfies §5's "exclusive lock on the
	// URL row" requirement.
	WithRowLock(ctx context.Context, id string, fn func(ctx context.Context, url *entity.URL) error) error

	// AppendProcessingAttempt appends attempt to url's history and persists
	// both atomically with the caller-supplied status, satisfying §6.1's
	// "atomic with urls row update" requirement. Callers pass the post-write
	// status; it is the caller's (state machine's) responsibility to have
	// validated the transition before calling this.
	AppendProcessingAttempt(ctx context.Context, urlID string, status valueobject.ProcessingStatus, attempt entity.ProcessingAttempt) error
}

// URLFilter narrows FindAll results. Zero value means "no filter" for a field.
type URLFilter struct {
	Status *valueobject.ProcessingStatus
	Intent *valueobject.UserIntent
	IDs    []string
}
