package persistence

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/entity"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/repository"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/valueobject"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/infrastructure/persistence/models"
	domainErrors "github.com/hortensia-labs/theodore-popyto-sub001/pkg/errors"
)

// GormURLRepository is the gorm-backed implementation of repository.URLRepository.
type GormURLRepository struct {
	db *gorm.DB
}

// NewGormURLRepository wires a gorm URL repository.
func NewGormURLRepository(db *gorm.DB) repository.URLRepository {
	return &GormURLRepository{db: db}
}

func (r *GormURLRepository) FindByID(ctx context.Context, id string) (*entity.URL, error) {
	var model models.URLModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, entity.ErrURLNotFound
		}
		return nil, domainErrors.NewInternalErrorWithCause("find url", err)
	}
	return toURLEntity(&model)
}

func (r *GormURLRepository) FindAll(ctx context.Context, filter repository.URLFilter) ([]*entity.URL, error) {
	q := r.db.WithContext(ctx).Model(&models.URLModel{})
	if filter.Status != nil {
		q = q.Where("processing_status = ?", string(*filter.Status))
	}
	if filter.Intent != nil {
		q = q.Where("user_intent = ?", string(*filter.Intent))
	}
	if len(filter.IDs) > 0 {
		q = q.Where("id IN ?", filter.IDs)
	}

	var rows []models.URLModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("find urls", err)
	}
	return toURLEntities(rows)
}

func (r *GormURLRepository) FindByStatus(ctx context.Context, statuses ...valueobject.ProcessingStatus) ([]*entity.URL, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	var rows []models.URLModel
	if err := r.db.WithContext(ctx).Where("processing_status IN ?", names).Find(&rows).Error; err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("find urls by status", err)
	}
	return toURLEntities(rows)
}

func (r *GormURLRepository) Save(ctx context.Context, url *entity.URL) error {
	model, err := toURLModel(url)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		return domainErrors.NewInternalErrorWithCause("save url", err)
	}
	return nil
}

func (r *GormURLRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&models.URLModel{}, "id = ?", id)
	if result.Error != nil {
		return domainErrors.NewInternalErrorWithCause("delete url", result.Error)
	}
	if result.RowsAffected == 0 {
		return entity.ErrURLNotFound
	}
	return nil
}

// WithRowLock opens a transaction, takes `SELECT ... FOR UPDATE` on the row
// (gorm's clause.Locking), runs fn against the freshly-loaded entity, and
// persists whatever fn left on url before committing. This is the exclusive
// per-row lock §5 requires of every status transition.
func (r *GormURLRepository) WithRowLock(ctx context.Context, id string, fn func(ctx context.Context, url *entity.URL) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model models.URLModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return entity.ErrURLNotFound
			}
			return domainErrors.NewInternalErrorWithCause("lock url row", err)
		}

		url, err := toURLEntity(&model)
		if err != nil {
			return err
		}

		if err := fn(ctx, url); err != nil {
			return err
		}

		updated, err := toURLModel(url)
		if err != nil {
			return err
		}
		updated.Version = model.Version + 1
		if err := tx.Save(updated).Error; err != nil {
			return domainErrors.NewInternalErrorWithCause("persist locked url", err)
		}
		return nil
	})
}

// AppendProcessingAttempt appends attempt and writes status atomically,
// reusing WithRowLock so the history append and status write share the same
// locked transaction (§6.1's "atomic with urls row update" requirement).
func (r *GormURLRepository) AppendProcessingAttempt(ctx context.Context, urlID string, status valueobject.ProcessingStatus, attempt entity.ProcessingAttempt) error {
	return r.WithRowLock(ctx, urlID, func(ctx context.Context, url *entity.URL) error {
		url.ProcessingHistory = append(url.ProcessingHistory, attempt)
		url.ProcessingStatus = status
		if attempt.CountableAttempt() {
			url.ProcessingAttempts++
		}
		if attempt.Method != "" {
			method := attempt.Method
			url.LastProcessingMethod = &method
		}
		return nil
	})
}

func toURLModel(u *entity.URL) (*models.URLModel, error) {
	historyJSON, err := json.Marshal(u.ProcessingHistory)
	if err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("marshal processing history", err)
	}
	return &models.URLModel{
		ID:                   u.ID,
		URL:                  u.URL,
		ProcessingStatus:     string(u.ProcessingStatus),
		UserIntent:           string(u.UserIntent),
		ProcessingAttempts:   u.ProcessingAttempts,
		ProcessingHistory:    string(historyJSON),
		LastProcessingMethod: u.LastProcessingMethod,
		LinkedItemCount:      u.LinkedItemCount,
		CreatedAt:            u.CreatedAt,
		UpdatedAt:            u.UpdatedAt,
	}, nil
}

func toURLEntity(m *models.URLModel) (*entity.URL, error) {
	var history []entity.ProcessingAttempt
	if m.ProcessingHistory != "" {
		if err := json.Unmarshal([]byte(m.ProcessingHistory), &history); err != nil {
			return nil, domainErrors.NewInternalErrorWithCause("unmarshal processing history", err)
		}
	}
	return &entity.URL{
		ID:                   m.ID,
		URL:                  m.URL,
		ProcessingStatus:     valueobject.ProcessingStatus(m.ProcessingStatus),
		UserIntent:           valueobject.UserIntent(m.UserIntent),
		ProcessingAttempts:   m.ProcessingAttempts,
		ProcessingHistory:    history,
		LastProcessingMethod: m.LastProcessingMethod,
		LinkedItemCount:      m.LinkedItemCount,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}, nil
}

func toURLEntities(rows []models.URLModel) ([]*entity.URL, error) {
	out := make([]*entity.URL, 0, len(rows))
	for i := range rows {
		e, err := toURLEntity(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
