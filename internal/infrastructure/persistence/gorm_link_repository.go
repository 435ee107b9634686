package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/entity"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/repository"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/infrastructure/persistence/models"
	domainErrors "github.com/hortensia-labs/theodore-popyto-sub001/pkg/errors"
)

// GormLinkRepository is the gorm-backed implementation of repository.LinkRepository.
type GormLinkRepository struct {
	db *gorm.DB
}

// NewGormLinkRepository wires a gorm link repository.
func NewGormLinkRepository(db *gorm.DB) repository.LinkRepository {
	return &GormLinkRepository{db: db}
}

func (r *GormLinkRepository) FindByID(ctx context.Context, id string) (*entity.ZoteroItemLink, error) {
	var model models.LinkModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, entity.ErrLinkNotFound
		}
		return nil, domainErrors.NewInternalErrorWithCause("find link", err)
	}
	return toLinkEntity(&model), nil
}

func (r *GormLinkRepository) FindByURLID(ctx context.Context, urlID string) ([]*entity.ZoteroItemLink, error) {
	var rows []models.LinkModel
	if err := r.db.WithContext(ctx).Where("url_id = ?", urlID).Find(&rows).Error; err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("find links by url", err)
	}
	return toLinkEntities(rows), nil
}

func (r *GormLinkRepository) FindByItemKey(ctx context.Context, itemKey string) ([]*entity.ZoteroItemLink, error) {
	var rows []models.LinkModel
	if err := r.db.WithContext(ctx).Where("item_key = ?", itemKey).Find(&rows).Error; err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("find links by item key", err)
	}
	return toLinkEntities(rows), nil
}

func (r *GormLinkRepository) Save(ctx context.Context, link *entity.ZoteroItemLink) error {
	if err := r.db.WithContext(ctx).Save(toLinkModel(link)).Error; err != nil {
		return domainErrors.NewInternalErrorWithCause("save link", err)
	}
	return nil
}

func (r *GormLinkRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&models.LinkModel{}, "id = ?", id)
	if result.Error != nil {
		return domainErrors.NewInternalErrorWithCause("delete link", result.Error)
	}
	if result.RowsAffected == 0 {
		return entity.ErrLinkNotFound
	}
	return nil
}

func toLinkModel(l *entity.ZoteroItemLink) *models.LinkModel {
	return &models.LinkModel{
		ID:                   l.ID,
		URLID:                l.URLID,
		ItemKey:              l.ItemKey,
		CreatedByTheodore:    l.CreatedByTheodore,
		UserModifiedInZotero: l.UserModifiedInZotero,
		LinkedAt:             l.LinkedAt,
	}
}

func toLinkEntity(m *models.LinkModel) *entity.ZoteroItemLink {
	return &entity.ZoteroItemLink{
		ID:                   m.ID,
		URLID:                m.URLID,
		ItemKey:              m.ItemKey,
		CreatedByTheodore:    m.CreatedByTheodore,
		UserModifiedInZotero: m.UserModifiedInZotero,
		LinkedAt:             m.LinkedAt,
	}
}

func toLinkEntities(rows []models.LinkModel) []*entity.ZoteroItemLink {
	out := make([]*entity.ZoteroItemLink, 0, len(rows))
	for i := range rows {
		out = append(out, toLinkEntity(&rows[i]))
	}
	return out
}
