package ledger

import (
	"context"

	"gorm.io/gorm"

	types "github.com/yungbote/docchat-backend/internal/domain"
	"github.com/yungbote/docchat-backend/internal/platform/logger"
)

type IngestedChunkRepo interface {
	GetBySourceKeys(ctx context.Context, tx *gorm.DB, sourceKeys []string) ([]*types.IngestedChunk, error)
	// ReplaceForSources makes rows the complete record for sourceKeys.
	ReplaceForSources(ctx context.Context, tx *gorm.DB, sourceKeys []string, rows []*types.IngestedChunk) error
	FullDeleteBySourceKeys(ctx context.Context, tx *gorm.DB, sourceKeys []string) error
	ListSourceKeys(ctx context.Context, tx *gorm.DB) ([]string, error)
}

type ingestedChunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewIngestedChunkRepo(db *gorm.DB, baseLog *logger.Logger) IngestedChunkRepo {
	return &ingestedChunkRepo{db: db, log: baseLog.With("repo", "IngestedChunkRepo")}
}

func (r *ingestedChunkRepo) GetBySourceKeys(ctx context.Context, tx *gorm.DB, sourceKeys []string) ([]*types.IngestedChunk, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.IngestedChunk
	if len(sourceKeys) == 0 {
		return out, nil
	}
	if err := t.WithContext(ctx).
		Where("source_key IN ?", sourceKeys).
		Order("source_key ASC, chunk_id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ingestedChunkRepo) ReplaceForSources(ctx context.Context, tx *gorm.DB, sourceKeys []string, rows []*types.IngestedChunk) error {
	t := tx
	if t == nil {
		t = r.db
	}
	if len(sourceKeys) == 0 && len(rows) == 0 {
		return nil
	}
	return t.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		if len(sourceKeys) > 0 {
			if err := txx.Where("source_key IN ?", sourceKeys).
				Delete(&types.IngestedChunk{}).Error; err != nil {
				return err
			}
		}
		if len(rows) == 0 {
			return nil
		}
		return txx.CreateInBatches(rows, 200).Error
	})
}

func (r *ingestedChunkRepo) FullDeleteBySourceKeys(ctx context.Context, tx *gorm.DB, sourceKeys []string) error {
	t := tx
	if t == nil {
		t = r.db
	}
	if len(sourceKeys) == 0 {
		return nil
	}
	return t.WithContext(ctx).
		Where("source_key IN ?", sourceKeys).
		Delete(&types.IngestedChunk{}).Error
}

func (r *ingestedChunkRepo) ListSourceKeys(ctx context.Context, tx *gorm.DB) ([]string, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []string
	if err := t.WithContext(ctx).
		Model(&types.IngestedChunk{}).
		Distinct("source_key").
		Order("source_key ASC").
		Pluck("source_key", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
