package postgres

import (
	"context"
	"errors"

	"github.com/frahmantamala/rbac-admin/internal/core/datamodel/sysconfig"
	"github.com/frahmantamala/rbac-admin/internal/session"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SettingRepository struct {
	db *gorm.DB
}

func NewSettingRepository(db *gorm.DB) *SettingRepository {
	return &SettingRepository{db: db}
}

var _ session.SettingStore = (*SettingRepository)(nil)

func (r *SettingRepository) GetEnabledValue(ctx context.Context, key string) (string, bool, error) {
	var cfg sysconfig.Config
	err := r.db.WithContext(ctx).
		Where(clause.Eq{Column: clause.Column{Name: "key"}, Value: key}).
		Where("status = ?", sysconfig.StatusEnabled).
		First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return cfg.Value, true, nil
}

// Upsert writes an enabled setting, replacing the value of an existing key.
func (r *SettingRepository) Upsert(ctx context.Context, key, value string) error {
	cfg := sysconfig.Config{Key: key, Value: value, Status: sysconfig.StatusEnabled}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "status", "updated_at"}),
	}).Create(&cfg).Error
}
