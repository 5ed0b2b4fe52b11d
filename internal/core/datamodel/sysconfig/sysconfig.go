package sysconfig

import "time"

const (
	StatusDisabled = 0
	StatusEnabled  = 1
)

type Config struct {
	ID        int64     `gorm:"primaryKey"`
	Key       string    `gorm:"column:key;size:128;uniqueIndex;not null"`
	Value     string    `gorm:"column:value;size:1024"`
	Status    int       `gorm:"column:status;not null"`
	Remark    string    `gorm:"column:remark;size:255"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Config) TableName() string { return "sys_config" }
