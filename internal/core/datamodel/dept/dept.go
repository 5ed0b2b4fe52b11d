package dept

import "time"

type Dept struct {
	ID        int64     `gorm:"primaryKey" db:"id"`
	Name      string    `gorm:"column:name;size:64;not null" db:"name"`
	Status    int       `gorm:"column:status;not null" db:"status"`
	ParentID  *int64    `gorm:"column:parent_id;index" db:"parent_id"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" db:"created_at"`
}

func (Dept) TableName() string { return "sys_dept" }
