package db

import "time"

// Website 表示一个被追踪的站点。DeletedAt 非空即视为不存在，
// 这里不用 gorm.DeletedAt，以便查询能读到已删除记录并显式判断。
type Website struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id"`
	Name      string     `gorm:"size:100;not null" json:"name"`
	Domain    string     `gorm:"size:500" json:"domain"`
	ShareID   *string    `gorm:"size:50;uniqueIndex" json:"shareId,omitempty"`
	UserID    *uint      `gorm:"index" json:"userId,omitempty"`
	TeamID    *string    `gorm:"size:36;index" json:"teamId,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `gorm:"index" json:"deletedAt,omitempty"`
}

// TableName 指定自定义表名。
func (Website) TableName() string {
	return "website"
}

// IsDeleted 判断站点是否已被软删除。
func (w *Website) IsDeleted() bool {
	return w.DeletedAt != nil
}
