package db

import "time"

// Session 记录一个去重后的访客会话。ID 由站点、主机名、IP、UA 确定性派生，
// 主键唯一约束保证并发创建时只会落库一次。
type Session struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	WebsiteID    string    `gorm:"size:36;index;not null" json:"websiteId"`
	Hostname     string    `gorm:"size:100" json:"hostname"`
	Browser      string    `gorm:"size:20" json:"browser"`
	OS           string    `gorm:"column:os;size:20" json:"os"`
	Device       string    `gorm:"size:20" json:"device"`
	Screen       string    `gorm:"size:11" json:"screen"`
	Language     string    `gorm:"size:35" json:"language"`
	Country      string    `gorm:"size:2" json:"country"`
	Subdivision1 string    `gorm:"size:20" json:"subdivision1"`
	Subdivision2 string    `gorm:"size:50" json:"subdivision2"`
	City         string    `gorm:"size:50" json:"city"`
	CreatedAt    time.Time `json:"createdAt"`
}

// TableName 指定自定义表名。
func (Session) TableName() string {
	return "session"
}
