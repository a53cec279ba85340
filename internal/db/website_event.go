package db

import "time"

const (
	// EventTypePageView 普通页面浏览。
	EventTypePageView = 1
	// EventTypeCustom 自定义事件。
	EventTypeCustom = 2
)

// WebsiteEvent 记录一次页面浏览或自定义事件。
type WebsiteEvent struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	WebsiteID      string    `gorm:"size:36;index:idx_website_event_website_created;not null" json:"websiteId"`
	SessionID      string    `gorm:"size:36;index;not null" json:"sessionId"`
	CreatedAt      time.Time `gorm:"index:idx_website_event_website_created" json:"createdAt"`
	URLPath        string    `gorm:"size:500" json:"urlPath"`
	URLQuery       string    `gorm:"size:500" json:"urlQuery"`
	ReferrerPath   string    `gorm:"size:500" json:"referrerPath"`
	ReferrerQuery  string    `gorm:"size:500" json:"referrerQuery"`
	ReferrerDomain string    `gorm:"size:500" json:"referrerDomain"`
	PageTitle      string    `gorm:"size:500" json:"pageTitle"`
	EventType      int       `gorm:"default:1" json:"eventType"`
	EventName      string    `gorm:"size:50" json:"eventName"`
}

// TableName 指定自定义表名。
func (WebsiteEvent) TableName() string {
	return "website_event"
}
