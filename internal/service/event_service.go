package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pagetrail/internal/db"
	"github.com/pagetrail/internal/detect"
	"gorm.io/gorm"
)

const (
	urlMaxLength       = 500
	pageTitleMaxLength = 500
	eventNameMaxLength = 50
)

// ErrInvalidEvent 表示缺少会话或载荷。
var ErrInvalidEvent = errors.New("invalid event")

type eventSink interface {
	Send(ctx context.Context, key string, value any) error
}

// ColumnarEvent 是写入列式存储的扁平化事件，带上会话维度以免下游再做关联。
type ColumnarEvent struct {
	EventID        string    `json:"event_id"`
	WebsiteID      string    `json:"website_id"`
	SessionID      string    `json:"session_id"`
	CreatedAt      time.Time `json:"created_at"`
	URLPath        string    `json:"url_path"`
	URLQuery       string    `json:"url_query"`
	ReferrerPath   string    `json:"referrer_path"`
	ReferrerQuery  string    `json:"referrer_query"`
	ReferrerDomain string    `json:"referrer_domain"`
	PageTitle      string    `json:"page_title"`
	EventType      int       `json:"event_type"`
	EventName      string    `json:"event_name"`
	Hostname       string    `json:"hostname"`
	Browser        string    `json:"browser"`
	OS             string    `json:"os"`
	Device         string    `json:"device"`
	Screen         string    `json:"screen"`
	Language       string    `json:"language"`
	Country        string    `json:"country"`
	Subdivision1   string    `json:"subdivision1"`
	Subdivision2   string    `json:"subdivision2"`
	City           string    `json:"city"`
}

// EventService 记录页面浏览与自定义事件。
type EventService struct {
	db       *gorm.DB
	sink     eventSink
	columnar bool
	now      func() time.Time
}

// NewEventService 构造 EventService；columnar 为 true 时事件写入 sink，否则写入关系库。
func NewEventService(gdb *gorm.DB, sink eventSink, columnar bool) *EventService {
	return &EventService{db: gdb, sink: sink, columnar: columnar, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock 允许测试固定时间。
func (s *EventService) WithClock(now func() time.Time) *EventService {
	if now != nil {
		s.now = now
	}
	return s
}

// RecordEvent 根据载荷构造事件并持久化。
func (s *EventService) RecordEvent(ctx context.Context, session *db.Session, p *detect.Payload) (*db.WebsiteEvent, error) {
	if session == nil || p == nil {
		return nil, ErrInvalidEvent
	}

	event := BuildEvent(session, p, s.now())

	if s.columnar {
		if s.sink == nil {
			return nil, errors.New("columnar backend has no event sink")
		}
		if err := s.sink.Send(ctx, session.ID, toColumnar(event, session)); err != nil {
			return nil, fmt.Errorf("publish event: %w", err)
		}
		return event, nil
	}

	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return nil, fmt.Errorf("save event: %w", err)
	}
	return event, nil
}

// BuildEvent 拆分 URL 与来源，来源与当前主机相同时不记录来源域名。
func BuildEvent(session *db.Session, p *detect.Payload, now time.Time) *db.WebsiteEvent {
	urlPath, urlQuery, _ := splitURL(p.URL)
	refPath, refQuery, refDomain := splitURL(p.Referrer)
	if refDomain != "" && strings.EqualFold(refDomain, p.Hostname) {
		refDomain = ""
	}

	event := &db.WebsiteEvent{
		ID:             uuid.NewString(),
		WebsiteID:      session.WebsiteID,
		SessionID:      session.ID,
		CreatedAt:      now,
		URLPath:        truncate(urlPath, urlMaxLength),
		URLQuery:       truncate(urlQuery, urlMaxLength),
		ReferrerPath:   truncate(refPath, urlMaxLength),
		ReferrerQuery:  truncate(refQuery, urlMaxLength),
		ReferrerDomain: truncate(refDomain, urlMaxLength),
		PageTitle:      truncate(p.Title, pageTitleMaxLength),
		EventType:      db.EventTypePageView,
	}
	if name := strings.TrimSpace(p.Name); name != "" {
		event.EventType = db.EventTypeCustom
		event.EventName = truncate(name, eventNameMaxLength)
	}
	return event
}

func toColumnar(e *db.WebsiteEvent, s *db.Session) ColumnarEvent {
	return ColumnarEvent{
		EventID:        e.ID,
		WebsiteID:      e.WebsiteID,
		SessionID:      e.SessionID,
		CreatedAt:      e.CreatedAt,
		URLPath:        e.URLPath,
		URLQuery:       e.URLQuery,
		ReferrerPath:   e.ReferrerPath,
		ReferrerQuery:  e.ReferrerQuery,
		ReferrerDomain: e.ReferrerDomain,
		PageTitle:      e.PageTitle,
		EventType:      e.EventType,
		EventName:      e.EventName,
		Hostname:       s.Hostname,
		Browser:        s.Browser,
		OS:             s.OS,
		Device:         s.Device,
		Screen:         s.Screen,
		Language:       s.Language,
		Country:        s.Country,
		Subdivision1:   s.Subdivision1,
		Subdivision2:   s.Subdivision2,
		City:           s.City,
	}
}

// splitURL 接受绝对地址或仅路径的地址，解析失败时整体当作路径。
func splitURL(raw string) (path, query, host string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw, "", ""
	}
	return u.Path, u.RawQuery, u.Hostname()
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
