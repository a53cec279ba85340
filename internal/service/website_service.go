package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/pagetrail/internal/db"
	"gorm.io/gorm"
)

var ErrWebsiteNameEmpty = errors.New("website name is required")

type websiteInvalidator interface {
	DeleteWebsite(ctx context.Context, id string) error
}

// WebsiteService 管理被追踪站点的登记与删除。
type WebsiteService struct {
	db    *gorm.DB
	cache websiteInvalidator
}

// NewWebsiteService 构造 WebsiteService；cache 可为 nil。
func NewWebsiteService(gdb *gorm.DB, cache websiteInvalidator) *WebsiteService {
	return &WebsiteService{db: gdb, cache: cache}
}

// CreateWebsite 登记站点，可选归属团队。
func (s *WebsiteService) CreateWebsite(ctx context.Context, name, domain string, teamID *string) (*db.Website, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrWebsiteNameEmpty
	}

	site := db.Website{
		ID:     uuid.NewString(),
		Name:   name,
		Domain: strings.ToLower(strings.TrimSpace(domain)),
		TeamID: teamID,
	}
	if err := s.db.WithContext(ctx).Create(&site).Error; err != nil {
		return nil, err
	}
	return &site, nil
}

// DeleteWebsite 软删除站点并清理查找缓存，之后的上报将得到 ErrWebsiteNotFound。
func (s *WebsiteService) DeleteWebsite(ctx context.Context, id string) error {
	now := s.db.NowFunc()
	result := s.db.WithContext(ctx).Model(&db.Website{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Update("deleted_at", now)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrWebsiteNotFound
	}

	if s.cache != nil {
		if err := s.cache.DeleteWebsite(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
