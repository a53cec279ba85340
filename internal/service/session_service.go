package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/pagetrail/internal/cache"
	"github.com/pagetrail/internal/db"
	"github.com/pagetrail/internal/detect"
	"github.com/pagetrail/internal/ident"
	applog "github.com/pagetrail/internal/logger"
	"github.com/pagetrail/internal/store"
	"github.com/pagetrail/internal/token"
)

// ErrWebsiteNotFound 表示站点不存在或已删除。与格式错误的 ID 不同，它会向上抛出。
var ErrWebsiteNotFound = errors.New("website not found")

// 与 db.Session 的列宽一致，超长的客户端输入在落库前截断。
const (
	hostnameMaxLength    = 100
	shortColumnMaxLength = 20
	screenMaxLength      = 11
	languageMaxLength    = 35
	countryMaxLength     = 2
	placeMaxLength       = 50
)

// SessionOptions 是启动时确定、请求期间只读的运行配置。
type SessionOptions struct {
	// CacheEnabled 时站点与会话经由查找缓存读取。
	CacheEnabled bool
	// ColumnarEnabled 时不做任何会话持久化。
	ColumnarEnabled bool
	// Salt 返回会话 ID 的盐；为空时使用固定空盐。
	Salt func() string
}

type sessionStore interface {
	GetWebsite(ctx context.Context, id string) (*db.Website, error)
	GetSession(ctx context.Context, id string) (*db.Session, error)
	CreateSession(ctx context.Context, session *db.Session) (store.CreateResult, error)
}

type cacheTokenParser interface {
	Parse(raw string) (*db.Session, bool)
}

type clientDetector interface {
	ClientInfo(r *http.Request, p *detect.Payload) detect.ClientInfo
}

// SessionService 把一次采集请求解析为稳定、去重的会话。
type SessionService struct {
	store    sessionStore
	cache    cache.LookupCache
	tokens   cacheTokenParser
	detector clientDetector
	opts     SessionOptions
	logger   *slog.Logger
}

// NewSessionService 构造 SessionService。lookup 为 nil 时缓存视为关闭。
func NewSessionService(st sessionStore, lookup cache.LookupCache, tokens cacheTokenParser, detector clientDetector, opts SessionOptions, logger *slog.Logger) *SessionService {
	if lookup == nil {
		opts.CacheEnabled = false
	}
	if opts.Salt == nil {
		opts.Salt = func() string { return "" }
	}
	if logger == nil {
		logger = applog.WithComponent("session")
	}
	return &SessionService{
		store:    st,
		cache:    lookup,
		tokens:   tokens,
		detector: detector,
		opts:     opts,
		logger:   logger,
	}
}

// FindSession 依次执行：载荷提取、缓存令牌、站点解析、会话解析。
// 返回 nil, nil 表示应丢弃该事件；error 仅用于站点缺失和存储故障。
func (s *SessionService) FindSession(ctx context.Context, r *http.Request, body *detect.CollectBody) (*db.Session, error) {
	if body == nil || body.Payload == nil {
		return nil, nil
	}
	payload := body.Payload

	if session, ok := s.tokens.Parse(r.Header.Get(token.HeaderName)); ok {
		return session, nil
	}

	websiteID := payload.Website
	if !ident.Valid(websiteID) {
		return nil, nil
	}

	if err := s.resolveWebsite(ctx, websiteID); err != nil {
		return nil, err
	}

	info := s.detector.ClientInfo(r, payload)
	session := &db.Session{
		ID:           ident.UUID(s.opts.Salt(), websiteID, payload.Hostname, info.IP, info.UserAgent),
		WebsiteID:    websiteID,
		Hostname:     truncate(payload.Hostname, hostnameMaxLength),
		Browser:      truncate(info.Browser, shortColumnMaxLength),
		OS:           truncate(info.OS, shortColumnMaxLength),
		Device:       truncate(info.Device, shortColumnMaxLength),
		Screen:       truncate(payload.Screen, screenMaxLength),
		Language:     truncate(payload.Language, languageMaxLength),
		Country:      truncate(info.Country, countryMaxLength),
		Subdivision1: truncate(info.Subdivision1, shortColumnMaxLength),
		Subdivision2: truncate(info.Subdivision2, placeMaxLength),
		City:         truncate(info.City, placeMaxLength),
	}

	// 列式存储不需要会话表
	if s.opts.ColumnarEnabled {
		return session, nil
	}

	return s.findOrCreate(ctx, session)
}

func (s *SessionService) resolveWebsite(ctx context.Context, id string) error {
	var (
		website *db.Website
		err     error
	)
	if s.opts.CacheEnabled {
		website, err = s.cache.FetchWebsite(ctx, id)
	} else {
		website, err = s.store.GetWebsite(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("resolve website %s: %w", id, err)
	}
	if website == nil || website.IsDeleted() {
		return fmt.Errorf("%w: %s", ErrWebsiteNotFound, id)
	}
	return nil
}

func (s *SessionService) findOrCreate(ctx context.Context, session *db.Session) (*db.Session, error) {
	var (
		existing *db.Session
		err      error
	)
	if s.opts.CacheEnabled {
		existing, err = s.cache.FetchSession(ctx, session.ID)
	} else {
		existing, err = s.store.GetSession(ctx, session.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("find session %s: %w", session.ID, err)
	}
	if existing != nil {
		return existing, nil
	}

	result, err := s.store.CreateSession(ctx, session)
	if err != nil {
		return nil, err
	}

	switch result {
	case store.AlreadyExists:
		return s.raceWinner(ctx, session), nil
	default:
		if s.opts.CacheEnabled {
			if err := s.cache.StoreSession(ctx, session); err != nil {
				s.logger.Warn("failed to cache new session", "session_id", session.ID, "error", err)
			}
		}
		return session, nil
	}
}

// raceWinner 在创建冲突后读取并发请求写入的那一行；读不到时退回本地构造的会话。
func (s *SessionService) raceWinner(ctx context.Context, local *db.Session) *db.Session {
	winner, err := s.store.GetSession(ctx, local.ID)
	if err != nil || winner == nil {
		s.logger.Warn("session create lost race, returning local copy", "session_id", local.ID, "error", err)
		return local
	}
	s.logger.Debug("session create lost race", "session_id", local.ID)
	return winner
}
