package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"github.com/pagetrail/internal/db"
	"gorm.io/gorm"
)

var (
	ErrTeamNotFound   = errors.New("team not found")
	ErrTeamNameEmpty  = errors.New("team name is required")
	ErrAccessCodeMiss = errors.New("access code is required")
)

const accessCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"

const accessCodeLength = 16

// TeamService 提供团队创建与通过邀请码加入团队的能力。
type TeamService struct {
	db *gorm.DB
}

// NewTeamService 构造 TeamService。
func NewTeamService(gdb *gorm.DB) *TeamService {
	return &TeamService{db: gdb}
}

// CreateTeam 创建团队并把创建者设为 owner。
func (s *TeamService) CreateTeam(ctx context.Context, name string, ownerID uint) (*db.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrTeamNameEmpty
	}

	code, err := randomAccessCode()
	if err != nil {
		return nil, err
	}

	team := db.Team{ID: uuid.NewString(), Name: name, AccessCode: code}
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&team).Error; err != nil {
			return err
		}
		return tx.Create(&db.TeamUser{ID: uuid.NewString(), TeamID: team.ID, UserID: ownerID, Role: db.RoleTeamOwner}).Error
	}); err != nil {
		return nil, err
	}
	return &team, nil
}

// GetTeamByAccessCode 按邀请码查找团队。
func (s *TeamService) GetTeamByAccessCode(ctx context.Context, accessCode string) (*db.Team, error) {
	var team db.Team
	err := s.db.WithContext(ctx).Where("access_code = ?", accessCode).Take(&team).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrTeamNotFound
	case err != nil:
		return nil, err
	}
	return &team, nil
}

// AddMember 添加成员；已是成员时返回既有关系而不是报错。
func (s *TeamService) AddMember(ctx context.Context, teamID string, userID uint, role string) (*db.TeamUser, error) {
	member := db.TeamUser{ID: uuid.NewString(), TeamID: teamID, UserID: userID, Role: role}
	err := s.db.WithContext(ctx).Create(&member).Error
	if err == nil {
		return &member, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, fmt.Errorf("add team member: %w", err)
	}

	var existing db.TeamUser
	if err := s.db.WithContext(ctx).Where("team_id = ? AND user_id = ?", teamID, userID).Take(&existing).Error; err != nil {
		return nil, err
	}
	return &existing, nil
}

// Join 以普通成员身份加入邀请码对应的团队。
func (s *TeamService) Join(ctx context.Context, accessCode string, userID uint) (*db.Team, error) {
	accessCode = strings.TrimSpace(accessCode)
	if accessCode == "" {
		return nil, ErrAccessCodeMiss
	}

	team, err := s.GetTeamByAccessCode(ctx, accessCode)
	if err != nil {
		return nil, err
	}

	if _, err := s.AddMember(ctx, team.ID, userID, db.RoleTeamMember); err != nil {
		return nil, err
	}
	return team, nil
}

// Members 列出团队成员。
func (s *TeamService) Members(ctx context.Context, teamID string) ([]db.TeamUser, error) {
	var members []db.TeamUser
	if err := s.db.WithContext(ctx).Where("team_id = ?", teamID).Order("created_at ASC").Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}

func randomAccessCode() (string, error) {
	buf := make([]byte, accessCodeLength)
	limit := big.NewInt(int64(len(accessCodeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		buf[i] = accessCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
