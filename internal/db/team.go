package db

import "time"

const (
	RoleAdmin      = "admin"
	RoleUser       = "user"
	RoleTeamOwner  = "team-owner"
	RoleTeamMember = "team-member"
)

// Team 团队，成员通过邀请码加入。
type Team struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	Name       string    `gorm:"size:50;not null" json:"name"`
	AccessCode string    `gorm:"size:50;uniqueIndex" json:"accessCode"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// TableName 指定自定义表名。
func (Team) TableName() string {
	return "team"
}

// TeamUser 团队成员关系，同一用户在同一团队只能出现一次。
type TeamUser struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	TeamID    string    `gorm:"size:36;uniqueIndex:idx_team_user;not null" json:"teamId"`
	UserID    uint      `gorm:"uniqueIndex:idx_team_user;not null" json:"userId"`
	Role      string    `gorm:"size:50;not null" json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName 指定自定义表名。
func (TeamUser) TableName() string {
	return "team_user"
}
