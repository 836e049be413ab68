package models

import "time"

// Board types.
const (
	BoardTypeIRB             = "irb"
	BoardTypeResearchCouncil = "research_council"
)

// BoardRole is the role a user holds on a specific board. It is the only
// source of authority for workflow actions against that board's submissions.
type BoardRole string

const (
	BoardRoleCoordinator       BoardRole = "coordinator"
	BoardRoleMainReviewer      BoardRole = "main_reviewer"
	BoardRoleAssociateReviewer BoardRole = "associate_reviewer"
	BoardRoleStatistician      BoardRole = "statistician"
)

// ValidBoardRole reports whether role is one of the four member roles.
func ValidBoardRole(role BoardRole) bool {
	switch role {
	case BoardRoleCoordinator, BoardRoleMainReviewer, BoardRoleAssociateReviewer, BoardRoleStatistician:
		return true
	}
	return false
}

// Board represents an IRB or research council instance. Each board owns its
// own sections, questions, members and submissions. Institutions live in an
// external service; only the reference is stored here.
type Board struct {
	BoardID       int    `gorm:"primaryKey;column:board_id" json:"board_id"`
	BoardName     string `gorm:"column:board_name" json:"board_name"`
	BoardType     string `gorm:"column:board_type" json:"board_type"`
	InstitutionID *int   `gorm:"column:institution_id" json:"institution_id,omitempty"`
	IsActive      bool   `gorm:"column:is_active" json:"is_active"`

	// AI prefill configuration, managed by board administration.
	AIEnabled   bool   `gorm:"column:ai_enabled" json:"ai_enabled"`
	AIProvider  string `gorm:"column:ai_provider" json:"ai_provider"`
	AIModel     string `gorm:"column:ai_model" json:"ai_model"`
	AIMaxTokens int    `gorm:"column:ai_max_tokens" json:"ai_max_tokens"`

	CreateAt *time.Time `gorm:"column:create_at" json:"create_at"`
	UpdateAt *time.Time `gorm:"column:update_at" json:"update_at"`
	DeleteAt *time.Time `gorm:"column:delete_at" json:"delete_at,omitempty"`

	Sections []Section     `gorm:"foreignKey:BoardID" json:"sections,omitempty"`
	Members  []BoardMember `gorm:"foreignKey:BoardID" json:"members,omitempty"`
}

// BoardMember grants a user a role on one board. A user may hold different
// roles on different boards.
type BoardMember struct {
	MemberID  int       `gorm:"primaryKey;column:member_id" json:"member_id"`
	BoardID   int       `gorm:"column:board_id" json:"board_id"`
	UserID    int       `gorm:"column:user_id" json:"user_id"`
	Role      BoardRole `gorm:"column:role" json:"role"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// TableName overrides
func (Board) TableName() string {
	return "boards"
}

func (BoardMember) TableName() string {
	return "board_members"
}
