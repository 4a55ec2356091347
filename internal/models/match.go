package models

import (
	"time"
)

type Match struct {
	ID            uint       `gorm:"primaryKey"`
	MatchID       string     `gorm:"uniqueIndex;type:varchar(36);not null"`
	PlayerID      uint       `gorm:"not null;index"`
	Player        Account    `gorm:"foreignKey:PlayerID"`
	OpponentID    *uint      `gorm:"index"` // nil for solo play
	TemplateID    uint       `gorm:"not null;index"`
	Wager         int64      `gorm:"not null;check:wager >= 0"`
	Ranked        bool       `gorm:"default:false;not null"`
	Status        string     `gorm:"type:varchar(20);default:'started';not null;index"`
	PlayerScore   int        `gorm:"default:0;not null"`
	OpponentScore int        `gorm:"default:0;not null"`
	WinnerID      *uint      `gorm:"index"`
	Payout        int64      `gorm:"default:0;not null"`
	StartedAt     time.Time  `gorm:"default:CURRENT_TIMESTAMP;index"`
	EndedAt       *time.Time `gorm:"index"`
	Duration      int64      `gorm:"default:0;not null"` // whole seconds
	CreatedAt     time.Time  `gorm:"autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime"`
}

// Match status constants. A match leaves "started" exactly once and
// never re-enters it.
const (
	MatchStatusStarted   = "started"
	MatchStatusCompleted = "completed"
	MatchStatusWon       = "won"
	MatchStatusLost      = "lost"
	MatchStatusDraw      = "draw"
	MatchStatusAbandoned = "abandoned"
)

func (Match) TableName() string {
	return "matches"
}

// IsTerminal reports whether the match has been settled
func (m *Match) IsTerminal() bool {
	return m.Status != MatchStatusStarted
}

// IsFinishStatus reports whether s is a legal terminal status for FinishMatch
func IsFinishStatus(s string) bool {
	switch s {
	case MatchStatusCompleted, MatchStatusWon, MatchStatusLost, MatchStatusDraw, MatchStatusAbandoned:
		return true
	}
	return false
}

// GameTemplate describes a playable game type. Inactive templates
// cannot be used to start new matches.
type GameTemplate struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"type:varchar(100);not null;uniqueIndex"`
	MinWager  int64     `gorm:"default:0;not null"`
	MaxWager  int64     `gorm:"default:0;not null"` // 0 means no cap
	Active    bool      `gorm:"default:true;not null;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (GameTemplate) TableName() string {
	return "game_templates"
}
