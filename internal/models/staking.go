package models

import (
	"time"

	"gorm.io/gorm"
)

// StakingRecord represents one stake deposit. Closed on unstake, never
// deleted. The sum of Amount over a user's active records equals the
// user's StakedAmount.
type StakingRecord struct {
	gorm.Model
	UserID     uint    `gorm:"index;not null"`
	Amount     float64 `gorm:"not null"`
	Multiplier float64 `gorm:"not null"` // tier at time of staking
	StartDate  time.Time
	EndDate    *time.Time
	IsActive   bool `gorm:"index;default:true"`

	// Relationships
	User User `gorm:"foreignKey:UserID"`
}
