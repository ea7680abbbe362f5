package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents a platform user keyed by wallet address
type User struct {
	gorm.Model
	WalletAddress string  `gorm:"size:44;uniqueIndex;not null"`
	Email         string  `gorm:"size:255;index"`
	Username      string  `gorm:"size:64"`
	KarmaPoints   float64 `gorm:"default:0"`
	StakedAmount  float64 `gorm:"default:0"`
	// Multiplier is a cached projection of StakedAmount. It is only ever
	// written together with StakedAmount inside a staking transaction.
	Multiplier   float64   `gorm:"default:1"`
	LastActivity time.Time `gorm:"index"`
	IsActive     bool      `gorm:"default:true"`

	// Relationships
	Activities     []ActivityRecord `gorm:"foreignKey:UserID"`
	StakingRecords []StakingRecord  `gorm:"foreignKey:UserID"`
}
