package models

import (
	"time"

	"gorm.io/gorm"
)

// Activity types recognized by the valuation rules. Stake, unstake and
// redeem entries are written by the staking and redemption flows with
// their own base values.
const (
	ActivityPost    = "post"
	ActivityComment = "comment"
	ActivityLike    = "like"
	ActivityRepost  = "repost"
	ActivityReport  = "report"
	ActivityStake   = "stake"
	ActivityUnstake = "unstake"
	ActivityRedeem  = "redeem"
)

// ActivityRecord is one immutable karma-affecting ledger entry.
// FinalKarma is always Value * Multiplier and equals the delta applied to
// the owning user's balance in the same transaction.
type ActivityRecord struct {
	gorm.Model
	UserID     uint    `gorm:"index;not null"`
	Type       string  `gorm:"size:20;index;not null"`
	Value      float64 `gorm:"not null"`
	Multiplier float64 `gorm:"not null"`
	FinalKarma float64 `gorm:"not null"`
	// DedupKey guards against double-awarding the same external event,
	// e.g. a re-scraped piece of content. Empty for organic activities.
	DedupKey  *string   `gorm:"size:128;uniqueIndex"`
	Metadata  string    `gorm:"type:text"`
	Timestamp time.Time `gorm:"index;not null"`

	// Relationships
	User User `gorm:"foreignKey:UserID"`
}
