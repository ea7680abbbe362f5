package models

import (
	"time"

	"gorm.io/gorm"
)

// ScrapedContent is one piece of external content pulled in by the sync
// pipeline, keyed globally by its provider shortcode.
type ScrapedContent struct {
	gorm.Model
	UserID    uint   `gorm:"index;not null"`
	Shortcode string `gorm:"size:64;uniqueIndex;not null"`
	Kind      string `gorm:"size:20"` // post or reel
	Caption   string `gorm:"type:text"`
	Likes     int
	Comments  int
	PostedAt  time.Time

	// Sentiment analysis results, filled in once scored
	SentimentScore      int
	SentimentCategory   string  `gorm:"size:20"`
	SentimentConfidence float64 `gorm:"default:0"`
	KarmaPoints         int
	KarmaAwarded        bool `gorm:"index;default:false"`
	AnalyzedAt          *time.Time

	// Relationships
	User User `gorm:"foreignKey:UserID"`
}
