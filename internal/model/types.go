package model

import (
	"encoding/json"
	"time"
)

// DateLayout is the calendar-date form used in reading dates and cache keys.
const DateLayout = "2006-01-02"

// ReadingTypeDaily is the only reading type generated on a schedule; other
// types arrive through the same pipeline on demand.
const ReadingTypeDaily = "daily"

// User represents an account in the system.
type User struct {
	UserID         string     `json:"userId"`
	Email          string     `json:"email"`
	TimeZone       string     `json:"timeZone"`
	Status         string     `json:"status"`
	DailyQuota     int        `json:"dailyQuota"`
	QuotaUsed      int        `json:"quotaUsed"`
	CreationTime   time.Time  `json:"creationTime"`
	LastActiveTime *time.Time `json:"lastActiveTime,omitempty"`
}

// TimingWindow is one auspicious or inauspicious slot inside a reading.
type TimingWindow struct {
	Window   string `json:"window"`
	Activity string `json:"activity"`
	Reason   string `json:"reason"`
}

// Guidance holds the per-domain guidance text of a reading.
type Guidance struct {
	Work    string `json:"work"`
	Love    string `json:"love"`
	Health  string `json:"health"`
	Finance string `json:"finance"`
}

// Reading is one generated reading for a user on a calendar date.
// At most one reading exists per (UserID, ReadingDate, ReadingType).
type Reading struct {
	ReadingID   string `json:"readingId"`
	UserID      string `json:"userId"`
	ReadingType string `json:"readingType"`
	ReadingDate string `json:"readingDate"` // YYYY-MM-DD, no time component

	Highlights   []string        `json:"highlights"`
	Guidance     Guidance        `json:"guidance"`
	Auspicious   []TimingWindow  `json:"auspicious,omitempty"`
	Inauspicious []TimingWindow  `json:"inauspicious,omitempty"`
	Content      json.RawMessage `json:"content,omitempty"`

	IsSaved      bool    `json:"isSaved"`
	IsRead       bool    `json:"isRead"`
	UserFeedback *string `json:"userFeedback,omitempty"`
	Rating       *int    `json:"rating,omitempty"`

	ModelID       string    `json:"modelId"`
	TokensUsed    int       `json:"tokensUsed"`
	GenerationMs  int       `json:"generationMs"`
	PromptVersion string    `json:"promptVersion"`
	Published     bool      `json:"published"`
	GeneratedAt   time.Time `json:"generatedAt"`
	CreationTime  time.Time `json:"creationTime"`
	UpdateTime    time.Time `json:"updateTime"`
}

// ReadingPatch carries the mutable fields of a reading update. Nil fields
// are left untouched.
type ReadingPatch struct {
	IsSaved      *bool   `json:"isSaved,omitempty"`
	IsRead       *bool   `json:"isRead,omitempty"`
	UserFeedback *string `json:"userFeedback,omitempty"`
	Rating       *int    `json:"rating,omitempty"`
	Published    *bool   `json:"published,omitempty"`
}

// ReadingFilters captures the conjunctive filters for listing readings.
type ReadingFilters struct {
	ReadingType string
	SavedOnly   bool
	From        string // inclusive YYYY-MM-DD, empty = unbounded
	To          string // inclusive YYYY-MM-DD, empty = unbounded
	IsRead      *bool
	HasFeedback *bool
	Limit       int
	Offset      int
}

// ReadingPage is one page of a filtered listing.
type ReadingPage struct {
	Readings []*Reading `json:"readings"`
	HasMore  bool       `json:"hasMore"`
}

// ReadingStats aggregates per-user reading counts for dashboards.
type ReadingStats struct {
	Total         int            `json:"total"`
	ByType        map[string]int `json:"byType"`
	Saved         int            `json:"saved"`
	Read          int            `json:"read"`
	WithFeedback  int            `json:"withFeedback"`
	AverageRating float64        `json:"averageRating"`
}

// CacheStats is a point-in-time snapshot of the process-wide cache counters.
type CacheStats struct {
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	HitRate       float64 `json:"hitRate"`
	TotalRequests int64   `json:"totalRequests"`
}
