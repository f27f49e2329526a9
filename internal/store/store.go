package store

import (
	"context"

	"github.com/chandrahoro/reading-service/internal/model"
)

// Store exposes persistence operations required by services.
// Implementations live under internal/store/<driver>/ (postgres, sqlite).
type Store interface {
	Users() Users
	Readings() Readings
}

type Users interface {
	Create(ctx context.Context, u *model.User) (*model.User, error)
	Get(ctx context.Context, userID string) (*model.User, error)
	// Delete removes the user and every reading they own.
	Delete(ctx context.Context, userID string) error
	// ListActive returns users eligible for scheduled generation.
	ListActive(ctx context.Context) ([]*model.User, error)
	// ConsumeQuota decrements a user's remaining daily quota and returns
	// what is left. Exhausted quota surfaces as model.ErrConflict.
	ConsumeQuota(ctx context.Context, userID string) (int, error)
	// ResetAllQuotas zeroes quota usage for every user and returns how
	// many rows changed.
	ResetAllQuotas(ctx context.Context) (int64, error)
}

type Readings interface {
	// Create inserts a new reading. A duplicate (userID, readingDate,
	// readingType) violates the unique constraint and surfaces as
	// model.ErrConflict.
	Create(ctx context.Context, r *model.Reading) (*model.Reading, error)
	// Get matches all three of userID, date and readingType exactly.
	Get(ctx context.Context, userID, date, readingType string) (*model.Reading, error)
	GetByID(ctx context.Context, readingID string) (*model.Reading, error)
	// List applies all supplied filters conjunctively, newest reading
	// date first. An empty page is a normal result, not ErrNotFound.
	List(ctx context.Context, userID string, f model.ReadingFilters) (*model.ReadingPage, error)
	// Latest returns the user's most recent reading by date.
	Latest(ctx context.Context, userID string) (*model.Reading, error)
	// Update patches by primary id only; ownership checks belong to the
	// caller. The update timestamp always bumps.
	Update(ctx context.Context, readingID string, p model.ReadingPatch) (*model.Reading, error)
	Delete(ctx context.Context, readingID string) error
	MarkRead(ctx context.Context, readingID string) error
	// ToggleSaved flips the bookmark flag and returns the new state.
	ToggleSaved(ctx context.Context, readingID string) (bool, error)
	AddFeedback(ctx context.Context, readingID, feedback string, rating *int) error
	Exists(ctx context.Context, userID, date, readingType string) (bool, error)
	Stats(ctx context.Context, userID string) (*model.ReadingStats, error)
	// DeleteAllForUser purges a user's readings in one transaction and
	// returns how many rows were removed.
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
	// Dates lists the distinct reading dates a user has inside an
	// inclusive range, newest first. Used for cache warming.
	Dates(ctx context.Context, userID, from, to string) ([]string, error)
}
