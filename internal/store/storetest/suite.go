package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/chandrahoro/reading-service/internal/model"
	"github.com/chandrahoro/reading-service/internal/store"
)

func date(daysAgo int) string {
	return time.Now().UTC().AddDate(0, 0, -daysAgo).Format(model.DateLayout)
}

// Run exercises a compliance suite against a store.Store implementation.
// Implementations should provide a clean, isolated store from makeStore.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	s := makeStore(t)
	ctx := context.Background()

	userID := "u-" + uuid.New().String()
	email := userID + "@example.test"

	// Users
	u, err := s.Users().Create(ctx, &model.User{UserID: userID, Email: email, TimeZone: "Asia/Kolkata", DailyQuota: 3})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.Status != "ACTIVE" || u.QuotaUsed != 0 {
		t.Fatalf("CreateUser defaults: %+v", u)
	}
	if got, err := s.Users().Get(ctx, userID); err != nil || got.UserID != userID {
		t.Fatalf("GetUser: got=%v err=%v", got, err)
	}
	if _, err := s.Users().Get(ctx, "nope-"+userID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetUser missing: want ErrNotFound, got %v", err)
	}

	// Readings: create and composite-key lookup
	today := date(0)
	r1, err := s.Readings().Create(ctx, &model.Reading{
		UserID:      userID,
		ReadingType: model.ReadingTypeDaily,
		ReadingDate: today,
		Highlights:  []string{"favorable morning", "avoid travel after sunset"},
		Guidance:    model.Guidance{Work: "steady", Love: "warm", Health: "rest", Finance: "hold"},
		Auspicious:  []model.TimingWindow{{Window: "06:00-07:30", Activity: "planning", Reason: "abhijit muhurta"}},
		ModelID:     "jyotish-v2", TokensUsed: 812, GenerationMs: 1740, PromptVersion: "v3", Published: true,
	})
	if err != nil {
		t.Fatalf("CreateReading: %v", err)
	}
	if r1.ReadingID == "" || r1.CreationTime.IsZero() {
		t.Fatalf("CreateReading: missing id/timestamps: %+v", r1)
	}

	got, err := s.Readings().Get(ctx, userID, today, model.ReadingTypeDaily)
	if err != nil {
		t.Fatalf("GetReading: %v", err)
	}
	if got.ReadingID != r1.ReadingID || len(got.Highlights) != 2 || got.Guidance.Work != "steady" {
		t.Fatalf("GetReading roundtrip: %+v", got)
	}

	// Same (user, date) but a different type is not found.
	if _, err := s.Readings().Get(ctx, userID, today, "transit"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetReading other type: want ErrNotFound, got %v", err)
	}

	// Uniqueness is a database constraint, not an app-level check.
	if _, err := s.Readings().Create(ctx, &model.Reading{
		UserID: userID, ReadingType: model.ReadingTypeDaily, ReadingDate: today,
	}); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("duplicate Create: want ErrConflict, got %v", err)
	}

	// Exists
	if ok, err := s.Readings().Exists(ctx, userID, today, model.ReadingTypeDaily); err != nil || !ok {
		t.Fatalf("Exists: ok=%v err=%v", ok, err)
	}
	if ok, err := s.Readings().Exists(ctx, userID, today, "transit"); err != nil || ok {
		t.Fatalf("Exists other type: ok=%v err=%v", ok, err)
	}

	// Older readings for list/date filters
	for i := 1; i <= 3; i++ {
		if _, err := s.Readings().Create(ctx, &model.Reading{
			UserID: userID, ReadingType: model.ReadingTypeDaily, ReadingDate: date(i), Published: true,
		}); err != nil {
			t.Fatalf("CreateReading day-%d: %v", i, err)
		}
	}

	// List: newest first, limit drives hasMore
	page, err := s.Readings().List(ctx, userID, model.ReadingFilters{Limit: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Readings) != 2 || !page.HasMore {
		t.Fatalf("List page: n=%d hasMore=%v", len(page.Readings), page.HasMore)
	}
	if page.Readings[0].ReadingDate != today {
		t.Fatalf("List ordering: first=%s want=%s", page.Readings[0].ReadingDate, today)
	}

	// Date range is inclusive on both ends.
	page, err = s.Readings().List(ctx, userID, model.ReadingFilters{From: date(2), To: date(1), Limit: 10})
	if err != nil || len(page.Readings) != 2 || page.HasMore {
		t.Fatalf("List range: n=%d hasMore=%v err=%v", len(page.Readings), page.HasMore, err)
	}

	// Latest
	if latest, err := s.Readings().Latest(ctx, userID); err != nil || latest.ReadingDate != today {
		t.Fatalf("Latest: got=%v err=%v", latest, err)
	}

	// MarkRead / ToggleSaved / AddFeedback bump update_time
	before := got.UpdateTime
	time.Sleep(5 * time.Millisecond)
	if err := s.Readings().MarkRead(ctx, r1.ReadingID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	saved, err := s.Readings().ToggleSaved(ctx, r1.ReadingID)
	if err != nil || !saved {
		t.Fatalf("ToggleSaved: saved=%v err=%v", saved, err)
	}
	rating := 4
	if err := s.Readings().AddFeedback(ctx, r1.ReadingID, "uncannily accurate", &rating); err != nil {
		t.Fatalf("AddFeedback: %v", err)
	}
	got, err = s.Readings().GetByID(ctx, r1.ReadingID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !got.IsRead || !got.IsSaved || got.UserFeedback == nil || *got.Rating != 4 {
		t.Fatalf("flag mutations: %+v", got)
	}
	if !got.UpdateTime.After(before) {
		t.Fatalf("update_time did not advance: before=%v after=%v", before, got.UpdateTime)
	}

	// Filters compose with AND semantics.
	savedOnly := true
	page, err = s.Readings().List(ctx, userID, model.ReadingFilters{SavedOnly: savedOnly, IsRead: &savedOnly, HasFeedback: &savedOnly, Limit: 10})
	if err != nil || len(page.Readings) != 1 || page.Readings[0].ReadingID != r1.ReadingID {
		t.Fatalf("List conjunctive: n=%d err=%v", len(page.Readings), err)
	}

	// Update via patch
	published := false
	upd, err := s.Readings().Update(ctx, r1.ReadingID, model.ReadingPatch{Published: &published})
	if err != nil || upd.Published {
		t.Fatalf("Update: got=%+v err=%v", upd, err)
	}
	if _, err := s.Readings().Update(ctx, "missing-id", model.ReadingPatch{Published: &published}); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Update missing: want ErrNotFound, got %v", err)
	}

	// Stats
	st, err := s.Readings().Stats(ctx, userID)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Total != 4 || st.Saved != 1 || st.WithFeedback != 1 || st.ByType[model.ReadingTypeDaily] != 4 {
		t.Fatalf("Stats: %+v", st)
	}

	// Dates for warming, newest first
	dates, err := s.Readings().Dates(ctx, userID, date(2), today)
	if err != nil || len(dates) != 3 || dates[0] != today {
		t.Fatalf("Dates: got=%v err=%v", dates, err)
	}

	// Quota: 3 allowed, 4th is a conflict
	for i := 0; i < 3; i++ {
		if _, err := s.Users().ConsumeQuota(ctx, userID); err != nil {
			t.Fatalf("ConsumeQuota %d: %v", i, err)
		}
	}
	if _, err := s.Users().ConsumeQuota(ctx, userID); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("ConsumeQuota exhausted: want ErrConflict, got %v", err)
	}
	if n, err := s.Users().ResetAllQuotas(ctx); err != nil || n != 1 {
		t.Fatalf("ResetAllQuotas: n=%d err=%v", n, err)
	}
	if _, err := s.Users().ConsumeQuota(ctx, userID); err != nil {
		t.Fatalf("ConsumeQuota after reset: %v", err)
	}

	// GDPR purge is transactional and total.
	n, err := s.Readings().DeleteAllForUser(ctx, userID)
	if err != nil || n != 4 {
		t.Fatalf("DeleteAllForUser: n=%d err=%v", n, err)
	}
	page, err = s.Readings().List(ctx, userID, model.ReadingFilters{Limit: 10})
	if err != nil || len(page.Readings) != 0 {
		t.Fatalf("List after purge: n=%d err=%v", len(page.Readings), err)
	}

	// Deleting a missing reading is ErrNotFound, distinct from the empty list above.
	if err := s.Readings().Delete(ctx, r1.ReadingID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Delete purged reading: want ErrNotFound, got %v", err)
	}

	// User delete cascades.
	if err := s.Users().Delete(ctx, userID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, err := s.Users().Get(ctx, userID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetUser after delete: want ErrNotFound, got %v", err)
	}
}
