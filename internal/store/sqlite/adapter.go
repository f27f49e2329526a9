package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chandrahoro/reading-service/internal/model"
	"github.com/chandrahoro/reading-service/internal/store"
)

// NewWithDB constructs a SQLite store over an existing connection. Unlike
// the Postgres driver, all timestamps are generated in Go and bound as
// parameters.
func NewWithDB(db *sql.DB) store.Store { return &sqliteStore{db: db} }

type sqliteStore struct{ db *sql.DB }

func (s *sqliteStore) Users() store.Users       { return &users{db: s.db} }
func (s *sqliteStore) Readings() store.Readings { return &readings{db: s.db} }

// HealthPing implements health.HealthPinger.
func (s *sqliteStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return model.ErrConflict
	}
	return fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
}

// --- Users ---

type users struct{ db *sql.DB }

func (u *users) Create(ctx context.Context, m *model.User) (*model.User, error) {
	id := m.UserID
	if id == "" {
		id = uuid.New().String()
	}
	quota := m.DailyQuota
	if quota <= 0 {
		quota = 25
	}
	tz := m.TimeZone
	if tz == "" {
		tz = "UTC"
	}
	now := time.Now().UTC()
	_, err := u.db.ExecContext(ctx, `
        INSERT INTO users (user_id, email, time_zone, status, daily_quota, quota_used, creation_time)
        VALUES (?,?,?,'ACTIVE',?,0,?)
    `, id, m.Email, tz, quota, now)
	if err != nil {
		return nil, mapErr(err)
	}
	out := *m
	out.UserID = id
	out.TimeZone = tz
	out.Status = "ACTIVE"
	out.DailyQuota = quota
	out.QuotaUsed = 0
	out.CreationTime = now
	return &out, nil
}

func (u *users) Get(ctx context.Context, userID string) (*model.User, error) {
	var out model.User
	row := u.db.QueryRowContext(ctx, `
        SELECT user_id, email, time_zone, status, daily_quota, quota_used, creation_time, last_active_time
        FROM users WHERE user_id=?
    `, userID)
	if err := row.Scan(&out.UserID, &out.Email, &out.TimeZone, &out.Status,
		&out.DailyQuota, &out.QuotaUsed, &out.CreationTime, &out.LastActiveTime); err != nil {
		return nil, mapErr(err)
	}
	return &out, nil
}

func (u *users) Delete(ctx context.Context, userID string) error {
	tx, err := u.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return mapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM readings WHERE user_id=?`, userID); err != nil {
		return mapErr(err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE user_id=?`, userID)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return mapErr(tx.Commit())
}

func (u *users) ListActive(ctx context.Context) ([]*model.User, error) {
	rows, err := u.db.QueryContext(ctx, `
        SELECT user_id, email, time_zone, status, daily_quota, quota_used, creation_time, last_active_time
        FROM users WHERE status='ACTIVE' ORDER BY creation_time
    `)
	if err != nil {
		return nil, mapErr(err)
	}
	defer func() { _ = rows.Close() }()
	var out []*model.User
	for rows.Next() {
		var m model.User
		if err := rows.Scan(&m.UserID, &m.Email, &m.TimeZone, &m.Status,
			&m.DailyQuota, &m.QuotaUsed, &m.CreationTime, &m.LastActiveTime); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, &m)
	}
	return out, mapErr(rows.Err())
}

func (u *users) ConsumeQuota(ctx context.Context, userID string) (int, error) {
	now := time.Now().UTC()
	res, err := u.db.ExecContext(ctx, `
        UPDATE users SET quota_used = quota_used + 1, last_active_time = ?
        WHERE user_id=? AND quota_used < daily_quota
    `, now, userID)
	if err != nil {
		return 0, mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, gerr := u.Get(ctx, userID); gerr != nil {
			return 0, gerr
		}
		return 0, fmt.Errorf("%w: daily quota exhausted", model.ErrConflict)
	}
	got, err := u.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	return got.DailyQuota - got.QuotaUsed, nil
}

func (u *users) ResetAllQuotas(ctx context.Context) (int64, error) {
	res, err := u.db.ExecContext(ctx, `UPDATE users SET quota_used = 0 WHERE quota_used <> 0`)
	if err != nil {
		return 0, mapErr(err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// --- Readings ---

type readings struct{ db *sql.DB }

const readingColumns = `reading_id, user_id, reading_type, reading_date,
    highlights, guidance, auspicious, inauspicious, content,
    is_saved, is_read, user_feedback, rating,
    model_id, tokens_used, generation_ms, prompt_version, published,
    generated_at, creation_time, update_time`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReading(row rowScanner) (*model.Reading, error) {
	var r model.Reading
	var highlights, guidance, auspicious, inauspicious, content sql.NullString
	if err := row.Scan(&r.ReadingID, &r.UserID, &r.ReadingType, &r.ReadingDate,
		&highlights, &guidance, &auspicious, &inauspicious, &content,
		&r.IsSaved, &r.IsRead, &r.UserFeedback, &r.Rating,
		&r.ModelID, &r.TokensUsed, &r.GenerationMs, &r.PromptVersion, &r.Published,
		&r.GeneratedAt, &r.CreationTime, &r.UpdateTime); err != nil {
		return nil, err
	}
	if highlights.Valid {
		_ = json.Unmarshal([]byte(highlights.String), &r.Highlights)
	}
	if guidance.Valid {
		_ = json.Unmarshal([]byte(guidance.String), &r.Guidance)
	}
	if auspicious.Valid {
		_ = json.Unmarshal([]byte(auspicious.String), &r.Auspicious)
	}
	if inauspicious.Valid {
		_ = json.Unmarshal([]byte(inauspicious.String), &r.Inauspicious)
	}
	if content.Valid && content.String != "" {
		r.Content = json.RawMessage(content.String)
	}
	return &r, nil
}

func nullIfEmpty(b []byte) interface{} {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	return string(b)
}

func (re *readings) Create(ctx context.Context, r *model.Reading) (*model.Reading, error) {
	id := r.ReadingID
	if id == "" {
		id = uuid.New().String()
	}
	readingType := r.ReadingType
	if readingType == "" {
		readingType = model.ReadingTypeDaily
	}
	now := time.Now().UTC()
	generatedAt := r.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = now
	}
	highlights, _ := json.Marshal(r.Highlights)
	guidance, _ := json.Marshal(r.Guidance)
	auspicious, _ := json.Marshal(r.Auspicious)
	inauspicious, _ := json.Marshal(r.Inauspicious)

	_, err := re.db.ExecContext(ctx, `
        INSERT INTO readings (reading_id, user_id, reading_type, reading_date,
            highlights, guidance, auspicious, inauspicious, content,
            is_saved, is_read, user_feedback, rating,
            model_id, tokens_used, generation_ms, prompt_version, published,
            generated_at, creation_time, update_time)
        VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
    `, id, r.UserID, readingType, r.ReadingDate,
		nullIfEmpty(highlights), nullIfEmpty(guidance), nullIfEmpty(auspicious), nullIfEmpty(inauspicious), nullIfEmpty([]byte(r.Content)),
		r.IsSaved, r.IsRead, r.UserFeedback, r.Rating,
		r.ModelID, r.TokensUsed, r.GenerationMs, r.PromptVersion, r.Published,
		generatedAt, now, now)
	if err != nil {
		return nil, mapErr(err)
	}
	out := *r
	out.ReadingID = id
	out.ReadingType = readingType
	out.GeneratedAt = generatedAt
	out.CreationTime = now
	out.UpdateTime = now
	return &out, nil
}

func (re *readings) Get(ctx context.Context, userID, date, readingType string) (*model.Reading, error) {
	row := re.db.QueryRowContext(ctx, `
        SELECT `+readingColumns+`
        FROM readings WHERE user_id=? AND reading_date=? AND reading_type=?
    `, userID, date, readingType)
	r, err := scanReading(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return r, nil
}

func (re *readings) GetByID(ctx context.Context, readingID string) (*model.Reading, error) {
	row := re.db.QueryRowContext(ctx, `
        SELECT `+readingColumns+`
        FROM readings WHERE reading_id=?
    `, readingID)
	r, err := scanReading(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return r, nil
}

func (re *readings) List(ctx context.Context, userID string, f model.ReadingFilters) (*model.ReadingPage, error) {
	query := `SELECT ` + readingColumns + ` FROM readings WHERE user_id=?`
	args := []interface{}{userID}
	if f.ReadingType != "" {
		query += " AND reading_type=?"
		args = append(args, f.ReadingType)
	}
	if f.SavedOnly {
		query += " AND is_saved"
	}
	if f.From != "" {
		query += " AND reading_date >= ?"
		args = append(args, f.From)
	}
	if f.To != "" {
		query += " AND reading_date <= ?"
		args = append(args, f.To)
	}
	if f.IsRead != nil {
		query += " AND is_read = ?"
		args = append(args, *f.IsRead)
	}
	if f.HasFeedback != nil {
		if *f.HasFeedback {
			query += " AND user_feedback IS NOT NULL"
		} else {
			query += " AND user_feedback IS NULL"
		}
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	query += fmt.Sprintf(" ORDER BY reading_date DESC, creation_time DESC LIMIT %d OFFSET %d", limit+1, offset)

	rows, err := re.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Reading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}
	return &model.ReadingPage{Readings: out, HasMore: hasMore}, nil
}

func (re *readings) Latest(ctx context.Context, userID string) (*model.Reading, error) {
	row := re.db.QueryRowContext(ctx, `
        SELECT `+readingColumns+`
        FROM readings WHERE user_id=?
        ORDER BY reading_date DESC, creation_time DESC LIMIT 1
    `, userID)
	r, err := scanReading(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return r, nil
}

func (re *readings) Update(ctx context.Context, readingID string, p model.ReadingPatch) (*model.Reading, error) {
	sets := []string{"update_time = ?"}
	args := []interface{}{time.Now().UTC()}
	add := func(col string, v interface{}) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if p.IsSaved != nil {
		add("is_saved", *p.IsSaved)
	}
	if p.IsRead != nil {
		add("is_read", *p.IsRead)
	}
	if p.UserFeedback != nil {
		add("user_feedback", *p.UserFeedback)
	}
	if p.Rating != nil {
		add("rating", *p.Rating)
	}
	if p.Published != nil {
		add("published", *p.Published)
	}
	args = append(args, readingID)
	res, err := re.db.ExecContext(ctx, `UPDATE readings SET `+strings.Join(sets, ", ")+` WHERE reading_id = ?`, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, model.ErrNotFound
	}
	return re.GetByID(ctx, readingID)
}

func (re *readings) Delete(ctx context.Context, readingID string) error {
	res, err := re.db.ExecContext(ctx, `DELETE FROM readings WHERE reading_id=?`, readingID)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (re *readings) MarkRead(ctx context.Context, readingID string) error {
	res, err := re.db.ExecContext(ctx, `UPDATE readings SET is_read=1, update_time=? WHERE reading_id=?`,
		time.Now().UTC(), readingID)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (re *readings) ToggleSaved(ctx context.Context, readingID string) (bool, error) {
	res, err := re.db.ExecContext(ctx, `
        UPDATE readings SET is_saved = CASE WHEN is_saved THEN 0 ELSE 1 END, update_time=?
        WHERE reading_id=?
    `, time.Now().UTC(), readingID)
	if err != nil {
		return false, mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, model.ErrNotFound
	}
	var saved bool
	if err := re.db.QueryRowContext(ctx, `SELECT is_saved FROM readings WHERE reading_id=?`, readingID).Scan(&saved); err != nil {
		return false, mapErr(err)
	}
	return saved, nil
}

func (re *readings) AddFeedback(ctx context.Context, readingID, feedback string, rating *int) error {
	res, err := re.db.ExecContext(ctx, `
        UPDATE readings SET user_feedback=?, rating=COALESCE(?, rating), update_time=?
        WHERE reading_id=?
    `, feedback, rating, time.Now().UTC(), readingID)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (re *readings) Exists(ctx context.Context, userID, date, readingType string) (bool, error) {
	var one int
	err := re.db.QueryRowContext(ctx, `
        SELECT 1 FROM readings WHERE user_id=? AND reading_date=? AND reading_type=?
    `, userID, date, readingType).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, mapErr(err)
	}
	return true, nil
}

func (re *readings) Stats(ctx context.Context, userID string) (*model.ReadingStats, error) {
	st := &model.ReadingStats{ByType: map[string]int{}}
	row := re.db.QueryRowContext(ctx, `
        SELECT COUNT(*),
               COALESCE(SUM(CASE WHEN is_saved THEN 1 ELSE 0 END), 0),
               COALESCE(SUM(CASE WHEN is_read THEN 1 ELSE 0 END), 0),
               COALESCE(SUM(CASE WHEN user_feedback IS NOT NULL THEN 1 ELSE 0 END), 0),
               COALESCE(AVG(rating), 0)
        FROM readings WHERE user_id=?
    `, userID)
	if err := row.Scan(&st.Total, &st.Saved, &st.Read, &st.WithFeedback, &st.AverageRating); err != nil {
		return nil, mapErr(err)
	}
	rows, err := re.db.QueryContext(ctx, `
        SELECT reading_type, COUNT(*) FROM readings WHERE user_id=? GROUP BY reading_type
    `, userID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, mapErr(err)
		}
		st.ByType[typ] = n
	}
	return st, mapErr(rows.Err())
}

func (re *readings) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	tx, err := re.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, mapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM readings WHERE user_id=?`, userID)
	if err != nil {
		return 0, mapErr(err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, mapErr(err)
	}
	return n, nil
}

func (re *readings) Dates(ctx context.Context, userID, from, to string) ([]string, error) {
	query := `SELECT DISTINCT reading_date FROM readings WHERE user_id=?`
	args := []interface{}{userID}
	if from != "" {
		query += " AND reading_date >= ?"
		args = append(args, from)
	}
	if to != "" {
		query += " AND reading_date <= ?"
		args = append(args, to)
	}
	query += " ORDER BY reading_date DESC"
	rows, err := re.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, d)
	}
	return out, mapErr(rows.Err())
}
