package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/chandrahoro/reading-service/internal/model"
	"github.com/chandrahoro/reading-service/internal/store"
)

// Open opens a PostgreSQL connection using the pgx stdlib driver and
// verifies connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	return db, nil
}

// NewWithDB constructs a native Postgres store backed directly by database/sql.
func NewWithDB(db *sql.DB) store.Store { return &pgStore{db: db} }

type pgStore struct{ db *sql.DB }

func (s *pgStore) Users() store.Users       { return &users{db: s.db} }
func (s *pgStore) Readings() store.Readings { return &readings{db: s.db} }

// HealthPing implements health.HealthPinger for the Postgres-backed store.
func (s *pgStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// mapErr translates driver errors into the service taxonomy.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
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
	out := *m
	out.UserID = id
	out.TimeZone = tz
	out.Status = "ACTIVE"
	out.DailyQuota = quota
	out.QuotaUsed = 0
	row := u.db.QueryRowContext(ctx, `
        INSERT INTO users (user_id, email, time_zone, status, daily_quota, quota_used)
        VALUES ($1,$2,$3,'ACTIVE',$4,0)
        RETURNING creation_time
    `, id, m.Email, tz, quota)
	if err := row.Scan(&out.CreationTime); err != nil {
		return nil, mapErr(err)
	}
	return &out, nil
}

func (u *users) Get(ctx context.Context, userID string) (*model.User, error) {
	var out model.User
	row := u.db.QueryRowContext(ctx, `
        SELECT user_id, email, time_zone, status, daily_quota, quota_used, creation_time, last_active_time
        FROM users WHERE user_id=$1
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

	if _, err := tx.ExecContext(ctx, `DELETE FROM readings WHERE user_id=$1`, userID); err != nil {
		return mapErr(err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE user_id=$1`, userID)
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
	var remaining int
	err := u.db.QueryRowContext(ctx, `
        UPDATE users SET quota_used = quota_used + 1, last_active_time = now()
        WHERE user_id=$1 AND quota_used < daily_quota
        RETURNING daily_quota - quota_used
    `, userID).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		// Either the user is unknown or the quota is spent.
		if _, gerr := u.Get(ctx, userID); gerr != nil {
			return 0, gerr
		}
		return 0, fmt.Errorf("%w: daily quota exhausted", model.ErrConflict)
	}
	if err != nil {
		return 0, mapErr(err)
	}
	return remaining, nil
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
	var highlights, guidance, auspicious, inauspicious, content []byte
	if err := row.Scan(&r.ReadingID, &r.UserID, &r.ReadingType, &r.ReadingDate,
		&highlights, &guidance, &auspicious, &inauspicious, &content,
		&r.IsSaved, &r.IsRead, &r.UserFeedback, &r.Rating,
		&r.ModelID, &r.TokensUsed, &r.GenerationMs, &r.PromptVersion, &r.Published,
		&r.GeneratedAt, &r.CreationTime, &r.UpdateTime); err != nil {
		return nil, err
	}
	if len(highlights) > 0 {
		_ = json.Unmarshal(highlights, &r.Highlights)
	}
	if len(guidance) > 0 {
		_ = json.Unmarshal(guidance, &r.Guidance)
	}
	if len(auspicious) > 0 {
		_ = json.Unmarshal(auspicious, &r.Auspicious)
	}
	if len(inauspicious) > 0 {
		_ = json.Unmarshal(inauspicious, &r.Inauspicious)
	}
	if len(content) > 0 {
		r.Content = json.RawMessage(content)
	}
	return &r, nil
}

func nullIfEmpty(b []byte) interface{} {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	return b
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
	highlights, _ := json.Marshal(r.Highlights)
	guidance, _ := json.Marshal(r.Guidance)
	auspicious, _ := json.Marshal(r.Auspicious)
	inauspicious, _ := json.Marshal(r.Inauspicious)

	out := *r
	out.ReadingID = id
	out.ReadingType = readingType
	row := re.db.QueryRowContext(ctx, `
        INSERT INTO readings (reading_id, user_id, reading_type, reading_date,
            highlights, guidance, auspicious, inauspicious, content,
            is_saved, is_read, user_feedback, rating,
            model_id, tokens_used, generation_ms, prompt_version, published, generated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
        RETURNING generated_at, creation_time, update_time
    `, id, r.UserID, readingType, r.ReadingDate,
		nullIfEmpty(highlights), nullIfEmpty(guidance), nullIfEmpty(auspicious), nullIfEmpty(inauspicious), nullIfEmpty([]byte(r.Content)),
		r.IsSaved, r.IsRead, r.UserFeedback, r.Rating,
		r.ModelID, r.TokensUsed, r.GenerationMs, r.PromptVersion, r.Published, r.GeneratedAt)
	if err := row.Scan(&out.GeneratedAt, &out.CreationTime, &out.UpdateTime); err != nil {
		return nil, mapErr(err)
	}
	return &out, nil
}

func (re *readings) Get(ctx context.Context, userID, date, readingType string) (*model.Reading, error) {
	row := re.db.QueryRowContext(ctx, `
        SELECT `+readingColumns+`
        FROM readings WHERE user_id=$1 AND reading_date=$2 AND reading_type=$3
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
        FROM readings WHERE reading_id=$1
    `, readingID)
	r, err := scanReading(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return r, nil
}

func (re *readings) List(ctx context.Context, userID string, f model.ReadingFilters) (*model.ReadingPage, error) {
	query := `SELECT ` + readingColumns + ` FROM readings WHERE user_id=$1`
	args := []interface{}{userID}
	add := func(clause string, v interface{}) {
		args = append(args, v)
		query += fmt.Sprintf(" AND "+clause, len(args))
	}
	if f.ReadingType != "" {
		add("reading_type=$%d", f.ReadingType)
	}
	if f.SavedOnly {
		query += " AND is_saved"
	}
	if f.From != "" {
		add("reading_date >= $%d", f.From)
	}
	if f.To != "" {
		add("reading_date <= $%d", f.To)
	}
	if f.IsRead != nil {
		add("is_read = $%d", *f.IsRead)
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
	// Fetch one extra row to derive hasMore without a second count query.
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
        FROM readings WHERE user_id=$1
        ORDER BY reading_date DESC, creation_time DESC LIMIT 1
    `, userID)
	r, err := scanReading(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return r, nil
}

func (re *readings) Update(ctx context.Context, readingID string, p model.ReadingPatch) (*model.Reading, error) {
	sets := []string{"update_time = now()"}
	var args []interface{}
	add := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
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
	query := fmt.Sprintf("UPDATE readings SET %s WHERE reading_id = $%d", strings.Join(sets, ", "), len(args))
	res, err := re.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, model.ErrNotFound
	}
	return re.GetByID(ctx, readingID)
}

func (re *readings) Delete(ctx context.Context, readingID string) error {
	res, err := re.db.ExecContext(ctx, `DELETE FROM readings WHERE reading_id=$1`, readingID)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (re *readings) MarkRead(ctx context.Context, readingID string) error {
	res, err := re.db.ExecContext(ctx, `UPDATE readings SET is_read=TRUE, update_time=now() WHERE reading_id=$1`, readingID)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (re *readings) ToggleSaved(ctx context.Context, readingID string) (bool, error) {
	var saved bool
	err := re.db.QueryRowContext(ctx, `
        UPDATE readings SET is_saved = NOT is_saved, update_time=now()
        WHERE reading_id=$1 RETURNING is_saved
    `, readingID).Scan(&saved)
	if err != nil {
		return false, mapErr(err)
	}
	return saved, nil
}

func (re *readings) AddFeedback(ctx context.Context, readingID, feedback string, rating *int) error {
	res, err := re.db.ExecContext(ctx, `
        UPDATE readings SET user_feedback=$1, rating=COALESCE($2, rating), update_time=now()
        WHERE reading_id=$3
    `, feedback, rating, readingID)
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
        SELECT 1 FROM readings WHERE user_id=$1 AND reading_date=$2 AND reading_type=$3
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
               COUNT(*) FILTER (WHERE is_saved),
               COUNT(*) FILTER (WHERE is_read),
               COUNT(*) FILTER (WHERE user_feedback IS NOT NULL),
               COALESCE(AVG(rating), 0)::float8
        FROM readings WHERE user_id=$1
    `, userID)
	if err := row.Scan(&st.Total, &st.Saved, &st.Read, &st.WithFeedback, &st.AverageRating); err != nil {
		return nil, mapErr(err)
	}
	rows, err := re.db.QueryContext(ctx, `
        SELECT reading_type, COUNT(*) FROM readings WHERE user_id=$1 GROUP BY reading_type
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

	res, err := tx.ExecContext(ctx, `DELETE FROM readings WHERE user_id=$1`, userID)
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
	query := `SELECT DISTINCT reading_date FROM readings WHERE user_id=$1`
	args := []interface{}{userID}
	if from != "" {
		args = append(args, from)
		query += fmt.Sprintf(" AND reading_date >= $%d", len(args))
	}
	if to != "" {
		args = append(args, to)
		query += fmt.Sprintf(" AND reading_date <= $%d", len(args))
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
