package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/domain"
)

// PostgresFallEventsRepository FallEventsRepository on Postgres.
type PostgresFallEventsRepository struct {
	db *sql.DB
}

// NewPostgresFallEventsRepository creates the events repository.
func NewPostgresFallEventsRepository(db *sql.DB) *PostgresFallEventsRepository {
	return &PostgresFallEventsRepository{db: db}
}

var _ FallEventsRepository = (*PostgresFallEventsRepository)(nil)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const fallEventColumns = `
		e.event_id::text,
		e.event_uid,
		e.device_id,
		e.event_type,
		e.status,
		e.occurred_at,
		e.created_at,
		e.reviewed_by,
		e.reviewed_at,
		e.review_comment,
		e.version,
		d.alias,
		NULLIF(TRIM(CONCAT_WS(' ', p.first_name, p.last_name)), ''),
		a.full_name`

const fallEventFrom = `
	FROM events e
	LEFT JOIN devices d ON d.device_id = e.device_id
	LEFT JOIN patients p ON p.patient_id = d.patient_id
	LEFT JOIN accounts a ON a.account_id = e.reviewed_by`

func scanFallEvent(row rowScanner) (*domain.FallEvent, error) {
	var event domain.FallEvent
	var eventUID, reviewedBy, reviewComment sql.NullString
	var alias, patientName, reviewerName sql.NullString
	var reviewedAt sql.NullTime

	err := row.Scan(
		&event.ID,
		&eventUID,
		&event.DeviceID,
		&event.EventType,
		&event.Status,
		&event.OccurredAt,
		&event.CreatedAt,
		&reviewedBy,
		&reviewedAt,
		&reviewComment,
		&event.Version,
		&alias,
		&patientName,
		&reviewerName,
	)
	if err != nil {
		return nil, err
	}

	event.EventUID = nullStringPtr(eventUID)
	event.ReviewedBy = nullStringPtr(reviewedBy)
	event.ReviewComment = nullStringPtr(reviewComment)
	event.DeviceAlias = nullStringPtr(alias)
	event.PatientName = nullStringPtr(patientName)
	event.ReviewedByName = nullStringPtr(reviewerName)
	if reviewedAt.Valid {
		t := reviewedAt.Time
		event.ReviewedAt = &t
	}
	return &event, nil
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// buildWhereClause appends list filters to args, numbering placeholders from *argN.
func (r *PostgresFallEventsRepository) buildWhereClause(filters FallEventFilters, args *[]interface{}, argN *int) string {
	where := []string{}

	if filters.DeviceID != nil {
		where = append(where, fmt.Sprintf("e.device_id = $%d", *argN))
		*args = append(*args, *filters.DeviceID)
		*argN++
	}
	if filters.Status != nil {
		where = append(where, fmt.Sprintf("e.status = $%d", *argN))
		*args = append(*args, string(*filters.Status))
		*argN++
	}
	if filters.AccessibleTo != nil {
		where = append(where, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM device_access da WHERE da.device_id = e.device_id AND da.account_id = $%d)", *argN))
		*args = append(*args, *filters.AccessibleTo)
		*argN++
	}

	if len(where) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(where, " AND ")
}

// ListFallEvents reads count and page from one repeatable-read snapshot.
func (r *PostgresFallEventsRepository) ListFallEvents(ctx context.Context, filters FallEventFilters, page, pageSize int) ([]*domain.FallEvent, domain.PaginationMeta, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, domain.PaginationMeta{}, fmt.Errorf("failed to begin list transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	args := []interface{}{}
	argN := 1
	whereClause := r.buildWhereClause(filters, &args, &argN)

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM events e %s", whereClause)
	if err := tx.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, domain.PaginationMeta{}, fmt.Errorf("failed to count events: %w", err)
	}

	meta := domain.NewPaginationMeta(page, pageSize, total)
	events := []*domain.FallEvent{}

	if total > 0 {
		query := fmt.Sprintf(`
			SELECT %s
			%s
			%s
			ORDER BY e.occurred_at DESC, e.event_id ASC
			LIMIT $%d OFFSET $%d
		`, fallEventColumns, fallEventFrom, whereClause, argN, argN+1)
		args = append(args, meta.PageSize, meta.Offset())

		events, err = r.queryFallEvents(ctx, tx, query, args...)
		if err != nil {
			return nil, domain.PaginationMeta{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, domain.PaginationMeta{}, fmt.Errorf("failed to commit list transaction: %w", err)
	}
	return events, meta, nil
}

func (r *PostgresFallEventsRepository) queryFallEvents(ctx context.Context, q queryer, query string, args ...interface{}) ([]*domain.FallEvent, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []*domain.FallEvent{}
	for rows.Next() {
		event, err := scanFallEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

// getFallEvent a UUID-shaped key may be either an event_id or a device-chosen
// event_uid; the event_id match wins. Other keys only match event_uid.
func (r *PostgresFallEventsRepository) getFallEvent(ctx context.Context, q queryer, idOrUID string, forUpdate bool) (*domain.FallEvent, error) {
	var (
		query string
		args  []interface{}
	)
	if id, err := uuid.Parse(idOrUID); err == nil {
		query = fmt.Sprintf(`
			SELECT %s
			%s
			WHERE e.event_id = $1 OR e.event_uid = $2
			ORDER BY (e.event_id = $1) DESC
			LIMIT 1
		`, fallEventColumns, fallEventFrom)
		args = []interface{}{id, idOrUID}
	} else {
		query = fmt.Sprintf(`
			SELECT %s
			%s
			WHERE e.event_uid = $1
			LIMIT 1
		`, fallEventColumns, fallEventFrom)
		args = []interface{}{idOrUID}
	}
	if forUpdate {
		query += " FOR UPDATE OF e"
	}

	event, err := scanFallEvent(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return event, nil
}

// GetFallEvent looks up by event_id or event_uid.
func (r *PostgresFallEventsRepository) GetFallEvent(ctx context.Context, idOrUID string) (*domain.FallEvent, error) {
	if idOrUID == "" {
		return nil, ErrNotFound
	}
	return r.getFallEvent(ctx, r.db, idOrUID, false)
}

// CreateFallEvent checks the device and inserts in one transaction.
// A NULL event_uid never conflicts, so only uid-bearing events dedupe.
func (r *PostgresFallEventsRepository) CreateFallEvent(ctx context.Context, event *domain.FallEvent) (*domain.FallEvent, bool, error) {
	if event == nil {
		return nil, false, fmt.Errorf("event is required")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin create transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM devices WHERE device_id = $1`, event.DeviceID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, ErrDeviceNotFound
		}
		return nil, false, fmt.Errorf("failed to check device: %w", err)
	}

	var insertedID string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO events (event_id, event_uid, device_id, event_type, status, occurred_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, 1)
		ON CONFLICT (event_uid) DO NOTHING
		RETURNING event_id::text
	`, event.ID, event.EventUID, event.DeviceID, string(event.EventType), string(domain.StatusOpen), event.OccurredAt).Scan(&insertedID)

	created := true
	lookup := insertedID
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// event_uid already stored
		if event.EventUID == nil {
			return nil, false, fmt.Errorf("insert returned no row")
		}
		created = false
		lookup = *event.EventUID
	case isForeignKeyViolation(err):
		return nil, false, ErrDeviceNotFound
	case err != nil:
		return nil, false, fmt.Errorf("failed to insert event: %w", err)
	}

	stored, err := r.getFallEvent(ctx, tx, lookup, false)
	if err != nil {
		return nil, false, err
	}
	if !created && stored.DeviceID != event.DeviceID {
		return nil, false, ErrEventUIDTaken
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit create transaction: %w", err)
	}
	return stored, created, nil
}

// ReviewFallEvent runs SELECT ... FOR UPDATE, apply and UPDATE in one transaction.
func (r *PostgresFallEventsRepository) ReviewFallEvent(ctx context.Context, idOrUID string, apply ReviewFunc) (*domain.FallEvent, error) {
	if idOrUID == "" {
		return nil, ErrNotFound
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin review transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	current, err := r.getFallEvent(ctx, tx, idOrUID, true)
	if err != nil {
		return nil, err
	}

	update, err := apply(current)
	if err != nil {
		return nil, err
	}

	result := current
	if update != nil {
		_, err = tx.ExecContext(ctx, `
			UPDATE events
			SET status = $1,
				reviewed_by = $2,
				reviewed_at = $3,
				review_comment = $4,
				version = version + 1
			WHERE event_id = $5
		`, string(update.Status), update.ReviewedBy, update.ReviewedAt, update.ReviewComment, current.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to update event review: %w", err)
		}

		result, err = r.getFallEvent(ctx, tx, current.ID, false)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit review transaction: %w", err)
	}
	return result, nil
}

// ListEventSamples returns samples ordered by seq, never nil.
func (r *PostgresFallEventsRepository) ListEventSamples(ctx context.Context, eventID string) ([]domain.EventSample, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT seq, t_ms, acc_x, acc_y, acc_z
		FROM event_samples
		WHERE event_id = $1
		ORDER BY seq ASC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query event samples: %w", err)
	}
	defer rows.Close()

	samples := []domain.EventSample{}
	for rows.Next() {
		var s domain.EventSample
		if err := rows.Scan(&s.Seq, &s.TMs, &s.AccX, &s.AccY, &s.AccZ); err != nil {
			return nil, fmt.Errorf("failed to scan event sample: %w", err)
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate event samples: %w", err)
	}
	return samples, nil
}

// InsertEventSamples writes samples in one transaction; existing seq values are kept.
func (r *PostgresFallEventsRepository) InsertEventSamples(ctx context.Context, eventID string, samples []domain.EventSample) (int, error) {
	if len(samples) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin samples transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO event_samples (event_id, seq, t_ms, acc_x, acc_y, acc_z)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id, seq) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare sample insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, s := range samples {
		res, err := stmt.ExecContext(ctx, eventID, s.Seq, s.TMs, s.AccX, s.AccY, s.AccZ)
		if err != nil {
			if isForeignKeyViolation(err) {
				return 0, ErrNotFound
			}
			return 0, fmt.Errorf("failed to insert sample seq=%d: %w", s.Seq, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to read rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit samples transaction: %w", err)
	}
	return inserted, nil
}

// CountEventsByDevice podium aggregate, count DESC then device_id ASC.
func (r *PostgresFallEventsRepository) CountEventsByDevice(ctx context.Context) ([]domain.DeviceEventCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT device_id, COUNT(*) AS event_count
		FROM events
		GROUP BY device_id
		ORDER BY event_count DESC, device_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count events by device: %w", err)
	}
	defer rows.Close()

	counts := []domain.DeviceEventCount{}
	for rows.Next() {
		var c domain.DeviceEventCount
		if err := rows.Scan(&c.DeviceID, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan device count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate device counts: %w", err)
	}
	return counts, nil
}
