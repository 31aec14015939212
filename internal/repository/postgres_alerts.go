package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/domain"
)

// PostgresAlertsRepository alerts table.
type PostgresAlertsRepository struct {
	db *sql.DB
}

func NewPostgresAlertsRepository(db *sql.DB) *PostgresAlertsRepository {
	return &PostgresAlertsRepository{db: db}
}

var _ AlertsRepository = (*PostgresAlertsRepository)(nil)

const alertColumns = `alert_id, crosswalk_id, danger_level, photo_url, alert_type, severity,
	confidence, detected_objects, "timestamp", created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*domain.Alert, error) {
	var (
		a           domain.Alert
		crosswalkID sql.NullString
		photoURL    sql.NullString
		alertType   sql.NullString
		severity    sql.NullString
		confidence  sql.NullFloat64
		detected    []byte
		level       string
	)
	if err := row.Scan(&a.ID, &crosswalkID, &level, &photoURL, &alertType, &severity,
		&confidence, &detected, &a.Timestamp, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.DangerLevel = domain.DangerLevel(level)
	if crosswalkID.Valid {
		a.CrosswalkID = &crosswalkID.String
	}
	if photoURL.Valid && photoURL.String != "" {
		a.DetectionPhoto = &domain.DetectionPhoto{URL: photoURL.String}
	}
	a.Type = alertType.String
	a.Severity = domain.Severity(severity.String)
	if confidence.Valid {
		c := confidence.Float64
		a.Confidence = &c
	}
	if len(detected) > 0 {
		if err := json.Unmarshal(detected, &a.DetectedObjects); err != nil {
			return nil, fmt.Errorf("failed to decode detected_objects: %w", err)
		}
	}
	return &a, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// CreateAlert inserts in a single statement; nothing partial is visible.
func (r *PostgresAlertsRepository) CreateAlert(ctx context.Context, in *domain.NewAlert) (*domain.Alert, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	detected := in.DetectedObjects
	if detected == nil {
		detected = []domain.Detection{}
	}
	detectedJSON, err := json.Marshal(detected)
	if err != nil {
		return nil, fmt.Errorf("failed to encode detected objects: %w", err)
	}

	var crosswalkID any
	if in.CrosswalkID != nil {
		crosswalkID = *in.CrosswalkID
	}
	var confidence any
	if in.Confidence != nil {
		confidence = *in.Confidence
	}

	query := `
		INSERT INTO alerts (alert_id, crosswalk_id, danger_level, photo_url, alert_type, severity,
			confidence, detected_objects, "timestamp")
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + alertColumns

	row := r.db.QueryRowContext(ctx, query,
		uuid.NewString(),
		crosswalkID,
		string(in.DangerLevel),
		nullString(in.PhotoURL),
		nullString(in.Type),
		nullString(string(in.Severity)),
		confidence,
		detectedJSON,
		in.Timestamp,
	)
	a, err := scanAlert(row)
	if err != nil {
		if pqCode(err) == pqForeignKeyViolation && in.CrosswalkID != nil {
			return nil, notFound("crosswalk", *in.CrosswalkID)
		}
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}
	return a, nil
}

func (r *PostgresAlertsRepository) GetAlert(ctx context.Context, alertID string) (*domain.Alert, error) {
	if err := checkID("alert", alertID); err != nil {
		return nil, err
	}
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE alert_id = $1`
	a, err := scanAlert(r.db.QueryRowContext(ctx, query, alertID))
	if err == sql.ErrNoRows {
		return nil, notFound("alert", alertID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return a, nil
}

// buildWhereClause appends one predicate per non-nil filter.
func (r *PostgresAlertsRepository) buildWhereClause(filters AlertFilters, args *[]any, argN *int) []string {
	where := []string{}
	if filters.DangerLevel != nil {
		where = append(where, fmt.Sprintf("danger_level = $%d", *argN))
		*args = append(*args, string(*filters.DangerLevel))
		*argN++
	}
	if filters.CrosswalkID != nil {
		where = append(where, fmt.Sprintf("crosswalk_id = $%d", *argN))
		*args = append(*args, *filters.CrosswalkID)
		*argN++
	}
	if filters.StartTime != nil {
		where = append(where, fmt.Sprintf(`"timestamp" >= $%d`, *argN))
		*args = append(*args, *filters.StartTime)
		*argN++
	}
	if filters.EndTime != nil {
		where = append(where, fmt.Sprintf(`"timestamp" <= $%d`, *argN))
		*args = append(*args, *filters.EndTime)
		*argN++
	}
	return where
}

func whereSQL(where []string) string {
	if len(where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(where, " AND ")
}

func orderBySQL(sort AlertSort) string {
	switch sort {
	case SortOldest:
		return ` ORDER BY "timestamp" ASC, alert_id ASC`
	case SortDanger:
		return ` ORDER BY CASE danger_level WHEN 'HIGH' THEN 3 WHEN 'MEDIUM' THEN 2 ELSE 1 END DESC, "timestamp" DESC, alert_id DESC`
	default:
		return ` ORDER BY "timestamp" DESC, alert_id DESC`
	}
}

// filtersOnUnknownCrosswalk short-circuits a crosswalk filter that can never
// match a UUID column.
func filtersOnUnknownCrosswalk(filters AlertFilters) bool {
	if filters.CrosswalkID == nil {
		return false
	}
	_, err := uuid.Parse(*filters.CrosswalkID)
	return err != nil
}

func (r *PostgresAlertsRepository) ListAlerts(ctx context.Context, filters AlertFilters, sort AlertSort, page, size int) ([]*domain.Alert, int, error) {
	if filtersOnUnknownCrosswalk(filters) {
		return []*domain.Alert{}, 0, nil
	}

	args := []any{}
	argN := 1
	where := whereSQL(r.buildWhereClause(filters, &args, &argN))

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	query := `SELECT ` + alertColumns + ` FROM alerts` + where + orderBySQL(sort)
	if size > 0 {
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argN, argN+1)
		args = append(args, size, (page-1)*size)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	out := []*domain.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan alert: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate alerts: %w", err)
	}
	return out, total, nil
}

func (r *PostgresAlertsRepository) UpdateAlert(ctx context.Context, alertID string, patch domain.AlertPatch) (*domain.Alert, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if err := checkID("alert", alertID); err != nil {
		return nil, err
	}

	sets := []string{}
	args := []any{alertID}
	argN := 2
	if patch.DangerLevel != nil {
		sets = append(sets, fmt.Sprintf("danger_level = $%d", argN))
		args = append(args, string(*patch.DangerLevel))
		argN++
	}
	if patch.DetectionPhoto != nil {
		sets = append(sets, fmt.Sprintf("photo_url = $%d", argN))
		args = append(args, nullString(patch.DetectionPhoto.URL))
		argN++
	}
	sets = append(sets, "updated_at = NOW()")

	query := `UPDATE alerts SET ` + strings.Join(sets, ", ") + ` WHERE alert_id = $1 RETURNING ` + alertColumns
	a, err := scanAlert(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, notFound("alert", alertID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update alert: %w", err)
	}
	return a, nil
}

func (r *PostgresAlertsRepository) DeleteAlert(ctx context.Context, alertID string) error {
	if err := checkID("alert", alertID); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM alerts WHERE alert_id = $1`, alertID)
	if err != nil {
		return fmt.Errorf("failed to delete alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete alert: %w", err)
	}
	if n == 0 {
		return notFound("alert", alertID)
	}
	return nil
}

func (r *PostgresAlertsRepository) CountAlerts(ctx context.Context, filters AlertFilters) (int, error) {
	if filtersOnUnknownCrosswalk(filters) {
		return 0, nil
	}
	args := []any{}
	argN := 1
	where := whereSQL(r.buildWhereClause(filters, &args, &argN))

	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return n, nil
}

func (r *PostgresAlertsRepository) CountAlertsByDangerLevel(ctx context.Context, filters AlertFilters) (map[domain.DangerLevel]int, error) {
	out := map[domain.DangerLevel]int{domain.DangerLow: 0, domain.DangerMedium: 0, domain.DangerHigh: 0}
	if filtersOnUnknownCrosswalk(filters) {
		return out, nil
	}
	args := []any{}
	argN := 1
	where := whereSQL(r.buildWhereClause(filters, &args, &argN))

	rows, err := r.db.QueryContext(ctx, `SELECT danger_level, COUNT(*) FROM alerts`+where+` GROUP BY danger_level`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts by danger level: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			level string
			n     int
		)
		if err := rows.Scan(&level, &n); err != nil {
			return nil, fmt.Errorf("failed to scan danger level count: %w", err)
		}
		out[domain.DangerLevel(level)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate danger level counts: %w", err)
	}
	return out, nil
}
