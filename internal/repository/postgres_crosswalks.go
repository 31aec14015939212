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

// PostgresCrosswalksRepository crosswalks table. Location uniqueness is
// enforced by the crosswalks_location_key constraint.
type PostgresCrosswalksRepository struct {
	db *sql.DB
}

func NewPostgresCrosswalksRepository(db *sql.DB) *PostgresCrosswalksRepository {
	return &PostgresCrosswalksRepository{db: db}
}

var _ CrosswalksRepository = (*PostgresCrosswalksRepository)(nil)

const crosswalkColumns = `crosswalk_id, city, street, number, camera_id, led_id, led_system, created_at, updated_at`

func scanCrosswalk(row rowScanner) (*domain.Crosswalk, error) {
	var (
		cw        domain.Crosswalk
		cameraID  sql.NullString
		ledID     sql.NullString
		ledSystem []byte
	)
	if err := row.Scan(&cw.ID, &cw.Location.City, &cw.Location.Street, &cw.Location.Number,
		&cameraID, &ledID, &ledSystem, &cw.CreatedAt, &cw.UpdatedAt); err != nil {
		return nil, err
	}
	if cameraID.Valid {
		cw.CameraID = &cameraID.String
	}
	if ledID.Valid {
		cw.LEDID = &ledID.String
	}
	if len(ledSystem) > 0 && string(ledSystem) != "null" {
		var s domain.LEDSystem
		if err := json.Unmarshal(ledSystem, &s); err != nil {
			return nil, fmt.Errorf("failed to decode led_system: %w", err)
		}
		cw.LEDSystem = &s
	}
	return &cw, nil
}

func encodeLEDSystem(s *domain.LEDSystem) (any, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode led_system: %w", err)
	}
	return b, nil
}

func optionalID(id *string) any {
	if id == nil || *id == "" {
		return nil
	}
	return *id
}

func (r *PostgresCrosswalksRepository) GetCrosswalk(ctx context.Context, crosswalkID string) (*domain.Crosswalk, error) {
	if err := checkID("crosswalk", crosswalkID); err != nil {
		return nil, err
	}
	cw, err := scanCrosswalk(r.db.QueryRowContext(ctx,
		`SELECT `+crosswalkColumns+` FROM crosswalks WHERE crosswalk_id = $1`, crosswalkID))
	if err == sql.ErrNoRows {
		return nil, notFound("crosswalk", crosswalkID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crosswalk: %w", err)
	}
	return cw, nil
}

func (r *PostgresCrosswalksRepository) GetCrosswalkByLocation(ctx context.Context, loc domain.Location) (*domain.Crosswalk, error) {
	loc = loc.Normalize()
	cw, err := scanCrosswalk(r.db.QueryRowContext(ctx,
		`SELECT `+crosswalkColumns+` FROM crosswalks WHERE city = $1 AND street = $2 AND number = $3`,
		loc.City, loc.Street, loc.Number))
	if err == sql.ErrNoRows {
		return nil, notFound("crosswalk at", loc.City+", "+loc.Street+" "+loc.Number)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crosswalk by location: %w", err)
	}
	return cw, nil
}

func (r *PostgresCrosswalksRepository) ListCrosswalks(ctx context.Context) ([]*domain.Crosswalk, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+crosswalkColumns+` FROM crosswalks ORDER BY created_at DESC, crosswalk_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list crosswalks: %w", err)
	}
	defer rows.Close()

	out := []*domain.Crosswalk{}
	for rows.Next() {
		cw, err := scanCrosswalk(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan crosswalk: %w", err)
		}
		out = append(out, cw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate crosswalks: %w", err)
	}
	return out, nil
}

// CreateCrosswalk relies on ON CONFLICT DO NOTHING; no returned row means the
// location is already taken and ErrConflict is returned.
func (r *PostgresCrosswalksRepository) CreateCrosswalk(ctx context.Context, in *domain.Crosswalk) (*domain.Crosswalk, error) {
	loc := in.Location.Normalize()
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	ledSystem, err := encodeLEDSystem(in.LEDSystem)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO crosswalks (crosswalk_id, city, street, number, camera_id, led_id, led_system)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT ON CONSTRAINT crosswalks_location_key DO NOTHING
		RETURNING ` + crosswalkColumns

	cw, err := scanCrosswalk(r.db.QueryRowContext(ctx, query,
		uuid.NewString(), loc.City, loc.Street, loc.Number,
		optionalID(in.CameraID), optionalID(in.LEDID), ledSystem))
	switch {
	case err == sql.ErrNoRows:
		return nil, fmt.Errorf("%w: crosswalk already exists at %s, %s %s", domain.ErrConflict, loc.City, loc.Street, loc.Number)
	case pqCode(err) == pqUniqueViolation:
		return nil, fmt.Errorf("%w: %v", domain.ErrConflict, err)
	case pqCode(err) == pqForeignKeyViolation:
		return nil, fmt.Errorf("%w: referenced camera or LED does not exist", domain.ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("failed to create crosswalk: %w", err)
	}
	return cw, nil
}

func (r *PostgresCrosswalksRepository) UpdateCrosswalk(ctx context.Context, crosswalkID string, patch domain.CrosswalkPatch) (*domain.Crosswalk, error) {
	if err := checkID("crosswalk", crosswalkID); err != nil {
		return nil, err
	}

	sets := []string{}
	args := []any{crosswalkID}
	argN := 2
	if patch.Location != nil {
		loc := patch.Location.Normalize()
		if err := loc.Validate(); err != nil {
			return nil, err
		}
		sets = append(sets, fmt.Sprintf("city = $%d, street = $%d, number = $%d", argN, argN+1, argN+2))
		args = append(args, loc.City, loc.Street, loc.Number)
		argN += 3
	}
	if patch.CameraID != nil {
		sets = append(sets, fmt.Sprintf("camera_id = $%d", argN))
		args = append(args, optionalID(patch.CameraID))
		argN++
	}
	if patch.LEDID != nil {
		sets = append(sets, fmt.Sprintf("led_id = $%d", argN))
		args = append(args, optionalID(patch.LEDID))
		argN++
	}
	if patch.LEDSystem != nil {
		ledSystem, err := encodeLEDSystem(patch.LEDSystem)
		if err != nil {
			return nil, err
		}
		sets = append(sets, fmt.Sprintf("led_system = $%d", argN))
		args = append(args, ledSystem)
		argN++
	}
	if len(sets) == 0 {
		return r.GetCrosswalk(ctx, crosswalkID)
	}
	sets = append(sets, "updated_at = NOW()")

	query := `UPDATE crosswalks SET ` + strings.Join(sets, ", ") + ` WHERE crosswalk_id = $1 RETURNING ` + crosswalkColumns
	cw, err := scanCrosswalk(r.db.QueryRowContext(ctx, query, args...))
	switch {
	case err == sql.ErrNoRows:
		return nil, notFound("crosswalk", crosswalkID)
	case pqCode(err) == pqUniqueViolation:
		return nil, fmt.Errorf("%w: another crosswalk already exists at this location", domain.ErrConflict)
	case pqCode(err) == pqForeignKeyViolation:
		return nil, fmt.Errorf("%w: referenced camera or LED does not exist", domain.ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("failed to update crosswalk: %w", err)
	}
	return cw, nil
}

func (r *PostgresCrosswalksRepository) DeleteCrosswalk(ctx context.Context, crosswalkID string) error {
	if err := checkID("crosswalk", crosswalkID); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM crosswalks WHERE crosswalk_id = $1`, crosswalkID)
	if err != nil {
		return fmt.Errorf("failed to delete crosswalk: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete crosswalk: %w", err)
	}
	if n == 0 {
		return notFound("crosswalk", crosswalkID)
	}
	return nil
}

func (r *PostgresCrosswalksRepository) CountCrosswalks(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM crosswalks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count crosswalks: %w", err)
	}
	return n, nil
}

// UpdateLastActivation uses jsonb_set so the rest of led_system is left as is.
// A crosswalk without an LED system keeps led_system unset.
func (r *PostgresCrosswalksRepository) UpdateLastActivation(ctx context.Context, crosswalkID string, activation domain.LastActivation) error {
	if err := checkID("crosswalk", crosswalkID); err != nil {
		return err
	}
	b, err := json.Marshal(activation)
	if err != nil {
		return fmt.Errorf("failed to encode last activation: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE crosswalks
		SET led_system = CASE
		        WHEN jsonb_typeof(led_system) = 'object'
		        THEN jsonb_set(led_system, '{lastActivation}', $2::jsonb, true)
		        ELSE led_system
		    END,
		    updated_at = NOW()
		WHERE crosswalk_id = $1`, crosswalkID, b)
	if err != nil {
		return fmt.Errorf("failed to update last activation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update last activation: %w", err)
	}
	if n == 0 {
		return notFound("crosswalk", crosswalkID)
	}
	return nil
}

func (r *PostgresCrosswalksRepository) IsCameraLinked(ctx context.Context, cameraID string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM crosswalks WHERE camera_id = $1)`, cameraID)
}

func (r *PostgresCrosswalksRepository) IsLEDLinked(ctx context.Context, ledID string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM crosswalks WHERE led_id = $1)`, ledID)
}

func (r *PostgresCrosswalksRepository) exists(ctx context.Context, query, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	var ok bool
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check crosswalk link: %w", err)
	}
	return ok, nil
}
