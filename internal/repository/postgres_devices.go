package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/domain"
)

// PostgresCamerasRepository cameras table.
type PostgresCamerasRepository struct {
	db *sql.DB
}

func NewPostgresCamerasRepository(db *sql.DB) *PostgresCamerasRepository {
	return &PostgresCamerasRepository{db: db}
}

var _ CamerasRepository = (*PostgresCamerasRepository)(nil)

func scanCamera(row rowScanner) (*domain.Camera, error) {
	var (
		c      domain.Camera
		status string
	)
	if err := row.Scan(&c.ID, &status, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Status = domain.CameraStatus(status)
	return &c, nil
}

func (r *PostgresCamerasRepository) CreateCamera(ctx context.Context, status domain.CameraStatus) (*domain.Camera, error) {
	c, err := scanCamera(r.db.QueryRowContext(ctx,
		`INSERT INTO cameras (camera_id, status) VALUES ($1, $2) RETURNING camera_id, status, created_at, updated_at`,
		uuid.NewString(), string(status)))
	if err != nil {
		return nil, fmt.Errorf("failed to create camera: %w", err)
	}
	return c, nil
}

func (r *PostgresCamerasRepository) GetCamera(ctx context.Context, cameraID string) (*domain.Camera, error) {
	if err := checkID("camera", cameraID); err != nil {
		return nil, err
	}
	c, err := scanCamera(r.db.QueryRowContext(ctx,
		`SELECT camera_id, status, created_at, updated_at FROM cameras WHERE camera_id = $1`, cameraID))
	if err == sql.ErrNoRows {
		return nil, notFound("camera", cameraID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get camera: %w", err)
	}
	return c, nil
}

func (r *PostgresCamerasRepository) ListCameras(ctx context.Context) ([]*domain.Camera, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT camera_id, status, created_at, updated_at FROM cameras ORDER BY created_at DESC, camera_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cameras: %w", err)
	}
	defer rows.Close()

	out := []*domain.Camera{}
	for rows.Next() {
		c, err := scanCamera(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan camera: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresCamerasRepository) UpdateCameraStatus(ctx context.Context, cameraID string, status domain.CameraStatus) (*domain.Camera, error) {
	if err := checkID("camera", cameraID); err != nil {
		return nil, err
	}
	c, err := scanCamera(r.db.QueryRowContext(ctx,
		`UPDATE cameras SET status = $2, updated_at = NOW() WHERE camera_id = $1
		 RETURNING camera_id, status, created_at, updated_at`, cameraID, string(status)))
	if err == sql.ErrNoRows {
		return nil, notFound("camera", cameraID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update camera status: %w", err)
	}
	return c, nil
}

// DeleteCamera maps the ON DELETE RESTRICT violation to domain.ErrInUse.
func (r *PostgresCamerasRepository) DeleteCamera(ctx context.Context, cameraID string) error {
	return deleteByID(ctx, r.db, "camera", `DELETE FROM cameras WHERE camera_id = $1`, cameraID)
}

// PostgresLEDsRepository leds table.
type PostgresLEDsRepository struct {
	db *sql.DB
}

func NewPostgresLEDsRepository(db *sql.DB) *PostgresLEDsRepository {
	return &PostgresLEDsRepository{db: db}
}

var _ LEDsRepository = (*PostgresLEDsRepository)(nil)

func scanLED(row rowScanner) (*domain.LED, error) {
	var l domain.LED
	if err := row.Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *PostgresLEDsRepository) CreateLED(ctx context.Context) (*domain.LED, error) {
	l, err := scanLED(r.db.QueryRowContext(ctx,
		`INSERT INTO leds (led_id) VALUES ($1) RETURNING led_id, created_at, updated_at`, uuid.NewString()))
	if err != nil {
		return nil, fmt.Errorf("failed to create LED: %w", err)
	}
	return l, nil
}

func (r *PostgresLEDsRepository) GetLED(ctx context.Context, ledID string) (*domain.LED, error) {
	if err := checkID("LED", ledID); err != nil {
		return nil, err
	}
	l, err := scanLED(r.db.QueryRowContext(ctx,
		`SELECT led_id, created_at, updated_at FROM leds WHERE led_id = $1`, ledID))
	if err == sql.ErrNoRows {
		return nil, notFound("LED", ledID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get LED: %w", err)
	}
	return l, nil
}

func (r *PostgresLEDsRepository) ListLEDs(ctx context.Context) ([]*domain.LED, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT led_id, created_at, updated_at FROM leds ORDER BY created_at DESC, led_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list LEDs: %w", err)
	}
	defer rows.Close()

	out := []*domain.LED{}
	for rows.Next() {
		l, err := scanLED(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan LED: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *PostgresLEDsRepository) DeleteLED(ctx context.Context, ledID string) error {
	return deleteByID(ctx, r.db, "LED", `DELETE FROM leds WHERE led_id = $1`, ledID)
}

func deleteByID(ctx context.Context, db *sql.DB, kind, query, id string) error {
	if err := checkID(kind, id); err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, query, id)
	if pqCode(err) == pqForeignKeyViolation {
		return fmt.Errorf("%w: %s %s is linked to a crosswalk", domain.ErrInUse, kind, id)
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	if n == 0 {
		return notFound(kind, id)
	}
	return nil
}
