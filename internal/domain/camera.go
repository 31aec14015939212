package domain

import (
	"fmt"
	"time"
)

type CameraStatus string

const (
	CameraActive   CameraStatus = "active"
	CameraInactive CameraStatus = "inactive"
	CameraError    CameraStatus = "error"
)

func ParseCameraStatus(s string) (CameraStatus, error) {
	switch st := CameraStatus(s); st {
	case CameraActive, CameraInactive, CameraError:
		return st, nil
	case "":
		return CameraActive, nil
	}
	return "", fmt.Errorf("%w: invalid camera status %q", ErrValidation, s)
}

type Camera struct {
	ID        string       `json:"id" db:"camera_id"`
	Status    CameraStatus `json:"status" db:"status"`
	CreatedAt time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time    `json:"updatedAt" db:"updated_at"`
}

// LED is a physical lighting unit. It carries no attributes of its own.
type LED struct {
	ID        string    `json:"id" db:"led_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
