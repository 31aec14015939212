package repository

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/domain"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// notFound formats a domain.ErrNotFound for kind/id.
func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", domain.ErrNotFound, kind, id)
}

// checkID rejects ids that are not UUIDs before they reach Postgres, which
// would otherwise fail the cast with 22P02.
func checkID(kind, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return notFound(kind, id)
	}
	return nil
}
