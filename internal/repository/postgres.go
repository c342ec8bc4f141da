package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stwalsh4118/canopy/internal/database"
)

// foreignKeyViolation is the SQLSTATE raised when a parent row is missing.
const foreignKeyViolation = "23503"

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}

// NewPostgresStore returns the PostGIS-backed repositories.
func NewPostgresStore(db *database.Database) *Store {
	return &Store{
		AOIs:           NewAOIRepository(db),
		Scenes:         NewSceneRepository(db),
		Clips:          NewClipRepository(db),
		Visualizations: NewVizRepository(db),
	}
}
