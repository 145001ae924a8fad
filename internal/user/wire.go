package user

import (
	"database/sql"

	"github.com/google/wire"
)

// ProvideRepository is a Wire provider function that creates a user.Repository
func ProvideRepository(db *sql.DB) Repository {
	return NewPostgresRepository(db)
}

var Set = wire.NewSet(ProvideRepository, NewService)
