package db

import (
	"github.com/pkg/errors"

	"github.com/hrygo/reviewsense/internal/profile"
	"github.com/hrygo/reviewsense/store"
	"github.com/hrygo/reviewsense/store/db/postgres"
	"github.com/hrygo/reviewsense/store/db/sqlite"
)

// NewDBDriver creates the store driver selected by profile.Driver.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver: %s", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
