package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/reviewsense/internal/profile"
	"github.com/hrygo/reviewsense/store"
)

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "$3", placeholder(3))
	assert.Equal(t, "$1, $2, $3", placeholders(3))
	assert.Equal(t, "", placeholders(0))
}

func TestMigrations_LatestVersion(t *testing.T) {
	src, err := iofs.New(migrationFS, "migration")
	require.NoError(t, err)
	defer src.Close()

	version, err := src.First()
	require.NoError(t, err)
	for {
		next, err := src.Next(version)
		if err != nil {
			break
		}
		version = next
	}
	assert.Equal(t, latestSchemaVersion, version)
}

// TestPostgres_Integration runs against the database named by
// REVIEWSENSE_TEST_POSTGRES_DSN.
func TestPostgres_Integration(t *testing.T) {
	dsn := os.Getenv("REVIEWSENSE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("REVIEWSENSE_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	driver, err := NewDB(&profile.Profile{Driver: "postgres", DSN: dsn})
	require.NoError(t, err)
	defer driver.Close()
	require.NoError(t, driver.Migrate(ctx))

	key := "integration-test"
	_, err = driver.UpsertReviewSummary(ctx, &store.UpsertReviewSummary{Key: key, Content: "a", GeneratedNs: 1, ExpiresNs: 2})
	require.NoError(t, err)
	_, err = driver.UpsertReviewSummary(ctx, &store.UpsertReviewSummary{Key: key, Content: "b", GeneratedNs: 3, ExpiresNs: 4})
	require.NoError(t, err)

	list, err := driver.ListReviewSummaries(ctx, &store.FindReviewSummary{Key: &key})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].Content)
	assert.Equal(t, int64(4), list[0].ExpiresNs)
}
