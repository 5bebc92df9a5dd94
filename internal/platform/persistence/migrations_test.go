package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunMigrations_InputValidation(t *testing.T) {
	t.Run("EmptyMigrationsPath", func(t *testing.T) {
		err := RunMigrations("postgres://recon@localhost:5432/remittance_db", "")
		assert.EqualError(t, err, "migrations path cannot be empty")
	})

	t.Run("EmptyDatabaseURL", func(t *testing.T) {
		err := RunMigrations("", "migrations/postgres")
		assert.EqualError(t, err, "database URL cannot be empty")
	})

	t.Run("MissingSourceDirectory", func(t *testing.T) {
		err := RunMigrations("postgres://recon@localhost:5432/remittance_db", "does/not/exist")
		assert.Error(t, err)
	})
}
