package db

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoMigrate(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	for _, q := range migrations {
		mock.ExpectExec(regexp.QuoteMeta(q)).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	d := &Database{Conn: conn}
	require.NoError(t, d.AutoMigrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAutoMigrate_StopsOnError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec(regexp.QuoteMeta(migrations[0])).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(migrations[1])).WillReturnError(errors.New("permission denied"))

	d := &Database{Conn: conn}
	err = d.AutoMigrate(context.Background())
	assert.ErrorContains(t, err, "migration failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationsEnforcePairUniqueness(t *testing.T) {
	found := false
	for _, q := range migrations {
		if regexp.MustCompile(`CREATE UNIQUE INDEX .* ON conversations \(pair_key\)`).MatchString(q) {
			found = true
		}
	}
	assert.True(t, found)
}
