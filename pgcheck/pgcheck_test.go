package pgcheck

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sardine-ai/go-config-advisor/model"
)

func setupTestDB(t *testing.T) (*Inspector, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	gormDB, err := gorm.Open(
		postgres.New(postgres.Config{
			Conn:                 mockDB,
			PreferSimpleProtocol: true,
		}),
		&gorm.Config{
			Logger:               logger.Default.LogMode(logger.Silent),
			DisableAutomaticPing: true,
		},
	)
	require.NoError(t, err)
	return New(gormDB), mock
}

func TestSettings(t *testing.T) {
	inspector, mock := setupTestDB(t)

	rows := sqlmock.NewRows([]string{"name", "setting", "unit"}).
		AddRow("idle_in_transaction_session_timeout", "60000", "ms").
		AddRow("max_connections", "100", nil).
		AddRow("random_page_cost", "4", nil).
		AddRow("shared_buffers", "16384", "8kB").
		AddRow("statement_timeout", "0", "ms").
		AddRow("work_mem", "4096", "kB")
	mock.ExpectQuery(`SELECT name, setting, unit FROM pg_settings WHERE name IN`).WillReturnRows(rows)

	set, err := inspector.Settings(context.Background())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, 6, set.Len())
	assert.Equal(t, "128MB", set.Value("postgres.shared_buffers"))
	assert.Equal(t, "4MB", set.Value("postgres.work_mem"))
	assert.Equal(t, "100", set.Value("postgres.max_connections"))
	assert.Equal(t, "1min", set.Value("postgres.idle_in_transaction_session_timeout"))
	assert.Equal(t, "0", set.Value("postgres.statement_timeout"))

	prop, ok := set.Get("postgres.random_page_cost")
	require.True(t, ok)
	assert.Equal(t, model.Origin{File: Origin, Line: 3}, prop.Origin)
}

func TestSettingsQueryError(t *testing.T) {
	inspector, mock := setupTestDB(t)
	mock.ExpectQuery(`SELECT name, setting, unit FROM pg_settings`).WillReturnError(assert.AnError)

	_, err := inspector.Settings(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
}

func TestPing(t *testing.T) {
	inspector, mock := setupTestDB(t)
	mock.ExpectPing()

	require.NoError(t, inspector.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		value, unit, want string
	}{
		{"16384", "8kB", "128MB"},
		{"65536", "kB", "64MB"},
		{"1024", "MB", "1GB"},
		{"30", "s", "30s"},
		{"5", "min", "5min"},
		{"-1", "ms", "-1"},
		{"on", "", "on"},
		{"1.1", "", "1.1"},
	}
	for _, tt := range tests {
		got, err := normalize(tt.value, tt.unit)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.value+" "+tt.unit)
	}

	_, err := normalize("lots", "kB")
	assert.Error(t, err)
}
