package database

import (
	"context"
	"testing"
	"time"

	"user-directory/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newAuditStoreWithMock(t *testing.T) (*GormAuditStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gormConfig())
	require.NoError(t, err)
	return NewGormAuditStore(db), mock
}

func TestGormAuditStore_Record(t *testing.T) {
	store, mock := newAuditStoreWithMock(t)

	mock.ExpectQuery(`INSERT INTO "audit_logs"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))

	entry := &models.AuditLog{UserID: 1000, Action: models.AuditUserCreated, Details: "Alice"}
	require.NoError(t, store.Record(context.Background(), entry))
	assert.Equal(t, uint(11), entry.ID)
}

func TestGormAuditStore_Recent(t *testing.T) {
	store, mock := newAuditStoreWithMock(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT \* FROM "audit_logs" ORDER BY created_at desc LIMIT`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "user_id", "action", "details"}).
			AddRow(2, now, 999, models.AuditPasswordUpgraded, "").
			AddRow(1, now.Add(-time.Hour), 999, models.AuditAdminBootstrap, ""))

	logs, err := store.Recent(context.Background(), 200)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.AuditPasswordUpgraded, logs[0].Action)
}
