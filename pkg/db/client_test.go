package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testModel struct {
	ID   int
	Code string `gorm:"uniqueIndex"`
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:dbclient_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&testModel{}))
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	conn := newTestDB(t)
	client := NewFromConn(conn)
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Code: "committed"}).Error
	}))

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Code: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, conn.Model(&testModel{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	conn := newTestDB(t)
	client := NewFromConn(conn)

	require.Panics(t, func() {
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			tx.Create(&testModel{Code: "panicky"})
			panic("kaboom")
		})
	})

	var count int64
	require.NoError(t, conn.Model(&testModel{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestPing(t *testing.T) {
	client := NewFromConn(newTestDB(t))
	require.NoError(t, client.Ping(context.Background()))
}

func TestIsUniqueViolation_SQLite(t *testing.T) {
	conn := newTestDB(t)
	require.NoError(t, conn.Create(&testModel{Code: "dup"}).Error)

	err := conn.Create(&testModel{Code: "dup"}).Error
	require.Error(t, err)
	require.True(t, IsUniqueViolation(err, ""))
	require.True(t, IsUniqueViolation(err, "test_models.code"))
	require.False(t, IsUniqueViolation(err, "orders.order_number"))
}

func TestIsUniqueViolation_Postgres(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "orders_order_number_key"}
	wrapped := fmt.Errorf("insert order: %w", pgErr)

	require.True(t, IsUniqueViolation(wrapped, ""))
	require.True(t, IsUniqueViolation(wrapped, "orders_order_number_key"))
	require.False(t, IsUniqueViolation(wrapped, "wallets_user_id_key"))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}, ""))
	require.False(t, IsUniqueViolation(nil, ""))
}
