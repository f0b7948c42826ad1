package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockDB returns a DB backed by sqlmock for repository tests.
func newMockDB(t *testing.T) (DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &PostgresDB{DB: sqlx.NewDb(db, "sqlmock")}, mock
}

func TestRouteRepository_GetByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRouteRepository(db)
	now := time.Now()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, route_name, is_active, created_at, updated_at\s+FROM routes`).
			WithArgs("R1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "route_name", "is_active", "created_at", "updated_at"}).
				AddRow("R1", "CP - Anand Vihar", true, now, now))

		route, err := repo.GetByID(context.Background(), "R1")
		require.NoError(t, err)
		assert.Equal(t, "R1", route.ID)
		assert.Equal(t, "CP - Anand Vihar", route.RouteName)
		assert.True(t, route.IsActive)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not Found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, route_name, is_active, created_at, updated_at\s+FROM routes`).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"id", "route_name", "is_active", "created_at", "updated_at"}))

		route, err := repo.GetByID(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrRouteNotFound)
		assert.Nil(t, route)
	})

	t.Run("Database Error", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, route_name, is_active, created_at, updated_at\s+FROM routes`).
			WithArgs("R1").
			WillReturnError(fmt.Errorf("database error"))

		route, err := repo.GetByID(context.Background(), "R1")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrRouteNotFound)
		assert.Nil(t, route)
	})
}

func TestRouteRepository_GetStops(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRouteRepository(db)
	now := time.Now()

	mock.ExpectQuery(`SELECT id, route_id, stop_name, stop_order, latitude, longitude, created_at\s+FROM route_stops`).
		WithArgs("R1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "route_id", "stop_name", "stop_order", "latitude", "longitude", "created_at"}).
			AddRow("S1", "R1", "Connaught Place", 1, 28.6328, 77.2197, now).
			AddRow("S2", "R1", "Anand Vihar", 2, 28.6280, 77.3649, now))

	stops, err := repo.GetStops(context.Background(), "R1")
	require.NoError(t, err)
	require.Len(t, stops, 2)
	assert.Equal(t, "Connaught Place", stops[0].StopName)
	assert.Equal(t, 1, stops[0].StopOrder)
	assert.Equal(t, 28.6280, stops[1].Latitude)

	assert.NoError(t, mock.ExpectationsWereMet())
}
