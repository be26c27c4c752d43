package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/unwind/pkg/observability"
)

func TestParseReplicaURLs(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"empty string", "", nil},
		{"single URL", "postgres://host1/db", []string{"postgres://host1/db"}},
		{"whitespace and empties", " postgres://host1/db , ,postgres://host2/db ", []string{"postgres://host1/db", "postgres://host2/db"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseReplicaURLs(tt.input))
		})
	}
}

func TestConnectionManager_Replica(t *testing.T) {
	t.Run("no replicas falls back to primary", func(t *testing.T) {
		primary := &sql.DB{}
		cm := &ConnectionManager{primary: primary}
		assert.Same(t, primary, cm.Replica())
	})

	t.Run("round robin", func(t *testing.T) {
		r1, r2, r3 := &sql.DB{}, &sql.DB{}, &sql.DB{}
		cm := &ConnectionManager{primary: &sql.DB{}, replicas: []*sql.DB{r1, r2, r3}}

		selections := make(map[*sql.DB]int)
		for i := 0; i < 30; i++ {
			selections[cm.Replica()]++
		}
		assert.Equal(t, 10, selections[r1])
		assert.Equal(t, 10, selections[r2])
		assert.Equal(t, 10, selections[r3])
	})
}

func newPingMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	return db, mock
}

func TestConnectionManager_HealthCheck(t *testing.T) {
	primary, primaryMock := newPingMock(t)
	replica, replicaMock := newPingMock(t)
	defer primary.Close()
	defer replica.Close()

	cm := &ConnectionManager{primary: primary, replicas: []*sql.DB{replica}, logger: observability.NopLogger()}

	primaryMock.ExpectPing()
	replicaMock.ExpectPing()
	assert.NoError(t, cm.HealthCheck(context.Background()))

	primaryMock.ExpectPing()
	replicaMock.ExpectPing().WillReturnError(errors.New("down"))
	assert.ErrorContains(t, cm.HealthCheck(context.Background()), "all replicas unhealthy")

	primaryMock.ExpectPing().WillReturnError(errors.New("down"))
	assert.ErrorContains(t, cm.HealthCheck(context.Background()), "primary unhealthy")

	assert.NoError(t, primaryMock.ExpectationsWereMet())
	assert.NoError(t, replicaMock.ExpectationsWereMet())
}

func TestConnectionManager_RemoveUnhealthyReplicas(t *testing.T) {
	primary, _ := newPingMock(t)
	healthy, healthyMock := newPingMock(t)
	broken, brokenMock := newPingMock(t)
	defer primary.Close()
	defer healthy.Close()

	cm := &ConnectionManager{primary: primary, replicas: []*sql.DB{healthy, broken}, logger: observability.NopLogger()}

	healthyMock.ExpectPing()
	brokenMock.ExpectPing().WillReturnError(errors.New("down"))
	brokenMock.ExpectClose()

	assert.Equal(t, 1, cm.RemoveUnhealthyReplicas(context.Background()))
	assert.Equal(t, 1, cm.ReplicaCount())
	assert.Same(t, healthy, cm.Replica())
	assert.NoError(t, brokenMock.ExpectationsWereMet())
}

func TestConnectionManager_Close(t *testing.T) {
	primary, primaryMock := newPingMock(t)
	replica, replicaMock := newPingMock(t)

	cm := &ConnectionManager{primary: primary, replicas: []*sql.DB{replica}, logger: observability.NopLogger()}

	primaryMock.ExpectClose()
	replicaMock.ExpectClose().WillReturnError(errors.New("busy"))

	err := cm.Close()
	assert.ErrorContains(t, err, "replica-0: busy")
	assert.Equal(t, 0, cm.ReplicaCount())
}
