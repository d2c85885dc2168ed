package seed

import (
	"strings"
	"testing"

	"thirtyday/internal/models"
	"thirtyday/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFixture = `
users:
  - email: Alice@Example.com
    display_name: Alice
  - email: bob@example.com
  - email: carol@example.com
    id: 6f1d9d8e-2d4a-4c5e-9b7a-0e3f8c1b2a11
connections:
  - sender: alice@example.com
    receiver: bob@example.com
    status: pending
  - sender: carol@example.com
    receiver: alice@example.com
    status: accepted
challenges:
  - owner: alice@example.com
    title: Run every day
    description: At least two kilometres
    days: 14
`

func TestLoadFixture(t *testing.T) {
	fx, err := LoadFixture(strings.NewReader(sampleFixture))
	require.NoError(t, err)
	assert.Len(t, fx.Users, 3)
	assert.Equal(t, models.ConnectionAccepted, fx.Connections[1].Status)
	assert.Equal(t, 14, fx.Challenges[0].Days)
}

func TestLoadFixture_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown field", "userz: []"},
		{"bad email", "users:\n  - email: nope"},
		{"duplicate email", "users:\n  - email: a@example.com\n  - email: A@example.com"},
		{"bad id", "users:\n  - email: a@example.com\n    id: 42"},
		{"unknown user", "users:\n  - email: a@example.com\nconnections:\n  - sender: a@example.com\n    receiver: b@example.com\n    status: pending"},
		{"self", "users:\n  - email: a@example.com\nconnections:\n  - sender: a@example.com\n    receiver: a@example.com\n    status: pending"},
		{"bad status", "users:\n  - email: a@example.com\n  - email: b@example.com\nconnections:\n  - sender: a@example.com\n    receiver: b@example.com\n    status: blocked"},
		{"two rows for a pair", "users:\n  - email: a@example.com\n  - email: b@example.com\nconnections:\n  - sender: a@example.com\n    receiver: b@example.com\n    status: pending\n  - sender: b@example.com\n    receiver: a@example.com\n    status: accepted"},
		{"challenge without title", "users:\n  - email: a@example.com\nchallenges:\n  - owner: a@example.com\n    description: x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFixture(strings.NewReader(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadFixture_Empty(t *testing.T) {
	fx, err := LoadFixture(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, fx.Users)
}

func TestApplyFixture_Idempotent(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	s := NewSeeder(db, Options{})
	fx, err := LoadFixture(strings.NewReader(sampleFixture))
	require.NoError(t, err)

	require.NoError(t, s.ApplyFixture(fx))
	require.NoError(t, s.ApplyFixture(fx))

	var users []models.User
	require.NoError(t, db.Order("email").Find(&users).Error)
	require.Len(t, users, 3)
	assert.Equal(t, "alice@example.com", users[0].Email)
	require.NotNil(t, users[0].DisplayName)
	assert.Equal(t, "Alice", *users[0].DisplayName)
	assert.Equal(t, "6f1d9d8e-2d4a-4c5e-9b7a-0e3f8c1b2a11", users[2].ID.String())

	var conns, challenges int64
	require.NoError(t, db.Model(&models.FriendConnection{}).Count(&conns).Error)
	require.NoError(t, db.Model(&models.Challenge{}).Count(&challenges).Error)
	assert.EqualValues(t, 2, conns)
	assert.EqualValues(t, 1, challenges)
}

func TestApplyFixture_UpdatesExistingPair(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	s := NewSeeder(db, Options{})
	fx, err := LoadFixture(strings.NewReader(sampleFixture))
	require.NoError(t, err)
	require.NoError(t, s.ApplyFixture(fx))

	// bob re-invites alice after a rejection.
	fx.Connections[0] = FixtureConnection{Sender: "bob@example.com", Receiver: "alice@example.com", Status: models.ConnectionRejected}
	require.NoError(t, s.ApplyFixture(fx))

	var bob models.User
	require.NoError(t, db.Where("email = ?", "bob@example.com").First(&bob).Error)
	var conn models.FriendConnection
	require.NoError(t, db.Where("sender_id = ?", bob.ID).First(&conn).Error)
	assert.Equal(t, models.ConnectionRejected, conn.Status)

	var n int64
	require.NoError(t, db.Model(&models.FriendConnection{}).Count(&n).Error)
	assert.EqualValues(t, 2, n)
}
