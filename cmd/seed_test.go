package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridebook/db/db"
	"ridebook/money"
)

func TestParseCSVToUsers(t *testing.T) {
	users, err := ParseCSVToUsers([][]string{
		{"username", "first_name", "last_name", "role", "balance"},
		{"carol", "Carol", "King", "customer", "100"},
		{" rick ", "Rick", "Rider", "RIDER", "0"},
		{"sam", "", "", "staff", "12.345"},
	})
	require.NoError(t, err)
	require.Len(t, users, 3)

	assert.Equal(t, "carol", users[0].Username)
	assert.Equal(t, db.RoleCustomer, users[0].Role)
	assert.Equal(t, "100.00", money.Format(users[0].Balance))

	assert.Equal(t, "rick", users[1].Username)
	assert.Equal(t, db.RoleRider, users[1].Role)
	assert.Equal(t, "0.00", money.Format(users[1].Balance))

	assert.Equal(t, "sam", users[2].FullName())
	assert.Equal(t, "12.34", money.Format(users[2].Balance))
}

func TestParseCSVToUsersRejects(t *testing.T) {
	header := []string{"username", "first_name", "last_name", "role", "balance"}
	tests := []struct {
		name string
		row  []string
	}{
		{"too few columns", []string{"carol", "Carol", "customer", "1"}},
		{"empty username", []string{"", "Carol", "King", "customer", "1"}},
		{"unknown role", []string{"carol", "Carol", "King", "driver", "1"}},
		{"bad balance", []string{"carol", "Carol", "King", "customer", "abc"}},
		{"negative balance", []string{"carol", "Carol", "King", "customer", "-1"}},
		{"balance too large", []string{"carol", "Carol", "King", "customer", "100000000"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCSVToUsers([][]string{header, tt.row})
			assert.Error(t, err)
		})
	}

	_, err := ParseCSVToUsers(nil)
	assert.Error(t, err)
}
