package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOperator(t *testing.T) {
	u, err := CreateOperator(" Front Desk ", "desk@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, "Front Desk", u.Name)
	assert.Equal(t, ROLE_OPERATOR, u.Role)
	assert.True(t, u.IsActive())
	assert.False(t, u.IsAdmin())

	_, err = CreateOperator("Boss", "boss@example.com", "owner")
	assert.Error(t, err)

	_, err = CreateOperator("Boss", "not-an-email", ROLE_ADMIN)
	assert.Error(t, err)
}

func TestUserIssueAPIKey(t *testing.T) {
	u := &User{Name: "Front Desk"}

	key, err := u.IssueAPIKey()
	require.NoError(t, err)
	require.True(t, u.HasActiveAPIKey())

	id, secret, ok := SplitAPIKey(key)
	require.True(t, ok)
	assert.Equal(t, *u.APIKeyID, id)
	assert.Len(t, id, 32)
	assert.NotContains(t, u.APIKeyHash, secret)
	assert.True(t, u.CheckAPIKeySecret(secret))
	assert.False(t, u.CheckAPIKeySecret(strings.ToUpper(secret)))
	assert.NotNil(t, u.APIKeyCreatedAt)
}

func TestUserRevokeAPIKey(t *testing.T) {
	u := &User{}
	key, err := u.IssueAPIKey()
	require.NoError(t, err)
	_, secret, _ := SplitAPIKey(key)

	u.RevokeAPIKey()

	assert.False(t, u.HasActiveAPIKey())
	assert.Nil(t, u.APIKeyID)
	assert.False(t, u.CheckAPIKeySecret(secret))
}

func TestSplitAPIKey(t *testing.T) {
	tests := []struct {
		raw    string
		id     string
		secret string
		ok     bool
	}{
		{"abc.def", "abc", "def", true},
		{"  abc.def.ghi ", "abc", "def.ghi", true},
		{"abcdef", "", "", false},
		{".def", "", "", false},
		{"abc.", "", "", false},
	}

	for _, tt := range tests {
		id, secret, ok := SplitAPIKey(tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.Equal(t, tt.id, id, tt.raw)
		assert.Equal(t, tt.secret, secret, tt.raw)
	}
}
