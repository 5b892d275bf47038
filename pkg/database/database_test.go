package database

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camera-fleet/pkg/config"
)

func setupTestDB(t *testing.T) *sql.DB {
	config.AppConfig.DataDir = t.TempDir()
	config.AppConfig.DatabasePath = filepath.Join(config.AppConfig.DataDir, "test.db")
	InitDB()
	t.Cleanup(func() { db.Close() })
	return GetDB()
}

func TestInitDBCreatesTables(t *testing.T) {
	conn := setupTestDB(t)

	for _, table := range []string{"users", "documents", "render_requests"} {
		var name string
		err := conn.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, table)
	}
}

func TestHashAndCheckPassword(t *testing.T) {
	password := "password123"
	hash, err := HashPassword(password)
	assert.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.True(t, CheckPasswordHash(password, hash))
	assert.False(t, CheckPasswordHash("wrongpassword", hash))
	assert.False(t, CheckPasswordHash(password, "not-a-hash"))
}

func TestCreateAndGetUser(t *testing.T) {
	setupTestDB(t)

	err := CreateUser("jdoe", "jdoe@example.com", "Jane Doe", "password123", true)
	require.NoError(t, err)

	exists, err := UserExists("jdoe")
	assert.NoError(t, err)
	assert.True(t, exists)

	user, err := GetUserByUsername("jdoe")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "jdoe@example.com", user.Email)
	assert.Equal(t, "Jane Doe", user.DisplayName)
	assert.True(t, user.IsAdmin)

	assert.Error(t, CreateUser("jdoe", "", "", "password123", false))

	missing, err := GetUserByUsername("nobody")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCheckUserCredentials(t *testing.T) {
	setupTestDB(t)
	require.NoError(t, CreateUser("tech", "tech@example.com", "Field Tech", "secret", false))

	user, ok := CheckUserCredentials("tech", "secret")
	assert.True(t, ok)
	require.NotNil(t, user)
	assert.Equal(t, "Field Tech", user.DisplayName)

	_, ok = CheckUserCredentials("tech", "wrong")
	assert.False(t, ok)

	_, ok = CheckUserCredentials("ghost", "secret")
	assert.False(t, ok)
}

func TestEnsureAdmin(t *testing.T) {
	setupTestDB(t)

	require.NoError(t, EnsureAdmin(""))
	exists, _ := UserExists("admin")
	assert.False(t, exists)

	require.NoError(t, EnsureAdmin("s3cret"))
	require.NoError(t, EnsureAdmin("s3cret"))
	_, ok := CheckUserCredentials("admin", "s3cret")
	assert.True(t, ok)
}
