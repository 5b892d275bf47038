package database

import (
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/argon2"

	"camera-fleet/pkg/config"
	"camera-fleet/pkg/models"
)

// argon2Params holds the parameters for the Argon2id hashing algorithm.
type argon2Params struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	saltLength  uint32
	keyLength   uint32
}

var params = &argon2Params{
	memory:      64 * 1024,
	iterations:  3,
	parallelism: 4,
	saltLength:  16,
	keyLength:   32,
}

var db *sql.DB

var schema = []struct {
	name string
	sql  string
}{
	{"users", `CREATE TABLE IF NOT EXISTS users (
		"id" INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
		"username" TEXT NOT NULL UNIQUE,
		"email" TEXT NOT NULL DEFAULT '',
		"display_name" TEXT NOT NULL DEFAULT '',
		"password_hash" TEXT NOT NULL,
		"is_admin" INTEGER NOT NULL DEFAULT 0
	);`},
	{"documents", `CREATE TABLE IF NOT EXISTS documents (
		"seq" INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
		"collection" TEXT NOT NULL,
		"id" TEXT NOT NULL,
		"body" TEXT NOT NULL,
		"created_at" DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE ("collection", "id")
	);`},
	{"render_requests", `CREATE TABLE IF NOT EXISTS render_requests (
		"seq" INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
		"id" TEXT NOT NULL UNIQUE,
		"type" TEXT NOT NULL,
		"developer_tag" TEXT NOT NULL,
		"status" TEXT NOT NULL DEFAULT 'queued',
		"body" TEXT NOT NULL,
		"error" TEXT,
		"created_at" DATETIME DEFAULT CURRENT_TIMESTAMP,
		"updated_at" DATETIME DEFAULT CURRENT_TIMESTAMP
	);`},
	{"render_requests status index", `CREATE INDEX IF NOT EXISTS idx_render_requests_status ON render_requests (status, seq);`},
	// Trigger to update `updated_at` timestamp on row update
	{"render_requests trigger", `
	CREATE TRIGGER IF NOT EXISTS update_render_requests_updated_at
	AFTER UPDATE OF status ON render_requests
	FOR EACH ROW
	BEGIN
		UPDATE render_requests SET updated_at = CURRENT_TIMESTAMP WHERE seq = OLD.seq;
	END;`},
}

// InitDB opens the database at config.AppConfig.DatabasePath and creates the schema.
// SQLite allows one writer; the pool is pinned to a single connection so every
// read-modify-write transaction is serialised.
func InitDB() {
	dbPath := config.AppConfig.DatabasePath
	if dbPath == "" {
		dbPath = filepath.Join(config.AppConfig.DataDir, "fleet.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	var err error
	db, err = sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	db.SetMaxOpenConns(1)

	for _, s := range schema {
		if _, err := db.Exec(s.sql); err != nil {
			log.Fatalf("Failed to create %s: %v", s.name, err)
		}
	}
	log.Printf("Database initialized at %s", dbPath)
}

// GetDB returns the database connection pool.
func GetDB() *sql.DB {
	return db
}

// HashPassword generates an Argon2id hash of the password.
// The format is: $argon2id$v=19$m=<memory>,t=<iterations>,p=<parallelism>$<salt>$<hash>
func HashPassword(password string) (string, error) {
	salt := make([]byte, params.saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, params.iterations, params.memory, params.parallelism, params.keyLength)

	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	format := "$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s"
	return fmt.Sprintf(format, argon2.Version, params.memory, params.iterations, params.parallelism, b64Salt, b64Hash), nil
}

// CheckPasswordHash compares a password with an Argon2id hash.
func CheckPasswordHash(password, hash string) bool {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 {
		log.Println("Warning: Invalid hash format provided to CheckPasswordHash")
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		log.Println("Warning: Incompatible Argon2 version")
		return false
	}

	p := &argon2Params{}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.iterations, &p.parallelism); err != nil {
		log.Printf("Warning: Failed to parse Argon2 params: %v", err)
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		log.Printf("Warning: Failed to decode salt: %v", err)
		return false
	}

	decodedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		log.Printf("Warning: Failed to decode hash: %v", err)
		return false
	}
	p.keyLength = uint32(len(decodedHash))

	comparisonHash := argon2.IDKey([]byte(password), salt, p.iterations, p.memory, p.parallelism, p.keyLength)
	return subtle.ConstantTimeCompare(decodedHash, comparisonHash) == 1
}

// UserExists checks if a user exists in the database.
func UserExists(username string) (bool, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM users WHERE username = ?", username).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateUser creates a new user. Email and display name are used as the actor
// on maintenance status changes made by that user.
func CreateUser(username, email, displayName, password string, isAdmin bool) error {
	exists, err := UserExists(username)
	if err != nil {
		return fmt.Errorf("failed to check if user exists: %w", err)
	}
	if exists {
		return fmt.Errorf("user '%s' already exists", username)
	}

	passwordHash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	_, err = db.Exec("INSERT INTO users (username, email, display_name, password_hash, is_admin) VALUES (?, ?, ?, ?, ?)",
		username, email, displayName, passwordHash, isAdmin)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	log.Printf("Successfully created user: %s (Admin: %t)", username, isAdmin)
	return nil
}

// EnsureAdmin creates the admin account on first start when a password is configured.
func EnsureAdmin(password string) error {
	if password == "" {
		return nil
	}
	exists, err := UserExists("admin")
	if err != nil || exists {
		return err
	}
	return CreateUser("admin", "", "Administrator", password, true)
}

// CheckUserCredentials verifies a user's credentials and returns the user on success.
func CheckUserCredentials(username, password string) (*models.User, bool) {
	var passwordHash string
	err := db.QueryRow("SELECT password_hash FROM users WHERE username = ?", username).Scan(&passwordHash)
	if err != nil {
		if err != sql.ErrNoRows {
			log.Printf("Error querying for password hash of user %s: %v", username, err)
		}
		return nil, false
	}
	if !CheckPasswordHash(password, passwordHash) {
		return nil, false
	}

	user, err := GetUserByUsername(username)
	if err != nil || user == nil {
		log.Printf("Error retrieving user %s: %v", username, err)
		return nil, false
	}
	return user, true
}

// GetUserByUsername retrieves a user by username. A missing user is (nil, nil).
func GetUserByUsername(username string) (*models.User, error) {
	var user models.User
	var isAdminInt int
	err := db.QueryRow("SELECT id, username, email, display_name, is_admin FROM users WHERE username = ?", username).
		Scan(&user.ID, &user.Username, &user.Email, &user.DisplayName, &isAdminInt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	user.IsAdmin = (isAdminInt == 1)
	return &user, nil
}
