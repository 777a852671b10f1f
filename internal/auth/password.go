package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// DefaultAdminPassword is the password of the seeded admin account.
const DefaultAdminPassword = "changeme"

var ErrEmptyPassword = errors.New("password must not be empty")

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// IsHashed reports whether value already looks like a bcrypt hash.
func IsHashed(value string) bool {
	if len(value) != 60 {
		return false
	}
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(value, prefix) {
			_, err := bcrypt.Cost([]byte(value))
			return err == nil
		}
	}
	return false
}

// RehashPlaintext rewrites every value of table.column that is not a bcrypt
// hash through HashPassword. Once all values are hashed it is a no-op.
// table and column come from module code, never from user input.
func RehashPlaintext(ctx context.Context, db *sql.DB, table, keyColumn, column string) (int64, error) {
	if err := sanitizeAll(table, keyColumn, column); err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`SELECT %s, %s FROM %s WHERE %s IS NOT NULL AND %s <> ''`,
		keyColumn, column, table, column, column)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return 0, err
	}
	type pending struct {
		key   any
		plain string
	}
	var todo []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.key, &p.plain); err != nil {
			rows.Close()
			return 0, err
		}
		if !IsHashed(p.plain) {
			todo = append(todo, p)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	var n int64
	update := fmt.Sprintf(`UPDATE %s SET %s = ? WHERE %s = ?`, table, column, keyColumn)
	for _, p := range todo {
		hash, err := HashPassword(p.plain)
		if err != nil {
			return n, err
		}
		if _, err := db.ExecContext(ctx, update, hash, p.key); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
