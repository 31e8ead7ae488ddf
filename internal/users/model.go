package users

import (
	"database/sql"
	"time"
)

type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Role         string
	Phone        sql.NullString
	CreatedAt    time.Time
}

// Filter narrows the admin listing. Role empty means all roles.
type Filter struct {
	Search string
	Role   string
}

type Page struct {
	Limit  int
	Offset int
}
