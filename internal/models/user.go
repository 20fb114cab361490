package models

import (
	"strings"
	"time"
)

// UserRole represents the available roles for access scoping.
type UserRole string

const (
	RoleMember    UserRole = "member"
	RoleAdmin     UserRole = "admin"
	RoleExecutive UserRole = "başkan"
)

// Valid reports whether the role is known.
func (r UserRole) Valid() bool {
	switch r {
	case RoleMember, RoleAdmin, RoleExecutive:
		return true
	default:
		return false
	}
}

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Name         string     `db:"name" json:"name"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Role         UserRole   `db:"role" json:"role"`
	Department   string     `db:"department" json:"department"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Actor is the authenticated identity performing an operation.
type Actor struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	Role       UserRole `json:"role"`
	Department string   `json:"department"`
}

// Valid reports whether the actor carries an identity.
func (a *Actor) Valid() bool {
	return a != nil && strings.TrimSpace(a.ID) != ""
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

// NewPagination fills TotalPages from the other fields.
func NewPagination(page, pageSize, total int) *Pagination {
	p := &Pagination{Page: page, PageSize: pageSize, TotalCount: total}
	if pageSize > 0 {
		p.TotalPages = (total + pageSize - 1) / pageSize
	}
	return p
}

// Page is a normalized page request.
type Page struct {
	Number int
	Size   int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// NormalizePage clamps page and size into usable bounds.
func NormalizePage(number, size int) Page {
	if number <= 0 {
		number = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return Page{Number: number, Size: size}
}

// Offset returns the row offset of the page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}
