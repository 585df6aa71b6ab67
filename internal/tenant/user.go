package tenant

import (
	"strings"
	"time"
)

// User is a member of a tenant. PasswordHash never leaves the process.
type User struct {
	ID           int64      `json:"id"`
	TenantID     int64      `json:"tenantId"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	PhoneNumber  string     `json:"phoneNumber"`
	PasswordHash string     `json:"-"`
	IsActive     bool       `json:"isActive"`
	CreatedAt    time.Time  `json:"createdAt"`
	CreatedBy    *int64     `json:"createdBy,omitempty"`
	UpdatedAt    *time.Time `json:"updatedAt"`
	UpdatedBy    *int64     `json:"updatedBy,omitempty"`
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// userView is the wire form of a User.
type userView struct {
	*User
	FullName string `json:"fullName"`
}

func viewOf(u *User) userView {
	return userView{User: u, FullName: u.FullName()}
}
