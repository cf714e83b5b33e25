package user

import (
	"strconv"
	"strings"
)

// ID is the identity of a user record owned by the Identity Service.
// The zero value is never a valid user.
type ID int

func (id ID) String() string {
	return strconv.Itoa(int(id))
}

// ParseID resolves a path or body value into an ID at the API boundary.
func ParseID(s string) (ID, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0, false
	}
	return ID(n), true
}

type User struct {
	ID        ID     `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"-"`
	AvatarURL string `json:"avatar,omitempty"`
}

// DisplayName prefers the full name, then the username, then the email.
func (u *User) DisplayName() string {
	if full := strings.TrimSpace(u.FirstName + " " + u.LastName); full != "" {
		return full
	}
	if name := strings.TrimSpace(u.Username); name != "" {
		return name
	}
	return u.Email
}
