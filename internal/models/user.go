package models

import "time"

// User is a credential record. Password holds the bcrypt hash once the
// record has been persisted; plaintext only lives in the pending slot.
type User struct {
	ID        string    `json:"_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName,omitempty"`
	LastName  string    `json:"lastName,omitempty"`
	Password  string    `json:"-"` // never serialize
	CreatedAt time.Time `json:"createdAt"`
	Posts     []string  `json:"posts"`

	pendingPassword string
	passwordDirty   bool
}

// SetPassword stages a plaintext password to be hashed on the next save.
func (u *User) SetPassword(plaintext string) {
	u.pendingPassword = plaintext
	u.passwordDirty = true
}

// PendingPassword returns the staged plaintext, if any.
func (u *User) PendingPassword() (string, bool) {
	return u.pendingPassword, u.passwordDirty
}

// CommitPassword replaces the staged plaintext with its hash.
func (u *User) CommitPassword(hash string) {
	u.Password = hash
	u.pendingPassword = ""
	u.passwordDirty = false
}

// RegisterInput is the argument set of the addUser mutation.
type RegisterInput struct {
	Username  string `validate:"omitempty,max=50,handle"`
	FirstName string `validate:"required_without=Username,max=50"`
	LastName  string `validate:"required_without=Username,max=50"`
	Email     string `validate:"required,email,max=255"`
	Password  string `validate:"required,max=72"`
}

// LoginInput is the argument set of the login mutation.
type LoginInput struct {
	Email    string `validate:"required"`
	Password string `validate:"required"`
}
