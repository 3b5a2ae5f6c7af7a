package models

// Role is a user's global role.
type Role string

const (
	RoleUser       Role = "USER"
	RoleOrganizer  Role = "ORGANIZER"
	RoleSuperAdmin Role = "SUPERADMIN"
)

// CanModerate reports whether the role may issue warnings.
func (r Role) CanModerate() bool {
	return r == RoleOrganizer || r == RoleSuperAdmin
}

// Identity is the authenticated session user. Token is the bearer credential
// presented to the REST API and the websocket endpoint.
type Identity struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	Token    string `json:"-"`
}

// User is a row of the users table.
type User struct {
	ID           int64   `db:"id" json:"id"`
	Username     string  `db:"username" json:"username"`
	FirstName    *string `db:"first_name" json:"first_name,omitempty"`
	LastName     *string `db:"last_name" json:"last_name,omitempty"`
	ProfileImage *string `db:"profile_image" json:"profile_image,omitempty"`
	Role         Role    `db:"role" json:"role"`
}

// Ref projects the user to its short form.
func (u User) Ref() UserRef {
	ref := UserRef{ID: u.ID, Username: u.Username}
	if u.FirstName != nil {
		ref.FirstName = *u.FirstName
	}
	if u.LastName != nil {
		ref.LastName = *u.LastName
	}
	return ref
}
