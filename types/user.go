package types

// Roles a user account can hold. The platform knows exactly two.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
)

// User represents an account in the system.
// It contains identity, role, and approval metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Firstname is the user's given name.
	Firstname string `json:"firstname" db:"firstname"`

	// Lastname is the user's family name.
	Lastname string `json:"lastname" db:"lastname"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" db:"username"`

	// Email is the user's email address, unique across accounts.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// Grade is the school grade the user belongs to (students) or
	// teaches (teachers). Students only see materials at or below it.
	Grade int `json:"grade" db:"grade"`

	// Role is either RoleStudent or RoleTeacher.
	Role string `json:"role" db:"role"`

	// IsApproved indicates whether a teacher has approved the account.
	// Unapproved accounts cannot access any protected endpoint.
	IsApproved bool `json:"is_approved" db:"is_approved"`
}
