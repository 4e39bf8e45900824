package services

import "errors"

var (
	// ErrInvalidInput marks validation failures on caller-supplied fields.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidCredentials is returned when login fails. It does not say
	// whether the username or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUsernameTaken is returned when registering a duplicate username.
	ErrUsernameTaken = errors.New("username already exists")

	// ErrEmailTaken is returned when registering a duplicate email.
	ErrEmailTaken = errors.New("email already exists")

	// ErrUserHasMaterials blocks dismissal of a user who still owns
	// materials. The caller must delete or reassign them first.
	ErrUserHasMaterials = errors.New("user still owns materials")
)
