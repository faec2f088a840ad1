package service

import "errors"

var (
	// ErrInvalidCredentials covers both unknown accounts and wrong
	// passwords; callers must not be able to tell the two apart.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUserInactive is returned when a disabled account authenticates
	// with an otherwise valid password.
	ErrUserInactive = errors.New("account is disabled")

	// ErrDuplicateUser is returned on registration when the username or
	// email is already taken.
	ErrDuplicateUser = errors.New("username or email already in use")

	// ErrRefreshTokenInvalid covers every refresh failure mode: bad
	// signature, expired, revoked, or never issued. A single sentinel
	// keeps the failure modes indistinguishable at the boundary.
	ErrRefreshTokenInvalid = errors.New("refresh token invalid")

	// ErrInsufficientPermissions is returned when the caller's access
	// level does not satisfy the operation's requirement.
	ErrInsufficientPermissions = errors.New("insufficient permissions")

	// ErrInvalidAccessLevel is returned when a mutation names a level
	// outside the known hierarchy.
	ErrInvalidAccessLevel = errors.New("invalid access level")

	// ErrNoActiveSecret indicates the signing secret set was never
	// initialized; tokens cannot be issued until rotation runs.
	ErrNoActiveSecret = errors.New("no active signing secret")
)
