package auth

import (
	"fmt"
	"sync"
)

// Authenticator checks login credentials against a fixed set of users.
//
// Thread Safety:
//   - Safe for concurrent use; the user set is immutable after creation.
type Authenticator struct {
	users map[string]User

	// dummyHash is verified for unknown usernames so response time does not
	// reveal which accounts exist.
	dummyOnce sync.Once
	dummyHash string
}

// NewAuthenticator validates users and builds an Authenticator.
//
// Returns:
//   - error: ErrInvalidUser for a bad username, role or hash;
//     ErrDuplicateUser if a username repeats
func NewAuthenticator(users []User) (*Authenticator, error) {
	a := &Authenticator{users: make(map[string]User, len(users))}
	for _, u := range users {
		if !IsValidUsername(u.Username) {
			return nil, fmt.Errorf("%w: username %q", ErrInvalidUser, u.Username)
		}
		if !IsValidRole(u.Role) {
			return nil, fmt.Errorf("%w: role %q for %s", ErrInvalidUser, u.Role, u.Username)
		}
		if _, _, _, err := decodePHC(u.PasswordHash); err != nil {
			return nil, fmt.Errorf("%w: password hash for %s: %w", ErrInvalidUser, u.Username, err)
		}
		if _, dup := a.users[u.Username]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateUser, u.Username)
		}
		a.users[u.Username] = u
	}
	return a, nil
}

// Len returns the number of configured users.
func (a *Authenticator) Len() int {
	return len(a.users)
}

// Authenticate returns the user if password matches.
//
// Returns:
//   - User: The matching user
//   - error: ErrInvalidCredentials for an unknown user or wrong password
func (a *Authenticator) Authenticate(username, password string) (User, error) {
	u, ok := a.users[username]
	if !ok {
		//nolint:errcheck // Timing equalisation only
		VerifyPassword(password, a.dummy())
		return User{}, ErrInvalidCredentials
	}

	match, err := VerifyPassword(password, u.PasswordHash)
	if err != nil || !match {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

func (a *Authenticator) dummy() string {
	a.dummyOnce.Do(func() {
		//nolint:errcheck // An empty hash just fails verification
		a.dummyHash, _ = HashPassword("litterbox-dummy-password")
	})
	return a.dummyHash
}
