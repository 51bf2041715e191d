package authstate

import "github.com/google/uuid"

// UserUUID parses the session's user id. Both built-in local identities and
// remote identities carry UUID ids.
func UserUUID(session *Session) (uuid.UUID, error) {
	if session == nil {
		return uuid.Nil, ErrCorruptSession
	}
	return uuid.Parse(session.UserID)
}

// HasUserUUID reports whether UserUUID will succeed.
func HasUserUUID(session *Session) bool {
	_, err := UserUUID(session)
	return err == nil
}
