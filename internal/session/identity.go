package session

// Identity is the authenticated user's session state: profile fields
// plus the tokens that authorize data-access requests. An Identity is
// either fully absent or fully populated; partially-filled identities
// are never stored.
type Identity struct {
	UserID string `json:"id"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email"`
	// PreToken is the client-generated token that bootstrapped the
	// handshake producing this session.
	PreToken string `json:"preToken,omitempty"`
	// X is the server-issued continuation token threaded through
	// subsequent requests.
	X string `json:"x"`
	// JWT is the signed credential authorizing data-access requests.
	JWT string `json:"jwt"`
}

// Complete reports whether every field required to issue data-access
// requests is present.
func (id Identity) Complete() bool {
	return id.UserID != "" && id.Email != "" && id.X != "" && id.JWT != ""
}
