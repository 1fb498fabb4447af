package auth

import "time"

// Tokens is the result of a user pool login.
type Tokens struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	Expiry       time.Time
}

// Valid reports whether the access and ID tokens are present and not yet
// expired at now.
func (t Tokens) Valid(now time.Time) bool {
	if t.AccessToken == "" || t.IDToken == "" {
		return false
	}
	return t.Expiry.IsZero() || now.Before(t.Expiry)
}

// Identity is the flattened GetUser result.
type Identity struct {
	IdentityID     string
	HostIdentityID string
	Username       string
	Attributes     map[string]string
}

// User attribute keys carrying the identity pool ids.
const (
	AttrIdentityID     = "custom:cognito_identity_id"
	AttrHostIdentityID = "custom:host_identity_id"
)

// IsHost reports whether this account owns the device family. Hosts may
// issue the commands reserved for the primary account.
func (i Identity) IsHost() bool {
	return i.IdentityID != "" && i.IdentityID == i.HostIdentityID
}

// Credentials are temporary signed credentials for the broker session.
type Credentials struct {
	AccessKeyID  string
	SecretKey    string
	SessionToken string
	Expiration   time.Time
}
