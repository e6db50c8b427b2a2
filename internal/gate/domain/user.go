package domain

import "time"

// VerificationStatus tracks organizer approval.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "PENDING"
	VerificationApproved VerificationStatus = "APPROVED"
	VerificationRejected VerificationStatus = "REJECTED"
)

// MetadataTemporaryRole is the only metadata key the gate interprets.
const MetadataTemporaryRole = "temporaryRole"

type User struct {
	ID                 string
	Email              string
	Name               string
	PasswordHash       string // argon2 encoded
	Role               Role
	Department         Department
	TokenVersion       int64
	EmailVerified      bool
	VerificationStatus VerificationStatus
	LastActivity       time.Time // zero when never recorded
	Suspended          bool
	TOTPSecret         *string // base32, nil when TOTP is not enrolled

	// Metadata is the raw bag as stored. TemporaryRole is extracted from it
	// once by the store driver and is what policy code reads.
	Metadata      map[string]any
	TemporaryRole *Role

	CreatedAt time.Time
	UpdatedAt time.Time
}

// InParticipantMode reports whether the user is browsing as a participant.
func (u *User) InParticipantMode() bool {
	return u.TemporaryRole != nil && *u.TemporaryRole == RoleParticipant
}

// TemporaryRoleFromMetadata pulls the typed override out of a metadata bag.
// Values that are not a known role are ignored.
func TemporaryRoleFromMetadata(md map[string]any) *Role {
	raw, ok := md[MetadataTemporaryRole].(string)
	if !ok {
		return nil
	}
	r, ok := ParseRole(raw)
	if !ok {
		return nil
	}
	return &r
}

// TokenPair is what login and refresh hand back to clients.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// BootstrapAdmin seeds the first super admin into an empty directory.
type BootstrapAdmin struct {
	Email    string
	Name     string
	Password string
}
