package authstate

import (
	"strings"

	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// LocalIdentity is one of the fixed built-in identities usable without a
// live backend. Sessions fabricated from these carry OriginLocalTesting so
// downstream code never has to compare emails to tell them apart from real
// accounts.
type LocalIdentity struct {
	ID           string
	DisplayName  string
	Email        string
	Role         Role
	passwordHash string
}

// The two demo identities mirror the seed accounts the dashboard ships
// with. Hashes are computed once at init; MinCost keeps startup and test
// runs fast, these credentials guard nothing.
var localIdentities = buildLocalIdentities()

func buildLocalIdentities() []LocalIdentity {
	seeds := []struct {
		name     string
		email    string
		role     Role
		password string
	}{
		{name: "Admin User", email: "admin@example.com", role: RoleAdmin, password: "password123"},
		{name: "Tech User", email: "tech@example.com", role: RoleTechnician, password: "password123"},
	}

	out := make([]LocalIdentity, 0, len(seeds))
	for _, seed := range seeds {
		hash, err := bcrypt.GenerateFromPassword([]byte(seed.password), bcrypt.MinCost)
		if err != nil {
			// bcrypt only fails on impossible cost values; treat as fatal
			// misconfiguration.
			panic("authstate: failed to seed local identities: " + err.Error())
		}

		out = append(out, LocalIdentity{
			ID:           localIdentityID(seed.email),
			DisplayName:  seed.name,
			Email:        seed.email,
			Role:         seed.role,
			passwordHash: string(hash),
		})
	}

	return out
}

// localIdentityID derives a stable opaque id from the email so repeated
// logins in different processes agree on the same principal.
func localIdentityID(email string) string {
	if id, err := hashid.NewUUID(email); err == nil {
		return id.String()
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(email)).String()
}

// VerifyLocalIdentity checks the credential pair against the built-in
// identities and, on a match, returns a ready-to-adopt local-testing
// session. The bool reports whether the email belongs to a built-in
// identity at all; a known email with a wrong password returns (nil, true,
// ErrInvalidCredentials) so callers do not fall through to the network.
func VerifyLocalIdentity(email, password string) (*Session, bool, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))

	for _, identity := range localIdentities {
		if identity.Email != normalized {
			continue
		}

		if err := ComparePasswordAndHash(password, identity.passwordHash); err != nil {
			return nil, true, ErrInvalidCredentials
		}

		return &Session{
			UserID:      identity.ID,
			DisplayName: identity.DisplayName,
			Email:       identity.Email,
			Role:        identity.Role,
			Origin:      OriginLocalTesting,
		}, true, nil
	}

	return nil, false, nil
}

// LocalIdentities returns the built-in identities with credential material
// stripped, for display on demo login screens.
func LocalIdentities() []LocalIdentity {
	out := make([]LocalIdentity, len(localIdentities))
	copy(out, localIdentities)
	for i := range out {
		out[i].passwordHash = ""
	}
	return out
}
