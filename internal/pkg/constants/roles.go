package constants

// Principal roles resolved from an API key.
const (
	Admin    = "admin"
	Issuer   = "issuer"
	Verifier = "verifier"
)

var ValidRoles = []string{Issuer, Verifier, Admin}

func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}
