package constants

const (
	IssueCertificates  = "issue_certificates"
	PublishBatches     = "publish_batches"
	ViewVerifyHistory  = "view_verify_history"
	ViewVerifyStats    = "view_verify_stats"
	ManageHealthMarker = "manage_health_marker"
)

// PermissionRoles maps each permission to the roles allowed to perform it.
var PermissionRoles = map[string][]string{
	IssueCertificates:  {Issuer},
	PublishBatches:     {Issuer},
	ViewVerifyHistory:  {Verifier},
	ViewVerifyStats:    {Verifier, Issuer, Admin},
	ManageHealthMarker: {Admin},
}

// AllowedRole returns true if role is in the list of allowed roles for the permission.
func AllowedRole(permission, role string) bool {
	for _, r := range PermissionRoles[permission] {
		if r == role {
			return true
		}
	}
	return false
}
