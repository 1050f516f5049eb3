package gate

import (
	"github.com/usagedeck/usagedeck-console/internal/auth"
	"github.com/usagedeck/usagedeck-console/internal/session"
)

// Requirement is the access level a route declares.
type Requirement int

const (
	// RequireSession admits any authenticated user.
	RequireSession Requirement = iota

	// RequireAdmin admits ADMIN and above.
	RequireAdmin

	// RequireSuperadmin admits SUPERADMIN only. Tenant-crossing views.
	RequireSuperadmin
)

// MinRole returns the lowest role the requirement admits.
func (r Requirement) MinRole() session.Role {
	switch r {
	case RequireAdmin:
		return session.RoleAdmin
	case RequireSuperadmin:
		return session.RoleSuperadmin
	default:
		return session.RoleUser
	}
}

// Decision is the gate's verdict for a navigation attempt.
type Decision int

const (
	// Admit renders the requested view.
	Admit Decision = iota

	// Wait shows a neutral indicator while startup restore completes.
	// Never a redirect; the verdict is re-evaluated once state settles.
	Wait

	// RedirectLogin sends the visitor to the login page. The caller
	// remembers the requested location for the post-login return.
	RedirectLogin

	// RedirectRoot sends an authenticated but under-privileged visitor to
	// the application root. Not to login; they already have a session.
	RedirectRoot
)

// Decide evaluates a navigation attempt. Pure: same inputs, same verdict.
func Decide(state auth.State, role session.Role, req Requirement) Decision {
	switch state {
	case auth.StateInitializing:
		return Wait
	case auth.StateAuthenticated:
		if role.AtLeast(req.MinRole()) {
			return Admit
		}
		return RedirectRoot
	default:
		return RedirectLogin
	}
}
