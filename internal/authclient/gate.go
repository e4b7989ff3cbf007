package authclient

import "strings"

// Client-side routes.
const (
	PathHome      = "/"
	PathLogin     = "/login"
	PathSignup    = "/signup"
	PathDashboard = "/dashboard"
)

// Decision tells a host what to do with a navigation to a path.
type Decision struct {
	// Render is true when the page may be shown as is.
	Render bool
	// Pending asks for a neutral loading view until the state resolves.
	Pending bool
	// RedirectTo, when set, replaces the requested path.
	RedirectTo string
}

// Gate decides how a path is handled in state. Protected pages need a
// session, guest pages (login, signup) are skipped once there is one, and
// neither kind renders anything conclusive while the state is unknown.
func Gate(state State, path string) Decision {
	switch {
	case isProtected(path):
		switch state {
		case StateAuthenticated:
			return Decision{Render: true}
		case StateUnauthenticated:
			return Decision{RedirectTo: PathLogin}
		default:
			return Decision{Pending: true}
		}
	case isGuestOnly(path):
		switch state {
		case StateUnauthenticated:
			return Decision{Render: true}
		case StateAuthenticated:
			return Decision{RedirectTo: PathDashboard}
		default:
			return Decision{Pending: true}
		}
	default:
		return Decision{Render: true}
	}
}

func isProtected(path string) bool {
	return path == PathDashboard || strings.HasPrefix(path, PathDashboard+"/")
}

func isGuestOnly(path string) bool {
	return path == PathLogin || path == PathSignup
}
