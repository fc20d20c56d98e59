package session

import "ava-gateway/internal/token"

// Decision is a navigation verdict. When Allowed is false, RedirectTo names
// where to send the user instead; ReturnURL carries the originally requested
// target so a successful login can resume it.
type Decision struct {
	Allowed    bool
	RedirectTo string
	ReturnURL  string
}

// Guard answers "may the current session navigate there". It reads the
// Manager and never mutates it.
type Guard struct {
	manager     *Manager
	loginPath   string
	defaultPath string
}

func NewGuard(m *Manager, loginPath, defaultPath string) *Guard {
	if loginPath == "" {
		loginPath = "/login"
	}
	if defaultPath == "" {
		defaultPath = "/dashboard"
	}
	return &Guard{manager: m, loginPath: loginPath, defaultPath: defaultPath}
}

// CheckAuth admits any authenticated session. Unauthenticated navigation is
// redirected to login with the target preserved for post-login resume.
func (g *Guard) CheckAuth(target string) Decision {
	if g.manager.IsAuthenticated() {
		return Decision{Allowed: true}
	}
	return Decision{RedirectTo: g.loginPath, ReturnURL: target}
}

// CheckRoles additionally requires at least one of the listed roles. An
// empty requirement behaves like CheckAuth. An authenticated session lacking
// every required role is sent to the default page rather than to login;
// logging in again would not change the answer.
func (g *Guard) CheckRoles(target string, required ...string) Decision {
	if d := g.CheckAuth(target); !d.Allowed {
		return d
	}
	if len(required) == 0 {
		return Decision{Allowed: true}
	}

	held := g.manager.EffectiveRoles()
	for _, want := range required {
		for _, have := range held {
			if have == want {
				return Decision{Allowed: true}
			}
		}
	}
	return Decision{RedirectTo: g.defaultPath}
}

// PrimaryRole picks the role that drives the landing experience: admin
// outranks instructor, instructor outranks everything else, otherwise the
// first role held. An empty slice yields the student default.
func PrimaryRole(roles []string) string {
	if len(roles) == 0 {
		return token.DefaultRole
	}
	for _, r := range roles {
		if r == "admin" {
			return r
		}
	}
	for _, r := range roles {
		if r == "instructor" {
			return r
		}
	}
	return roles[0]
}
