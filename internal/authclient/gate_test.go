package authclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGate(t *testing.T) {
	tests := []struct {
		state State
		path  string
		want  Decision
	}{
		{StateUnknown, PathDashboard, Decision{Pending: true}},
		{StateUnknown, PathLogin, Decision{Pending: true}},
		{StateUnknown, PathSignup, Decision{Pending: true}},
		{StateUnknown, PathHome, Decision{Render: true}},

		{StateUnauthenticated, PathDashboard, Decision{RedirectTo: PathLogin}},
		{StateUnauthenticated, "/dashboard/settings", Decision{RedirectTo: PathLogin}},
		{StateUnauthenticated, PathLogin, Decision{Render: true}},
		{StateUnauthenticated, PathSignup, Decision{Render: true}},
		{StateUnauthenticated, PathHome, Decision{Render: true}},

		{StateAuthenticated, PathDashboard, Decision{Render: true}},
		{StateAuthenticated, PathLogin, Decision{RedirectTo: PathDashboard}},
		{StateAuthenticated, PathSignup, Decision{RedirectTo: PathDashboard}},
		{StateAuthenticated, PathHome, Decision{Render: true}},

		{StateUnauthenticated, "/dashboards", Decision{Render: true}},
	}

	for _, tt := range tests {
		t.Run(tt.state.String()+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Gate(tt.state, tt.path))
		})
	}
}
