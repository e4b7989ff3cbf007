//go:build e2e
// +build e2e

package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"cookie-auth/internal/authclient"
	"cookie-auth/internal/domain"
	"cookie-auth/internal/handler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestAuth_SignupSurvivesRestart(t *testing.T) {
	ctx := testContext(t)
	jar := newJar(t)
	email := uniqueEmail("restart")

	c, nav := newClient(t, jar)
	assert.Equal(t, authclient.StateUnauthenticated, c.State())
	assert.Equal(t, authclient.Decision{RedirectTo: authclient.PathLogin}, c.Gate(authclient.PathDashboard))

	require.NoError(t, c.Signup(ctx, email, testPassword))
	assert.Equal(t, authclient.StateAuthenticated, c.State())
	assert.Equal(t, authclient.PathDashboard, nav.last().path)

	restarted, _ := newClient(t, jar)
	assert.Equal(t, authclient.StateAuthenticated, restarted.State())
	identity, ok := restarted.Identity()
	require.True(t, ok)
	assert.Equal(t, email, identity.Email)
	assert.NotEmpty(t, identity.ID)

	var stored int
	require.NoError(t, testDB.QueryRowContext(ctx,
		`SELECT count(*) FROM users WHERE email = $1`, email).Scan(&stored))
	assert.Equal(t, 1, stored)
}

func TestAuth_DuplicateSignup(t *testing.T) {
	ctx := testContext(t)
	email := uniqueEmail("duplicate")

	first, _ := newClient(t, nil)
	require.NoError(t, first.Signup(ctx, email, testPassword))

	second, _ := newClient(t, nil)
	err := second.Signup(ctx, email, testPassword)
	require.Error(t, err)
	assert.True(t, authclient.IsStatus(err, http.StatusConflict))
	assert.Equal(t, authclient.StateUnauthenticated, second.State())
}

func TestAuth_LoginAndLogout(t *testing.T) {
	ctx := testContext(t)
	email := uniqueEmail("login")

	owner, _ := newClient(t, nil)
	require.NoError(t, owner.Signup(ctx, email, testPassword))

	c, nav := newClient(t, nil)

	err := c.Login(ctx, email, "Wrong1234!")
	require.Error(t, err)
	assert.True(t, authclient.IsStatus(err, http.StatusUnauthorized))
	assert.Equal(t, authclient.StateUnauthenticated, c.State())

	require.NoError(t, c.Login(ctx, email, testPassword))
	assert.Equal(t, authclient.StateAuthenticated, c.State())

	identity, err := c.CheckAuth(ctx)
	require.NoError(t, err)
	assert.Equal(t, email, identity.Email)

	require.NoError(t, c.Logout(ctx))
	assert.Equal(t, authclient.StateUnauthenticated, c.State())
	assert.Equal(t, navigation{path: authclient.PathLogin}, nav.last())

	_, err = c.CheckAuth(ctx)
	assert.True(t, authclient.IsStatus(err, http.StatusUnauthorized))
}

func TestAuth_DeletedUserExpiresSession(t *testing.T) {
	ctx := testContext(t)
	email := uniqueEmail("deleted")

	c, nav := newClient(t, nil)
	require.NoError(t, c.Signup(ctx, email, testPassword))

	_, err := testDB.ExecContext(ctx, `DELETE FROM users WHERE email = $1`, email)
	require.NoError(t, err)

	_, err = c.CheckAuth(ctx)
	assert.True(t, authclient.IsStatus(err, http.StatusNotFound))
	assert.Equal(t, authclient.StateAuthenticated, c.State(), "only a 401 expires the session")

	require.NoError(t, c.Logout(ctx))
	assert.Equal(t, authclient.PathLogin, nav.last().path)
}

func TestAuth_MutationWithoutAntiForgeryToken(t *testing.T) {
	email := uniqueEmail("csrf")
	body := `{"email":"` + email + `","password":"` + testPassword + `"}`

	resp, err := http.Post(baseURL+"/signup", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var stored int
	require.NoError(t, testDB.QueryRow(`SELECT count(*) FROM users WHERE email = $1`, email).Scan(&stored))
	assert.Zero(t, stored)
}

func TestAuth_EventsReachAuditQueue(t *testing.T) {
	ctx := testContext(t)
	email := uniqueEmail("audit")

	c, _ := newClient(t, nil)
	require.NoError(t, c.Signup(ctx, email, testPassword))
	identity, ok := c.Identity()
	require.True(t, ok)
	require.NoError(t, c.Logout(ctx))
	require.Error(t, c.Login(ctx, email, "Wrong1234!"))
	require.NoError(t, c.Login(ctx, email, testPassword))

	want := []domain.AuthEventType{
		domain.EventSignup,
		domain.EventLogout,
		domain.EventLoginFailed,
		domain.EventLoginSucceeded,
	}
	assert.Eventually(t, func() bool {
		return len(audit.typesFor(identity.ID, email)) == len(want)
	}, 10*time.Second, 100*time.Millisecond)
	assert.Equal(t, want, audit.typesFor(identity.ID, email))
}

func TestHealth_Ready(t *testing.T) {
	resp, err := http.Get(baseURL + "/health/ready")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ready handler.ReadyResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ready))
	assert.Equal(t, "ready", ready.Status)
	assert.Equal(t, "up", ready.Checks["database"].Status)
	assert.Equal(t, "up", ready.Checks["rabbitmq"].Status)
}
