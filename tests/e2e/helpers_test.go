//go:build e2e
// +build e2e

package e2e

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"testing"
	"time"

	"cookie-auth/internal/authclient"
	"cookie-auth/internal/domain"
)

// auditRecorder collects events delivered to the audit queue.
type auditRecorder struct {
	mu     sync.Mutex
	events []domain.AuthEvent
}

func newAuditRecorder() *auditRecorder {
	return &auditRecorder{}
}

func (a *auditRecorder) Sink(_ context.Context, event *domain.AuthEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, *event)
	return nil
}

// typesFor returns the event types recorded for a user, in delivery order.
// Failed logins carry only the email and logouts only the user ID.
func (a *auditRecorder) typesFor(userID, email string) []domain.AuthEventType {
	a.mu.Lock()
	defer a.mu.Unlock()

	var types []domain.AuthEventType
	for _, e := range a.events {
		if e.UserID == userID || e.Email == email {
			types = append(types, e.Type)
		}
	}
	return types
}

type navigation struct {
	path, flash string
}

// recordingNavigator keeps the navigations requested by a client.
type recordingNavigator struct {
	mu    sync.Mutex
	calls []navigation
}

func (n *recordingNavigator) Navigate(path, flash string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, navigation{path, flash})
}

func (n *recordingNavigator) last() navigation {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.calls) == 0 {
		return navigation{}
	}
	return n.calls[len(n.calls)-1]
}

// newClient returns a started client with its own cookie jar, or jar when
// given, so a restart can be simulated by sharing one.
func newClient(t *testing.T, jar http.CookieJar) (*authclient.Client, *recordingNavigator) {
	t.Helper()

	if jar == nil {
		jar = newJar(t)
	}
	nav := &recordingNavigator{}
	c, err := authclient.New(baseURL,
		authclient.WithCookieJar(jar),
		authclient.WithNavigator(nav),
		authclient.WithTimeout(10*time.Second),
	)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	t.Cleanup(c.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := c.Start(ctx); err != nil {
		t.Fatalf("failed to start client: %v", err)
	}
	return c, nav
}

func newJar(t *testing.T) http.CookieJar {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("failed to create cookie jar: %v", err)
	}
	return jar
}

// uniqueEmail generates a unique email for testing
func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s_%d@test.com", prefix, time.Now().UnixNano())
}

const testPassword = "Abc12345!"
