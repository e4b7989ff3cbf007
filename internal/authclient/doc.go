// Package authclient is the client side of the cookie session API.
//
// # Overview
//
// A Client keeps three things in step with the server:
//  1. The session cookie and the anti-forgery session cookie, held in a
//     cookie jar and never read by the client itself.
//  2. The anti-forgery token, fetched at startup and sent as the
//     X-CSRF-Token header on every mutating call.
//  3. The auth State, driven through an explicit transition table (see
//     Machine). Unknown resolves to Authenticated or Unauthenticated once
//     the startup check finishes; any 401 seen afterwards while
//     Authenticated expires the session and navigates to the login page.
//
// Hosts decide what to show for a route with Gate and receive navigations
// through a Navigator.
//
// # Error Handling
//
// Failed calls return a *RequestError whose Message is safe to show: it is
// derived from the status code and never says which credential was wrong.
// ValidateCredentials checks a signup form locally before any request.
package authclient
