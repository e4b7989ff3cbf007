// Command authctl drives the auth API from a terminal. Cookies are kept in
// a file between runs, so a login survives until logout or expiry.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cookie-auth/internal/authclient"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app := newApp(os.Stdin, os.Stdout, os.Stderr)
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "authctl:", describe(err))
		os.Exit(1)
	}
}

// describe prefers the user-facing message of a failed API call.
func describe(err error) string {
	var reqErr *authclient.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Message
	}
	return err.Error()
}
