package main

import (
	"errors"
	"fmt"
	"io"
	"net/url"

	"cookie-auth/internal/authclient"

	"github.com/urfave/cli/v2"
)

var errNotLoggedIn = errors.New("not logged in")

// session is the client and cookie jar shared by one invocation.
type session struct {
	client *authclient.Client
	jar    *fileJar
}

func newApp(in io.Reader, out, errOut io.Writer) *cli.App {
	var (
		server     string
		cookieFile string
		sess       session
	)

	return &cli.App{
		Name:      "authctl",
		Usage:     "Sign up, log in and inspect the session of an auth server",
		Reader:    in,
		Writer:    out,
		ErrWriter: errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "server",
				Aliases:     []string{"s"},
				Usage:       "Base URL of the auth server",
				Value:       "http://localhost:3000",
				EnvVars:     []string{"AUTHCTL_SERVER"},
				Destination: &server,
			},
			&cli.StringFlag{
				Name:        "cookie-file",
				Usage:       "File where session cookies are kept between runs",
				Value:       defaultCookieFile(),
				EnvVars:     []string{"AUTHCTL_COOKIE_FILE"},
				Destination: &cookieFile,
			},
		},
		Before: func(ctx *cli.Context) error {
			base, err := url.Parse(server)
			if err != nil {
				return fmt.Errorf("invalid server url: %w", err)
			}
			sess.jar, err = loadJar(cookieFile, base)
			if err != nil {
				return err
			}
			sess.client, err = authclient.New(server,
				authclient.WithCookieJar(sess.jar),
				authclient.WithNavigator(printNavigator(errOut)),
			)
			return err
		},
		After: func(ctx *cli.Context) error {
			if sess.client == nil {
				return nil
			}
			sess.client.Close()
			return sess.jar.Save()
		},
		Commands: []*cli.Command{
			statusCmd(&sess),
			signupCmd(&sess, in),
			loginCmd(&sess, in),
			logoutCmd(&sess),
			whoamiCmd(&sess),
		},
	}
}

func printNavigator(w io.Writer) authclient.Navigator {
	return authclient.NavigatorFunc(func(path, flash string) {
		if flash != "" {
			fmt.Fprintln(w, flash)
		}
		fmt.Fprintf(w, "-> %s\n", path)
	})
}

func credentialFlags(email, password *string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "email",
			Aliases:     []string{"e"},
			Usage:       "Account email",
			Destination: email,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "password",
			Usage:       "Account password (prompted for when empty)",
			EnvVars:     []string{"AUTHCTL_PASSWORD"},
			Destination: password,
		},
	}
}

func statusCmd(sess *session) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Resolve and print the auth state",
		Action: func(ctx *cli.Context) error {
			state, err := sess.client.Start(ctx.Context)
			if err != nil {
				return err
			}
			if identity, ok := sess.client.Identity(); ok {
				fmt.Fprintf(ctx.App.Writer, "%s (%s)\n", state, identity.Email)
			} else {
				fmt.Fprintln(ctx.App.Writer, state)
			}
			return nil
		},
	}
}

func signupCmd(sess *session, in io.Reader) *cli.Command {
	var email, password string
	return &cli.Command{
		Name:  "signup",
		Usage: "Create an account and log in",
		Flags: credentialFlags(&email, &password),
		Action: func(ctx *cli.Context) error {
			if password == "" {
				var err error
				if password, err = getPassword(in, ctx.App.ErrWriter); err != nil {
					return err
				}
			}
			if err := authclient.ValidateCredentials(email, password); err != nil {
				return err
			}
			if err := start(ctx, sess); err != nil {
				return err
			}
			if identity, ok := sess.client.Identity(); ok {
				return fmt.Errorf("already logged in as %s", identity.Email)
			}
			if err := sess.client.Signup(ctx.Context, email, password); err != nil {
				return err
			}
			fmt.Fprintf(ctx.App.Writer, "Signed up as %s\n", email)
			return nil
		},
	}
}

func loginCmd(sess *session, in io.Reader) *cli.Command {
	var email, password string
	return &cli.Command{
		Name:  "login",
		Usage: "Log in with email and password",
		Flags: credentialFlags(&email, &password),
		Action: func(ctx *cli.Context) error {
			if password == "" {
				var err error
				if password, err = getPassword(in, ctx.App.ErrWriter); err != nil {
					return err
				}
			}
			if err := authclient.ValidateLogin(email, password); err != nil {
				return err
			}
			if err := start(ctx, sess); err != nil {
				return err
			}
			if identity, ok := sess.client.Identity(); ok {
				return fmt.Errorf("already logged in as %s", identity.Email)
			}
			if err := sess.client.Login(ctx.Context, email, password); err != nil {
				return err
			}
			fmt.Fprintf(ctx.App.Writer, "Logged in as %s\n", email)
			return nil
		},
	}
}

func logoutCmd(sess *session) *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "End the current session",
		Action: func(ctx *cli.Context) error {
			if err := start(ctx, sess); err != nil {
				return err
			}
			if err := sess.client.Logout(ctx.Context); err != nil {
				return err
			}
			fmt.Fprintln(ctx.App.Writer, "Logged out")
			return nil
		},
	}
}

func whoamiCmd(sess *session) *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "Print the logged in user",
		Action: func(ctx *cli.Context) error {
			if err := start(ctx, sess); err != nil {
				return err
			}
			identity, ok := sess.client.Identity()
			if !ok {
				return errNotLoggedIn
			}
			fmt.Fprintf(ctx.App.Writer, "%s\t%s\n", identity.ID, identity.Email)
			return nil
		},
	}
}

// start resolves the auth state. A failed anti-forgery fetch is fatal too.
func start(ctx *cli.Context, sess *session) error {
	_, err := sess.client.Start(ctx.Context)
	return err
}
