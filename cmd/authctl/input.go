package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Test seams for the terminal.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// getPassword reads a password without echo from a terminal, or a single
// line from in when input is piped.
func getPassword(in io.Reader, w io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if in == os.Stdin && isTerminal(fd) {
		if _, err := fmt.Fprint(w, "Password: "); err != nil {
			return "", err
		}
		pw, err := readPassword(fd)
		fmt.Fprintln(w)
		if err != nil {
			return "", err
		}
		return string(pw), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		return "", errors.New("missing password on stdin")
	}
	return strings.TrimRight(line, "\r\n"), nil
}
