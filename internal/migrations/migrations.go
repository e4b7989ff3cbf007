// Package migrations embeds the goose schema migrations for each supported
// database driver.
package migrations

import "embed"

//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS

// Dialect returns the goose dialect and the embedded directory holding the
// migrations for driver.
func Dialect(driver string) (dialect, dir string, ok bool) {
	switch driver {
	case "postgres":
		return "postgres", "postgres", true
	case "sqlite3":
		return "sqlite3", "sqlite", true
	default:
		return "", "", false
	}
}
