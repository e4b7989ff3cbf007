package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
)

type savedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// fileJar is a cookie jar for a single server that can be written to disk.
type fileJar struct {
	*cookiejar.Jar
	path string
	base *url.URL
}

func loadJar(path string, base *url.URL) (*fileJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	j := &fileJar{Jar: jar, path: path, base: base}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return j, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cookie file: %w", err)
	}

	var saved []savedCookie
	if err := json.Unmarshal(data, &saved); err != nil {
		return nil, fmt.Errorf("parse cookie file %s: %w", path, err)
	}
	cookies := make([]*http.Cookie, 0, len(saved))
	for _, c := range saved {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value, Path: "/"})
	}
	jar.SetCookies(base, cookies)
	return j, nil
}

// Save writes the cookies the server would currently receive. Cookies the
// server cleared are dropped from the file.
func (j *fileJar) Save() error {
	saved := []savedCookie{}
	for _, c := range j.Cookies(j.base) {
		saved = append(saved, savedCookie{Name: c.Name, Value: c.Value})
	}
	data, err := json.MarshalIndent(saved, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(j.path), 0o700); err != nil {
		return fmt.Errorf("create cookie dir: %w", err)
	}
	if err := os.WriteFile(j.path, data, 0o600); err != nil {
		return fmt.Errorf("write cookie file: %w", err)
	}
	return nil
}

func defaultCookieFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".authctl-cookies.json"
	}
	return filepath.Join(dir, "authctl", "cookies.json")
}
