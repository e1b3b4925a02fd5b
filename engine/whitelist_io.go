package engine

import (
	"os"
	"strings"
)

// readWhitelistFile reads a plain-text whitelist, one appname per line,
// matching whitelist.rs's flat-file format (no YAML parser is pulled in
// solely for a one-appname-per-line list; config.go-style JSON covers the
// structured config and this stays a flat list, same division xtop draws
// between config.json and its exclusion-style text inputs).
func readWhitelistFile(path string) ([]string, error) {
	if path == "" {
		return nil, os.ErrNotExist
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return strings.Split(string(data), "\n"), nil
}
