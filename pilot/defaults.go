// Package pilot holds process-wide defaults shared by the suite-pilot packages.
package pilot

import (
	"os"
	"path/filepath"
	"time"
)

const (
	DefaultAppName = "suite-pilot"

	DefaultDatabaseType = "libsql"

	// DefaultTokenTTL applies when a bearer token is assigned without an expiry.
	DefaultTokenTTL = 24 * time.Hour

	DefaultMaxToolCalls   = 10
	DefaultWindowSize     = 10
	DefaultMaxResultChars = 2000
)

var (
	DefaultConfigPath  = filepath.Join(userConfigDir(), DefaultAppName)
	DefaultDatabaseDir = filepath.Join(userConfigDir(), DefaultAppName, "data")
	DefaultDatabaseDSN = filepath.Join(DefaultDatabaseDir, "transcripts.db")
)

func userConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	return "."
}
