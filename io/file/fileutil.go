// Package file provides the node's standard filesystem helpers. Directories
// are created 0700 and files written 0600, key material and the database
// live under the data directory and must not be group readable.
package file

import (
	"os"
	"os/user"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const (
	dirPerms  = os.FileMode(0700)
	filePerms = os.FileMode(0600)
)

// ExpandPath expands a tilde prefix and environment variables and returns
// an absolute, cleaned path.
func ExpandPath(p string) (string, error) {
	if strings.HasPrefix(p, "~/") || strings.HasPrefix(p, "~\\") {
		if home := HomeDir(); home != "" {
			p = home + p[1:]
		}
	}
	return filepath.Abs(path.Clean(os.ExpandEnv(p)))
}

// HomeDir returns the home directory of the current user.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// MkdirAll creates the directory path with owner only permissions and
// refuses to reuse an existing directory that is open to other users.
func MkdirAll(dirPath string) error {
	expanded, err := ExpandPath(dirPath)
	if err != nil {
		return err
	}
	exists, err := HasDir(expanded)
	if err != nil {
		return err
	}
	if exists {
		info, err := os.Stat(expanded)
		if err != nil {
			return err
		}
		if info.Mode().Perm() != dirPerms {
			return errors.Errorf("dir %s already exists without 0700 permissions", expanded)
		}
	}
	return os.MkdirAll(expanded, dirPerms)
}

// HasDir reports whether the path exists and is a directory.
func HasDir(dirPath string) (bool, error) {
	info, err := os.Stat(dirPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// FileExists reports whether the path exists and is a regular file.
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// WriteFile writes data with owner only permissions.
func WriteFile(filename string, data []byte) error {
	expanded, err := ExpandPath(filename)
	if err != nil {
		return err
	}
	return os.WriteFile(expanded, data, filePerms)
}
