package tasksync

import (
	"net/url"
	"os"
	"path/filepath"
)

// IsLocalImage reports whether ref points at a file on this machine: a
// file:// URI or an absolute path.
func IsLocalImage(ref string) bool {
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
		return u.Scheme == "file"
	}
	return filepath.IsAbs(ref)
}

// RemoveLocalImage deletes the file behind a local image reference.
// A file that is already gone is not an error.
func RemoveLocalImage(ref string) error {
	path := ref
	if u, err := url.Parse(ref); err == nil && u.Scheme == "file" {
		path = u.Path
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
