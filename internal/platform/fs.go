package platform

import (
	"io/fs"
	"os"
)

// Filesystem is the narrow slice of filesystem access the discovery
// core needs. Locators and the collection go through this interface so
// tests can observe and fake filesystem state.
type Filesystem interface {
	// Exists reports whether path exists (file or directory).
	Exists(path string) bool

	// ReadFile returns the contents of path.
	ReadFile(path string) ([]byte, error)

	// ListDir returns the entries of dir, or an error if dir cannot
	// be read.
	ListDir(dir string) ([]fs.DirEntry, error)

	// WriteFile writes data to path with 0644 permissions.
	WriteFile(path string, data []byte) error

	// MkdirAll creates dir and any missing parents.
	MkdirAll(dir string) error

	// RemoveAll deletes path and everything under it.
	RemoveAll(path string) error
}

// OSFilesystem is the os-backed Filesystem used outside tests.
type OSFilesystem struct{}

// NewOSFilesystem returns a Filesystem backed by the os package.
func NewOSFilesystem() *OSFilesystem {
	return &OSFilesystem{}
}

// Exists implements Filesystem.
func (f *OSFilesystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ReadFile implements Filesystem.
func (f *OSFilesystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// ListDir implements Filesystem.
func (f *OSFilesystem) ListDir(dir string) ([]fs.DirEntry, error) {
	return os.ReadDir(dir)
}

// WriteFile implements Filesystem.
func (f *OSFilesystem) WriteFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0644)
}

// MkdirAll implements Filesystem.
func (f *OSFilesystem) MkdirAll(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// RemoveAll implements Filesystem.
func (f *OSFilesystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}
