package certificates

import (
	"errors"
	"io/fs"
	"os"
)

// FileSystem abstracts filesystem operations used by the installation pipeline.
type FileSystem interface {
	FileExists(path string) (bool, error)
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, content []byte, permissions fs.FileMode) error
	EnsureDirectory(path string, permissions fs.FileMode) error
	Remove(path string) error
	Symlink(target string, linkPath string) error
	ListDirectory(path string) ([]fs.DirEntry, error)
}

// OperatingSystemFileSystem implements FileSystem against the local filesystem.
type OperatingSystemFileSystem struct{}

// NewOperatingSystemFileSystem constructs an OperatingSystemFileSystem.
func NewOperatingSystemFileSystem() OperatingSystemFileSystem {
	return OperatingSystemFileSystem{}
}

// FileExists reports whether the path exists.
func (OperatingSystemFileSystem) FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// ReadFile returns the content of the file at path.
func (OperatingSystemFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile writes content to path with the provided permissions.
func (OperatingSystemFileSystem) WriteFile(path string, content []byte, permissions fs.FileMode) error {
	return os.WriteFile(path, content, permissions)
}

// EnsureDirectory creates the directory and any missing parents.
func (OperatingSystemFileSystem) EnsureDirectory(path string, permissions fs.FileMode) error {
	return os.MkdirAll(path, permissions)
}

// Remove deletes the file at path.
func (OperatingSystemFileSystem) Remove(path string) error {
	return os.Remove(path)
}

// Symlink creates a symbolic link at linkPath pointing at target.
func (OperatingSystemFileSystem) Symlink(target string, linkPath string) error {
	return os.Symlink(target, linkPath)
}

// ListDirectory returns the entries of the directory at path.
func (OperatingSystemFileSystem) ListDirectory(path string) ([]fs.DirEntry, error) {
	return os.ReadDir(path)
}
