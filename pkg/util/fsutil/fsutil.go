package fsutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// ErrPathOutsideDir is returned when a path is not nested under its base directory
var ErrPathOutsideDir = errors.New("path is outside of the base directory")

// Remove removes the target file system object and everything under it
func Remove(target string) error {
	return os.RemoveAll(target)
}

// DirExists returns true if the target exists and it's a directory
func DirExists(target string) bool {
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		return true
	}

	return false
}

// IsSymlink returns true if the target file system object is a symlink
func IsSymlink(target string) bool {
	info, err := os.Lstat(target)
	if err != nil {
		return false
	}

	return (info.Mode() & os.ModeSymlink) == os.ModeSymlink
}

// IsWithin returns true if the target path is the base directory or is nested under it
func IsWithin(base, target string) bool {
	rel, err := filepath.Rel(filepath.Clean(base), filepath.Clean(target))
	if err != nil {
		return false
	}

	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// RelPath returns the slash separated path of target relative to base
func RelPath(base, target string) (string, error) {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return "", err
	}

	if !IsWithin(base, target) {
		return "", ErrPathOutsideDir
	}

	return filepath.ToSlash(rel), nil
}

// SetModTime sets both atime and mtime of the target (symlinks are not followed)
func SetModTime(target string, mtime time.Time) error {
	ts := syscall.NsecToTimespec(mtime.UnixNano())
	if IsSymlink(target) {
		return UpdateSymlinkTimes(target, ts, ts)
	}

	return UpdateFileTimes(target, ts, ts)
}

// UpdateFileTimes updates the atime and mtime timestamps on the target file
func UpdateFileTimes(target string, atime, mtime syscall.Timespec) error {
	ts := []syscall.Timespec{atime, mtime}
	return syscall.UtimesNano(target, ts)
}

// UpdateSymlinkTimes updates the atime and mtime timestamps on the target symlink
func UpdateSymlinkTimes(target string, atime, mtime syscall.Timespec) error {
	ts := []unix.Timespec{unix.Timespec(atime), unix.Timespec(mtime)}
	return unix.UtimesNanoAt(unix.AT_FDCWD, target, ts, unix.AT_SYMLINK_NOFOLLOW)
}
