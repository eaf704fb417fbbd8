package digest

import "strings"

// ObjectType distinguishes how the bytes behind a digest are interpreted.
type ObjectType int

const (
	// File is a regular, non-executable blob.
	File ObjectType = iota
	// Executable is a blob whose content should be marked executable on disk.
	Executable
	// Symlink is a blob whose content is a symlink target string.
	Symlink
	// Tree is a directory object.
	Tree
)

// String renders the object type for logging and CAS path selection.
func (t ObjectType) String() string {
	switch t {
	case File:
		return "file"
	case Executable:
		return "executable"
	case Symlink:
		return "symlink"
	case Tree:
		return "tree"
	default:
		return "unknown"
	}
}

// IsUpwards reports whether a symlink target string escapes its containing
// directory: an absolute path, or a relative path whose normalised form
// begins with "..".
func IsUpwards(target string) bool {
	if strings.HasPrefix(target, "/") {
		return true
	}

	depth := 0

	for _, part := range strings.Split(target, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			depth--
			if depth < 0 {
				return true
			}
		default:
			depth++
		}
	}

	return false
}
