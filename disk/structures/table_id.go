package structures

import (
	"heapdb/common"
	"path/filepath"
	"unicode/utf16"
)

// TableIDOf derives the id of the table stored at path. It is the hash code a java.lang.String holding the
// canonical path would have, reduced by common.TableIDModulus with a truncated remainder, so it may be negative.
func TableIDOf(path string) (int32, error) {
	canonical, err := CanonicalPath(path)
	if err != nil {
		return 0, err
	}
	return stringHash(canonical) % common.TableIDModulus, nil
}

// CanonicalPath returns the absolute path of path with symbolic links resolved.
func CanonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	// the file may not exist yet, the absolute path is canonical enough then
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

// stringHash computes s[0]*31^(n-1) + ... + s[n-1] over the UTF-16 code units of s with int32 overflow.
func stringHash(s string) int32 {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = 31*h + int32(c)
	}
	return h
}
