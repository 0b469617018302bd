package utils

import "path/filepath"

// ProjectPath resolves rel against root unless it is already absolute or
// root is empty.
func ProjectPath(root, rel string) string {
	if rel == "" || root == "" || filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(root, rel)
}
