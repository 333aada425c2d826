//go:build !linux

package jobs

func renameNoReplace(oldPath, newPath string) error {
	return renameChecked(oldPath, newPath)
}
