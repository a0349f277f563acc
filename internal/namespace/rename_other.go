//go:build !linux

package namespace

func renameNoReplace(oldpath, newpath string) error {
	return statThenRename(oldpath, newpath)
}
