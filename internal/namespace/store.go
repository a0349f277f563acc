// Package namespace manages the directory tree of categories and audio files.
//
// The root holds one subdirectory per category and each category holds
// files whose extension is in the allowed set. Mutations lock the
// categories they touch, so check-then-act sequences on the same category
// never interleave; the rename/remove syscall is the unit of atomicity.
package namespace

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/soundscapes/server/internal/apperr"
	"github.com/soundscapes/server/internal/model"
)

// DefaultAllowedExtensions are the audio extensions accepted when none are configured.
var DefaultAllowedExtensions = []string{".mp3", ".wav"}

// Store is the filesystem-backed category/file namespace.
type Store struct {
	root    string
	exts    []string
	allowed map[string]struct{}
	locks   *keyedMutex
	logger  *slog.Logger
}

// NewStore creates root if needed and returns a Store over it.
func NewStore(root string, allowedExts []string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("namespace root is empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve namespace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create namespace root: %w", err)
	}
	if len(allowedExts) == 0 {
		allowedExts = DefaultAllowedExtensions
	}

	s := &Store{
		root:    abs,
		allowed: make(map[string]struct{}, len(allowedExts)),
		locks:   newKeyedMutex(),
		logger:  logger,
	}
	for _, ext := range allowedExts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, dup := s.allowed[ext]; !dup {
			s.allowed[ext] = struct{}{}
			s.exts = append(s.exts, ext)
		}
	}
	return s, nil
}

// Root returns the absolute namespace root.
func (s *Store) Root() string { return s.root }

// AllowedExtensions returns the accepted extensions, lower-cased with a leading dot.
func (s *Store) AllowedExtensions() []string {
	return append([]string(nil), s.exts...)
}

// IsAudio reports whether name has an allowed extension, ignoring case.
func (s *Store) IsAudio(name string) bool {
	_, ok := s.allowed[Ext(name)]
	return ok
}

// ListAll returns every category sorted by name, each with its audio files
// sorted by name.
func (s *Store) ListAll() ([]model.Category, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read namespace root: %w", err)
	}

	cats := make([]model.Category, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.root, e.Name()))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read category %q: %w", e.Name(), err)
		}
		cat := model.Category{Name: e.Name(), Files: []model.File{}}
		for _, f := range files {
			if f.IsDir() || !s.IsAudio(f.Name()) {
				continue
			}
			cat.Files = append(cat.Files, model.File{Name: f.Name(), Category: e.Name()})
		}
		cats = append(cats, cat)
	}
	return cats, nil
}

// CreateCategory creates the category directory. Creating an existing
// category is not an error. It returns the sanitized name.
func (s *Store) CreateCategory(name string) (string, error) {
	cat, err := category(name)
	if err != nil {
		return "", err
	}
	unlock := s.locks.Lock(cat)
	defer unlock()

	if err := s.ensureCategory(cat); err != nil {
		return "", err
	}
	s.logger.Info("category created", "name", cat)
	return cat, nil
}

// RenameCategory renames oldName to newName without replacing an existing category.
func (s *Store) RenameCategory(oldName, newName string) error {
	oldCat, err := category(oldName)
	if err != nil {
		return err
	}
	newCat, err := category(newName)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(oldCat, newCat)
	defer unlock()

	src, dst := s.categoryPath(oldCat), s.categoryPath(newCat)
	if !isDir(src) {
		return apperr.NotFound("source category not found")
	}
	if exists(dst) {
		return apperr.Conflict("target category exists")
	}
	if err := renameNoReplace(src, dst); err != nil {
		return classify(err, "rename category", "source category not found", "target category exists")
	}
	s.logger.Info("category renamed", "from", oldCat, "to", newCat)
	return nil
}

// DeleteCategory removes an empty category, or any category when force is set.
func (s *Store) DeleteCategory(name string, force bool) error {
	cat, err := category(name)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(cat)
	defer unlock()

	path := s.categoryPath(cat)
	if !isDir(path) {
		return apperr.NotFound("category not found")
	}

	if force {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("delete category: %w", err)
		}
		s.logger.Info("category deleted", "name", cat, "force", true)
		return nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return classify(err, "delete category", "category not found", "category not empty")
	}
	if len(entries) > 0 {
		return apperr.Conflict("category not empty")
	}
	// rmdir refuses a non-empty directory, which closes the window after ReadDir.
	if err := os.Remove(path); err != nil {
		return classify(err, "delete category", "category not found", "category not empty")
	}
	s.logger.Info("category deleted", "name", cat, "force", false)
	return nil
}

// UploadFile writes content as a sanitized file name into categoryName,
// creating the category if needed. An existing file of the same name is
// replaced. It returns the stored file name.
func (s *Store) UploadFile(categoryName, rawName string, content io.Reader) (string, error) {
	name := SanitizeFilename(rawName)
	if name == "" {
		return "", apperr.Validation("empty filename")
	}
	if !s.IsAudio(name) {
		return "", apperr.Validation("unsupported extension")
	}
	cat, err := category(categoryName)
	if err != nil {
		return "", err
	}
	unlock := s.locks.Lock(cat)
	defer unlock()

	if err := s.ensureCategory(cat); err != nil {
		return "", err
	}
	dir := s.categoryPath(cat)
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	tmpName := tmp.Name()
	written, err := io.Copy(tmp, content)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write upload: %w", err)
	}
	dst := filepath.Join(dir, name)
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("store upload: %w", err)
	}
	s.logger.Info("file uploaded", "category", cat, "name", name, "bytes", written)
	return name, nil
}

// RenameFile renames oldName to a sanitized newName inside categoryName.
// It returns the stored new name.
func (s *Store) RenameFile(categoryName, oldName, newName string) (string, error) {
	target := SanitizeFilename(newName)
	if target == "" {
		return "", apperr.Validation("missing new filename")
	}
	if !s.IsAudio(target) {
		return "", apperr.Validation("unsupported extension for new name")
	}
	cat, err := category(categoryName)
	if err != nil {
		return "", err
	}
	source, err := existingName(oldName)
	if err != nil {
		return "", err
	}
	unlock := s.locks.Lock(cat)
	defer unlock()

	dir := s.categoryPath(cat)
	src, dst := filepath.Join(dir, source), filepath.Join(dir, target)
	if !isFile(src) {
		return "", apperr.NotFound("file not found")
	}
	if exists(dst) {
		return "", apperr.Conflict("target filename exists")
	}
	if err := renameNoReplace(src, dst); err != nil {
		return "", classify(err, "rename file", "file not found", "target filename exists")
	}
	s.logger.Info("file renamed", "category", cat, "from", source, "to", target)
	return target, nil
}

// MoveFile moves filename from srcCategory to dstCategory, creating the
// destination category if needed. It never replaces a file at the destination.
func (s *Store) MoveFile(srcCategory, filename, dstCategory string) error {
	srcCat, err := category(srcCategory)
	if err != nil {
		return err
	}
	dstCat, err := category(dstCategory)
	if err != nil {
		return err
	}
	name, err := existingName(filename)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(srcCat, dstCat)
	defer unlock()

	if err := s.ensureCategory(dstCat); err != nil {
		return err
	}
	src := filepath.Join(s.categoryPath(srcCat), name)
	dst := filepath.Join(s.categoryPath(dstCat), name)
	if !isFile(src) {
		return apperr.NotFound("source file not found")
	}
	if exists(dst) {
		return apperr.Conflict("file already exists in destination")
	}
	if err := renameNoReplace(src, dst); err != nil {
		return classify(err, "move file", "source file not found", "file already exists in destination")
	}
	s.logger.Info("file moved", "name", name, "from", srcCat, "to", dstCat)
	return nil
}

// DeleteFile removes filename from categoryName.
func (s *Store) DeleteFile(categoryName, filename string) error {
	cat, err := category(categoryName)
	if err != nil {
		return err
	}
	name, err := existingName(filename)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(cat)
	defer unlock()

	path := filepath.Join(s.categoryPath(cat), name)
	if !isFile(path) {
		return apperr.NotFound("file not found")
	}
	if err := os.Remove(path); err != nil {
		return classify(err, "delete file", "file not found", "file in use")
	}
	s.logger.Info("file deleted", "category", cat, "name", name)
	return nil
}

func (s *Store) categoryPath(cat string) string {
	return filepath.Join(s.root, cat)
}

// ensureCategory creates the category directory if absent. Caller holds the lock.
func (s *Store) ensureCategory(cat string) error {
	path := s.categoryPath(cat)
	err := os.Mkdir(path, 0o755)
	if err == nil || (errors.Is(err, fs.ErrExist) && isDir(path)) {
		return nil
	}
	if errors.Is(err, fs.ErrExist) {
		return apperr.Conflict("category name is taken by a file")
	}
	return fmt.Errorf("create category: %w", err)
}

// classify maps a lost race on the filesystem to NotFound or Conflict.
func classify(err error, op, notFound, conflict string) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return apperr.Wrap(apperr.KindNotFound, err, "%s", notFound)
	case errors.Is(err, fs.ErrExist):
		return apperr.Wrap(apperr.KindConflict, err, "%s", conflict)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func statThenRename(oldpath, newpath string) error {
	if _, err := os.Lstat(newpath); err == nil {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: fs.ErrExist}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.Rename(oldpath, newpath)
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isFile(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode().IsRegular()
}
