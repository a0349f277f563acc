// Package admin composes the one-time-code login, credential codec and
// category namespace into the operations exposed to the HTTP layer.
package admin

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/soundscapes/server/internal/apperr"
	"github.com/soundscapes/server/internal/auth"
	"github.com/soundscapes/server/internal/model"
	"github.com/soundscapes/server/internal/namespace"
)

// StaticPrefix is the URL path under which category files are served.
const StaticPrefix = "/static/soundscapes/"

// EmptyNamespaceMessage accompanies a listing with no categories.
const EmptyNamespaceMessage = "No soundscapes on the server. Admins: create a category and upload files."

// Service is the admin façade used by the HTTP handlers.
type Service struct {
	authenticator *auth.Authenticator
	issuer        *auth.AuthService
	codec         *auth.TokenCodec
	store         *namespace.Store
	tokenTTL      time.Duration
	logger        *slog.Logger
}

// NewService creates a new admin service
func NewService(
	authenticator *auth.Authenticator,
	issuer *auth.AuthService,
	codec *auth.TokenCodec,
	store *namespace.Store,
	tokenTTL time.Duration,
	logger *slog.Logger,
) *Service {
	return &Service{
		authenticator: authenticator,
		issuer:        issuer,
		codec:         codec,
		store:         store,
		tokenTTL:      tokenTTL,
		logger:        logger,
	}
}

// StartChallengeInput is the body of a login_start call.
type StartChallengeInput struct {
	Phone string `json:"phone" validate:"required,max=32"`
}

// VerifyChallengeInput is the body of a login_verify call.
type VerifyChallengeInput struct {
	Phone string `json:"phone" validate:"required,max=32"`
	Code  string `json:"code" validate:"required,max=16"`
}

// PasswordLoginInput is the body of the legacy login call.
type PasswordLoginInput struct {
	Password string `json:"password" validate:"required"`
}

// StartChallenge issues a code for the admin phone.
func (s *Service) StartChallenge(ctx context.Context, in StartChallengeInput) (auth.Started, error) {
	in.Phone = strings.TrimSpace(in.Phone)
	if err := validateInput(in); err != nil {
		return auth.Started{}, err
	}
	return s.authenticator.StartChallenge(ctx, in.Phone)
}

// VerifyChallenge checks the code and returns a signed admin credential.
func (s *Service) VerifyChallenge(ctx context.Context, in VerifyChallengeInput) (string, error) {
	in.Phone = strings.TrimSpace(in.Phone)
	in.Code = strings.TrimSpace(in.Code)
	if err := validateInput(in); err != nil {
		return "", err
	}
	return s.issuer.Issue(ctx, auth.MethodOTP, auth.Credentials{Phone: in.Phone, Code: in.Code})
}

// PasswordLogin exchanges the legacy shared secret for a credential.
func (s *Service) PasswordLogin(ctx context.Context, in PasswordLoginInput) (string, error) {
	if err := validateInput(in); err != nil {
		return "", err
	}
	return s.issuer.Issue(ctx, auth.MethodPassword, auth.Credentials{Password: in.Password})
}

// Authorize verifies a presented credential and returns its claims.
func (s *Service) Authorize(token string) (model.AdminClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return model.AdminClaims{}, apperr.Unauthorized("missing token")
	}
	claims, err := s.codec.Verify(token, s.tokenTTL)
	if err != nil {
		return model.AdminClaims{}, err
	}
	if claims.Role != model.RoleAdmin {
		return model.AdminClaims{}, apperr.New(apperr.KindForbidden, "admin role required")
	}
	return claims, nil
}

// FileEntry is a listed file with its public URL.
type FileEntry struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// CategoryEntry is a listed category.
type CategoryEntry struct {
	Name  string      `json:"name"`
	Files []FileEntry `json:"files"`
}

// Listing is the public view of the namespace.
type Listing struct {
	Categories []CategoryEntry `json:"categories"`
	Empty      bool            `json:"empty"`
	Message    string          `json:"message,omitempty"`
}

// ListNamespace lists every category with file URLs rooted at base.
func (s *Service) ListNamespace(base string) (Listing, error) {
	cats, err := s.store.ListAll()
	if err != nil {
		return Listing{}, err
	}
	base = strings.TrimRight(base, "/")
	out := Listing{Categories: make([]CategoryEntry, 0, len(cats))}
	for _, c := range cats {
		entry := CategoryEntry{Name: c.Name, Files: make([]FileEntry, 0, len(c.Files))}
		for _, f := range c.Files {
			entry.Files = append(entry.Files, FileEntry{Name: f.Name, URL: FileURL(base, c.Name, f.Name)})
		}
		out.Categories = append(out.Categories, entry)
	}
	if len(out.Categories) == 0 {
		out.Empty = true
		out.Message = EmptyNamespaceMessage
	}
	return out, nil
}

// FileURL builds the public URL of a file.
func FileURL(base, category, file string) string {
	return base + StaticPrefix + escapeSegment(category) + "/" + escapeSegment(file)
}

// escapeSegment percent-encodes every byte outside the RFC 3986 unreserved
// set, so sub-delimiters such as + & = : @ $ are encoded too.
func escapeSegment(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9' ||
		c == '-' || c == '.' || c == '_' || c == '~'
}

// CreateCategoryInput is the body of create_category.
type CreateCategoryInput struct {
	Name string `json:"name" validate:"required,max=255"`
}

// RenameCategoryInput is the body of rename_category.
type RenameCategoryInput struct {
	OldName string `json:"old_name" validate:"required,max=255"`
	NewName string `json:"new_name" validate:"required,max=255"`
}

// DeleteCategoryInput is the body of delete_category.
type DeleteCategoryInput struct {
	Name  string `json:"name" validate:"required,max=255"`
	Force bool   `json:"force"`
}

// UploadInput describes an uploaded file.
type UploadInput struct {
	Category string    `json:"category" validate:"required,max=255"`
	Filename string    `json:"filename" validate:"required,max=255"`
	Content  io.Reader `json:"-" validate:"required"`
}

// RenameFileInput is the body of rename_file.
type RenameFileInput struct {
	Category string `json:"category" validate:"required,max=255"`
	OldName  string `json:"old_name" validate:"required,max=255"`
	NewName  string `json:"new_name" validate:"required,max=255"`
}

// MoveFileInput is the body of move_file.
type MoveFileInput struct {
	OldCategory string `json:"old_category" validate:"required,max=255"`
	Filename    string `json:"filename" validate:"required,max=255"`
	NewCategory string `json:"new_category" validate:"required,max=255"`
}

// DeleteFileInput is the body of delete_file.
type DeleteFileInput struct {
	Category string `json:"category" validate:"required,max=255"`
	Filename string `json:"filename" validate:"required,max=255"`
}

// guard authorizes token and validates in. Nothing touches the namespace
// unless both succeed.
func (s *Service) guard(token string, in any) (model.AdminClaims, error) {
	claims, err := s.Authorize(token)
	if err != nil {
		return claims, err
	}
	return claims, validateInput(in)
}

// CreateCategory creates a category and returns its stored name.
func (s *Service) CreateCategory(token string, in CreateCategoryInput) (string, error) {
	if _, err := s.guard(token, in); err != nil {
		return "", err
	}
	return s.store.CreateCategory(in.Name)
}

// RenameCategory renames a category.
func (s *Service) RenameCategory(token string, in RenameCategoryInput) error {
	if _, err := s.guard(token, in); err != nil {
		return err
	}
	return s.store.RenameCategory(in.OldName, in.NewName)
}

// DeleteCategory deletes a category, recursively when Force is set.
func (s *Service) DeleteCategory(token string, in DeleteCategoryInput) error {
	claims, err := s.guard(token, in)
	if err != nil {
		return err
	}
	if err := s.store.DeleteCategory(in.Name, in.Force); err != nil {
		return err
	}
	if in.Force {
		s.logger.Warn("category force-deleted", "name", in.Name, "by", maskClaims(claims))
	}
	return nil
}

// UploadFile stores an uploaded file and returns its sanitized name.
func (s *Service) UploadFile(token string, in UploadInput) (string, error) {
	if _, err := s.guard(token, in); err != nil {
		return "", err
	}
	return s.store.UploadFile(in.Category, in.Filename, in.Content)
}

// RenameFile renames a file and returns its sanitized new name.
func (s *Service) RenameFile(token string, in RenameFileInput) (string, error) {
	if _, err := s.guard(token, in); err != nil {
		return "", err
	}
	return s.store.RenameFile(in.Category, in.OldName, in.NewName)
}

// MoveFile moves a file to another category.
func (s *Service) MoveFile(token string, in MoveFileInput) error {
	if _, err := s.guard(token, in); err != nil {
		return err
	}
	return s.store.MoveFile(in.OldCategory, in.Filename, in.NewCategory)
}

// DeleteFile deletes a file.
func (s *Service) DeleteFile(token string, in DeleteFileInput) error {
	if _, err := s.guard(token, in); err != nil {
		return err
	}
	return s.store.DeleteFile(in.Category, in.Filename)
}

func maskClaims(c model.AdminClaims) string {
	if c.PhoneNumber == "" {
		return "password"
	}
	return auth.MaskPhone(c.PhoneNumber)
}
