package admin

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundscapes/server/internal/apperr"
	"github.com/soundscapes/server/internal/auth"
	"github.com/soundscapes/server/internal/model"
	"github.com/soundscapes/server/internal/namespace"
)

const adminPhone = "+436703596614"

type recordingSender struct {
	mu     sync.Mutex
	bodies []string
}

func (s *recordingSender) Send(ctx context.Context, phone, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bodies = append(s.bodies, body)
	return nil
}

type fixture struct {
	svc   *Service
	codec *auth.TokenCodec
	root  string
}

func newFixture(t *testing.T, tokenTTL time.Duration) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	root := t.TempDir()
	store, err := namespace.NewStore(root, nil, logger)
	require.NoError(t, err)

	authenticator := auth.NewAuthenticator(auth.NewMemoryChallengeStore(), &recordingSender{}, auth.AuthenticatorConfig{
		AllowedPhone: adminPhone,
		Salt:         "salt",
		ExposeCode:   true,
	}, logger)
	codec := auth.NewTokenCodec("secret", auth.PurposeAdminLogin)
	issuer := auth.NewAuthService(codec, auth.NewOTPStrategy(authenticator), auth.NewPasswordStrategy("pw", "", false), logger)
	return &fixture{
		svc:   NewService(authenticator, issuer, codec, store, tokenTTL, logger),
		codec: codec,
		root:  root,
	}
}

func (f *fixture) login(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	started, err := f.svc.StartChallenge(ctx, StartChallengeInput{Phone: adminPhone})
	require.NoError(t, err)
	require.NotEmpty(t, started.DevCode)
	token, err := f.svc.VerifyChallenge(ctx, VerifyChallengeInput{Phone: adminPhone, Code: started.DevCode})
	require.NoError(t, err)
	return token
}

func TestService_loginFlow(t *testing.T) {
	f := newFixture(t, time.Hour)
	token := f.login(t)

	claims, err := f.svc.Authorize(token)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, claims.Role)
	assert.Equal(t, adminPhone, claims.PhoneNumber)
}

func TestService_inputValidation(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()

	_, err := f.svc.StartChallenge(ctx, StartChallengeInput{Phone: "   "})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, apperr.Message(err), "phone")

	_, err = f.svc.VerifyChallenge(ctx, VerifyChallengeInput{Phone: adminPhone})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, apperr.Message(err), "code")

	_, err = f.svc.PasswordLogin(ctx, PasswordLoginInput{})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestService_passwordLogin(t *testing.T) {
	f := newFixture(t, time.Hour)
	token, err := f.svc.PasswordLogin(context.Background(), PasswordLoginInput{Password: "pw"})
	require.NoError(t, err)
	_, err = f.svc.Authorize(token)
	require.NoError(t, err)
}

func TestService_mutationsRequireCredential(t *testing.T) {
	f := newFixture(t, time.Hour)

	viewer, err := f.codec.Issue(model.AdminClaims{Role: "viewer"})
	require.NoError(t, err)
	other := auth.NewTokenCodec("other-secret", auth.PurposeAdminLogin)
	forged, err := other.Issue(model.AdminClaims{Role: model.RoleAdmin})
	require.NoError(t, err)

	cases := []struct {
		name  string
		token string
		kind  apperr.Kind
	}{
		{"missing", "", apperr.KindUnauthorized},
		{"garbage", "not-a-token", apperr.KindInvalid},
		{"wrong secret", forged, apperr.KindInvalid},
		{"wrong role", viewer, apperr.KindForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateCategory(tc.token, CreateCategoryInput{Name: "Forest"})
			assert.Equal(t, tc.kind, apperr.KindOf(err))

			_, err = f.svc.UploadFile(tc.token, UploadInput{Category: "Forest", Filename: "a.mp3", Content: strings.NewReader("x")})
			assert.Equal(t, tc.kind, apperr.KindOf(err))

			entries, err := os.ReadDir(f.root)
			require.NoError(t, err)
			assert.Empty(t, entries, "namespace must be untouched")
		})
	}
}

func TestService_expiredCredential(t *testing.T) {
	f := newFixture(t, time.Nanosecond)
	token := f.login(t)
	time.Sleep(5 * time.Millisecond)

	_, err := f.svc.CreateCategory(token, CreateCategoryInput{Name: "Forest"})
	assert.Equal(t, apperr.KindExpired, apperr.KindOf(err))
}

func TestService_namespaceOperations(t *testing.T) {
	f := newFixture(t, time.Hour)
	token := f.login(t)

	name, err := f.svc.CreateCategory(token, CreateCategoryInput{Name: "Forest"})
	require.NoError(t, err)
	assert.Equal(t, "Forest", name)

	stored, err := f.svc.UploadFile(token, UploadInput{Category: "Forest", Filename: "../Bird Song.MP3", Content: strings.NewReader("audio")})
	require.NoError(t, err)
	assert.Equal(t, "Bird_Song.MP3", stored)

	renamed, err := f.svc.RenameFile(token, RenameFileInput{Category: "Forest", OldName: stored, NewName: "birds.mp3"})
	require.NoError(t, err)
	assert.Equal(t, "birds.mp3", renamed)

	require.NoError(t, f.svc.MoveFile(token, MoveFileInput{OldCategory: "Forest", Filename: "birds.mp3", NewCategory: "Sea"}))
	assert.FileExists(t, filepath.Join(f.root, "Sea", "birds.mp3"))

	require.NoError(t, f.svc.RenameCategory(token, RenameCategoryInput{OldName: "Sea", NewName: "Ocean Waves"}))

	listing, err := f.svc.ListNamespace("https://example.com/")
	require.NoError(t, err)
	require.Len(t, listing.Categories, 2)
	assert.False(t, listing.Empty)
	assert.Empty(t, listing.Message)
	assert.Equal(t, "Forest", listing.Categories[0].Name)
	assert.Empty(t, listing.Categories[0].Files)
	assert.Equal(t, "Ocean Waves", listing.Categories[1].Name)
	require.Len(t, listing.Categories[1].Files, 1)
	assert.Equal(t, "https://example.com/static/soundscapes/Ocean%20Waves/birds.mp3", listing.Categories[1].Files[0].URL)

	err = f.svc.DeleteCategory(token, DeleteCategoryInput{Name: "Ocean Waves"})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	require.NoError(t, f.svc.DeleteFile(token, DeleteFileInput{Category: "Ocean Waves", Filename: "birds.mp3"}))
	require.NoError(t, f.svc.DeleteCategory(token, DeleteCategoryInput{Name: "Ocean Waves"}))
	require.NoError(t, f.svc.DeleteCategory(token, DeleteCategoryInput{Name: "Forest", Force: true}))

	listing, err = f.svc.ListNamespace("http://localhost:8083")
	require.NoError(t, err)
	assert.True(t, listing.Empty)
	assert.Equal(t, EmptyNamespaceMessage, listing.Message)
	assert.NotNil(t, listing.Categories)
}

func TestService_mutationInputValidation(t *testing.T) {
	f := newFixture(t, time.Hour)
	token := f.login(t)

	err := f.svc.MoveFile(token, MoveFileInput{OldCategory: "A", Filename: "x.mp3"})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, apperr.Message(err), "new_category")

	_, err = f.svc.UploadFile(token, UploadInput{Category: "A", Filename: "x.mp3"})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestFileURL(t *testing.T) {
	assert.Equal(t, "http://h/static/soundscapes/R%C3%A4ume/a%20b.wav", FileURL("http://h", "Räume", "a b.wav"))
	assert.Equal(t, "http://h/static/soundscapes/a%2Bb%26c%3Dd%3Ae%40f%24g/x_y-1.2~.mp3",
		FileURL("http://h", "a+b&c=d:e@f$g", "x_y-1.2~.mp3"))
}

func TestService_listingEscapesSubDelimiters(t *testing.T) {
	f := newFixture(t, time.Hour)
	token := f.login(t)

	_, err := f.svc.UploadFile(token, UploadInput{Category: "Rock & Roll", Filename: "a.mp3", Content: strings.NewReader("x")})
	require.NoError(t, err)

	listing, err := f.svc.ListNamespace("http://h")
	require.NoError(t, err)
	require.Len(t, listing.Categories, 1)
	require.Len(t, listing.Categories[0].Files, 1)
	assert.Equal(t, "http://h/static/soundscapes/Rock%20%26%20Roll/a.mp3", listing.Categories[0].Files[0].URL)
}
