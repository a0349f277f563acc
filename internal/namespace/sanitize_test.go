package namespace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"track.mp3", "track.mp3"},
		{"My Song.MP3", "My_Song.MP3"},
		{"../../etc/passwd.mp3", "etc_passwd.mp3"},
		{`..\..\boot.ini.wav`, "boot.ini.wav"},
		{"Über Größe.wav", "Uber_Groe.wav"},
		{"rain (live) #2.mp3", "rain_live_2.mp3"},
		{"   ", ""},
		{"../..", ""},
		{".hidden.mp3", "hidden.mp3"},
		{"日本語", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFilename(tt.in), "SanitizeFilename(%q)", tt.in)
	}
}

func TestSanitizeCategory(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"ambient", "ambient"},
		{"  Forest Walks  ", "Forest Walks"},
		{"../secret", "secret"},
		{"a/b", "ab"},
		{"..", ""},
		{".", ""},
		{"Nächte", "Nächte"},
		{"tab\there", "tabhere"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeCategory(tt.in), "SanitizeCategory(%q)", tt.in)
	}
}

func TestExistingName(t *testing.T) {
	for _, bad := range []string{"", " ", ".", "..", "a/b.mp3", `a\b.mp3`, "x\x00.mp3"} {
		_, err := existingName(bad)
		assert.Error(t, err, "existingName(%q)", bad)
	}
	name, err := existingName(" song.mp3 ")
	assert.NoError(t, err)
	assert.Equal(t, "song.mp3", name)
}

func TestExt(t *testing.T) {
	assert.Equal(t, ".mp3", Ext("A.MP3"))
	assert.Equal(t, "", Ext("noext"))
}
