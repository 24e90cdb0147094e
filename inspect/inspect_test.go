package inspect

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubInspector struct {
	archs   []string
	minOS   string
	members []string
	err     error
}

func (s *stubInspector) Archs(string) ([]string, error)   { return s.archs, s.err }
func (s *stubInspector) MinOS(string) (string, error)     { return s.minOS, s.err }
func (s *stubInspector) Members(string) ([]string, error) { return s.members, s.err }

func TestParseMinOS(t *testing.T) {
	v, err := ParseMinOS("      minos 11.0")
	require.NoError(t, err)
	assert.Equal(t, "11.0", v)

	v, err = ParseMinOS("cmd LC_BUILD_VERSION\n  platform 1\n    minos 14.0\n      sdk 15.2")
	require.NoError(t, err)
	assert.Equal(t, "14.0", v)

	_, err = ParseMinOS("")
	assert.Error(t, err)
}

func TestParseArchsAndMembers(t *testing.T) {
	assert.Equal(t, []string{"x86_64", "arm64"}, ParseArchs("x86_64 arm64\n"))
	assert.Empty(t, ParseArchs(""))

	out := "__.SYMDEF SORTED\nopenjpeg.c.o\n\nj2k.c.o\n/\n"
	assert.Equal(t, []string{"openjpeg.c.o", "j2k.c.o"}, ParseMembers(out))
}

func TestQuote(t *testing.T) {
	assert.Equal(t, "'/tmp/a b/libopenjp2.a'", Quote("/tmp/a b/libopenjp2.a"))
	assert.Equal(t, `'it'\''s'`, Quote("it's"))
}

func TestChecks(t *testing.T) {
	universal := &stubInspector{archs: []string{"x86_64", "arm64"}, minOS: "11.0", members: []string{"a.o"}}
	assert.NoError(t, CheckUniversal(universal, "lib.a", []string{"arm64", "x86_64"}))
	assert.NoError(t, CheckMinOS(universal, "lib.a", "11.0"))
	assert.NoError(t, CheckMembers(universal, "lib.a"))

	thin := &stubInspector{archs: []string{"arm64"}, minOS: "14.0"}
	assert.ErrorIs(t, CheckUniversal(thin, "lib.a", []string{"arm64", "x86_64"}), ErrMismatch)
	assert.ErrorIs(t, CheckMinOS(thin, "lib.a", "11.0"), ErrMismatch)
	assert.ErrorIs(t, CheckMembers(thin, "lib.a"), ErrMismatch)

	boom := errors.New("lipo failed")
	broken := &stubInspector{err: boom}
	assert.ErrorIs(t, CheckUniversal(broken, "lib.a", []string{"arm64"}), boom)
}

func TestTunnelInspectorReportsToolFailures(t *testing.T) {
	p := filepath.Join(t.TempDir(), "libbad.a")
	require.NoError(t, os.WriteFile(p, []byte("not an archive"), 0o644))
	ti := NewTunnelInspector(nil)

	_, err := ti.Members(p)
	assert.Error(t, err)
	assert.Error(t, CheckMembers(ti, p))

	_, err = ti.Archs(p)
	assert.Error(t, err)

	// No minos line is a failed check, not a crash.
	_, err = ti.MinOS(p)
	assert.ErrorIs(t, err, ErrMismatch)
	assert.ErrorIs(t, CheckMinOS(ti, p, "11.0"), ErrMismatch)
}
