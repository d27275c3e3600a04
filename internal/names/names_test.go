package names_test

import (
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisp-pm/wisp/internal/names"
	"github.com/wisp-pm/wisp/internal/target"
)

func TestParsePackageName(t *testing.T) {
	cases := []struct {
		in      string
		wantErr bool
	}{
		{"acme/widgets", false},
		{"acme/123", true},       // all-digit name part
		{"_acme/widgets", true},  // leading underscore
		{"ac/widgets", true},     // scope too short
		{"acmewidgets", true},    // no slash
		{"Acme/widgets", true},   // uppercase
	}
	for _, c := range cases {
		_, err := names.ParsePackageName(c.in)
		if c.wantErr {
			assert.Errorf(t, err, "expected error for %q", c.in)
		} else {
			assert.NoErrorf(t, err, "unexpected error for %q", c.in)
		}
	}
}

func TestPackageNameEscapedRoundTrip(t *testing.T) {
	pn, err := names.ParsePackageName("acme/widgets")
	require.NoError(t, err)

	escaped := pn.Escaped()
	assert.Equal(t, "acme+widgets", escaped)

	back, err := names.FromEscaped(names.KindPrimary, escaped)
	require.NoError(t, err)
	assert.Equal(t, names.Primary(pn), back)
}

func TestVersionIDCompareTargetMajor(t *testing.T) {
	v1, _ := semver.NewVersion("1.0.0")
	v2, _ := semver.NewVersion("2.0.0")

	low := names.NewVersionID(v2, target.Roblox)
	high := names.NewVersionID(v1, target.Luau)

	// Target ordering dominates semver: Roblox < Luau regardless of version.
	assert.True(t, low.Compare(high) < 0)
}

func TestVersionIDEscapedRoundTrip(t *testing.T) {
	v, _ := semver.NewVersion("1.2.3")
	vid := names.NewVersionID(v, target.Lune)

	escaped := vid.Escaped()
	assert.Equal(t, "1.2.3+lune", escaped)

	back, err := names.ParseEscapedVersionID(escaped)
	require.NoError(t, err)
	assert.True(t, vid.Equal(back))
}
