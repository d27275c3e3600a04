package target_test

import (
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisp-pm/wisp/internal/target"
)

func TestParseRoundTrip(t *testing.T) {
	for _, k := range target.Kinds {
		parsed, err := target.Parse(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
}

func TestParseUnknown(t *testing.T) {
	_, err := target.Parse("nonsense")
	assert.Error(t, err)
}

func TestIsCompatibleWith(t *testing.T) {
	assert.True(t, target.Luau.IsCompatibleWith(target.Luau))
	assert.True(t, target.Lune.IsCompatibleWith(target.Luau))
	assert.False(t, target.Luau.IsCompatibleWith(target.Lune))
	assert.False(t, target.Roblox.IsCompatibleWith(target.Luau))
}

func TestPackagesFolder(t *testing.T) {
	assert.Equal(t, "packages", target.Luau.PackagesFolder(target.Luau))
	assert.Equal(t, "luau_packages", target.Lune.PackagesFolder(target.Luau))
	assert.Equal(t, "roblox_packages", target.Roblox.PackagesFolder(target.Roblox))
}

func TestValidatePublish(t *testing.T) {
	cases := []struct {
		name    string
		target  target.Target
		wantErr bool
	}{
		{"no exports", target.Target{Kind: target.Luau}, true},
		{"lib export", target.Target{Kind: target.Luau, Lib: "src/init.luau"}, false},
		{"roblox without build files", target.Target{Kind: target.Roblox, Lib: "src/init.lua"}, true},
		{"roblox with build files", target.Target{Kind: target.Roblox, Lib: "src/init.lua", BuildFiles: []string{"default.project.json"}}, false},
	}
	for _, c := range cases {
		err := c.target.ValidatePublish()
		if c.wantErr {
			assert.Errorf(t, err, c.name)
		} else {
			assert.NoErrorf(t, err, c.name)
		}
	}
}

func TestTargetTOMLRoundTrip(t *testing.T) {
	tg := target.Target{Kind: target.Roblox, Lib: "src/init.lua", BuildFiles: []string{"default.project.json"}}

	data, err := toml.Marshal(tg)
	require.NoError(t, err)

	var got target.Target
	require.NoError(t, toml.Unmarshal(data, &got))
	assert.Equal(t, tg, got)
}

func TestTargetUnmarshalTOMLRejectsMissingKind(t *testing.T) {
	var tg target.Target
	err := toml.Unmarshal([]byte(`lib = "src/init.luau"`), &tg)
	assert.Error(t, err)
}
