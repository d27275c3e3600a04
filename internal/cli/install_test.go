package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wisp-pm/wisp/internal/manifest"
)

func TestResolveScript(t *testing.T) {
	m := &manifest.Manifest{Scripts: map[string]string{"sourcemap_generator": "scripts/sourcemap.sh"}}
	got := resolveScript(m, "/proj", "sourcemap_generator")
	assert.Equal(t, filepath.Join("/proj", "scripts", "sourcemap.sh"), got)
}

func TestResolveScriptMissingAlias(t *testing.T) {
	m := &manifest.Manifest{}
	assert.Equal(t, "", resolveScript(m, "/proj", "sourcemap_generator"))
}
