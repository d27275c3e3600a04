package linker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanExportedTypesMissingFile(t *testing.T) {
	lines, err := scanExportedTypes(filepath.Join(t.TempDir(), "missing.luau"))
	require.NoError(t, err)
	assert.Nil(t, lines)
}

func TestScanExportedTypesSimpleAndGeneric(t *testing.T) {
	src := `local module = {}
export type Widget = { name: string }
export type Pair<A, B = string> = { a: A, b: B }
return module
`
	path := filepath.Join(t.TempDir(), "init.luau")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	lines, err := scanExportedTypes(path)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "export type Widget = module.Widget", lines[0])
	assert.Equal(t, "export type Pair<A, B = string> = module.Pair<A, B>", lines[1])
}

func TestReexportLineNoGenerics(t *testing.T) {
	assert.Equal(t, "export type Foo = module.Foo", reexportLine("Foo", ""))
}
