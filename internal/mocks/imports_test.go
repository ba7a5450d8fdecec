package mocks

import (
	"go/parser"
	"go/token"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Packages whose internal tests use mocks; importing any of them here is an import cycle.
var testedWithMocks = []string{
	"formpilot/pkg/chat",
	"formpilot/pkg/scheduler",
	"formpilot/pkg/session",
	"formpilot/pkg/traversal",
}

func TestMocksDoNotImportTestedPackages(t *testing.T) {
	files, err := filepath.Glob("*.go")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	fset := token.NewFileSet()
	for _, name := range files {
		f, err := parser.ParseFile(fset, name, nil, parser.ImportsOnly)
		require.NoError(t, err)
		for _, imp := range f.Imports {
			path, err := strconv.Unquote(imp.Path.Value)
			require.NoError(t, err)
			assert.NotContains(t, testedWithMocks, path, "%s imports %s", name, path)
		}
	}
}
