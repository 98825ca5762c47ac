package runs

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCreatesUniqueDirectories(t *testing.T) {
	root := t.TempDir()

	first, err := New("predict", root)
	require.NoError(t, err)
	second, err := New("predict", root)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.True(t, strings.HasPrefix(first.ID, "predict_"))

	info, err := os.Stat(first.Dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestExistingReusesIdentifier(t *testing.T) {
	root := t.TempDir()

	run, err := Existing("strategy_20250801_120000_abcd1234", root)
	require.NoError(t, err)
	assert.Equal(t, "strategy_20250801_120000_abcd1234", run.ID)

	again, err := Existing(run.ID, root)
	require.NoError(t, err)
	assert.Equal(t, run.Dir, again.Dir)
}
