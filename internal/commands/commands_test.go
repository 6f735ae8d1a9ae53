package commands

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/cellbridge/internal/logging"
	"github.com/ctagard/cellbridge/internal/version"
)

func TestVersionCommandPrintsJSON(t *testing.T) {
	root, err := NewRootCmd(logging.New("test"))
	require.NoError(t, err)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())

	var info version.Info
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Equal(t, version.Version, info.Version)
}

func TestServeRequiresHistory(t *testing.T) {
	root, err := NewRootCmd(logging.New("test"))
	require.NoError(t, err)

	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"serve"})
	err = root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history")
}

func TestRootRejectsBadVerbosity(t *testing.T) {
	root, err := NewRootCmd(logging.New("test"))
	require.NoError(t, err)

	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--verbosity", "loud", "version"})
	assert.Error(t, root.Execute())
}
