package ssh

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galleyhq/galley"
)

const sampleSSHConfig = `
Host web
  HostName web.internal.example.com
  User deploy
  Port 2200
  IdentityFile ~/.ssh/web_ed25519
  ForwardAgent yes

Host db
  HostName db.internal.example.com
`

func TestApplyHostDefaultsFromReader(t *testing.T) {
	t.Setenv("HOME", "/home/tester")

	st := galley.State{}
	require.NoError(t, ApplyHostDefaultsFromReader(st, "web", strings.NewReader(sampleSSHConfig)))

	assert.Equal(t, "web.internal.example.com", st["hostname"])
	assert.Equal(t, "deploy", st["username"])
	assert.Equal(t, 2200, st["port"])
	assert.Equal(t, "/home/tester/.ssh/web_ed25519", st["ssh_key"])
	assert.Equal(t, true, st["forward_agent"])
}

func TestApplyHostDefaultsFromReader_ExistingKeysWin(t *testing.T) {
	t.Parallel()

	st := galley.State{
		"hostname": "10.0.0.5",
		"port":     22,
	}
	require.NoError(t, ApplyHostDefaultsFromReader(st, "web", strings.NewReader(sampleSSHConfig)))

	assert.Equal(t, "10.0.0.5", st["hostname"])
	assert.Equal(t, 22, st["port"])
	// Keys absent from the state are still filled.
	assert.Equal(t, "deploy", st["username"])
}

func TestApplyHostDefaultsFromReader_PartialEntry(t *testing.T) {
	t.Parallel()

	st := galley.State{}
	require.NoError(t, ApplyHostDefaultsFromReader(st, "db", strings.NewReader(sampleSSHConfig)))

	assert.Equal(t, "db.internal.example.com", st["hostname"])
	assert.NotContains(t, st, "forward_agent")
	assert.NotContains(t, st, "ssh_key")
}

func TestApplyHostDefaults_MissingFile(t *testing.T) {
	t.Parallel()

	st := galley.State{}
	err := ApplyHostDefaults(st, "web", filepath.Join(t.TempDir(), "no-such-config"))

	assert.NoError(t, err)
	assert.Empty(t, st)
}
