package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	assert.Equal(t, "dev", Short())
	assert.Contains(t, Info(), "AIMS dev")
	assert.Contains(t, Info(), runtime.Version())
}

func TestMap(t *testing.T) {
	m := Map()
	for _, key := range []string{"version", "git_commit", "build_date", "go_version", "os", "arch"} {
		assert.Contains(t, m, key)
	}
	assert.Equal(t, runtime.GOOS, m["os"])
}

func TestFields(t *testing.T) {
	fields := Fields()
	require.Len(t, fields, 3)
	assert.Equal(t, "version", fields[0].Key)
	assert.Equal(t, Version, fields[0].String)
}
