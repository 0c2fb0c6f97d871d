package debug

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/derad-network/derad/testing/assert"
	"github.com/derad-network/derad/testing/require"
)

func TestCPUProfile_StartStop(t *testing.T) {
	file := filepath.Join(t.TempDir(), "cpu.out")
	h := new(HandlerT)

	require.NoError(t, h.StartCPUProfile(file))
	require.ErrorContains(t, "already in progress", h.StartCPUProfile(file))
	require.NoError(t, h.StopCPUProfile())
	require.ErrorContains(t, "not in progress", h.StopCPUProfile())

	info, err := os.Stat(file)
	require.NoError(t, err)
	assert.Equal(t, true, info.Size() > 0, "profile file should not be empty")
}

func TestWriteMemProfile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "heap.out")
	h := new(HandlerT)

	require.NoError(t, h.WriteMemProfile(file))
	info, err := os.Stat(file)
	require.NoError(t, err)
	assert.Equal(t, true, info.Size() > 0)
}

func TestWriteProfile_UnknownName(t *testing.T) {
	err := writeProfile("no-such-profile", filepath.Join(t.TempDir(), "x.out"))
	require.ErrorContains(t, "unknown profile", err)
}

func TestStacks(t *testing.T) {
	h := new(HandlerT)
	assert.StringContains(t, "goroutine", h.Stacks())
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/operator")
	assert.Equal(t, "/home/operator/profiles/cpu.out", expandHome("~/profiles/cpu.out"))
	assert.Equal(t, "/tmp/cpu.out", expandHome("/tmp/cpu.out"))
	assert.Equal(t, "~operator/cpu.out", expandHome("~operator/cpu.out"), "only the bare tilde expands")
}
