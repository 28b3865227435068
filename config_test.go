package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "channels.conf")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadChannelTableParsesValidFile(t *testing.T) {
	path := writeConfig(t, "channel lobby 9000 2\nchannel gym 9001 1\n")
	descs := LoadChannelTable(path)
	require.Len(t, descs, 2)
	require.Equal(t, "lobby", descs[0].Name)
	require.Equal(t, 9000, descs[0].Port)
	require.Equal(t, 2, descs[0].Capacity)
	require.Equal(t, "gym", descs[1].Name)
}

func TestLoadChannelTableSkipsBlankLines(t *testing.T) {
	path := writeConfig(t, "channel lobby 9000 2\n\n\nchannel gym 9001 1\n")
	descs := LoadChannelTable(path)
	require.Len(t, descs, 2)
}

func TestParseArgsDefaultAFK(t *testing.T) {
	opts := ParseArgs([]string{"channels.conf"})
	require.Equal(t, 100, opts.AFKTimeSeconds)
	require.Equal(t, "channels.conf", opts.ConfigFile)
}

func TestParseArgsExplicitAFK(t *testing.T) {
	opts := ParseArgs([]string{"42", "channels.conf"})
	require.Equal(t, 42, opts.AFKTimeSeconds)
	require.Equal(t, "channels.conf", opts.ConfigFile)
}

func TestParseArgsMonitoringFlags(t *testing.T) {
	opts := ParseArgs([]string{"--monitor-addr", ":9999", "--audit-db", "", "--metrics-interval", "5", "channels.conf"})
	require.Equal(t, ":9999", opts.MonitorAddr)
	require.Equal(t, "", opts.AuditDBPath)
	require.Equal(t, 5, opts.MetricsInterval)
}
