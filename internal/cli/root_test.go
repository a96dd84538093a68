package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "storebus", cmd.Use)
	assert.Contains(t, cmd.Long, "scenario")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"scenario", "create"},
		{"scenario", "show"},
		{"scenario", "list"},
		{"scenario", "discard"},
		{"scenario", "change"},
		{"scenario", "skin"},
		{"scenario", "remove-unallowed"},
		{"scenario", "verify"},
		{"rebuild", "start"},
		{"rebuild", "resume"},
		{"rebuild", "status"},
		{"rebuild", "redeploy"},
		{"rebuild", "install"},
		{"rebuild", "edition"},
		{"rebuild", "remove-unallowed"},
		{"rebuild", "legacy-upgrade"},
		{"lock", "status"},
		{"lock", "clear"},
		{"modules", "list"},
		{"catalog", "validate"},
		{"test"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(path[0]+"/"+name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	for _, name := range []string{"db", "catalog"} {
		f := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, f, name)
		assert.Equal(t, "", f.DefValue)
	}
}

func TestStartingCommandsHaveRunFlag(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"start", "redeploy", "install", "edition", "remove-unallowed"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{"rebuild", name})
			require.NoError(t, err)
			runFlag := sub.Flags().Lookup("run")
			require.NotNil(t, runFlag)
			assert.Equal(t, "false", runFlag.DefValue)
		})
	}
}

func TestInstallCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	installCmd, _, err := cmd.Find([]string{"rebuild", "install"})
	require.NoError(t, err)

	for _, name := range []string{"core-version", "enable", "return-url"} {
		assert.NotNil(t, installCmd.Flags().Lookup(name), name)
	}
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	for _, name := range []string{"update", "filter", "golden"} {
		assert.NotNil(t, testCmd.Flags().Lookup(name), name)
	}
}

func TestInvalidFormat(t *testing.T) {
	_, _, err := runCLI(t, "--format", "xml", "lock", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestIsValidFormat(t *testing.T) {
	assert.True(t, isValidFormat("json"))
	assert.True(t, isValidFormat("text"))
	assert.False(t, isValidFormat("yaml"))
	assert.False(t, isValidFormat(""))
}
