package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "swapgraph", cmd.Use)
	assert.Contains(t, cmd.Long, "trade cycles")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"intent", "add"},
		{"intent", "cancel"},
		{"intent", "list"},
		{"match"},
		{"match", "runs"},
		{"proposal", "list"},
		{"proposal", "show"},
		{"accept"},
		{"settle", "start"},
		{"settle", "deposit"},
		{"settle", "execute"},
		{"settle", "complete"},
		{"settle", "expire"},
		{"settle", "fail"},
		{"settle", "show"},
		{"settle", "list"},
		{"sweep"},
		{"receipt", "show"},
		{"receipt", "verify"},
		{"events", "list"},
		{"events", "relay"},
		{"keygen"},
		{"invoke"},
		{"config", "validate"},
		{"config", "show"},
		{"test"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
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
	assert.Equal(t, "swapgraph.cue", configFlag.DefValue)

	dbFlag := cmd.PersistentFlags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "", dbFlag.DefValue)
}

func TestMutationFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, path := range [][]string{{"intent", "add"}, {"match"}, {"accept"}, {"settle", "deposit"}, {"settle", "fail"}} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err)
		for _, name := range []string{"actor", "key", "at"} {
			assert.NotNil(t, sub.Flags().Lookup(name), "%v should have --%s", path, name)
		}
	}
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	filterFlag := testCmd.Flags().Lookup("filter")
	require.NotNil(t, filterFlag)
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "intent", "list"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
