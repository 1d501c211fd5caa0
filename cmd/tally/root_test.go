package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/tally/config"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCommand()

	names := []string{}
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "migrate", "seed"}, names)

	seedCmd, _, err := root.Find([]string{"seed"})
	require.NoError(t, err)
	assert.NotNil(t, seedCmd.Flags().Lookup("file"))
}

func TestNewZapLogger(t *testing.T) {
	logger, err := newZapLogger(config.Config{LogLevel: "DEBUG", AppName: "tally"})
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = newZapLogger(config.Config{LogLevel: "loud"})
	assert.Error(t, err)
}
