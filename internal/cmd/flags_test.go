package cmd

import (
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/crew/internal/config"
)

var flagParseErrorTests = []struct {
	in     string
	flag   string
	reason string
}{
	{
		"unknown flag: --nope",
		"--nope",
		"Flag %s is missing.",
	},
	{
		"flag needs an argument: --older-than",
		"--older-than",
		"Flag %s needs an argument.",
	},
	{
		"flag needs an argument: 'p' in -p",
		"-p",
		"Flag %s needs an argument.",
	},
	{
		`invalid argument "20dd" for "--older-than" flag: time: unknown unit "dd" in duration "20dd"`,
		"--older-than",
		"Flag %s have an invalid argument.",
	},
	{
		`invalid argument "forever" for "--timeout" flag: time: invalid duration "forever"`,
		"--timeout",
		"Flag %s have an invalid argument.",
	},
	{
		`invalid argument "nope" for "-r, --raw" flag: strconv.ParseBool: parsing "nope": invalid syntax`,
		"-r, --raw",
		"Flag %s have an invalid argument.",
	},
}

func TestFlagParseError(t *testing.T) {
	for _, tf := range flagParseErrorTests {
		t.Run(tf.in, func(t *testing.T) {
			err := newFlagParseError(errors.New(tf.in))
			require.Equal(t, tf.flag, err.Flag())
			require.Equal(t, tf.reason, err.ReasonFormat())
			require.Equal(t, tf.in, err.Error())
		})
	}
}

func TestCallTimeoutFlag(t *testing.T) {
	callCmd := func(t *testing.T) *cobra.Command {
		t.Helper()
		root := NewRootCmd(BuildInfo{}, config.Config{}, nil)
		for _, c := range root.Commands() {
			if c.Name() == "call" {
				return c
			}
		}
		t.Fatal("call command not registered")
		return nil
	}

	t.Run("flag is registered and can be parsed", func(t *testing.T) {
		cmd := callCmd(t)
		require.NoError(t, cmd.ParseFlags([]string{"--timeout", "45s"}))

		flag := cmd.Flag("timeout")
		require.NotNil(t, flag)
		require.Equal(t, "45s", flag.Value.String())
	})

	t.Run("accepts day units", func(t *testing.T) {
		cmd := callCmd(t)
		require.NoError(t, cmd.ParseFlags([]string{"--timeout", "1d"}))

		flag := cmd.Flag("timeout")
		require.NotNil(t, flag)
		require.Equal(t, "24h0m0s", flag.Value.String())
	})
}
