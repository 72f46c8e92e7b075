package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"wingo/window"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runWindow(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewWindowCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestWindowCommand(t *testing.T) {
	out, err := runWindow(t, "--duration", "60", "--game", "10001", "--at", "2026-02-11T10:00:30Z", "--count", "3")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)

	var periods []string
	for _, line := range lines {
		var w window.Window
		require.NoError(t, json.Unmarshal([]byte(line), &w))
		periods = append(periods, w.Period)
	}
	assert.Equal(t, []string{"20260211100010601", "20260211100010602", "20260211100010603"}, periods)
}

func TestWindowCommand_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing game", []string{"--duration", "60"}},
		{"bad instant", []string{"--duration", "60", "--game", "10001", "--at", "yesterday"}},
		{"zero count", []string{"--duration", "60", "--game", "10001", "--count", "0"}},
		{"duration does not divide a day", []string{"--duration", "7", "--game", "10001"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runWindow(t, tt.args...)
			assert.Error(t, err)
		})
	}
}
