package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateValidScenarios(t *testing.T) {
	rootOpts := &RootOptions{Format: "text", Fs: scenarioFs(t, "scenarios/basic.yaml", "scenarios/retro_chain.yaml")}
	out, err := execute(NewValidateCommand(rootOpts), "/scenarios/basic.yaml", "/scenarios/retro_chain.yaml")

	require.NoError(t, err)
	assert.Contains(t, out, "✓ /scenarios/basic.yaml (basic)")
	assert.Contains(t, out, "✓ /scenarios/retro_chain.yaml (retro_chain)")
}

func TestValidateInvalidScenario(t *testing.T) {
	tests := []struct {
		name string
		file string
	}{
		{"unknown_field", "invalid/unknown_field.yaml"},
		{"bad_outcome", "invalid/bad_outcome.yaml"},
		{"exclusive_rule", "invalid/exclusive_rule.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rootOpts := &RootOptions{Format: "text", Fs: scenarioFs(t, tt.file)}
			out, err := execute(NewValidateCommand(rootOpts), "/scenarios/"+tt.name+".yaml")

			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
			assert.Contains(t, out, "✗ /scenarios/"+tt.name+".yaml")
		})
	}
}

func TestValidateJSONOutput(t *testing.T) {
	rootOpts := &RootOptions{Format: "json", Fs: scenarioFs(t, "scenarios/basic.yaml", "invalid/bad_outcome.yaml")}
	out, err := execute(NewValidateCommand(rootOpts), "/scenarios/basic.yaml", "/scenarios/bad_outcome.yaml")
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Error  *CLIError        `json:"error"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalidScenario, resp.Error.Code)

	require.Len(t, resp.Data.Files, 2)
	assert.True(t, resp.Data.Files[0].Valid)
	assert.False(t, resp.Data.Files[1].Valid)
	assert.NotEmpty(t, resp.Data.Files[1].Error)
}

func TestValidateMissingFile(t *testing.T) {
	rootOpts := &RootOptions{Format: "text", Fs: scenarioFs(t)}
	_, err := execute(NewValidateCommand(rootOpts), "/scenarios/absent.yaml")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenario not found")
}
