package main

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ipo-research-cli/internal/pipeline"
)

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["research"])
	assert.True(t, names["corps"])
	assert.True(t, names["runs"])
}

func TestResearchFlags(t *testing.T) {
	for _, flag := range []string{"skip-filing", "skip-analysis"} {
		f := researchCmd.Flags().Lookup(flag)
		require.NotNil(t, f, flag)
		assert.Equal(t, "false", f.DefValue)
	}
}

func TestResearchRequiresCompanyArg(t *testing.T) {
	err := researchCmd.Args(researchCmd, []string{})
	assert.Error(t, err)
	assert.NoError(t, researchCmd.Args(researchCmd, []string{"에이펙스"}))
}

func TestPrintRunReport(t *testing.T) {
	var out bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&out)

	printRunReport(c, &pipeline.RunReport{
		RunID:  "run-1",
		Status: pipeline.RunDegraded,
		Stages: []pipeline.StageReport{
			{Name: "identity", Status: pipeline.StageSucceeded, Duration: "12ms"},
			{Name: "extract", Status: pipeline.StageSkipped, Detail: "disabled by flag"},
		},
		Artifacts:   []string{"data/reports/20260315_에이펙스_data.json"},
		Diagnostics: 2,
	})

	text := out.String()
	assert.Contains(t, text, "run run-1: degraded")
	assert.Contains(t, text, "identity")
	assert.Contains(t, text, "disabled by flag")
	assert.Contains(t, text, "wrote data/reports/20260315_에이펙스_data.json")
	assert.Contains(t, text, "2 diagnostics")
}
