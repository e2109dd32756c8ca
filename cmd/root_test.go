package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	// Collect subcommand names.
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	// Verify expected subcommands are registered.
	expected := []string{"reconcile", "extract", "invoices", "runs", "migrate", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "check-recon", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestReconcileCommand_Flags(t *testing.T) {
	for _, name := range []string{"images", "ftp", "samples", "dry-run", "report", "expected-total"} {
		flag := reconcileCmd.Flags().Lookup(name)
		assert.NotNil(t, flag, "reconcile should have --%s flag", name)
	}
}

func TestExtractCommand_Metadata(t *testing.T) {
	assert.Equal(t, "extract <scan>", extractCmd.Use)
	assert.NotEmpty(t, extractCmd.Short)

	flag := extractCmd.Flags().Lookup("samples")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
}

func TestInvoicesCommand_Flags(t *testing.T) {
	flag := invoicesCmd.Flags().Lookup("json")
	require.NotNil(t, flag, "invoices command should have --json flag")
	assert.Equal(t, "false", flag.DefValue)
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	cmds := runsCmd.Commands()
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	for _, name := range []string{"show", "stats"} {
		assert.True(t, names[name], "runs should have subcommand %q", name)
	}
}

func TestRunsCommand_Flags(t *testing.T) {
	limitFlag := runsCmd.Flags().Lookup("limit")
	require.NotNil(t, limitFlag)
	assert.Equal(t, "50", limitFlag.DefValue)

	statusFlag := runsCmd.Flags().Lookup("status")
	require.NotNil(t, statusFlag)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}
