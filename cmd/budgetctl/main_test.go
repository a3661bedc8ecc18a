package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := newRootCmd()
	assert.Equal(t, "budgetctl", cmd.Use)
	assert.Contains(t, cmd.Short, "budgets")
	assert.Contains(t, cmd.Long, "BUDGETLY_")

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"summary", "rollover", "set-budget", "seed-owner", "delete-category", "migrate"}, names)
}

// run executes budgetctl against dbPath with a fixed clock of 2025-02-10.
func run(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmdAt(func() time.Time {
		return time.Date(2025, time.February, 10, 9, 0, 0, 0, time.UTC)
	})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--db", dbPath}, args...))
	cmd.SetContext(context.Background())
	err := cmd.Execute()
	return out.String(), err
}

func TestMigrate(t *testing.T) {
	db := filepath.Join(t.TempDir(), "budgetly.db")

	out, err := run(t, db, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "at version 1")
	assert.NotContains(t, out, "dirty")
}

func TestBudgetLifecycle(t *testing.T) {
	db := filepath.Join(t.TempDir(), "budgetly.db")

	out, err := run(t, db, "seed-owner", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Owner 1 created with 6 categories")
	assert.Contains(t, out, "Food")

	_, err = run(t, db, "--owner", "1", "rollover")
	require.NoError(t, err, "rollover without a source month is not a failure")

	out, err = run(t, db, "--owner", "1", "set-budget", "--category", "1", "--amount", "250,50", "--month", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "= 250.50 for 2025-01")

	// February has no budgets yet, so January's limits show through.
	out, err = run(t, db, "--owner", "1", "summary")
	require.NoError(t, err)
	assert.Contains(t, out, "Period 2025-02")
	assert.Contains(t, out, "inherited from previous month")
	assert.Contains(t, out, "250.50")

	out, err = run(t, db, "--owner", "1", "rollover")
	require.NoError(t, err)
	assert.Contains(t, out, "Copied 1 budgets from 2025-01 to 2025-02")

	out, err = run(t, db, "--owner", "1", "summary")
	require.NoError(t, err)
	assert.NotContains(t, out, "inherited")

	out, err = run(t, db, "--owner", "1", "delete-category", "--category", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "2 budgets removed")
}

func TestCommandErrors(t *testing.T) {
	db := filepath.Join(t.TempDir(), "budgetly.db")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"summary without owner", []string{"summary"}, "--owner"},
		{"bad amount", []string{"--owner", "1", "set-budget", "--category", "1", "--amount", "abc"}, "amount"},
		{"missing category flag", []string{"--owner", "1", "delete-category"}, "category"},
		{"seed-owner needs a name", []string{"seed-owner"}, "arg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, db, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestOwnerFromEnvironment(t *testing.T) {
	db := filepath.Join(t.TempDir(), "budgetly.db")
	_, err := run(t, db, "seed-owner", "bob")
	require.NoError(t, err)

	t.Setenv("BUDGETLY_OWNER", "1")
	out, err := run(t, db, "summary", "--month", "3", "--year", "2025")
	require.NoError(t, err)
	assert.Contains(t, out, "Period 2025-03 (owner 1)")
}
