package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	got := splitStatements(`
-- header
CREATE TABLE a (id INT); -- trailing
-- comment before b
CREATE TABLE b (
    id INT
);
`)
	require.Len(t, got, 2)
	assert.Equal(t, "CREATE TABLE a (id INT)", got[0])
	assert.Equal(t, "CREATE TABLE b (\n    id INT\n)", got[1])
}

func TestSchemaSplits(t *testing.T) {
	content, err := os.ReadFile("../../db/schema.sql")
	require.NoError(t, err)
	stmts := splitStatements(string(content))
	require.NotEmpty(t, stmts)
	for _, s := range stmts {
		assert.NotContains(t, s, "--", "comment lines are stripped")
	}
}
