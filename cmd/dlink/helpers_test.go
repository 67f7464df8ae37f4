package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
}
