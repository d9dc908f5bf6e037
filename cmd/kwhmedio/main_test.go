package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bher20/kwhmedio/internal/aneel"
	"github.com/bher20/kwhmedio/internal/auth"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("KWHMEDIO_DB_DRIVER", "")
	t.Setenv("KWHMEDIO_AUTO_MIGRATE", "")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, aneel.Version())
}

func TestCalcRequiresWindow(t *testing.T) {
	_, err := execute(t, "calc", "--cnpj", "04368898000106")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start")
}

func TestCalcRejectsBadTax(t *testing.T) {
	_, err := execute(t, "calc", "--start", "2024-06-12", "--end", "2024-07-12", "--icms", "nineteen")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid tax fraction")
}

func TestMigrateNeedsSQLDriver(t *testing.T) {
	_, err := execute(t, "migrate", "status", "--db-driver", "redis")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no SQL migrations")
}

func TestTokenNew(t *testing.T) {
	out, err := execute(t, "token", "new", "--name", "ci", "--role", "viewer", "--expires", "30d")
	require.NoError(t, err)

	var raw, entry string
	for _, line := range strings.Split(out, "\n") {
		if v, ok := strings.CutPrefix(line, "token: "); ok {
			raw = v
		}
		if v, ok := strings.CutPrefix(line, "entry: "); ok {
			entry = v
		}
	}
	require.NotEmpty(t, raw)

	tokens, err := auth.ParseTokens(entry)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	require.NotNil(t, tokens[0].ExpiresAt)

	svc, err := auth.NewService(tokens)
	require.NoError(t, err)
	tok, err := svc.Authenticate(raw)
	require.NoError(t, err)
	assert.Equal(t, "viewer", tok.Role)
}
