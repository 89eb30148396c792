package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/auth"
)

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "cmd-test-secret")

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs([]string{"token", "--subject", "acc-9", "--role", "admin", "--ttl", "1h"})
	require.NoError(t, rootCmd.Execute())

	id, err := auth.NewTokenManager("cmd-test-secret", time.Hour).Parse(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "acc-9", id.AccountID)
	assert.Equal(t, auth.RoleAdmin, id.Role)
	assert.Contains(t, errOut.String(), "expires at")
}

func TestHashKeyCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader("device-secret\n"))
	rootCmd.SetArgs([]string{"hash-key"})
	require.NoError(t, rootCmd.Execute())

	hash := strings.TrimSpace(out.String())
	assert.True(t, auth.VerifyDeviceKey(&hash, "device-secret"))
	assert.False(t, auth.VerifyDeviceKey(&hash, "other"))
}

func TestMigrateList(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"migrate", "--list"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "0001_init.sql")
	migrateList = false
}

func TestWaitForStop_ComponentFailureIsReturned(t *testing.T) {
	errCh := make(chan error, 1)
	errCh <- errors.New("listen tcp :8080: address already in use")

	err := waitForStop(context.Background(), errCh, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address already in use")
}

func TestWaitForStop_UnexpectedCleanExit(t *testing.T) {
	errCh := make(chan error, 1)
	errCh <- nil

	assert.Error(t, waitForStop(context.Background(), errCh, zap.NewNop()))
}

func TestWaitForStop_SignalIsClean(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, waitForStop(ctx, make(chan error), zap.NewNop()))

	// The consumer returns nil once ctx is done; that is a clean stop too.
	errCh := make(chan error, 1)
	errCh <- nil
	assert.NoError(t, waitForStop(ctx, errCh, zap.NewNop()))
}
