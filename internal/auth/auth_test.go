// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/telly-tui/internal/backend"
)

func testService(t *testing.T) *Service {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "credentials.json"))
}

func okServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLoginAdoptsAndPersists(t *testing.T) {
	svc := testService(t)
	srv := okServer(t)
	client := backend.NewClient(srv.URL, svc)

	require.NoError(t, svc.Login(context.Background(), client, "alice", "s3cret"))

	user, secret, ok := svc.Credentials()
	require.True(t, ok)
	require.Equal(t, "alice", user)
	require.Equal(t, "s3cret", secret)

	// A new service over the same file picks the identity back up.
	reloaded := New(svc.path)
	user, _, ok = reloaded.Credentials()
	require.True(t, ok)
	require.Equal(t, "alice", user)

	info, err := os.Stat(svc.path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoginRejectionLeavesLoggedOut(t *testing.T) {
	svc := testService(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	client := backend.NewClient(srv.URL, svc)

	err := svc.Login(context.Background(), client, "alice", "wrong")
	require.ErrorIs(t, err, backend.ErrAuthFailed)

	_, _, ok := svc.Credentials()
	require.False(t, ok, "rejected login left credentials in memory")

	_, err = os.Stat(svc.path)
	require.True(t, os.IsNotExist(err), "rejected login wrote a credential file")
}

func TestLogoutForgetsEverything(t *testing.T) {
	svc := testService(t)
	srv := okServer(t)
	client := backend.NewClient(srv.URL, svc)

	require.NoError(t, svc.Login(context.Background(), client, "alice", "s3cret"))
	require.NoError(t, svc.Logout(context.Background(), client))

	_, _, ok := svc.Credentials()
	require.False(t, ok, "credentials survived logout")

	_, err := os.Stat(svc.path)
	require.True(t, os.IsNotExist(err), "credential file survived logout")
}

func TestLogoutClearsLocallyOnRemoteFailure(t *testing.T) {
	svc := testService(t)
	srv := okServer(t)
	client := backend.NewClient(srv.URL, svc)
	require.NoError(t, svc.Login(context.Background(), client, "alice", "s3cret"))

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	err := svc.Logout(context.Background(), backend.NewClient(failing.URL, svc))
	require.Error(t, err, "remote failure must surface")

	_, _, ok := svc.Credentials()
	require.False(t, ok, "local pair must be forgotten even when the remote call fails")
}

func TestWatchRevocationFiresOnExternalRemove(t *testing.T) {
	svc := testService(t)
	srv := okServer(t)
	client := backend.NewClient(srv.URL, svc)
	require.NoError(t, svc.Login(context.Background(), client, "alice", "s3cret"))

	revoked, stop, err := svc.WatchRevocation()
	require.NoError(t, err)
	defer stop()

	require.NoError(t, os.Remove(svc.path))

	select {
	case <-revoked:
	case <-time.After(2 * time.Second):
		t.Fatal("revocation not reported")
	}
}

func TestWatchRevocationIgnoresOwnLogout(t *testing.T) {
	svc := testService(t)
	srv := okServer(t)
	client := backend.NewClient(srv.URL, svc)
	require.NoError(t, svc.Login(context.Background(), client, "alice", "s3cret"))

	revoked, stop, err := svc.WatchRevocation()
	require.NoError(t, err)
	defer stop()

	require.NoError(t, svc.Logout(context.Background(), client))

	select {
	case <-revoked:
		t.Fatal("own logout must not look like a revocation")
	case <-time.After(300 * time.Millisecond):
	}
}
