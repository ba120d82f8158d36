// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

package insttime

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDiscoverPrefersInstallerLog(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	installerDir := filepath.Join(root, "var/log/installer")
	if err := os.MkdirAll(installerDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	stamp := time.Date(2021, 6, 15, 12, 0, 0, 0, time.UTC)
	if err := os.Chtimes(installerDir, stamp, stamp); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	// A machine-id is present too; the installer log wins.
	writeFile(t, filepath.Join(root, "etc/machine-id"), "8a7f\n")

	estimate, err := Discover(root)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if estimate.Source != "installer_log" {
		t.Errorf("Source: got %q, want installer_log", estimate.Source)
	}
	if got := estimate.InstallTimeUnixMS; got != stamp.UnixMilli() {
		t.Errorf("InstallTimeUnixMS: got %d, want %d", got, stamp.UnixMilli())
	}
}

func TestDiscoverFallsBackToMachineID(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	path := filepath.Join(root, "etc/machine-id")
	writeFile(t, path, "8a7f\n")
	stamp := time.Date(2023, 2, 1, 8, 30, 0, 0, time.UTC)
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	estimate, err := Discover(root)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if estimate.Source != "machine_id" {
		t.Errorf("Source: got %q, want machine_id", estimate.Source)
	}
	if got := estimate.InstallTimeUnixMS; got != stamp.UnixMilli() {
		t.Errorf("InstallTimeUnixMS: got %d, want %d", got, stamp.UnixMilli())
	}
}

func TestDiscoverRootCtimeAlwaysResolves(t *testing.T) {
	t.Parallel()
	// A bare directory has no artifacts, so the estimate degrades to
	// the root's own ctime.
	estimate, err := Discover(t.TempDir())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if estimate.Source != "root_ctime" {
		t.Errorf("Source: got %q, want root_ctime", estimate.Source)
	}
	if estimate.InstallTimeUnixMS <= 0 {
		t.Errorf("InstallTimeUnixMS: got %d, want positive", estimate.InstallTimeUnixMS)
	}
}

func TestDiscoverMissingRoot(t *testing.T) {
	t.Parallel()
	if _, err := Discover(filepath.Join(t.TempDir(), "nonexistent")); err == nil {
		t.Fatal("Discover on a missing root succeeded")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
