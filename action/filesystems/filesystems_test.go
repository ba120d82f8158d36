// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

package filesystems

import (
	"os"
	"path/filepath"
	"testing"
)

func writeMounts(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mounts")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestParseMounts(t *testing.T) {
	t.Parallel()
	path := writeMounts(t,
		"/dev/nvme0n1p2 / ext4 rw,relatime 0 0\n"+
			"proc /proc proc rw,nosuid,nodev,noexec 0 0\n"+
			"tmpfs /run tmpfs rw,nosuid,nodev,size=3271412k 0 0\n")

	mounts, err := parseMounts(path)
	if err != nil {
		t.Fatalf("parseMounts: %v", err)
	}
	if len(mounts) != 3 {
		t.Fatalf("mount count: got %d, want 3", len(mounts))
	}
	root := mounts[0]
	if root.Device != "/dev/nvme0n1p2" || root.MountPoint != "/" || root.FSType != "ext4" {
		t.Errorf("root mount: %+v", root)
	}
	if root.Options != "rw,relatime" {
		t.Errorf("root options: got %q", root.Options)
	}
}

func TestParseMountsEscapedMountPoint(t *testing.T) {
	t.Parallel()
	path := writeMounts(t,
		"/dev/sdb1 /mnt/usb\\040drive vfat rw 0 0\n")

	mounts, err := parseMounts(path)
	if err != nil {
		t.Fatalf("parseMounts: %v", err)
	}
	if len(mounts) != 1 {
		t.Fatalf("mount count: got %d, want 1", len(mounts))
	}
	if got := mounts[0].MountPoint; got != "/mnt/usb drive" {
		t.Errorf("MountPoint: got %q, want %q", got, "/mnt/usb drive")
	}
}

func TestParseMountsSkipsMalformedLines(t *testing.T) {
	t.Parallel()
	path := writeMounts(t,
		"garbage\n"+
			"\n"+
			"/dev/sda1 /boot ext2 rw 0 0\n")

	mounts, err := parseMounts(path)
	if err != nil {
		t.Fatalf("parseMounts: %v", err)
	}
	if len(mounts) != 1 {
		t.Fatalf("mount count: got %d, want 1", len(mounts))
	}
	if mounts[0].MountPoint != "/boot" {
		t.Errorf("MountPoint: got %q", mounts[0].MountPoint)
	}
}

func TestParseMountsMissingFile(t *testing.T) {
	t.Parallel()
	if _, err := parseMounts(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("parseMounts on a missing file succeeded")
	}
}

func TestFillUsageRealRoot(t *testing.T) {
	t.Parallel()
	mount := Filesystem{MountPoint: "/"}
	fillUsage(&mount)
	if mount.TotalBytes == 0 {
		t.Error("TotalBytes of / is zero")
	}
	if mount.FreeBytes > mount.TotalBytes {
		t.Errorf("FreeBytes %d exceeds TotalBytes %d", mount.FreeBytes, mount.TotalBytes)
	}
}

func TestFillUsageMissingMountPoint(t *testing.T) {
	t.Parallel()
	mount := Filesystem{MountPoint: filepath.Join(t.TempDir(), "nope")}
	fillUsage(&mount)
	if mount.TotalBytes != 0 || mount.TotalFiles != 0 {
		t.Errorf("usage filled for a missing mount point: %+v", mount)
	}
}

func TestUnescapeMountField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "/dev/sda1", "/dev/sda1"},
		{"space", `/mnt/usb\040drive`, "/mnt/usb drive"},
		{"tab", `a\011b`, "a\tb"},
		{"backslash", `a\134b`, `a\b`},
		{"trailing incomplete escape", `a\04`, `a\04`},
		{"non-octal digits", `a\098`, `a\098`},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			if got := unescapeMountField(test.input); got != test.want {
				t.Errorf("unescapeMountField(%q): got %q, want %q", test.input, got, test.want)
			}
		})
	}
}
