package vcs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestGit_CommitPushClone(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	ctx := context.Background()
	g := &Git{}

	origin := filepath.Join(t.TempDir(), "origin.git")
	if out, err := exec.Command("git", "init", "--bare", origin).CombinedOutput(); err != nil {
		t.Fatalf("git init: %v: %s", err, out)
	}

	work := t.TempDir()
	if err := g.Clone(ctx, origin, "", "", work); err != nil {
		t.Fatalf("Clone empty: %v", err)
	}
	if err := os.WriteFile(filepath.Join(work, "main.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	hash, err := g.CommitAndPush(ctx, work, "main", "Create 'fn' function")
	if err != nil {
		t.Fatalf("CommitAndPush: %v", err)
	}
	if len(hash) != 40 {
		t.Errorf("hash = %q", hash)
	}

	clone := t.TempDir()
	if err := g.Clone(ctx, "file://"+origin, "main", "", clone); err != nil {
		t.Fatalf("Clone: %v", err)
	}
	if _, err := os.Stat(filepath.Join(clone, "main.go")); err != nil {
		t.Errorf("file missing in clone: %v", err)
	}
	head, err := g.Head(ctx, clone)
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head != hash {
		t.Errorf("head = %s, want %s", head, hash)
	}
}

func TestGit_CloneValidates(t *testing.T) {
	g := &Git{}
	if err := g.Clone(context.Background(), "", "", "", t.TempDir()); err == nil {
		t.Error("expected error for empty url")
	}
	if err := g.Clone(context.Background(), "https://example/x.git", "", "", ""); err == nil {
		t.Error("expected error for empty destination")
	}
}
