package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CTAG07/markus/pkg/tags"
)

// execute runs the CLI with args and stdin and returns what it printed.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRenderCommand(t *testing.T) {
	testCases := []struct {
		name  string
		stdin string
		args  []string
		want  string
	}{
		{name: "stdin", stdin: "<b>x</b> & y", args: []string{"render"}, want: "<b>x</b> & y"},
		{name: "html encoding", stdin: "<b>x</b> & y", args: []string{"render", "-e", "html"}, want: "<b>x</b> &amp; y"},
		{name: "allowed tags", stdin: "<b>x</b><i>y</i>", args: []string{"render", "--allowed-tags", "i"}, want: "<b>x</b><i>y</i>"},
		{name: "dash reads stdin", stdin: "<note>n</note>", args: []string{"render", "-"}, want: `<div class="note">`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := execute(t, tc.stdin, tc.args...)
			if err != nil {
				t.Fatalf("render error = %v", err)
			}
			if !strings.HasPrefix(got, tc.want) {
				t.Errorf("render output = %q, want prefix %q", got, tc.want)
			}
		})
	}
}

func TestRenderCommand_FilesAndTags(t *testing.T) {
	dir := t.TempDir()
	tagDir := filepath.Join(dir, "tags")
	if err := os.MkdirAll(tagDir, 0755); err != nil {
		t.Fatalf("failed to create tag dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tagDir, "box.tag.yaml"), []byte(boxTagFile), 0644); err != nil {
		t.Fatalf("failed to write tag file: %v", err)
	}
	in := filepath.Join(dir, "doc.mk")
	if err := os.WriteFile(in, []byte(`<box title="Hi">there</box>`), 0644); err != nil {
		t.Fatalf("failed to write input: %v", err)
	}
	outPath := filepath.Join(dir, "doc.html")

	printed, err := execute(t, "", "render", in, "--tags-dir", tagDir, "--output", outPath)
	if err != nil {
		t.Fatalf("render error = %v", err)
	}
	if printed != "" {
		t.Errorf("render with --output printed %q", printed)
	}
	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("output file missing: %v", err)
	}
	if want := `<div class="box"><h3>Hi</h3>there</div>`; string(got) != want {
		t.Errorf("output file = %q, want %q", got, want)
	}

	if _, err = execute(t, "", "render", filepath.Join(dir, "missing.mk")); err == nil {
		t.Error("render of a missing file succeeded")
	}
	if err = os.WriteFile(filepath.Join(tagDir, "bad.tag.yaml"), []byte("tags: [oops"), 0644); err != nil {
		t.Fatalf("failed to write tag file: %v", err)
	}
	if _, err = execute(t, "x", "render", "--tags-dir", tagDir); err == nil {
		t.Error("render succeeded with a broken tag file")
	}
}

func TestRenderCommand_Titles(t *testing.T) {
	got, err := execute(t, "<title>One</title><title>Two</title>", "render", "--titles")
	if err != nil {
		t.Fatalf("render error = %v", err)
	}
	var res struct {
		Output string      `json:"output"`
		Titles tags.Titles `json:"titles"`
	}
	if err = json.Unmarshal([]byte(got), &res); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, got)
	}
	if len(res.Titles) != 2 || res.Titles[1].Anchor != "two" || !strings.Contains(res.Output, "<h1>One</h1>") {
		t.Errorf("render --titles = %+v", res)
	}
}

func TestRenderCommand_Cache(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cache.db")
	for i := 0; i < 2; i++ {
		got, err := execute(t, "<b>x</b>", "render", "--cache", db)
		if err != nil {
			t.Fatalf("render %d error = %v", i, err)
		}
		if got != "<b>x</b>" {
			t.Errorf("render %d = %q", i, got)
		}
	}
	if _, err := os.Stat(db); err != nil {
		t.Errorf("cache database was not created: %v", err)
	}
}

func TestTreeCommand(t *testing.T) {
	got, err := execute(t, "<b>x</b>", "tree")
	if err != nil {
		t.Fatalf("tree error = %v", err)
	}
	if !strings.Contains(got, "b") || !strings.Contains(got, "x") {
		t.Errorf("tree output = %q", got)
	}
}

func TestTagsCommand(t *testing.T) {
	tagDir := t.TempDir()
	file := "context: docs\n" + boxTagFile
	if err := os.WriteFile(filepath.Join(tagDir, "box.tag.yaml"), []byte(file), 0644); err != nil {
		t.Fatalf("failed to write tag file: %v", err)
	}
	got, err := execute(t, "", "tags", "--tags-dir", tagDir)
	if err != nil {
		t.Fatalf("tags error = %v", err)
	}
	for _, want := range []string{"CONTEXT", "code", "built-in", "docs", "box.tag.yaml (template)"} {
		if !strings.Contains(got, want) {
			t.Errorf("tags output lacks %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "undefined") {
		t.Errorf("tags output lists internal entries:\n%s", got)
	}
}

func TestVersionCommand(t *testing.T) {
	got, err := execute(t, "", "version", "--short")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if got != Version+"\n" {
		t.Errorf("version --short = %q, want %q", got, Version+"\n")
	}
	got, _ = execute(t, "", "version")
	if !strings.Contains(got, "Go version:") {
		t.Errorf("version output = %q", got)
	}
}
