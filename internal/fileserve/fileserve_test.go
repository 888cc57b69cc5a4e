package fileserve

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveFindsExactMatch(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "game.js"), []byte("x"), 0o644)

	got, err := Resolve(dir, "game.js")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != filepath.Join(dir, "game.js") {
		t.Fatalf("got %q", got)
	}
}

func TestResolveFallsBackToAnyHTMLFileForIndex(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "game.html"), []byte("<html></html>"), 0o644)

	got, err := Resolve(dir, "index.html")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != filepath.Join(dir, "game.html") {
		t.Fatalf("expected fallback to game.html, got %q", got)
	}
}

func TestResolveFallbackSkipsHiddenFiles(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, ".hidden.html"), []byte("<html></html>"), 0o644)

	if _, err := Resolve(dir, "index.html"); err == nil {
		t.Fatal("expected no match since the only html file is hidden")
	}
}

func TestResolveRejectsUnsafePath(t *testing.T) {
	dir := t.TempDir()
	if _, err := Resolve(dir, "../escape.txt"); err == nil {
		t.Fatal("expected an error for an unsafe path")
	}
}

func TestCacheControlByContentType(t *testing.T) {
	cases := map[string]string{
		"index.html": "no-store",
		"bundle.js":  "public, max-age=3600",
		"style.css":  "public, max-age=3600",
		"logo.png":   "public, max-age=3600",
		"data.json":  "no-cache",
	}
	for path, want := range cases {
		if got := CacheControl(path); got != want {
			t.Fatalf("%s: got %q, want %q", path, got, want)
		}
	}
}

func TestContentTypeFallsBackToOctetStream(t *testing.T) {
	if got := ContentType("game.unknownext"); got != "application/octet-stream" {
		t.Fatalf("got %q", got)
	}
}
