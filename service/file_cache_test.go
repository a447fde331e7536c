package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileCacheSaveFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("not really mp4 bytes"))
	}))
	defer srv.Close()

	fc, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	relative, err := fc.SaveFromURL(context.Background(), srv.Client(), srv.URL+"/gen/abc?sig=xyz")
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !strings.HasPrefix(relative, "/files/") {
		t.Errorf("relative path must live under /files/, got %q", relative)
	}
	if !strings.HasSuffix(relative, ".mp4") {
		t.Errorf("content type must pick the extension, got %q", relative)
	}

	name := strings.TrimPrefix(relative, "/files/")
	data, err := os.ReadFile(filepath.Join(fc.Dir(), name))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "not really mp4 bytes" {
		t.Errorf("cached body mismatch: %q", data)
	}
}

func TestFileCacheSaveFromURLBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	fc, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fc.SaveFromURL(context.Background(), srv.Client(), srv.URL); err == nil {
		t.Fatal("non-200 download must fail")
	}
	entries, _ := os.ReadDir(fc.Dir())
	if len(entries) != 0 {
		t.Errorf("failed download must not leave files behind, got %d", len(entries))
	}
}

func TestFileCacheCleanup(t *testing.T) {
	fc, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(fc.Dir(), "stale.mp4")
	fresh := filepath.Join(fc.Dir(), "fresh.mp4")
	for _, p := range []string{stale, fresh} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	// 默认 TTL 一小时，把 stale 的修改时间拨回两小时前
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	fc.cleanupOnce()

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("expired file must be removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh file must survive cleanup: %v", err)
	}
}

func TestMediaExtension(t *testing.T) {
	cases := []struct {
		contentType string
		rawURL      string
		want        string
	}{
		{"video/mp4", "https://v/x", ".mp4"},
		{"image/png", "https://v/x", ".png"},
		{"image/jpeg", "https://v/x", ".jpg"},
		{"image/webp", "https://v/x", ".webp"},
		{"application/octet-stream", "https://v/clip.mp4?sig=1", ".mp4"},
		{"", "https://v/no-ext", ".bin"},
	}
	for _, tc := range cases {
		if got := mediaExtension(tc.contentType, tc.rawURL); got != tc.want {
			t.Errorf("mediaExtension(%q, %q) = %q, want %q", tc.contentType, tc.rawURL, got, tc.want)
		}
	}
}
