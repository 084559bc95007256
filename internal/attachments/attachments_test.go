package attachments

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/kenaz-canvas/internal/apperr"
	"github.com/starford/kenaz-canvas/internal/testutil"
)

// pngHeader is enough for content sniffing to report image/png.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestSaveWritesUnderFreshName(t *testing.T) {
	dir, store := testutil.TestVault(t)

	a, err := Save(store, ".PNG", pngHeader)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasSuffix(a.Filename, ".png") || a.URL != "/attachments/"+a.Filename || a.Size != int64(len(pngHeader)) {
		t.Errorf("attachment = %+v", a)
	}
	if _, err := os.Stat(filepath.Join(dir, Dir, a.Filename)); err != nil {
		t.Errorf("file not written: %v", err)
	}

	b, err := Save(store, "png", pngHeader)
	if err != nil {
		t.Fatal(err)
	}
	if a.Filename == b.Filename {
		t.Error("two saves share a name")
	}
}

func TestSaveRejects(t *testing.T) {
	_, store := testutil.TestVault(t)
	cases := map[string]struct {
		ext  string
		data []byte
	}{
		"pdf":         {".pdf", []byte("%PDF-1.4")},
		"empty":       {".png", nil},
		"mismatch":    {".gif", pngHeader},
		"fake svg":    {".svg", []byte("<html></html>")},
		"no ext":      {"", pngHeader},
		"text as png": {".png", []byte("hello")},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Save(store, tc.ext, tc.data); !errors.Is(err, apperr.ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}

	if _, err := Save(store, ".svg", []byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`)); err != nil {
		t.Errorf("valid svg rejected: %v", err)
	}
}

func TestResolve(t *testing.T) {
	root := t.TempDir()
	got, err := Resolve(root, "cat.png")
	if err != nil || got != filepath.Join(root, Dir, "cat.png") {
		t.Errorf("Resolve = %q, %v", got, err)
	}
	for _, bad := range []string{"", "../secret", "a/b.png", ".hidden", ".."} {
		if _, err := Resolve(root, bad); !errors.Is(err, apperr.ErrInvalidInput) {
			t.Errorf("Resolve(%q) err = %v", bad, err)
		}
	}
}

func TestFetchDataURI(t *testing.T) {
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngHeader)
	data, ext, err := Fetch(context.Background(), uri)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if ext != ".png" || string(data) != string(pngHeader) {
		t.Errorf("ext = %q, %d bytes", ext, len(data))
	}

	for _, bad := range []string{
		"data:image/png,plain",
		"data:text/plain;base64,aGk=",
		"data:image/png;base64",
	} {
		if _, _, err := Fetch(context.Background(), bad); !errors.Is(err, apperr.ErrInvalidInput) {
			t.Errorf("Fetch(%q) err = %v", bad, err)
		}
	}
}

func TestFetchBlocksLoopbackAndSchemes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngHeader)
	}))
	defer srv.Close()

	if _, _, err := Fetch(context.Background(), srv.URL+"/cat.png"); !errors.Is(err, errBlockedHost) {
		t.Errorf("loopback err = %v", err)
	}
	if _, _, err := Fetch(context.Background(), "http://169.254.169.254/latest"); !errors.Is(err, errBlockedHost) {
		t.Errorf("metadata err = %v", err)
	}
	if _, _, err := Fetch(context.Background(), "file:///etc/passwd"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("file scheme err = %v", err)
	}
}
