package storage

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

// coverExists reports whether the file behind a stored reference is present.
func coverExists(store *CoverStore, ref string) bool {
	p, ok := store.diskPath(ref)
	if !ok {
		return false
	}
	_, err := os.Stat(p)
	return err == nil
}

// uploadHeader builds the *multipart.FileHeader a request parser would produce.
func uploadHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("cover", filename)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(content)
	w.Close()

	form, err := multipart.NewReader(&body, w.Boundary()).ReadForm(10 << 20)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { form.RemoveAll() })
	return form.File["cover"][0]
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 40, B: 40, A: 255})
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newTestStore(t *testing.T, maxSize int, maxBytes int64) *CoverStore {
	t.Helper()
	store, err := NewCoverStore(filepath.Join(t.TempDir(), "covers"), "covers", maxSize, maxBytes, testLogger())
	if err != nil {
		t.Fatalf("NewCoverStore() error: %v", err)
	}
	return store
}

func TestSaveScalesDownLargeCovers(t *testing.T) {
	store := newTestStore(t, 100, 10<<20)

	ref, err := store.Save(uploadHeader(t, "Big.PNG", pngBytes(t, 400, 200)))
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if !strings.HasPrefix(ref, "/covers/") || !strings.HasSuffix(ref, ".png") {
		t.Errorf("unexpected reference %q", ref)
	}
	if !coverExists(store, ref) {
		t.Fatalf("cover file missing for %q", ref)
	}

	img, err := imaging.Open(filepath.Join(store.Dir(), filepath.Base(ref)))
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 50 {
		t.Errorf("stored size = %dx%d, want 100x50", b.Dx(), b.Dy())
	}
}

func TestSaveKeepsSmallCovers(t *testing.T) {
	store := newTestStore(t, 100, 10<<20)

	ref, err := store.Save(uploadHeader(t, "small.jpg", pngBytes(t, 20, 10)))
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	img, err := imaging.Open(filepath.Join(store.Dir(), filepath.Base(ref)))
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 20 || b.Dy() != 10 {
		t.Errorf("stored size = %dx%d, want 20x10", b.Dx(), b.Dy())
	}
}

func TestSaveRejects(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  []byte
		maxBytes int64
		want     error
	}{
		{name: "unsupported extension", filename: "cover.txt", content: []byte("hello"), maxBytes: 1 << 20, want: ErrUnsupportedType},
		{name: "not an image", filename: "cover.png", content: []byte("definitely not png"), maxBytes: 1 << 20, want: ErrInvalidImage},
		{name: "too large", filename: "cover.png", content: bytes.Repeat([]byte{1}, 2048), maxBytes: 1024, want: ErrCoverTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t, 100, tt.maxBytes)
			_, err := store.Save(uploadHeader(t, tt.filename, tt.content))
			if !errors.Is(err, tt.want) {
				t.Errorf("Save() error = %v, want %v", err, tt.want)
			}
			entries, _ := os.ReadDir(store.Dir())
			if len(entries) != 0 {
				t.Errorf("rejected upload left %d files behind", len(entries))
			}
		})
	}
}

func TestRemove(t *testing.T) {
	store := newTestStore(t, 100, 10<<20)
	ref, err := store.Save(uploadHeader(t, "a.png", pngBytes(t, 10, 10)))
	if err != nil {
		t.Fatal(err)
	}

	if err := store.Remove(ref); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if coverExists(store, ref) {
		t.Error("cover still exists after Remove")
	}
	if err := store.Remove(ref); err != nil {
		t.Errorf("removing a missing cover should not fail: %v", err)
	}

	outside := filepath.Join(filepath.Dir(store.Dir()), "keep.txt")
	if err := os.WriteFile(outside, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := store.Remove("/covers/../keep.txt"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(outside); err != nil {
		t.Error("Remove escaped the covers directory")
	}
}

func TestRemoveAsync(t *testing.T) {
	store := newTestStore(t, 100, 10<<20)
	ref, err := store.Save(uploadHeader(t, "a.png", pngBytes(t, 10, 10)))
	if err != nil {
		t.Fatal(err)
	}

	store.RemoveAsync(ref)
	store.RemoveAsync("")
	store.Wait()

	if coverExists(store, ref) {
		t.Error("cover still exists after RemoveAsync")
	}
}

type staticRefs map[string]bool

func (r staticRefs) CoverPaths(ctx context.Context) (map[string]bool, error) {
	return r, nil
}

func TestJanitorSweep(t *testing.T) {
	store := newTestStore(t, 100, 10<<20)

	kept, err := store.Save(uploadHeader(t, "kept.png", pngBytes(t, 10, 10)))
	if err != nil {
		t.Fatal(err)
	}
	orphan, err := store.Save(uploadHeader(t, "orphan.png", pngBytes(t, 10, 10)))
	if err != nil {
		t.Fatal(err)
	}
	fresh, err := store.Save(uploadHeader(t, "fresh.png", pngBytes(t, 10, 10)))
	if err != nil {
		t.Fatal(err)
	}

	old := time.Now().Add(-2 * time.Hour)
	for _, ref := range []string{kept, orphan} {
		p := filepath.Join(store.Dir(), filepath.Base(ref))
		if err := os.Chtimes(p, old, old); err != nil {
			t.Fatal(err)
		}
	}

	janitor := NewJanitor(store, staticRefs{kept: true}, time.Hour, testLogger())
	removed, err := janitor.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if !coverExists(store, kept) {
		t.Error("referenced cover was removed")
	}
	if coverExists(store, orphan) {
		t.Error("orphaned cover survived")
	}
	if !coverExists(store, fresh) {
		t.Error("cover inside the grace period was removed")
	}
}

func TestJanitorStartRejectsBadSchedule(t *testing.T) {
	store := newTestStore(t, 100, 10<<20)
	janitor := NewJanitor(store, staticRefs{}, time.Hour, testLogger())

	if err := janitor.Start("not a schedule"); err == nil {
		t.Fatal("expected schedule parse error")
	}
	janitor.Stop()

	if err := janitor.Start("@every 1h"); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	janitor.Stop()
}
