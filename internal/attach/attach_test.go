package attach

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test png: %v", err)
	}
	return buf.Bytes()
}

func TestAddFilesEncodesDataURL(t *testing.T) {
	m := NewManager()
	m.AddFiles([]File{{Name: "dot.png", Reader: bytes.NewReader(pngBytes(t, 4, 4))}})
	m.Wait()

	items := m.List()
	if len(items) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(items))
	}
	att := items[0]
	if att.Name != "dot.png" {
		t.Errorf("name = %q", att.Name)
	}
	if att.ID == "" {
		t.Error("attachment has no id")
	}
	if !strings.HasPrefix(att.DataURL, "data:image/png;base64,") {
		t.Errorf("dataUrl prefix = %q", att.DataURL[:min(len(att.DataURL), 40)])
	}
}

func TestAddFilesCapsPerPick(t *testing.T) {
	m := NewManager()

	var files []File
	for i := 0; i < MaxPerPick+2; i++ {
		files = append(files, File{Name: "f.png", Reader: bytes.NewReader(pngBytes(t, 2, 2))})
	}
	m.AddFiles(files)
	m.Wait()

	if got := len(m.List()); got != MaxPerPick {
		t.Errorf("attachments = %d, want %d", got, MaxPerPick)
	}
}

func TestAddFilesRejectsNonImage(t *testing.T) {
	m := NewManager()
	m.AddFiles([]File{{Name: "notes.txt", Reader: strings.NewReader("just text")}})
	m.Wait()

	if got := len(m.List()); got != 0 {
		t.Errorf("non-image accepted, attachments = %d", got)
	}
}

func TestRemovePreservesOrder(t *testing.T) {
	m := NewManager()

	// Append synchronously via single-file picks so order is known.
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		m.AddFiles([]File{{Name: name, Reader: bytes.NewReader(pngBytes(t, 2, 2))}})
		m.Wait()
	}

	items := m.List()
	if len(items) != 3 {
		t.Fatalf("expected 3 attachments, got %d", len(items))
	}

	if !m.Remove(items[1].ID) {
		t.Fatal("Remove returned false for existing id")
	}

	after := m.List()
	if len(after) != 2 {
		t.Fatalf("expected 2 attachments, got %d", len(after))
	}
	if after[0].Name != "a.png" || after[1].Name != "c.png" {
		t.Errorf("order broken: %q, %q", after[0].Name, after[1].Name)
	}

	if m.Remove("nope") {
		t.Error("Remove returned true for unknown id")
	}
}

func TestOversizedImageIsShrunk(t *testing.T) {
	data := pngBytes(t, MaxDimension+200, 64)

	encoded, mime, err := encodeImage(data)
	if err != nil {
		t.Fatalf("encodeImage failed: %v", err)
	}
	if mime != "image/png" && mime != "image/jpeg" {
		t.Errorf("mime = %q", mime)
	}

	img, _, err := image.Decode(bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("optimized image does not decode: %v", err)
	}
	b := img.Bounds()
	if b.Dx() > MaxDimension || b.Dy() > MaxDimension {
		t.Errorf("dimensions %dx%d exceed limit", b.Dx(), b.Dy())
	}
}

func TestDetectMIME(t *testing.T) {
	if mime := DetectMIME(pngBytes(t, 2, 2)); mime != "image/png" {
		t.Errorf("DetectMIME = %q", mime)
	}
}

func TestMetasMirrorsList(t *testing.T) {
	m := NewManager()
	m.AddFiles([]File{{Name: "a.png", Reader: bytes.NewReader(pngBytes(t, 2, 2))}})
	m.Wait()

	metas := m.Metas()
	items := m.List()
	if len(metas) != len(items) {
		t.Fatalf("metas = %d, list = %d", len(metas), len(items))
	}
	if metas[0].Name != items[0].Name || metas[0].DataURL != items[0].DataURL {
		t.Error("meta does not mirror attachment")
	}
}
