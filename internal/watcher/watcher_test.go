package watcher

import "testing"

func TestIsImageFileAcceptsKnownExtensions(t *testing.T) {
	for _, p := range []string{"a.png", "b.JPG", "c.jpeg", "d.webp", "e.tiff"} {
		if !IsImageFile(p) {
			t.Errorf("IsImageFile(%q) = false, want true", p)
		}
	}
}

func TestIsImageFileRejectsOther(t *testing.T) {
	for _, p := range []string{"a.txt", "b.go", "noext"} {
		if IsImageFile(p) {
			t.Errorf("IsImageFile(%q) = true, want false", p)
		}
	}
}
