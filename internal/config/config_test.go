package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsZeroValue(t *testing.T) {
	f, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.ModelPath != "" || f.Task != "" {
		t.Fatalf("f = %+v, want zero value", f)
	}
}

func TestLoadParsesNestedTables(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "idetgo.toml")
	content := `
task = "text"
engine = "dbnet"
model-path = "./models/dbnet.onnx"

[infer]
bin-thresh = 0.3
box-thresh = 0.6
tile-rows = 2
tile-cols = 2

[runtime]
ort-intra-threads = 4
numa-policy = "strict"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.Task != "text" || f.Engine != "dbnet" || f.ModelPath != "./models/dbnet.onnx" {
		t.Fatalf("top-level fields = %+v", f)
	}
	if f.Infer.BoxThresh != 0.6 || f.Infer.TileRows != 2 {
		t.Fatalf("infer fields = %+v", f.Infer)
	}
	if f.Runtime.OrtIntraThreads != 4 || f.Runtime.NumaPolicy != "strict" {
		t.Fatalf("runtime fields = %+v", f.Runtime)
	}
}
