// Package config loads DetectorConfig/RuntimePolicy overrides from a TOML
// file (".idetgo.toml" by convention, mirroring the teacher's ".sift.toml"),
// via github.com/pelletier/go-toml/v2. Only fields present in the file
// override the caller's defaults; zero values are left untouched, matching
// the teacher's own "only override if set" merge style.
package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"
)

// File is the on-disk TOML shape. Every field is optional.
type File struct {
	Task      string `toml:"task"`
	Engine    string `toml:"engine"`
	ModelPath string `toml:"model-path"`
	Verbose   bool   `toml:"verbose"`

	Infer struct {
		ApplySigmoid bool    `toml:"apply-sigmoid"`
		BindIO       bool    `toml:"bind-io"`
		BinThresh    float32 `toml:"bin-thresh"`
		BoxThresh    float32 `toml:"box-thresh"`
		Unclip       float32 `toml:"unclip"`
		MaxImageSize int     `toml:"max-image-size"`
		MinROIWidth  int     `toml:"min-roi-width"`
		MinROIHeight int     `toml:"min-roi-height"`
		FixedInputW  int     `toml:"fixed-input-w"`
		FixedInputH  int     `toml:"fixed-input-h"`
		TileRows     int     `toml:"tile-rows"`
		TileCols     int     `toml:"tile-cols"`
		TileOverlap  float32 `toml:"tile-overlap"`
		NMSIoU       float32 `toml:"nms-iou"`
		UseFastIoU   bool    `toml:"use-fast-iou"`
		ScoreChannel int     `toml:"score-channel"`
	} `toml:"infer"`

	Runtime struct {
		OrtIntraThreads      int    `toml:"ort-intra-threads"`
		OrtInterThreads      int    `toml:"ort-inter-threads"`
		TileParallelThreads  int    `toml:"tile-parallel-threads"`
		SoftMemoryBind       bool   `toml:"soft-memory-bind"`
		NumaPolicy           string `toml:"numa-policy"`
		SuppressForeignPools bool   `toml:"suppress-foreign-pools"`
	} `toml:"runtime"`
}

// Load reads and parses path as TOML. A missing file is not an error — it
// returns a zero-value File so callers can merge against their own
// defaults unconditionally.
func Load(path string) (File, error) {
	var f File
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return f, err
	}
	if err := toml.Unmarshal(b, &f); err != nil {
		return File{}, err
	}
	return f, nil
}
