package idetgo

import "fmt"

// Task identifies what a detector locates in an image.
type Task uint8

const (
	TaskText Task = iota
	TaskFace
)

func (t Task) String() string {
	if t == TaskFace {
		return "face"
	}
	return "text"
}

// EngineKind identifies the concrete model family behind an Engine.
type EngineKind uint8

const (
	EngineDBNet EngineKind = iota
	EngineSCRFD
)

func (e EngineKind) String() string {
	if e == EngineSCRFD {
		return "scrfd"
	}
	return "dbnet"
}

// EngineTask returns the Task a given EngineKind is bound to (DBNet↔Text,
// SCRFD↔Face).
func EngineTask(k EngineKind) Task {
	if k == EngineSCRFD {
		return TaskFace
	}
	return TaskText
}

// Point2f is a 2D point in image coordinates.
type Point2f struct {
	X, Y float32
}

// Quad is four image-coordinate points canonicalized to TL,TR,BR,BL order.
type Quad struct {
	Pts [4]Point2f
}

// GridSpec describes a tiling grid's dimensions.
type GridSpec struct {
	Rows int
	Cols int
}

// NumaMemPolicy selects how the process's memory should be bound relative to
// the CPUs chosen by placement.
type NumaMemPolicy uint8

const (
	NumaLatency NumaMemPolicy = iota
	NumaThroughput
	NumaStrict
)

// InferenceOptions are the per-call/per-engine knobs that may be changed via
// a hot UpdateConfig.
type InferenceOptions struct {
	ApplySigmoid bool
	BindIO       bool

	BinThresh float32
	BoxThresh float32
	Unclip    float32

	MaxImageSize int
	MinROIWidth  int
	MinROIHeight int

	FixedInputW int
	FixedInputH int

	TilesDim     GridSpec
	TileOverlap  float32
	NMSIoU       float32
	UseFastIoU   bool

	// ScoreChannel resolves the SCRFD per-channel score policy open
	// question: -1 selects the auto heuristic (channel 1 when a head
	// reports more than one score channel, else channel 0); a value >=0
	// forces that channel index for every head.
	ScoreChannel int
}

// DefaultInferenceOptions mirrors the original implementation's defaults.
func DefaultInferenceOptions() InferenceOptions {
	return InferenceOptions{
		ApplySigmoid: true,
		BinThresh:    0.3,
		BoxThresh:    0.5,
		Unclip:       1.5,
		MaxImageSize: 960,
		NMSIoU:       0.3,
		ScoreChannel: -1,
	}
}

// RuntimePolicy is a process-level configuration: thread counts for the
// inference runtime and tile driver, and CPU/NUMA placement knobs. These
// fields are immutable for the lifetime of a Detector (see DetectorConfig).
type RuntimePolicy struct {
	OrtIntraThreads      int
	OrtInterThreads      int
	TileParallelThreads  int
	SoftMemoryBind       bool
	NumaPolicy           NumaMemPolicy
	SuppressForeignPools bool
}

// Equal reports whether two RuntimePolicy values are identical in every
// field that UpdateConfig treats as immutable.
func (r RuntimePolicy) Equal(o RuntimePolicy) bool {
	return r == o
}

// DetectorConfig is the full configuration for a Detector.
type DetectorConfig struct {
	Task      Task
	Engine    EngineKind
	ModelPath string
	Infer     InferenceOptions
	Runtime   RuntimePolicy
	Verbose   bool
}

// Validate checks DetectorConfig's invariants, per spec: task/engine must
// agree, model path must be set, and — when IO binding is requested — the
// fixed input shape and tile geometry must be sane.
func (c DetectorConfig) Validate() error {
	if EngineTask(c.Engine) != c.Task {
		return ErrInvalidArgument(fmt.Sprintf("engine %s requires task %s, got %s", c.Engine, EngineTask(c.Engine), c.Task))
	}
	if c.ModelPath == "" {
		return ErrInvalidArgument("model_path must be set")
	}
	if c.Infer.BindIO {
		if c.Infer.FixedInputW <= 0 || c.Infer.FixedInputH <= 0 {
			return ErrInvalidArgument("bind_io requires a positive fixed_input_dim (w,h)")
		}
	}
	if c.Infer.TileOverlap < 0 || c.Infer.TileOverlap >= 1 {
		return ErrInvalidArgument("tile_overlap must be in [0,1)")
	}
	if c.Infer.TilesDim.Rows < 0 || c.Infer.TilesDim.Cols < 0 {
		return ErrInvalidArgument("tiles_dim rows/cols must be >= 0")
	}
	if c.Infer.NMSIoU < 0 {
		return ErrInvalidArgument("nms_iou must be >= 0")
	}
	return nil
}

// immutableEqual reports whether the fields UpdateConfig treats as
// immutable (task, engine, model path, entire runtime policy) match between
// c and next.
func (c DetectorConfig) immutableEqual(next DetectorConfig) bool {
	return c.Task == next.Task &&
		c.Engine == next.Engine &&
		c.ModelPath == next.ModelPath &&
		c.Runtime.Equal(next.Runtime)
}
