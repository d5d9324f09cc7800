// Package engine defines the polymorphic inference backend interface
// implemented by the concrete DBNet and SCRFD model backends, plus the
// intermediate detection type they decode ONNX outputs into.
//
// Engines encapsulate preprocessing, ONNX Runtime session invocation, and
// decoding raw model outputs into Detection values in tile/image-local
// coordinates. The facade in the root package is responsible for tiling,
// global NMS/merging, and translating into the public Quad type.
package engine

import (
	"github.com/screenager/idetgo/internal/geometry"
)

// Kind identifies a concrete model family.
type Kind uint8

const (
	DBNet Kind = iota
	SCRFD
)

// Task identifies what a Kind locates in an image.
type Task uint8

const (
	TaskText Task = iota
	TaskFace
)

// TaskOf returns the Task a Kind is bound to.
func TaskOf(k Kind) Task {
	if k == SCRFD {
		return TaskFace
	}
	return TaskText
}

// Image is a read-only BGR8 image view, the only pixel format engines
// consume (callers convert upstream).
type Image struct {
	Data     []byte
	Width    int
	Height   int
	Stride   int
	Channels int
}

// Detection is an engine-local scored quadrilateral, in the coordinate
// space of whatever Image was passed to the inference call (tile-local
// unless the caller has already translated it).
type Detection struct {
	Pts   [4]geometry.Point2f
	Score float32
}

// Config is the subset of the facade's DetectorConfig an engine consumes.
// It is duplicated here (rather than imported from the root package) to
// avoid an import cycle between the facade and its engines.
type Config struct {
	Task      Task
	Kind      Kind
	ModelPath string

	ApplySigmoid bool
	BinThresh    float32
	BoxThresh    float32
	Unclip       float32

	MaxImageSize int
	MinROIWidth  int
	MinROIHeight int

	NMSIoU     float32
	UseFastIoU bool

	// ScoreChannel: -1 selects SCRFD's auto channel heuristic (channel 1
	// when a head reports more than one score channel, else channel 0);
	// >=0 forces that channel index. Unused by DBNet.
	ScoreChannel int

	OrtIntraThreads int
	OrtInterThreads int

	Verbose bool
}

// Engine is the abstract inference backend implemented by dbnet.Engine and
// scrfd.Engine.
//
// Thread-safety: InferUnbound is expected to be safe for concurrent calls.
// InferBound is safe only if each concurrent caller uses a distinct context
// index.
type Engine interface {
	Kind() Kind
	Task() Task
	Config() Config

	// UpdateHot applies a hot configuration update (thresholds, NMS
	// parameters, verbosity) without recreating the ORT session. Returns
	// an error if next changes an immutable field (model path, task,
	// kind).
	UpdateHot(next Config) error

	// SetupBinding prepares contexts independent bound-inference contexts
	// at a fixed input shape. The engine may internally align w/h (e.g. to
	// a multiple of 32) when it runs; BoundW/BoundH report the w/h passed
	// here, not the aligned shape.
	SetupBinding(w, h, contexts int) error

	// UnsetBinding tears down any prepared binding state; safe to call
	// when no binding is prepared.
	UnsetBinding()

	BindingReady() bool
	BoundW() int
	BoundH() int
	BoundContexts() int

	InferUnbound(img Image) ([]Detection, error)
	InferBound(img Image, ctxIdx int) ([]Detection, error)

	// Close releases the underlying ONNX Runtime session and any bound
	// context resources.
	Close() error
}

// CheckHotUpdate enforces the invariants every engine's UpdateHot must
// honor: task/kind/model path never change across a hot update.
func CheckHotUpdate(cur, next Config) error {
	if cur.Task != next.Task {
		return errInvalid("hot update cannot change task")
	}
	if cur.Kind != next.Kind {
		return errInvalid("hot update cannot change engine kind")
	}
	if cur.ModelPath != next.ModelPath {
		return errInvalid("hot update cannot change model_path")
	}
	return nil
}

type engineError struct{ msg string }

func (e *engineError) Error() string { return e.msg }

func errInvalid(msg string) error { return &engineError{msg} }
