package idetgo

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/screenager/idetgo/internal/engine"
	"github.com/screenager/idetgo/internal/engine/dbnet"
	"github.com/screenager/idetgo/internal/engine/scrfd"
	"github.com/screenager/idetgo/internal/geometry"
	"github.com/screenager/idetgo/internal/metrics"
	"github.com/screenager/idetgo/internal/nms"
	"github.com/screenager/idetgo/internal/placement"
	"github.com/screenager/idetgo/internal/tiling"
)

// ErrInvalidDetector is returned by every error-returning Detector method
// (UpdateConfig, PrepareBinding, Detect, DetectBound) once the receiver has
// been Reset or was never successfully constructed, emulating
// the original move-only type's "invalid after move" contract.
var ErrInvalidDetector = ErrInvalidArgument("detector is invalid (reset or never initialized)")

// Detector is the facade over a single DBNet or SCRFD engine: it owns
// tiling, cross-tile NMS merging, and pixel-format conversion, and exposes
// the image-in/quads-out contract external callers use.
type Detector struct {
	mu      sync.RWMutex
	eng     engine.Engine
	infer   InferenceOptions // tiling fields engine.Config does not carry
	cfg     DetectorConfig   // last accepted config, for UpdateConfig's immutability check
	valid   bool
	nextCtx atomic.Uint64 // round-robin binding-context picker for Detect's auto-bound path
}

func toEngineConfig(cfg DetectorConfig) engine.Config {
	var kind engine.Kind
	if cfg.Engine == EngineSCRFD {
		kind = engine.SCRFD
	} else {
		kind = engine.DBNet
	}
	return engine.Config{
		Task:            engine.TaskOf(kind),
		Kind:            kind,
		ModelPath:       cfg.ModelPath,
		ApplySigmoid:    cfg.Infer.ApplySigmoid,
		BinThresh:       cfg.Infer.BinThresh,
		BoxThresh:       cfg.Infer.BoxThresh,
		Unclip:          cfg.Infer.Unclip,
		MaxImageSize:    cfg.Infer.MaxImageSize,
		MinROIWidth:     cfg.Infer.MinROIWidth,
		MinROIHeight:    cfg.Infer.MinROIHeight,
		NMSIoU:          cfg.Infer.NMSIoU,
		UseFastIoU:      cfg.Infer.UseFastIoU,
		ScoreChannel:    cfg.Infer.ScoreChannel,
		OrtIntraThreads: cfg.Runtime.OrtIntraThreads,
		OrtInterThreads: cfg.Runtime.OrtInterThreads,
		Verbose:         cfg.Verbose,
	}
}

func newEngine(cfg DetectorConfig) (engine.Engine, error) {
	ecfg := toEngineConfig(cfg)
	switch cfg.Engine {
	case EngineSCRFD:
		return scrfd.New(ecfg)
	default:
		return dbnet.New(ecfg)
	}
}

// NewDetector validates cfg and constructs the engine it names.
func NewDetector(cfg DetectorConfig) (d *Detector, err error) {
	defer func() {
		if r := recover(); r != nil {
			d, err = nil, ErrInternal(fmt.Sprintf("NewDetector: panic: %v", r))
		}
	}()

	if verr := cfg.Validate(); verr != nil {
		return nil, verr
	}
	eng, eerr := newEngine(cfg)
	if eerr != nil {
		return nil, ErrInternal(eerr.Error())
	}
	return &Detector{eng: eng, infer: cfg.Infer, cfg: cfg, valid: true}, nil
}

// UpdateConfig applies a hot configuration update (thresholds, NMS
// parameters, verbosity) without recreating the ONNX Runtime session.
// Task, engine kind, model path and the entire RuntimePolicy are immutable
// and return an error if changed.
func (d *Detector) UpdateConfig(cfg DetectorConfig) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrInternal(fmt.Sprintf("UpdateConfig: panic: %v", r))
		}
	}()

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.valid {
		return ErrInvalidDetector
	}
	if verr := cfg.Validate(); verr != nil {
		return verr
	}
	if !d.cfg.immutableEqual(cfg) {
		return ErrInvalidArgument("task, engine, model path and runtime policy cannot change; recreate the detector")
	}
	if err := d.eng.UpdateHot(toEngineConfig(cfg)); err != nil {
		return ErrInvalidArgument(err.Error())
	}
	d.infer = cfg.Infer
	d.cfg = cfg
	return nil
}

// PrepareBinding allocates w x h (possibly internally aligned) bound
// inference contexts, enabling DetectBound.
func (d *Detector) PrepareBinding(w, h, contexts int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrInternal(fmt.Sprintf("PrepareBinding: panic: %v", r))
		}
	}()

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.valid {
		return ErrInvalidDetector
	}
	if err := d.eng.SetupBinding(w, h, contexts); err != nil {
		return ErrInvalidArgument(err.Error())
	}
	return nil
}

func (d *Detector) Task() Task {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.valid {
		return TaskText
	}
	return Task(d.eng.Task())
}

func (d *Detector) Engine() EngineKind {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.valid {
		return EngineDBNet
	}
	return EngineKind(d.eng.Kind())
}

func (d *Detector) IsValid() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.valid
}

// Reset releases the underlying engine and marks the Detector invalid;
// every subsequent error-returning method call returns ErrInvalidDetector
// (Task and Engine return defaults, IsValid reports false), matching the
// original move-only type's post-move contract.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.valid && d.eng != nil {
		_ = d.eng.Close()
	}
	d.eng = nil
	d.valid = false
}

// viewToEngineImage converts any supported packed pixel format to the BGR8
// view engines consume, copying only when the source isn't already BGR8.
func viewToEngineImage(v ImageView) (engine.Image, error) {
	if !v.IsValid() {
		return engine.Image{}, fmt.Errorf("invalid image view")
	}
	ch := v.Format.Channels()

	if v.Format == PixelFormatBGR8 {
		return engine.Image{Data: v.Data, Width: v.Width, Height: v.Height, Stride: v.StrideBytes, Channels: 3}, nil
	}

	out := make([]byte, v.Width*v.Height*3)
	for y := 0; y < v.Height; y++ {
		for x := 0; x < v.Width; x++ {
			off := y*v.StrideBytes + x*ch
			var r, g, b byte
			switch v.Format {
			case PixelFormatRGB8, PixelFormatRGBA8:
				r, g, b = v.Data[off+0], v.Data[off+1], v.Data[off+2]
			case PixelFormatBGRA8:
				b, g, r = v.Data[off+0], v.Data[off+1], v.Data[off+2]
			default:
				return engine.Image{}, fmt.Errorf("unsupported pixel format %v", v.Format)
			}
			dst := (y*v.Width + x) * 3
			out[dst+0] = b
			out[dst+1] = g
			out[dst+2] = r
		}
	}
	return engine.Image{Data: out, Width: v.Width, Height: v.Height, Stride: v.Width * 3, Channels: 3}, nil
}

func quadFromEngine(pts [4]geometry.Point2f) Quad {
	var q Quad
	for i, p := range pts {
		q.Pts[i] = Point2f{X: p.X, Y: p.Y}
	}
	return q
}

func nmsDetsFromEngine(dets []engine.Detection) []nms.Detection {
	out := make([]nms.Detection, len(dets))
	for i, d := range dets {
		out[i] = nms.Detection{Pts: d.Pts, Score: d.Score}
	}
	return out
}

func quadsFromNMS(dets []nms.Detection) []Quad {
	out := make([]Quad, len(dets))
	for i, d := range dets {
		out[i] = quadFromEngine(d.Pts)
	}
	return out
}

// tilingAdapter satisfies internal/tiling.Engine by translating between
// the tiling package's Tile/Detection and the engine package's
// Image/Detection.
type tilingAdapter struct {
	eng engine.Engine
}

func (a tilingAdapter) InferUnbound(t tiling.Tile) ([]tiling.Detection, error) {
	img := engine.Image{Data: t.Data, Width: t.Width, Height: t.Height, Stride: t.Stride, Channels: t.Channels}
	dets, err := a.eng.InferUnbound(img)
	return tilingDetsFromEngine(dets), err
}

func (a tilingAdapter) InferBound(t tiling.Tile, ctxIdx int) ([]tiling.Detection, error) {
	img := engine.Image{Data: t.Data, Width: t.Width, Height: t.Height, Stride: t.Stride, Channels: t.Channels}
	dets, err := a.eng.InferBound(img, ctxIdx)
	return tilingDetsFromEngine(dets), err
}

func (a tilingAdapter) BoundContexts() int { return a.eng.BoundContexts() }
func (a tilingAdapter) BindingReady() bool { return a.eng.BindingReady() }

func tilingDetsFromEngine(dets []engine.Detection) []tiling.Detection {
	out := make([]tiling.Detection, len(dets))
	for i, d := range dets {
		out[i] = tiling.Detection{Pts: d.Pts, Score: d.Score}
	}
	return out
}

func engineDetsFromTiling(dets []tiling.Detection) []engine.Detection {
	out := make([]engine.Detection, len(dets))
	for i, d := range dets {
		out[i] = engine.Detection{Pts: d.Pts, Score: d.Score}
	}
	return out
}

func engineLabel(k engine.Kind) string {
	if k == engine.SCRFD {
		return "scrfd"
	}
	return "dbnet"
}

// runDetect drives either direct (non-tiled) or tiled inference over img,
// merges results through NMS, and returns the final quads.
//
// parallelBound only matters when both bound and tiling are in effect: it
// lets InferTiled distribute tiles round-robin across every binding
// context (Detect's own auto-bound path, which owns every context) versus
// pinning every tile to the caller-supplied ctxIdx (DetectBound, where the
// caller may be one of several concurrent callers each holding a distinct
// context and must never touch another caller's).
func (d *Detector) runDetect(img Image, bound bool, ctxIdx int, parallelBound bool, cfg InferenceOptions) ([]Quad, error) {
	view := img.View()
	eimg, err := viewToEngineImage(view)
	if err != nil {
		return nil, ErrInvalidArgument(err.Error())
	}

	mode := "unbound"
	if bound {
		mode = "bound"
	}
	label := engineLabel(d.eng.Kind())
	start := time.Now()
	defer func() {
		metrics.InferenceDuration.WithLabelValues(label, mode).Observe(time.Since(start).Seconds())
	}()

	var rawDets []engine.Detection
	if cfg.TilesDim.Rows*cfg.TilesDim.Cols > 1 {
		tile := tiling.Tile{Data: eimg.Data, Width: eimg.Width, Height: eimg.Height, Stride: eimg.Stride, Channels: eimg.Channels}
		grid := tiling.GridSpec{Rows: cfg.TilesDim.Rows, Cols: cfg.TilesDim.Cols}
		if grid.Rows < 1 {
			grid.Rows = 1
		}
		if grid.Cols < 1 {
			grid.Cols = 1
		}
		tiledDets, terr := tiling.InferTiled(tilingAdapter{d.eng}, tile, bound, ctxIdx, parallelBound, grid, cfg.TileOverlap, d.cfg.Runtime.TileParallelThreads)
		if terr != nil {
			metrics.TileFailuresTotal.WithLabelValues(label).Inc()
			return nil, ErrInternal(terr.Error())
		}
		rawDets = engineDetsFromTiling(tiledDets)
	} else {
		var derr error
		if bound {
			rawDets, derr = d.eng.InferBound(eimg, ctxIdx)
		} else {
			rawDets, derr = d.eng.InferUnbound(eimg)
		}
		if derr != nil {
			return nil, ErrInternal(derr.Error())
		}
	}

	suppressed := nms.Suppress(nmsDetsFromEngine(rawDets), cfg.NMSIoU, cfg.UseFastIoU)
	metrics.ObserveNMS(label, len(rawDets), len(suppressed))
	return quadsFromNMS(suppressed), nil
}

// Detect runs inference over img. When the configured InferenceOptions
// request IO binding (BindIO) and a binding has been prepared, it uses
// bound inference, picking a binding context round-robin across every
// available context; otherwise it falls back to unbound (per-call)
// inference.
func (d *Detector) Detect(img Image) (quads []Quad, err error) {
	defer func() {
		if r := recover(); r != nil {
			quads, err = nil, ErrInternal(fmt.Sprintf("Detect: panic: %v", r))
		}
	}()

	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.valid {
		return nil, ErrInvalidDetector
	}

	if d.infer.BindIO && d.eng.BindingReady() {
		contexts := d.eng.BoundContexts()
		if contexts > 0 {
			ctxIdx := int(d.nextCtx.Add(1)-1) % contexts
			return d.runDetect(img, true, ctxIdx, true, d.infer)
		}
	}
	return d.runDetect(img, false, 0, false, d.infer)
}

// DetectBound runs pre-bound inference over img using binding context
// ctxIdx, prepared by a prior PrepareBinding call. Unlike Detect's
// auto-bound path, tiled detection here never distributes across other
// binding contexts: every tile stays pinned to ctxIdx, since the caller
// may be one of several concurrent callers each driving a distinct
// context.
func (d *Detector) DetectBound(img Image, ctxIdx int) (quads []Quad, err error) {
	defer func() {
		if r := recover(); r != nil {
			quads, err = nil, ErrInternal(fmt.Sprintf("DetectBound: panic: %v", r))
		}
	}()

	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.valid {
		return nil, ErrInvalidDetector
	}
	if !d.eng.BindingReady() {
		return nil, ErrInvalidArgument("DetectBound: binding not prepared")
	}
	return d.runDetect(img, true, ctxIdx, false, d.infer)
}

// ApplyRuntimePolicy binds the process to a deterministic CPU set (and,
// when requested, a best-effort soft NUMA memory policy) for policy's
// estimated concurrency. It must be called once, early in process startup,
// strictly before any Detector is constructed: both ONNX Runtime and the
// tile worker pool cache thread/affinity state at initialization.
func ApplyRuntimePolicy(policy RuntimePolicy, verbose bool) error {
	p := placement.Policy{
		OrtIntraThreads:      policy.OrtIntraThreads,
		OrtInterThreads:      policy.OrtInterThreads,
		TileThreads:          policy.TileParallelThreads,
		SoftMemoryBind:       policy.SoftMemoryBind,
		NumaPolicy:           int(policy.NumaPolicy),
		SuppressForeignPools: policy.SuppressForeignPools,
	}
	if err := placement.Apply(p, verbose); err != nil {
		return ErrInternal(err.Error())
	}
	return nil
}
