// Package dbnet implements a DBNet-like text-region detector engine backed
// by github.com/yalue/onnxruntime_go.
//
// Preprocessing converts a BGR8 image into a normalized CHW float32 tensor
// (ImageNet mean/std, input size aligned to a multiple of 32). Output
// handling is layout-aware (NCHW/NHWC/N1HW/HW) via internal/tensordesc.
// Postprocessing binarizes the probability plane, traces blob boundaries,
// scores them by mean in-mask probability, fits a minimum-area rotated
// rectangle, and optionally expands ("unclips") it before mapping back to
// image coordinates.
package dbnet

import (
	"fmt"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/screenager/idetgo/internal/engine"
	"github.com/screenager/idetgo/internal/geometry"
	"github.com/screenager/idetgo/internal/tensordesc"
)

const align = 32

func alignUp(v, a int) int {
	if a <= 1 {
		return v
	}
	return (v + a - 1) / a * a
}

func sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// netGeom is the resolved network input geometry and the scale factors
// needed to map network-space coordinates back to the original image.
type netGeom struct {
	inW, inH int
	sx, sy   float32
}

// makeGeom computes network input geometry: if forceW/forceH are given
// (bound mode) they are aligned up to a multiple of 32; otherwise the
// longer side is downscaled to maxImg (if smaller already, left alone) and
// both dims are aligned up to 32.
func makeGeom(origW, origH, forceW, forceH, maxImg int) netGeom {
	var g netGeom
	if forceW > 0 && forceH > 0 {
		g.inW = alignUp(forceW, align)
		g.inH = alignUp(forceH, align)
	} else {
		tw, th := origW, origH
		if maxImg > 0 {
			maxSide := origW
			if origH > maxSide {
				maxSide = origH
			}
			if maxSide > maxImg {
				scale := float64(maxImg) / float64(maxSide)
				tw = maxInt(1, int(math.Round(float64(origW)*scale)))
				th = maxInt(1, int(math.Round(float64(origH)*scale)))
			}
		}
		g.inW = alignUp(tw, align)
		g.inH = alignUp(th, align)
	}
	if origW > 0 {
		g.sx = float32(g.inW) / float32(origW)
	} else {
		g.sx = 1
	}
	if origH > 0 {
		g.sy = float32(g.inH) / float32(origH)
	} else {
		g.sy = 1
	}
	return g
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ImageNet BGR-order mean/std (0..255 scale), matching the channel order
// of the BGR8 images this engine consumes.
var (
	meanBGR   = [3]float32{0.406 * 255, 0.456 * 255, 0.485 * 255}
	invStdBGR = [3]float32{1 / (0.225 * 255), 1 / (0.224 * 255), 1 / (0.229 * 255)}
)

// fillInputCHW resizes (nearest-neighbor) img into inW x inH and writes
// normalized CHW float32 values into dst (len == 3*inH*inW).
func fillInputCHW(dst []float32, inW, inH int, img engine.Image) {
	planeSize := inW * inH
	srcW, srcH := img.Width, img.Height
	if srcW <= 0 || srcH <= 0 {
		return
	}
	for y := 0; y < inH; y++ {
		sy := y * srcH / inH
		if sy >= srcH {
			sy = srcH - 1
		}
		for x := 0; x < inW; x++ {
			sx := x * srcW / inW
			if sx >= srcW {
				sx = srcW - 1
			}
			off := sy*img.Stride + sx*img.Channels
			b := float32(img.Data[off+0])
			g := float32(img.Data[off+1])
			r := float32(img.Data[off+2])

			idx := y*inW + x
			dst[0*planeSize+idx] = (b - meanBGR[0]) * invStdBGR[0]
			dst[1*planeSize+idx] = (g - meanBGR[1]) * invStdBGR[1]
			dst[2*planeSize+idx] = (r - meanBGR[2]) * invStdBGR[2]
		}
	}
}

// unclipRectLike expands a quad around its centroid by factor k (an
// approximation of the DBNet paper's constant-distance polygon offset,
// not a Clipper-style offset; results will differ from one).
func unclipRectLike(box [4]geometry.Point2f, unclip float32) [4]geometry.Point2f {
	var c geometry.Point2f
	for _, p := range box {
		c.X += p.X
		c.Y += p.Y
	}
	c.X *= 0.25
	c.Y *= 0.25

	k := unclip
	if k <= 0 {
		k = 1
	}
	var out [4]geometry.Point2f
	for i, p := range box {
		out[i] = geometry.Point2f{
			X: c.X + (p.X-c.X)*k,
			Y: c.Y + (p.Y-c.Y)*k,
		}
	}
	return out
}

type boundCtx struct {
	session  *ort.AdvancedSession
	inTensor *ort.Tensor[float32]
	outSlice []float32
	scratch  []float32
}

// Engine is a DBNet-family text-detector backend.
type Engine struct {
	mu sync.RWMutex

	cfg engine.Config

	session *ort.DynamicAdvancedSession
	inName  string
	outName string

	applySigmoid bool
	binThresh    float32
	boxThresh    float32
	unclip       float32
	maxImg       int
	minW, minH   int

	bindingReady bool
	boundW       int
	boundH       int
	contexts     int
	boundOutDesc tensordesc.TensorDesc
	ctxs         []*boundCtx
}

// New constructs a DBNet engine and its ONNX Runtime session.
func New(cfg engine.Config) (*Engine, error) {
	if cfg.Task != engine.TaskText {
		return nil, fmt.Errorf("dbnet: cfg.Task must be Text")
	}
	if cfg.Kind != engine.DBNet {
		return nil, fmt.Errorf("dbnet: cfg.Kind must be DBNet")
	}
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("dbnet: model_path must be set")
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("dbnet: reading model input/output info: %w", err)
	}
	inName, outName := "input", "output"
	if len(inputs) > 0 {
		inName = inputs[0].Name
	}
	if len(outputs) > 0 {
		outName = outputs[0].Name
	}

	so, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("dbnet: creating session options: %w", err)
	}
	defer so.Destroy()

	if cfg.OrtIntraThreads > 0 {
		if err := so.SetIntraOpNumThreads(cfg.OrtIntraThreads); err != nil {
			return nil, fmt.Errorf("dbnet: setting intra-op threads: %w", err)
		}
	}
	if cfg.OrtInterThreads > 0 {
		if err := so.SetInterOpNumThreads(cfg.OrtInterThreads); err != nil {
			return nil, fmt.Errorf("dbnet: setting inter-op threads: %w", err)
		}
	}

	sess, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, []string{inName}, []string{outName}, so)
	if err != nil {
		return nil, fmt.Errorf("dbnet: creating ORT session: %w", err)
	}

	e := &Engine{
		cfg:     cfg,
		session: sess,
		inName:  inName,
		outName: outName,
	}
	e.cacheHot()
	return e, nil
}

func (e *Engine) cacheHot() {
	e.applySigmoid = e.cfg.ApplySigmoid
	e.binThresh = e.cfg.BinThresh
	e.boxThresh = e.cfg.BoxThresh
	e.unclip = e.cfg.Unclip
	e.maxImg = e.cfg.MaxImageSize
	e.minW = e.cfg.MinROIWidth
	e.minH = e.cfg.MinROIHeight
}

func (e *Engine) Kind() engine.Kind   { return engine.DBNet }
func (e *Engine) Task() engine.Task   { return engine.TaskText }
func (e *Engine) Config() engine.Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

func (e *Engine) UpdateHot(next engine.Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := engine.CheckHotUpdate(e.cfg, next); err != nil {
		return err
	}
	e.cfg = next
	e.cacheHot()
	return nil
}

func (e *Engine) BindingReady() bool { e.mu.RLock(); defer e.mu.RUnlock(); return e.bindingReady }
func (e *Engine) BoundW() int        { e.mu.RLock(); defer e.mu.RUnlock(); return e.boundW }
func (e *Engine) BoundH() int        { e.mu.RLock(); defer e.mu.RUnlock(); return e.boundH }
func (e *Engine) BoundContexts() int { e.mu.RLock(); defer e.mu.RUnlock(); return e.contexts }

// runUnbound runs the dynamic session over a single CHW float32 tensor and
// returns the raw output data and its ORT-reported shape.
func (e *Engine) runUnbound(in []float32, inH, inW int) ([]float32, []int64, error) {
	inTensor, err := ort.NewTensor(ort.NewShape(1, 3, int64(inH), int64(inW)), in)
	if err != nil {
		return nil, nil, fmt.Errorf("dbnet: creating input tensor: %w", err)
	}
	defer inTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{inTensor}, outputs); err != nil {
		return nil, nil, fmt.Errorf("dbnet: session run: %w", err)
	}
	defer outputs[0].Destroy()

	outTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, nil, fmt.Errorf("dbnet: expected float32 output tensor, got %T", outputs[0])
	}

	data := append([]float32(nil), outTensor.GetData()...)
	shape := append([]int64(nil), outTensor.GetShape()...)
	return data, shape, nil
}

// probeOutputDesc runs a zero-input inference at (inH,inW) to discover the
// real output shape/layout, used by SetupBinding to size bound buffers.
func (e *Engine) probeOutputDesc(inH, inW int) (tensordesc.TensorDesc, error) {
	zero := make([]float32, 3*inH*inW)
	_, shape, err := e.runUnbound(zero, inH, inW)
	if err != nil {
		return tensordesc.TensorDesc{}, err
	}
	desc := tensordesc.MakeDescProbmap(shape)
	if desc.Layout == tensordesc.Unknown || desc.H <= 0 || desc.W <= 0 {
		return tensordesc.TensorDesc{}, fmt.Errorf("dbnet: cannot infer output probmap layout from shape %v", shape)
	}
	return desc, nil
}

func (e *Engine) SetupBinding(w, h, contexts int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.unsetBindingLocked()

	if w <= 0 || h <= 0 {
		return fmt.Errorf("dbnet: SetupBinding: non-positive w/h")
	}
	if contexts <= 0 {
		contexts = 1
	}

	e.boundW = w
	e.boundH = h
	e.contexts = contexts

	g := makeGeom(w, h, w, h, e.maxImg)

	desc, err := e.probeOutputDesc(g.inH, g.inW)
	if err != nil {
		return err
	}
	e.boundOutDesc = desc

	ctxs := make([]*boundCtx, contexts)
	for i := 0; i < contexts; i++ {
		inData := make([]float32, 3*g.inH*g.inW)
		outData := make([]float32, desc.Numel)

		inTensor, err := ort.NewTensor(ort.NewShape(1, 3, int64(g.inH), int64(g.inW)), inData)
		if err != nil {
			return fmt.Errorf("dbnet: SetupBinding: creating input tensor: %w", err)
		}
		outTensor, err := ort.NewTensor(ort.NewShape(desc.Shape...), outData)
		if err != nil {
			inTensor.Destroy()
			return fmt.Errorf("dbnet: SetupBinding: creating output tensor: %w", err)
		}

		so, err := ort.NewSessionOptions()
		if err != nil {
			inTensor.Destroy()
			outTensor.Destroy()
			return fmt.Errorf("dbnet: SetupBinding: creating session options: %w", err)
		}
		if e.cfg.OrtIntraThreads > 0 {
			_ = so.SetIntraOpNumThreads(e.cfg.OrtIntraThreads)
		}
		if e.cfg.OrtInterThreads > 0 {
			_ = so.SetInterOpNumThreads(e.cfg.OrtInterThreads)
		}

		sess, err := ort.NewAdvancedSession(e.cfg.ModelPath, []string{e.inName}, []string{e.outName},
			[]ort.Value{inTensor}, []ort.Value{outTensor}, so)
		so.Destroy()
		if err != nil {
			inTensor.Destroy()
			outTensor.Destroy()
			return fmt.Errorf("dbnet: SetupBinding: creating bound session: %w", err)
		}

		ctxs[i] = &boundCtx{
			session:  sess,
			inTensor: inTensor,
			outSlice: outData,
		}
	}

	e.ctxs = ctxs
	e.bindingReady = true
	return nil
}

func (e *Engine) UnsetBinding() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unsetBindingLocked()
}

func (e *Engine) unsetBindingLocked() {
	for _, c := range e.ctxs {
		if c == nil {
			continue
		}
		if c.session != nil {
			c.session.Destroy()
		}
		if c.inTensor != nil {
			c.inTensor.Destroy()
		}
	}
	e.ctxs = nil
	e.bindingReady = false
	e.boundW, e.boundH, e.contexts = 0, 0, 0
	e.boundOutDesc = tensordesc.TensorDesc{}
}

func (e *Engine) InferUnbound(img engine.Image) ([]engine.Detection, error) {
	if img.Width <= 0 || img.Height <= 0 || img.Channels < 3 {
		return nil, fmt.Errorf("dbnet: InferUnbound: invalid image")
	}

	e.mu.RLock()
	maxImg := e.maxImg
	e.mu.RUnlock()

	ow, oh := img.Width, img.Height
	g := makeGeom(ow, oh, 0, 0, maxImg)

	in := make([]float32, 3*g.inH*g.inW)
	fillInputCHW(in, g.inW, g.inH, img)

	data, shape, err := e.runUnbound(in, g.inH, g.inW)
	if err != nil {
		return nil, err
	}

	desc := tensordesc.MakeDescProbmap(shape)
	var scratch []float32
	probHW := tensordesc.ExtractHWChannel(data, desc, 0, &scratch)
	if probHW == nil {
		return nil, fmt.Errorf("dbnet: cannot extract probability plane")
	}

	e.mu.RLock()
	dets := e.postprocessHW(probHW, int(desc.W), int(desc.H), ow, oh)
	e.mu.RUnlock()
	return dets, nil
}

func (e *Engine) InferBound(img engine.Image, ctxIdx int) ([]engine.Detection, error) {
	e.mu.RLock()
	ready := e.bindingReady
	contexts := e.contexts
	boundW, boundH := e.boundW, e.boundH
	maxImg := e.maxImg
	e.mu.RUnlock()

	if !ready {
		return nil, fmt.Errorf("dbnet: InferBound: binding not ready")
	}
	if ctxIdx < 0 || ctxIdx >= contexts {
		return nil, fmt.Errorf("dbnet: InferBound: ctx_idx out of range")
	}
	if img.Width <= 0 || img.Height <= 0 || img.Channels < 3 {
		return nil, fmt.Errorf("dbnet: InferBound: invalid image")
	}

	e.mu.RLock()
	c := e.ctxs[ctxIdx]
	desc := e.boundOutDesc
	e.mu.RUnlock()

	ow, oh := img.Width, img.Height
	g := makeGeom(ow, oh, boundW, boundH, maxImg)

	fillInputCHW(c.inTensor.GetData(), g.inW, g.inH, img)

	if err := c.session.Run(); err != nil {
		return nil, fmt.Errorf("dbnet: InferBound: session run: %w", err)
	}

	probHW := tensordesc.ExtractHWChannel(c.outSlice, desc, 0, &c.scratch)
	if probHW == nil {
		return nil, fmt.Errorf("dbnet: InferBound: cannot extract probability plane")
	}

	e.mu.RLock()
	dets := e.postprocessHW(probHW, int(desc.W), int(desc.H), ow, oh)
	e.mu.RUnlock()
	return dets, nil
}

// postprocessHW turns a contiguous outW x outH probability plane into
// image-space detections: binarize, trace blob boundaries, score by mean
// in-mask probability, fit a minimum-area rectangle, optionally unclip,
// map to original coordinates, clamp, and canonicalize vertex order.
func (e *Engine) postprocessHW(probHW []float32, outW, outH, origW, origH int) []engine.Detection {
	if outW <= 0 || outH <= 0 || origW <= 0 || origH <= 0 {
		return nil
	}

	prob := probHW
	if e.applySigmoid {
		prob = make([]float32, len(probHW))
		for i, v := range probHW {
			prob[i] = sigmoid(v)
		}
	}

	thr := clampf(e.binThresh, 0, 1)
	bitmap := make([]byte, outW*outH)
	for i, v := range prob {
		if v > thr {
			bitmap[i] = 1
		}
	}

	contours := findContours(bitmap, outW, outH)

	sx := float32(origW) / float32(outW)
	sy := float32(origH) / float32(outH)

	var dets []engine.Detection
	for _, c := range contours {
		if len(c) < 4 {
			continue
		}

		score := geometry.ContourScore(prob, outW, outH, c)
		if score < e.boxThresh {
			continue
		}

		rect, w, h := minAreaRect(c)
		if w <= 1 || h <= 1 {
			continue
		}

		ow := w * sx
		oh := h * sy
		if e.minW > 0 && ow < float32(e.minW) {
			continue
		}
		if e.minH > 0 && oh < float32(e.minH) {
			continue
		}

		box := rect
		if e.unclip > 1 {
			box = unclipRectLike(box, e.unclip)
		}

		for i, p := range box {
			box[i] = geometry.Point2f{
				X: clampf(p.X*sx, 0, float32(origW)),
				Y: clampf(p.Y*sy, 0, float32(origH)),
			}
		}

		geometry.OrderQuad(&box)
		dets = append(dets, engine.Detection{Pts: box, Score: score})
	}

	sortDetsByScoreDesc(dets)
	return dets
}

func sortDetsByScoreDesc(dets []engine.Detection) {
	for i := 1; i < len(dets); i++ {
		for j := i; j > 0 && dets[j].Score > dets[j-1].Score; j-- {
			dets[j], dets[j-1] = dets[j-1], dets[j]
		}
	}
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unsetBindingLocked()
	if e.session != nil {
		if err := e.session.Destroy(); err != nil {
			return err
		}
		e.session = nil
	}
	return nil
}
