// Package scrfd implements an SCRFD-like face detector engine backed by
// github.com/yalue/onnxruntime_go.
//
// SCRFD exports vary across toolchains/opsets in both tensor layout and
// output ordering, so this engine probes each stride head's score/bbox
// layout once (by output name, falling back to positional convention) and
// decodes with layout-aware accessors rather than assuming a fixed shape.
package scrfd

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/screenager/idetgo/internal/engine"
	"github.com/screenager/idetgo/internal/geometry"
)

func alignUp(v, a int) int {
	if a <= 1 {
		return v
	}
	return (v + a - 1) / a * a
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

func sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ScoreLayout describes how a head's score tensor is laid out.
type ScoreLayout uint8

const (
	ScoreUnknown ScoreLayout = iota
	ScoreCHW                 // [1,C,H,W]
	ScoreFlat                // [1,N,C]
	ScoreHW                  // [1,H,W] or [H,W]
)

// BBoxLayout describes how a head's bbox-distance tensor is laid out.
type BBoxLayout uint8

const (
	BBoxUnknown BBoxLayout = iota
	BBoxCHW                // [1,4,H,W]
	BBoxFlat               // [1,N,4]
	BBoxHW4                // [1,H,W,4]; rank-3 [..,..,4] shapes classify as BBoxFlat
)

// head is one SCRFD stride head's resolved output indices, shapes, and
// inferred layouts.
type head struct {
	stride   int
	scoreIdx int
	bboxIdx  int

	scoreShape []int64
	bboxShape  []int64

	hs, ws, anchors, scoreCh int
	scoreLayout              ScoreLayout
	bboxLayout               BBoxLayout
}

type boundCtx struct {
	session    *ort.AdvancedSession
	inTensor   *ort.Tensor[float32]
	outSlices  [][]float32 // parallel to boundOutIndices: [score0,bbox0,score1,bbox1,...]
}

// Engine is an SCRFD-family face-detector backend.
type Engine struct {
	mu sync.RWMutex

	cfg engine.Config

	session *ort.DynamicAdvancedSession
	inName  string
	outNames []string

	applySigmoid bool
	scoreThresh  float32
	maxImg       int
	minW, minH   int
	scoreChannel int

	heads []head

	bindingReady    bool
	boundW, boundH  int
	contexts        int
	boundOutIndices []int
	ctxs            []*boundCtx
}

// New constructs an SCRFD engine and its ONNX Runtime session.
func New(cfg engine.Config) (*Engine, error) {
	if cfg.Task != engine.TaskFace {
		return nil, fmt.Errorf("scrfd: cfg.Task must be Face")
	}
	if cfg.Kind != engine.SCRFD {
		return nil, fmt.Errorf("scrfd: cfg.Kind must be SCRFD")
	}
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("scrfd: model_path must be set")
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("scrfd: reading model input/output info: %w", err)
	}
	inName := "input"
	if len(inputs) > 0 {
		inName = inputs[0].Name
	}
	outNames := make([]string, 0, len(outputs))
	for i, o := range outputs {
		if o.Name != "" {
			outNames = append(outNames, o.Name)
		} else {
			outNames = append(outNames, "out_"+strconv.Itoa(i))
		}
	}
	if len(outNames) == 0 {
		return nil, fmt.Errorf("scrfd: model has no outputs")
	}

	so, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("scrfd: creating session options: %w", err)
	}
	defer so.Destroy()
	if cfg.OrtIntraThreads > 0 {
		if err := so.SetIntraOpNumThreads(cfg.OrtIntraThreads); err != nil {
			return nil, fmt.Errorf("scrfd: setting intra-op threads: %w", err)
		}
	}
	if cfg.OrtInterThreads > 0 {
		if err := so.SetInterOpNumThreads(cfg.OrtInterThreads); err != nil {
			return nil, fmt.Errorf("scrfd: setting inter-op threads: %w", err)
		}
	}

	sess, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, []string{inName}, outNames, so)
	if err != nil {
		return nil, fmt.Errorf("scrfd: creating ORT session: %w", err)
	}

	e := &Engine{
		cfg:      cfg,
		session:  sess,
		inName:   inName,
		outNames: outNames,
	}
	e.cacheHot()
	return e, nil
}

func (e *Engine) cacheHot() {
	e.applySigmoid = e.cfg.ApplySigmoid
	e.scoreThresh = e.cfg.BoxThresh
	e.maxImg = e.cfg.MaxImageSize
	e.minW = e.cfg.MinROIWidth
	e.minH = e.cfg.MinROIHeight
	e.scoreChannel = e.cfg.ScoreChannel
}

func (e *Engine) Kind() engine.Kind     { return engine.SCRFD }
func (e *Engine) Task() engine.Task     { return engine.TaskFace }
func (e *Engine) Config() engine.Config { e.mu.RLock(); defer e.mu.RUnlock(); return e.cfg }

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

// (127.5, 1/128) per-channel, the common SCRFD export normalization.
var (
	scrfdMean   = [3]float32{127.5, 127.5, 127.5}
	scrfdInvStd = [3]float32{1.0 / 128, 1.0 / 128, 1.0 / 128}
)

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
			dst[0*planeSize+idx] = (b - scrfdMean[0]) * scrfdInvStd[0]
			dst[1*planeSize+idx] = (g - scrfdMean[1]) * scrfdInvStd[1]
			dst[2*planeSize+idx] = (r - scrfdMean[2]) * scrfdInvStd[2]
		}
	}
}

// runUnbound resizes img to a (possibly forced) aligned input shape, runs
// the dynamic session, and returns all outputs in e.outNames order plus the
// effective network geometry and original->network scale factors.
func (e *Engine) runUnbound(img engine.Image, forceW, forceH int) (outs []ort.Value, sx, sy float32, inW, inH int, err error) {
	ow, oh := img.Width, img.Height
	tw, th := forceW, forceH
	if tw <= 0 || th <= 0 {
		tw, th = ow, oh
		if e.maxImg > 0 {
			maxSide := maxInt(ow, oh)
			if maxSide > e.maxImg {
				scale := float64(e.maxImg) / float64(maxSide)
				tw = maxInt(1, int(math.Round(float64(ow)*scale)))
				th = maxInt(1, int(math.Round(float64(oh)*scale)))
			}
		}
	}
	inW = alignUp(tw, 32)
	inH = alignUp(th, 32)
	sx = float32(inW) / float32(ow)
	sy = float32(inH) / float32(oh)

	chw := make([]float32, 3*inH*inW)
	fillInputCHW(chw, inW, inH, img)

	inTensor, terr := ort.NewTensor(ort.NewShape(1, 3, int64(inH), int64(inW)), chw)
	if terr != nil {
		err = fmt.Errorf("scrfd: creating input tensor: %w", terr)
		return
	}
	defer inTensor.Destroy()

	results := make([]ort.Value, len(e.outNames))
	if rerr := e.session.Run([]ort.Value{inTensor}, results); rerr != nil {
		err = fmt.Errorf("scrfd: session run: %w", rerr)
		return
	}
	outs = results
	return
}

func findBy(names []string, what, stride string) int {
	for i, n := range names {
		if strings.Contains(n, what) && strings.Contains(n, stride) {
			return i
		}
	}
	return -1
}

// probeHeadsLayout runs a zero-input inference at (inW,inH) and resolves
// each stride head's output indices and tensor layout.
func (e *Engine) probeHeadsLayout(inW, inH int) ([]head, error) {
	dummy := engine.Image{Data: make([]byte, inW*inH*3), Width: inW, Height: inH, Stride: inW * 3, Channels: 3}
	outs, _, _, _, err := e.runUnbound(dummy, inW, inH)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, o := range outs {
			if o != nil {
				o.Destroy()
			}
		}
	}()
	if len(outs) != len(e.outNames) {
		return nil, fmt.Errorf("scrfd: probe outputs count mismatch")
	}

	shapeOf := func(i int) []int64 {
		t, ok := outs[i].(*ort.Tensor[float32])
		if !ok {
			return nil
		}
		return t.GetShape()
	}

	var heads []head
	addHead := func(stride int) {
		s := strconv.Itoa(stride)
		si := findBy(e.outNames, "score", s)
		bi := findBy(e.outNames, "bbox", s)
		if si < 0 {
			si = findBy(e.outNames, "cls", s)
		}
		if si < 0 {
			si = findBy(e.outNames, "conf", s)
		}
		if bi < 0 {
			bi = findBy(e.outNames, "reg", s)
		}
		if si < 0 || bi < 0 {
			if len(e.outNames) >= 6 {
				switch stride {
				case 8:
					si, bi = 0, 3
				case 16:
					si, bi = 1, 4
				default:
					si, bi = 2, 5
				}
			} else {
				return
			}
		}

		h := head{
			stride:     stride,
			scoreIdx:   si,
			bboxIdx:    bi,
			scoreShape: shapeOf(si),
			bboxShape:  shapeOf(bi),
			hs:         maxInt(1, inH/stride),
			ws:         maxInt(1, inW/stride),
			anchors:    1,
			scoreCh:    1,
		}

		inferScoreLayout(h.scoreShape, &h)
		inferBBoxLayout(h.bboxShape, &h)

		if h.scoreLayout == ScoreFlat && len(h.scoreShape) == 3 {
			n := h.scoreShape[1]
			hw := int64(maxInt(1, h.hs*h.ws))
			if hw > 0 && n%hw == 0 {
				h.anchors = int(n / hw)
			}
		}
		if h.bboxLayout == BBoxFlat && len(h.bboxShape) == 3 {
			n := h.bboxShape[1]
			hw := int64(maxInt(1, h.hs*h.ws))
			if hw > 0 && n%hw == 0 {
				h.anchors = int(n / hw)
			}
		}

		if h.scoreLayout == ScoreUnknown || h.bboxLayout == BBoxUnknown {
			return
		}
		heads = append(heads, h)
	}

	addHead(8)
	addHead(16)
	addHead(32)

	if len(heads) == 0 {
		return nil, fmt.Errorf("scrfd: cannot resolve heads")
	}
	return heads, nil
}

func inferScoreLayout(sh []int64, h *head) {
	switch len(sh) {
	case 4:
		if sh[1] > 0 && sh[1] <= 8 {
			h.scoreLayout = ScoreCHW
			h.scoreCh = int(maxInt64(1, sh[1]))
			h.hs = int(sh[2])
			h.ws = int(sh[3])
		} else {
			h.scoreLayout = ScoreHW
			h.hs = int(sh[1])
			h.ws = int(sh[2])
			h.scoreCh = int(maxInt64(1, sh[3]))
		}
	case 3:
		if sh[0] == 1 && sh[2] > 0 && sh[2] <= 8 {
			h.scoreLayout = ScoreFlat
			h.scoreCh = int(maxInt64(1, sh[2]))
		} else {
			h.scoreLayout = ScoreHW
			h.hs = int(sh[1])
			h.ws = int(sh[2])
			h.scoreCh = 1
		}
	case 2:
		h.scoreLayout = ScoreHW
		h.hs = int(sh[0])
		h.ws = int(sh[1])
		h.scoreCh = 1
	}
}

func inferBBoxLayout(sh []int64, h *head) {
	switch {
	case len(sh) == 4 && sh[1] == 4:
		h.bboxLayout = BBoxCHW
		h.hs = int(sh[2])
		h.ws = int(sh[3])
	case len(sh) == 3 && sh[2] == 4:
		h.bboxLayout = BBoxFlat
	case len(sh) == 4 && sh[3] == 4:
		h.bboxLayout = BBoxHW4
		h.hs = int(sh[1])
		h.ws = int(sh[2])
	}
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func scoreAt(h *head, score []float32, y, x, a, scoreChannelOverride int) float32 {
	hw := maxInt(1, h.hs*h.ws)
	ws := maxInt(1, h.ws)
	ch := 0
	if h.scoreCh > 1 {
		ch = 1
	}
	if scoreChannelOverride >= 0 {
		ch = scoreChannelOverride
	}
	switch h.scoreLayout {
	case ScoreCHW:
		return score[ch*hw+(y*ws+x)]
	case ScoreFlat:
		loc := (y*ws + x) * maxInt(1, h.anchors)
		return score[(loc+a)*h.scoreCh+ch]
	default: // ScoreHW
		return score[y*ws+x]
	}
}

func bboxAt(h *head, bbox []float32, y, x, a int) (dl, dt, dr, db float32) {
	hw := maxInt(1, h.hs*h.ws)
	ws := maxInt(1, h.ws)
	switch h.bboxLayout {
	case BBoxCHW:
		idx := y*ws + x
		dl = bbox[0*hw+idx] * float32(h.stride)
		dt = bbox[1*hw+idx] * float32(h.stride)
		dr = bbox[2*hw+idx] * float32(h.stride)
		db = bbox[3*hw+idx] * float32(h.stride)
	case BBoxFlat:
		loc := (y*ws + x) * maxInt(1, h.anchors)
		base := (loc + a) * 4
		dl = bbox[base+0] * float32(h.stride)
		dt = bbox[base+1] * float32(h.stride)
		dr = bbox[base+2] * float32(h.stride)
		db = bbox[base+3] * float32(h.stride)
	default: // BBoxHW4
		idx := (y*ws + x) * 4
		dl = bbox[idx+0] * float32(h.stride)
		dt = bbox[idx+1] * float32(h.stride)
		dr = bbox[idx+2] * float32(h.stride)
		db = bbox[idx+3] * float32(h.stride)
	}
	return
}

// decode turns every stride head's raw score/bbox planes into Detections
// in original-image coordinates, sorted by score descending.
func (e *Engine) decode(heads []head, scorePtrs, bboxPtrs [][]float32, sx, sy float32, origW, origH int) []engine.Detection {
	var dets []engine.Detection
	for hi := range heads {
		h := &heads[hi]
		score := scorePtrs[hi]
		bbox := bboxPtrs[hi]
		if score == nil || bbox == nil {
			continue
		}

		hs, ws, a := maxInt(1, h.hs), maxInt(1, h.ws), maxInt(1, h.anchors)
		for y := 0; y < hs; y++ {
			for x := 0; x < ws; x++ {
				for ai := 0; ai < a; ai++ {
					sc := scoreAt(h, score, y, x, ai, e.scoreChannel)
					if e.applySigmoid {
						sc = sigmoid(sc)
					}
					if sc < e.scoreThresh {
						continue
					}

					dl, dt, dr, db := bboxAt(h, bbox, y, x, ai)

					cx := (float32(x) + 0.5) * float32(h.stride)
					cy := (float32(y) + 0.5) * float32(h.stride)

					x1 := (cx - dl) / sx
					y1 := (cy - dt) / sy
					x2 := (cx + dr) / sx
					y2 := (cy + db) / sy

					x1 = clampf(x1, 0, float32(origW))
					y1 = clampf(y1, 0, float32(origH))
					x2 = clampf(x2, 0, float32(origW))
					y2 = clampf(y2, 0, float32(origH))

					if x2 <= x1 || y2 <= y1 {
						continue
					}
					if e.minW > 0 && (x2-x1) < float32(e.minW) {
						continue
					}
					if e.minH > 0 && (y2-y1) < float32(e.minH) {
						continue
					}

					dets = append(dets, engine.Detection{
						Pts: [4]geometry.Point2f{
							{X: x1, Y: y1}, {X: x2, Y: y1}, {X: x2, Y: y2}, {X: x1, Y: y2},
						},
						Score: sc,
					})
				}
			}
		}
	}

	sort.SliceStable(dets, func(i, j int) bool { return dets[i].Score > dets[j].Score })
	return dets
}

func (e *Engine) InferUnbound(img engine.Image) ([]engine.Detection, error) {
	if img.Width <= 0 || img.Height <= 0 || img.Channels < 3 {
		return nil, fmt.Errorf("scrfd: InferUnbound: invalid image")
	}

	e.mu.Lock()
	outs, sx, sy, inW, inH, err := e.runUnbound(img, 0, 0)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if e.heads == nil {
		heads, herr := e.probeHeadsLayout(inW, inH)
		if herr != nil {
			e.mu.Unlock()
			for _, o := range outs {
				if o != nil {
					o.Destroy()
				}
			}
			return nil, herr
		}
		e.heads = heads
	}
	heads := e.heads
	scoreChannel := e.scoreChannel
	_ = scoreChannel
	e.mu.Unlock()

	defer func() {
		for _, o := range outs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	scorePtrs := make([][]float32, len(heads))
	bboxPtrs := make([][]float32, len(heads))
	for hi, h := range heads {
		if h.scoreIdx < len(outs) {
			if t, ok := outs[h.scoreIdx].(*ort.Tensor[float32]); ok {
				scorePtrs[hi] = t.GetData()
			}
		}
		if h.bboxIdx < len(outs) {
			if t, ok := outs[h.bboxIdx].(*ort.Tensor[float32]); ok {
				bboxPtrs[hi] = t.GetData()
			}
		}
	}

	return e.decode(heads, scorePtrs, bboxPtrs, sx, sy, img.Width, img.Height), nil
}

func (e *Engine) SetupBinding(w, h, contexts int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unsetBindingLocked()

	if w <= 0 || h <= 0 {
		return fmt.Errorf("scrfd: SetupBinding: non-positive w/h")
	}
	if contexts <= 0 {
		contexts = 1
	}
	e.boundW, e.boundH, e.contexts = w, h, contexts

	inW := alignUp(w, 32)
	inH := alignUp(h, 32)

	heads, err := e.probeHeadsLayout(inW, inH)
	if err != nil {
		return err
	}
	e.heads = heads

	boundOutIndices := make([]int, 0, len(heads)*2)
	for _, hd := range heads {
		boundOutIndices = append(boundOutIndices, hd.scoreIdx, hd.bboxIdx)
	}
	e.boundOutIndices = boundOutIndices

	ctxs := make([]*boundCtx, contexts)
	for ci := 0; ci < contexts; ci++ {
		inData := make([]float32, 3*inH*inW)
		inTensor, err := ort.NewTensor(ort.NewShape(1, 3, int64(inH), int64(inW)), inData)
		if err != nil {
			return fmt.Errorf("scrfd: SetupBinding: creating input tensor: %w", err)
		}

		outValues := make([]ort.Value, 0, len(boundOutIndices))
		outSlices := make([][]float32, 0, len(boundOutIndices))
		for oi, outIdx := range boundOutIndices {
			isScore := oi%2 == 0
			hd := heads[oi/2]
			shape := hd.bboxShape
			if isScore {
				shape = hd.scoreShape
			}
			numel := 1
			for _, v := range shape {
				numel *= maxInt(1, int(v))
			}
			data := make([]float32, numel)
			t, terr := ort.NewTensor(ort.NewShape(shape...), data)
			if terr != nil {
				inTensor.Destroy()
				for _, v := range outValues {
					v.Destroy()
				}
				return fmt.Errorf("scrfd: SetupBinding: creating output tensor for %v out %d: %w", hd, outIdx, terr)
			}
			outValues = append(outValues, t)
			outSlices = append(outSlices, data)
		}

		outNamesOrdered := make([]string, len(boundOutIndices))
		for i, idx := range boundOutIndices {
			outNamesOrdered[i] = e.outNames[idx]
		}

		so, err := ort.NewSessionOptions()
		if err != nil {
			inTensor.Destroy()
			for _, v := range outValues {
				v.Destroy()
			}
			return fmt.Errorf("scrfd: SetupBinding: creating session options: %w", err)
		}
		if e.cfg.OrtIntraThreads > 0 {
			_ = so.SetIntraOpNumThreads(e.cfg.OrtIntraThreads)
		}
		if e.cfg.OrtInterThreads > 0 {
			_ = so.SetInterOpNumThreads(e.cfg.OrtInterThreads)
		}

		sess, err := ort.NewAdvancedSession(e.cfg.ModelPath, []string{e.inName}, outNamesOrdered,
			[]ort.Value{inTensor}, outValues, so)
		so.Destroy()
		if err != nil {
			inTensor.Destroy()
			for _, v := range outValues {
				v.Destroy()
			}
			return fmt.Errorf("scrfd: SetupBinding: creating bound session: %w", err)
		}

		ctxs[ci] = &boundCtx{session: sess, inTensor: inTensor, outSlices: outSlices}
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
	e.boundOutIndices = nil
	e.heads = nil
}

func (e *Engine) InferBound(img engine.Image, ctxIdx int) ([]engine.Detection, error) {
	e.mu.RLock()
	ready := e.bindingReady
	contexts := e.contexts
	boundW, boundH := e.boundW, e.boundH
	e.mu.RUnlock()

	if !ready {
		return nil, fmt.Errorf("scrfd: InferBound: binding not ready")
	}
	if ctxIdx < 0 || ctxIdx >= contexts {
		return nil, fmt.Errorf("scrfd: InferBound: ctx_idx out of range")
	}
	if img.Width <= 0 || img.Height <= 0 || img.Channels < 3 {
		return nil, fmt.Errorf("scrfd: InferBound: invalid image")
	}

	inW := alignUp(boundW, 32)
	inH := alignUp(boundH, 32)
	sx := float32(inW) / float32(img.Width)
	sy := float32(inH) / float32(img.Height)

	e.mu.RLock()
	c := e.ctxs[ctxIdx]
	heads := e.heads
	e.mu.RUnlock()

	fillInputCHW(c.inTensor.GetData(), inW, inH, img)

	if err := c.session.Run(); err != nil {
		return nil, fmt.Errorf("scrfd: InferBound: session run: %w", err)
	}

	scorePtrs := make([][]float32, len(heads))
	bboxPtrs := make([][]float32, len(heads))
	for hi := range heads {
		si, bi := hi*2, hi*2+1
		if si < len(c.outSlices) {
			scorePtrs[hi] = c.outSlices[si]
		}
		if bi < len(c.outSlices) {
			bboxPtrs[hi] = c.outSlices[bi]
		}
	}

	return e.decode(heads, scorePtrs, bboxPtrs, sx, sy, img.Width, img.Height), nil
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
