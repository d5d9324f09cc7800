package idetgo

import (
	"testing"

	"github.com/screenager/idetgo/internal/engine"
	"github.com/screenager/idetgo/internal/geometry"
	"github.com/screenager/idetgo/internal/nms"
)

func TestInvalidDetectorRejectsEveryMethod(t *testing.T) {
	d := &Detector{valid: false}

	if d.IsValid() {
		t.Fatal("IsValid true on a never-initialized detector")
	}
	if _, err := d.Detect(Image{}); CodeOf(err) != CodeInvalidArgument {
		t.Fatalf("Detect err = %v, want CodeInvalidArgument", err)
	}
	if _, err := d.DetectBound(Image{}, 0); CodeOf(err) != CodeInvalidArgument {
		t.Fatalf("DetectBound err = %v, want CodeInvalidArgument", err)
	}
	if err := d.UpdateConfig(DetectorConfig{}); CodeOf(err) != CodeInvalidArgument {
		t.Fatalf("UpdateConfig err = %v, want CodeInvalidArgument", err)
	}
	if err := d.PrepareBinding(32, 32, 1); CodeOf(err) != CodeInvalidArgument {
		t.Fatalf("PrepareBinding err = %v, want CodeInvalidArgument", err)
	}
}

func TestResetMarksDetectorInvalid(t *testing.T) {
	d := &Detector{valid: true}
	d.Reset()
	if d.IsValid() {
		t.Fatal("IsValid true after Reset")
	}
	d.Reset() // must be idempotent and not panic on a nil engine
}

func TestViewToEngineImagePassesThroughBGR8(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6}
	v := ImageView{Data: data, Width: 2, Height: 1, StrideBytes: 6, Format: PixelFormatBGR8}
	img, err := viewToEngineImage(v)
	if err != nil {
		t.Fatalf("viewToEngineImage: %v", err)
	}
	if img.Channels != 3 || &img.Data[0] != &data[0] {
		t.Fatalf("expected a zero-copy BGR8 passthrough, got %+v", img)
	}
}

func TestViewToEngineImageSwapsRGBToBGR(t *testing.T) {
	v := ImageView{Data: []byte{10, 20, 30}, Width: 1, Height: 1, StrideBytes: 3, Format: PixelFormatRGB8}
	img, err := viewToEngineImage(v)
	if err != nil {
		t.Fatalf("viewToEngineImage: %v", err)
	}
	if img.Data[0] != 30 || img.Data[1] != 20 || img.Data[2] != 10 {
		t.Fatalf("data = %v, want BGR(30,20,10)", img.Data)
	}
}

func TestViewToEngineImageRejectsInvalidView(t *testing.T) {
	if _, err := viewToEngineImage(ImageView{}); err == nil {
		t.Fatal("expected error for empty view")
	}
}

func TestQuadFromEngineCopiesPoints(t *testing.T) {
	pts := [4]geometry.Point2f{{X: 1, Y: 2}, {X: 3, Y: 4}, {X: 5, Y: 6}, {X: 7, Y: 8}}
	q := quadFromEngine(pts)
	for i := range pts {
		if q.Pts[i].X != pts[i].X || q.Pts[i].Y != pts[i].Y {
			t.Fatalf("quad[%d] = %+v, want %+v", i, q.Pts[i], pts[i])
		}
	}
}

func TestNMSDetsFromEngineRoundTripsThroughQuads(t *testing.T) {
	dets := []engine.Detection{
		{Pts: [4]geometry.Point2f{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}, Score: 0.9},
	}
	nd := nmsDetsFromEngine(dets)
	suppressed := nms.Suppress(nd, 0.3, false)
	quads := quadsFromNMS(suppressed)
	if len(quads) != 1 {
		t.Fatalf("len(quads) = %d, want 1", len(quads))
	}
	if quads[0].Pts[2].X != 10 || quads[0].Pts[2].Y != 10 {
		t.Fatalf("quads[0] = %+v", quads[0])
	}
}

// fakeEngine is a minimal engine.Engine stub recording how Detect/DetectBound
// dispatch, used to pin down the bound-vs-unbound and context-selection
// behavior without touching ONNX Runtime.
type fakeEngine struct {
	bindingReady bool
	contexts     int

	unboundCalls int
	boundCtxIdx  []int
}

func (f *fakeEngine) Kind() engine.Kind           { return engine.DBNet }
func (f *fakeEngine) Task() engine.Task           { return engine.TaskText }
func (f *fakeEngine) Config() engine.Config       { return engine.Config{Kind: engine.DBNet, Task: engine.TaskText} }
func (f *fakeEngine) UpdateHot(engine.Config) error { return nil }
func (f *fakeEngine) SetupBinding(w, h, contexts int) error {
	f.bindingReady = true
	f.contexts = contexts
	return nil
}
func (f *fakeEngine) UnsetBinding()        { f.bindingReady = false }
func (f *fakeEngine) BindingReady() bool   { return f.bindingReady }
func (f *fakeEngine) BoundW() int          { return 32 }
func (f *fakeEngine) BoundH() int          { return 32 }
func (f *fakeEngine) BoundContexts() int   { return f.contexts }
func (f *fakeEngine) Close() error         { return nil }

func (f *fakeEngine) InferUnbound(img engine.Image) ([]engine.Detection, error) {
	f.unboundCalls++
	return nil, nil
}

func (f *fakeEngine) InferBound(img engine.Image, ctxIdx int) ([]engine.Detection, error) {
	f.boundCtxIdx = append(f.boundCtxIdx, ctxIdx)
	return nil, nil
}

func newTestImage() Image {
	data := make([]byte, 12)
	return NewImageView(ImageView{Data: data, Width: 2, Height: 2, StrideBytes: 6, Format: PixelFormatBGR8})
}

func TestDetectFallsBackToUnboundWithoutBinding(t *testing.T) {
	fe := &fakeEngine{}
	d := &Detector{valid: true, eng: fe, infer: InferenceOptions{BindIO: true, NMSIoU: 0.3}}
	if _, err := d.Detect(newTestImage()); err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if fe.unboundCalls != 1 || len(fe.boundCtxIdx) != 0 {
		t.Fatalf("expected unbound dispatch when binding not ready, got unbound=%d bound=%v", fe.unboundCalls, fe.boundCtxIdx)
	}
}

func TestDetectUsesBoundRoundRobinWhenReady(t *testing.T) {
	fe := &fakeEngine{bindingReady: true, contexts: 2}
	d := &Detector{valid: true, eng: fe, infer: InferenceOptions{BindIO: true, NMSIoU: 0.3}}
	for i := 0; i < 4; i++ {
		if _, err := d.Detect(newTestImage()); err != nil {
			t.Fatalf("Detect: %v", err)
		}
	}
	if fe.unboundCalls != 0 {
		t.Fatalf("expected no unbound calls, got %d", fe.unboundCalls)
	}
	want := []int{0, 1, 0, 1}
	if len(fe.boundCtxIdx) != len(want) {
		t.Fatalf("boundCtxIdx = %v, want %v", fe.boundCtxIdx, want)
	}
	for i := range want {
		if fe.boundCtxIdx[i] != want[i] {
			t.Fatalf("boundCtxIdx = %v, want %v", fe.boundCtxIdx, want)
		}
	}
}

func TestDetectUsesUnboundWhenBindIOUnset(t *testing.T) {
	fe := &fakeEngine{bindingReady: false, contexts: 2}
	d := &Detector{valid: true, eng: fe, infer: InferenceOptions{BindIO: false, NMSIoU: 0.3}}
	if _, err := d.Detect(newTestImage()); err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if fe.unboundCalls != 1 {
		t.Fatalf("expected unbound dispatch when BindIO unset, got unbound=%d", fe.unboundCalls)
	}
}

func TestDetectBoundRejectsUnpreparedBinding(t *testing.T) {
	fe := &fakeEngine{}
	d := &Detector{valid: true, eng: fe, infer: InferenceOptions{NMSIoU: 0.3}}
	if _, err := d.DetectBound(newTestImage(), 0); CodeOf(err) != CodeInvalidArgument {
		t.Fatalf("DetectBound err = %v, want CodeInvalidArgument", err)
	}
}

func TestDetectBoundPinsCallerContext(t *testing.T) {
	fe := &fakeEngine{bindingReady: true, contexts: 2}
	d := &Detector{valid: true, eng: fe, infer: InferenceOptions{NMSIoU: 0.3}}
	if _, err := d.DetectBound(newTestImage(), 1); err != nil {
		t.Fatalf("DetectBound: %v", err)
	}
	if len(fe.boundCtxIdx) != 1 || fe.boundCtxIdx[0] != 1 {
		t.Fatalf("boundCtxIdx = %v, want [1]", fe.boundCtxIdx)
	}
}

func TestToEngineConfigMapsEngineToKindAndTask(t *testing.T) {
	cfg := DetectorConfig{Task: TaskFace, Engine: EngineSCRFD, ModelPath: "m.onnx"}
	ecfg := toEngineConfig(cfg)
	if ecfg.Kind != engine.SCRFD || ecfg.Task != engine.TaskFace {
		t.Fatalf("ecfg = %+v", ecfg)
	}

	cfg2 := DetectorConfig{Task: TaskText, Engine: EngineDBNet, ModelPath: "m.onnx"}
	ecfg2 := toEngineConfig(cfg2)
	if ecfg2.Kind != engine.DBNet || ecfg2.Task != engine.TaskText {
		t.Fatalf("ecfg2 = %+v", ecfg2)
	}
}
