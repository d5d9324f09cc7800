package tensordesc

import "testing"

func TestMakeDescProbmapNCHW(t *testing.T) {
	d := MakeDescProbmap([]int64{1, 1, 480, 640})
	if d.Layout != NCHW {
		t.Fatalf("layout = %v, want NCHW", d.Layout)
	}
	if d.C != 1 || d.H != 480 || d.W != 640 {
		t.Fatalf("dims = (C=%d,H=%d,W=%d), want (1,480,640)", d.C, d.H, d.W)
	}
}

func TestMakeDescProbmapNHWCUnambiguous(t *testing.T) {
	// NCHW candidate channel is 480 (not "small"), NHWC candidate channel
	// is 1 (small): only the NHWC interpretation qualifies.
	d := MakeDescProbmap([]int64{1, 480, 640, 1})
	if d.Layout != NHWC {
		t.Fatalf("layout = %v, want NHWC", d.Layout)
	}
	if d.C != 1 || d.H != 480 || d.W != 640 {
		t.Fatalf("dims = (C=%d,H=%d,W=%d), want (1,480,640)", d.C, d.H, d.W)
	}
}

func TestMakeDescProbmapAmbiguousPrefersLargerArea(t *testing.T) {
	// NCHW candidate: C=1,H=2,W=2 -> area 4. NHWC candidate: H=1,W=2,C=2 -> area 2.
	d := MakeDescProbmap([]int64{1, 1, 2, 2})
	if d.Layout != NCHW {
		t.Fatalf("layout = %v, want NCHW (larger spatial area)", d.Layout)
	}
}

func TestMakeDescProbmapFullyAmbiguousPrefersNHWC(t *testing.T) {
	d := MakeDescProbmap([]int64{1, 2, 2, 2})
	if d.Layout != NHWC {
		t.Fatalf("layout = %v, want NHWC (policy tiebreak)", d.Layout)
	}
}

func TestMakeDescProbmapRank3(t *testing.T) {
	d := MakeDescProbmap([]int64{1, 100, 200})
	if d.Layout != N1HW || d.C != 1 || d.H != 100 || d.W != 200 {
		t.Fatalf("rank3 desc = %+v", d)
	}
}

func TestMakeDescProbmapRank2(t *testing.T) {
	d := MakeDescProbmap([]int64{50, 60})
	if d.Layout != HW || d.N != 1 || d.C != 1 || d.H != 50 || d.W != 60 {
		t.Fatalf("rank2 desc = %+v", d)
	}
}

func TestMakeDescProbmapUnknownRank(t *testing.T) {
	d := MakeDescProbmap([]int64{1})
	if d.Layout != Unknown {
		t.Fatalf("layout = %v, want Unknown", d.Layout)
	}
}

func TestExtractHWChannelNCHW(t *testing.T) {
	desc := MakeDescProbmap([]int64{1, 2, 2, 2})
	_ = desc
	// Build an explicit NCHW desc: C=2,H=2,W=2.
	d := TensorDesc{Layout: NCHW, C: 2, H: 2, W: 2}
	data := []float32{
		0, 1, 2, 3, // channel 0
		10, 11, 12, 13, // channel 1
	}
	var scratch []float32
	plane := ExtractHWChannel(data, d, 1, &scratch)
	want := []float32{10, 11, 12, 13}
	for i := range want {
		if plane[i] != want[i] {
			t.Fatalf("plane = %v, want %v", plane, want)
		}
	}
}

func TestExtractHWChannelNHWCGathers(t *testing.T) {
	d := TensorDesc{Layout: NHWC, C: 2, H: 2, W: 2}
	// interleaved: for each of 4 spatial positions, 2 channels
	data := []float32{
		0, 10,
		1, 11,
		2, 12,
		3, 13,
	}
	var scratch []float32
	plane := ExtractHWChannel(data, d, 1, &scratch)
	want := []float32{10, 11, 12, 13}
	for i := range want {
		if plane[i] != want[i] {
			t.Fatalf("plane = %v, want %v", plane, want)
		}
	}
}

func TestExtractHWChannelHWSingle(t *testing.T) {
	d := TensorDesc{Layout: HW, C: 1, H: 2, W: 2}
	data := []float32{1, 2, 3, 4}
	var scratch []float32
	plane := ExtractHWChannel(data, d, 0, &scratch)
	for i := range data {
		if plane[i] != data[i] {
			t.Fatalf("plane = %v, want %v", plane, data)
		}
	}
}

func TestExtractHWChannelInvalidDims(t *testing.T) {
	d := TensorDesc{Layout: HW, H: 0, W: 0}
	var scratch []float32
	if plane := ExtractHWChannel([]float32{1, 2, 3}, d, 0, &scratch); plane != nil {
		t.Fatalf("plane = %v, want nil for zero H/W", plane)
	}
}
