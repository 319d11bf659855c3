package resample

import (
	"testing"

	"smsengine/internal/sound"
)

func TestBuildMatrixIdentityWhenLayoutsMatch(t *testing.T) {
	m := BuildMatrix(sound.Stereo, sound.Stereo)
	dst := make([]float32, 2)
	m.Remap(dst, []float32{0.3, 0.7})
	if dst[0] != 0.3 || dst[1] != 0.7 {
		t.Errorf("expected identity passthrough, got %v", dst)
	}
}

func TestBuildMatrixMonoToStereoDuplicates(t *testing.T) {
	m := BuildMatrix(sound.Mono, sound.Stereo)
	dst := make([]float32, 2)
	m.Remap(dst, []float32{0.6})
	if dst[0] != 0.6 || dst[1] != 0.6 {
		t.Errorf("expected mono duplicated to both channels, got %v", dst)
	}
}

func TestBuildMatrixStereoToMonoAverages(t *testing.T) {
	m := BuildMatrix(sound.Stereo, sound.Mono)
	dst := make([]float32, 1)
	m.Remap(dst, []float32{1.0, 0.0})
	if dst[0] != 0.5 {
		t.Errorf("expected averaged 0.5, got %v", dst[0])
	}
}

func TestBuildMatrixMonoToQuadDuplicatesFrontOnly(t *testing.T) {
	m := BuildMatrix(sound.Mono, sound.Quad)
	dst := make([]float32, 4)
	m.Remap(dst, []float32{0.9})
	if dst[0] != 0.9 || dst[1] != 0.9 {
		t.Errorf("expected front L/R duplicated, got %v", dst)
	}
	if dst[2] != 0 || dst[3] != 0 {
		t.Errorf("expected rear channels silent on mono upmix, got %v", dst)
	}
}

func TestBuildMatrixSurround51DownmixToStereoDropsLFE(t *testing.T) {
	m := BuildMatrix(sound.Surround51, sound.Stereo)
	src := []float32{1, 0, 0, 1, 0, 0} // FL=1, FR=0, FC=0, LFE=1, BL=0, BR=0
	dst := make([]float32, 2)
	m.Remap(dst, src)
	if dst[0] != 1 {
		t.Errorf("expected FL to pass straight through to L, got %v", dst[0])
	}
	// LFE (index 3) must not leak into either output channel.
	src2 := []float32{0, 0, 0, 1, 0, 0}
	dst2 := make([]float32, 2)
	m.Remap(dst2, src2)
	if dst2[0] != 0 || dst2[1] != 0 {
		t.Errorf("expected LFE to be dropped in downmix, got %v", dst2)
	}
}

func TestBuildMatrixUpmixStereoToQuadLeavesRearSilent(t *testing.T) {
	m := BuildMatrix(sound.Stereo, sound.Quad)
	dst := make([]float32, 4)
	m.Remap(dst, []float32{0.4, 0.8})
	if dst[0] != 0.4 || dst[1] != 0.8 {
		t.Errorf("expected front channels passed through, got %v", dst)
	}
	if dst[2] != 0 || dst[3] != 0 {
		t.Errorf("expected rear channels silent on stereo->quad upmix, got %v", dst)
	}
}

func TestRemapIgnoresExtraSourceChannels(t *testing.T) {
	m := BuildMatrix(sound.Stereo, sound.Stereo)
	dst := make([]float32, 2)
	// src has more entries than the matrix expects; Remap must not panic
	// and must ignore the extras.
	m.Remap(dst, []float32{0.1, 0.2, 0.3, 0.4})
	if dst[0] != 0.1 || dst[1] != 0.2 {
		t.Errorf("expected only the first 2 source channels used, got %v", dst)
	}
}
