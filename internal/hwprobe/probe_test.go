package hwprobe

import (
	"runtime"
	"testing"
)

func TestDetectNeverFails(t *testing.T) {
	p := Detect()
	if p.CPUCores != runtime.NumCPU() {
		t.Errorf("CPUCores = %d, want %d", p.CPUCores, runtime.NumCPU())
	}
	if p.Concurrency < 1 {
		t.Errorf("Concurrency = %d, want at least 1", p.Concurrency)
	}
	if !p.HasAccelerator && p.PrimaryDevice != "cpu" {
		t.Errorf("no accelerator detected but PrimaryDevice = %q, want cpu", p.PrimaryDevice)
	}
}

func TestDetectIsMemoized(t *testing.T) {
	first := Detect()
	second := Detect()
	if first != second {
		t.Errorf("Detect() returned different profiles on repeated calls: %+v vs %+v", first, second)
	}
}
