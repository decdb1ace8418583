// Package hwprobe detects the local accelerator once at startup and
// derives the policy (concurrency, separator tier) that the rest of the
// pipeline reads instead of probing hardware itself. Probing shells out
// and parses GPU tool output, degrading to a safe default on any error so
// it never blocks startup.
package hwprobe

import (
	"context"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Profile is the capability profile derived once at process start.
type Profile struct {
	HasAccelerator      bool
	AcceleratorName     string
	AcceleratorMemoryMB int
	CPUCores            int

	PrimaryDevice    string
	EnableSeparation bool
	SeparatorTier    string // "heavy", "light", or "" (disabled)
	Concurrency      int
}

var (
	once     sync.Once
	detected Profile
)

// Detect returns the memoized hardware profile, probing on first call.
// Never fatal: probe failures fall back to a CPU-only profile.
func Detect() Profile {
	once.Do(func() {
		detected = detect()
	})
	return detected
}

func detect() Profile {
	p := Profile{CPUCores: runtime.NumCPU(), Concurrency: 1}

	name, memMB, ok := probeNvidia()
	if !ok {
		p.PrimaryDevice = "cpu"
		return p
	}

	p.HasAccelerator = true
	p.AcceleratorName = name
	p.AcceleratorMemoryMB = memMB
	p.PrimaryDevice = "cuda"

	switch {
	case memMB >= 8192:
		p.EnableSeparation = true
		p.SeparatorTier = "heavy"
	case memMB >= 4096:
		p.EnableSeparation = true
		p.SeparatorTier = "light"
	default:
		p.EnableSeparation = false
	}

	return p
}

// probeNvidia shells out to nvidia-smi; returns ok=false on any failure
// (binary missing, no GPU, parse error) rather than erroring the caller.
func probeNvidia() (name string, memMB int, ok bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu=name,memory.total", "--format=csv,noheader,nounits")
	out, err := cmd.Output()
	if err != nil {
		return "", 0, false
	}

	line := strings.TrimSpace(strings.Split(string(out), "\n")[0])
	parts := strings.Split(line, ",")
	if len(parts) != 2 {
		return "", 0, false
	}

	mem, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return "", 0, false
	}

	return strings.TrimSpace(parts[0]), mem, true
}
