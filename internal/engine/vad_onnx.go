//go:build onnxvad

package engine

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/capgen-ai/capgen/internal/domain"
)

// onnxFrameSamples is Silero VAD's native frame size: 32ms at 16kHz.
const onnxFrameSamples = 512

// ONNXSileroVAD runs the Silero VAD ONNX model locally instead of the
// energy-threshold heuristic. Built only with the onnxvad tag, since it
// links against the onnxruntime shared library.
type ONNXSileroVAD struct {
	mu        sync.Mutex
	modelPath string
	threshold float64

	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	state   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func NewONNXSileroVAD(modelPath string, threshold float64) *ONNXSileroVAD {
	return &ONNXSileroVAD{modelPath: modelPath, threshold: threshold}
}

func (v *ONNXSileroVAD) Load(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.session != nil {
		return nil
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime: %w", err)
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, onnxFrameSamples))
	if err != nil {
		return fmt.Errorf("allocate input tensor: %w", err)
	}
	state, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, 128))
	if err != nil {
		return fmt.Errorf("allocate state tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		return fmt.Errorf("allocate output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(v.modelPath,
		[]string{"input", "state"}, []string{"output", "stateN"},
		[]ort.Value{input, state}, []ort.Value{output}, nil)
	if err != nil {
		return fmt.Errorf("create onnx session: %w", err)
	}

	v.input, v.state, v.output, v.session = input, state, output, session
	return nil
}

func (v *ONNXSileroVAD) Unload(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.session == nil {
		return nil
	}
	v.session.Destroy()
	v.input.Destroy()
	v.state.Destroy()
	v.output.Destroy()
	v.session = nil
	return ort.DestroyEnvironment()
}

// Segment runs the model frame by frame and merges consecutive speech
// frames into chunks the same way EnergyVAD does.
func (v *ONNXSileroVAD) Segment(ctx context.Context, samples []float32, sampleRate int) ([]domain.VADSegment, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.session == nil {
		return nil, fmt.Errorf("onnx vad: model not loaded")
	}

	var blocks []rawBlock
	inSpeech := false
	var blockStart float64

	for off := 0; off+onnxFrameSamples <= len(samples); off += onnxFrameSamples {
		copy(v.input.GetData(), samples[off:off+onnxFrameSamples])
		if err := v.session.Run(); err != nil {
			return nil, fmt.Errorf("onnx vad inference: %w", err)
		}
		prob := float64(v.output.GetData()[0])
		t0 := float64(off) / float64(sampleRate)
		t1 := float64(off+onnxFrameSamples) / float64(sampleRate)

		switch {
		case prob >= v.threshold && !inSpeech:
			inSpeech = true
			blockStart = t0
		case prob < v.threshold && inSpeech:
			inSpeech = false
			blocks = append(blocks, rawBlock{start: blockStart, end: t1})
		}
	}
	if inSpeech {
		blocks = append(blocks, rawBlock{start: blockStart, end: float64(len(samples)) / float64(sampleRate)})
	}

	merged := mergeBlocks(blocks, 15, 30)
	segments := make([]domain.VADSegment, 0, len(merged))
	for i, b := range merged {
		if b.end <= b.start {
			continue
		}
		segments = append(segments, domain.VADSegment{Index: i, StartSec: b.start, EndSec: b.end})
	}
	return segments, nil
}
