package audio

import (
	"bytes"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV encodes mono float32 samples as a 16-bit PCM WAV file at path.
func WriteWAV(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return encodeWAV(f, samples, sampleRate)
}

// EncodeWAV encodes mono float32 samples as an in-memory WAV byte slice,
// for callers (e.g. multipart uploads to an ASR sidecar) that need the
// bytes rather than a file.
func EncodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	var buf memWriteSeeker
	if err := encodeWAV(&buf, samples, sampleRate); err != nil {
		return nil, err
	}
	return buf.buf.Bytes(), nil
}

func encodeWAV(w ioWriteSeeker, samples []float32, sampleRate int) error {
	enc := wav.NewEncoder(w, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format: &audio.Format{SampleRate: sampleRate, NumChannels: 1},
		Data:   make([]int, len(samples)),
	}
	for i, s := range samples {
		clamped := s
		if clamped > 1 {
			clamped = 1
		}
		if clamped < -1 {
			clamped = -1
		}
		buf.Data[i] = int(clamped * 32767)
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}

type ioWriteSeeker interface {
	Write(p []byte) (int, error)
	Seek(offset int64, whence int) (int64, error)
}

// memWriteSeeker is a minimal in-memory io.WriteSeeker: go-audio/wav needs
// to seek back and patch the RIFF/data chunk sizes after writing samples,
// which a bytes.Buffer alone can't do.
type memWriteSeeker struct {
	buf bytes.Buffer
	pos int64
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(m.buf.Len()) {
		grown := make([]byte, end)
		copy(grown, m.buf.Bytes())
		m.buf = *bytes.NewBuffer(grown)
		m.buf.Truncate(int(end))
	}
	b := m.buf.Bytes()
	copy(b[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case 0:
		newPos = offset
	case 1:
		newPos = m.pos + offset
	case 2:
		newPos = int64(m.buf.Len()) + offset
	default:
		return 0, fmt.Errorf("memWriteSeeker: invalid whence %d", whence)
	}
	if newPos < 0 {
		return 0, fmt.Errorf("memWriteSeeker: negative position")
	}
	m.pos = newPos
	return newPos, nil
}

// ReadWAV decodes a mono or stereo WAV file at path into float32 samples,
// downmixing to mono by averaging channels, and returns the sample rate.
func ReadWAV(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, err
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	n := len(buf.Data) / channels
	samples := make([]float32, n)
	maxVal := float32(int(1) << (buf.SourceBitDepth - 1))
	for i := 0; i < n; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += float32(buf.Data[i*channels+c])
		}
		samples[i] = (sum / float32(channels)) / maxVal
	}

	return samples, buf.Format.SampleRate, nil
}
