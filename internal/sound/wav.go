package sound

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// wavStream is a fully-decoded, preloaded PCM buffer read from a WAV file,
// converted to interleaved f32. It supports exact Seek (O(1), since the
// whole buffer lives in memory) and Clone (multiple concurrent playbacks
// share the same backing slice and each get their own read cursor).
//
// Grounded on the teacher's loadWAV (internal/streaming/audio.go): skip the
// 44-byte header, read 16-bit LE PCM samples — generalized here to
// arbitrary channel counts instead of a hardcoded stereo assumption, and to
// f32 instead of int16.
type wavStream struct {
	format  Format
	samples []float32 // interleaved, shared across clones
	pos     int64      // in frames
}

// OpenWAV reads a 16-bit PCM WAV file fully into memory.
func OpenWAV(path string) (*wavStream, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeWAV(data)
}

func decodeWAV(data []byte) (*wavStream, error) {
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("sound: not a RIFF/WAVE file")
	}

	var (
		channels   int
		sampleRate int
		bitsPerSmp int
		pcm        []byte
	)

	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if body+chunkSize > len(data) {
			chunkSize = len(data) - body
		}
		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 {
				channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
				sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
				bitsPerSmp = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			}
		case "data":
			pcm = data[body : body+chunkSize]
		}
		offset = body + chunkSize
		if chunkSize%2 == 1 {
			offset++ // chunks are word-aligned
		}
	}

	if channels == 0 || sampleRate == 0 || bitsPerSmp != 16 {
		return nil, fmt.Errorf("sound: unsupported WAV format (channels=%d rate=%d bits=%d)", channels, sampleRate, bitsPerSmp)
	}

	numSamples := len(pcm) / 2
	samples := make([]float32, numSamples)
	for i := 0; i < numSamples; i++ {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		samples[i] = float32(v) / 32768.0
	}

	return &wavStream{
		format:  Format{SampleRate: sampleRate, Layout: layoutForChannels(channels)},
		samples: samples,
	}, nil
}

func layoutForChannels(n int) Layout {
	switch n {
	case 1:
		return Mono
	case 4:
		return Quad
	case 6:
		return Surround51
	case 8:
		return Surround71
	default:
		return Stereo
	}
}

func (w *wavStream) Format() Format { return w.format }

func (w *wavStream) Read(buf []float32) (int, error) {
	ch := w.format.Layout.Channels()
	framesAvail := int64(len(w.samples)/ch) - w.pos
	if framesAvail <= 0 {
		return 0, io.EOF
	}
	requested := int64(len(buf) / ch)
	if requested > framesAvail {
		requested = framesAvail
	}
	start := w.pos * int64(ch)
	n := copy(buf, w.samples[start:start+requested*int64(ch)])
	w.pos += requested
	if requested*int64(ch) < int64(n) {
		// unreachable given ch math above, kept for clarity of invariant
	}
	return int(requested), nil
}

func (w *wavStream) Close() error { return nil }

// Seek implements Seeker: exact, O(1) since the buffer is fully resident.
func (w *wavStream) Seek(frame int64) (int64, error) {
	ch := w.format.Layout.Channels()
	total := int64(len(w.samples) / ch)
	if frame < 0 {
		frame = 0
	}
	if frame > total {
		frame = total
	}
	w.pos = frame
	return frame, nil
}

// Clone implements Cloner: a new cursor over the same shared buffer. rate
// and layout are accepted for interface conformance; a preloaded WAV is
// already decoded at its native format and conversion is the resampler's
// job, not the stream's.
func (w *wavStream) Clone(rate int, layout Layout) (FormattedSoundStream, error) {
	return &wavStream{format: w.format, samples: w.samples}, nil
}

// EstimateLen implements LenEstimator.
func (w *wavStream) EstimateLen() (int64, bool) {
	ch := w.format.Layout.Channels()
	return int64(len(w.samples) / ch), true
}
