package sound

import (
	"encoding/binary"
	"io"
)

// WriteWAVHeader writes a 16-bit PCM WAV header for numFrames frames at
// the given sample rate and channel count, leaving the caller to append
// raw PCM sample data afterward. Mirrors decodeWAV's chunk layout in
// reverse (RIFF/WAVE, "fmt ", "data"), the same 44-byte canonical header
// the teacher's loadWAV expects on read.
func WriteWAVHeader(w io.Writer, sampleRate, channels int, numFrames int64) error {
	dataBytes := numFrames * int64(channels) * 2
	byteRate := sampleRate * channels * 2
	blockAlign := channels * 2

	hdr := make([]byte, 44)
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(36+dataBytes))
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(hdr[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(hdr[34:36], 16) // bits per sample
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], uint32(dataBytes))

	_, err := w.Write(hdr)
	return err
}

// WriteWAVFrames converts interleaved f32 samples to 16-bit PCM, clamping
// each to [-1,1] first, and writes them.
func WriteWAVFrames(w io.Writer, samples []float32) error {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	_, err := w.Write(buf)
	return err
}
