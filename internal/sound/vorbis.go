package sound

import (
	"io"
	"os"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/vorbis"
)

// vorbisStream is a streaming (not fully decoded) OGG Vorbis source,
// decoded on demand through gopxl/beep. Grounded directly on the teacher's
// MusicPlayer (internal/streaming/music_player.go): beep always works in
// stereo [][2]float64 frames internally, so a mono file still streams as
// stereo here; SMS's resampler/remap stage (internal/resample) handles the
// conversion to whatever the engine's internal layout actually is.
type vorbisStream struct {
	file      *os.File
	streamer  beep.StreamSeekCloser
	format    beep.Format
	resampled beep.Streamer // == streamer, or a beep.Resample wrapper
	outRate   int

	scratch [][2]float64 // reused decode buffer, avoids per-Read allocation
}

// OpenVorbis opens path for streaming OGG Vorbis decode at the file's
// native sample rate. The decoder reads ~tens of KB at a time rather than
// fully materializing the track, matching the "Streamed" DecodePolicy's
// memory profile.
func OpenVorbis(path string) (*vorbisStream, error) {
	return OpenVorbisAtRate(path, 0)
}

// OpenVorbisAtRate opens path and, if targetRate differs from the file's
// native rate, wraps the decoder in beep.Resample(4, ...) so the stream
// already reports targetRate — the same resampling call the teacher's
// MusicPlayer.load makes when an OGG's rate doesn't match the mixer's.
// targetRate == 0 means "use the file's native rate, no resampling".
func OpenVorbisAtRate(path string, targetRate int) (*vorbisStream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	streamer, format, err := vorbis.Decode(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	v := &vorbisStream{file: f, streamer: streamer, format: format}
	if targetRate > 0 && int(format.SampleRate) != targetRate {
		v.resampled = beep.Resample(4, format.SampleRate, beep.SampleRate(targetRate), streamer)
		v.outRate = targetRate
	} else {
		v.resampled = streamer
		v.outRate = int(format.SampleRate)
	}
	return v, nil
}

func (v *vorbisStream) Format() Format {
	return Format{SampleRate: v.outRate, Layout: Stereo}
}

func (v *vorbisStream) Read(buf []float32) (int, error) {
	frames := len(buf) / 2
	if cap(v.scratch) < frames {
		v.scratch = make([][2]float64, frames)
	}
	work := v.scratch[:frames]
	n, ok := v.resampled.Stream(work)
	for i := 0; i < n; i++ {
		buf[i*2] = float32(work[i][0])
		buf[i*2+1] = float32(work[i][1])
	}
	if !ok || n < frames {
		if n == 0 {
			return 0, io.EOF
		}
		return n, nil
	}
	return n, nil
}

func (v *vorbisStream) Close() error {
	if err := v.streamer.Close(); err != nil {
		v.file.Close()
		return err
	}
	return v.file.Close()
}

// Seek implements Seeker using beep's StreamSeeker.
func (v *vorbisStream) Seek(frame int64) (int64, error) {
	if err := v.streamer.Seek(int(frame)); err != nil {
		return 0, ErrNotSupported
	}
	return frame, nil
}

// Clone implements Cloner by reopening the file with a fresh decoder. The
// teacher's MusicPlayer only ever has one active instance; SMS generalizes
// that to "open a second independent decoder, same file" for concurrent
// playback of a streamed Sound.
func (v *vorbisStream) Clone(rate int, layout Layout) (FormattedSoundStream, error) {
	return OpenVorbisAtRate(v.file.Name(), rate)
}

// EstimateLen implements LenEstimator via beep's Len().
func (v *vorbisStream) EstimateLen() (int64, bool) {
	if seeker, ok := v.streamer.(beep.StreamSeeker); ok {
		return int64(seeker.Len()), true
	}
	return UnknownLength, false
}
