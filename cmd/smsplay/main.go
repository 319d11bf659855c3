// Command smsplay is a minimal host for the SMS engine: it loads a
// soundtrack source file, drives the engine's TurnHandle loop against a
// live speaker, and optionally exposes the debug inspector. It plays the
// same role cmd/server and cmd/streamer play for fight-club — a thin
// wiring layer, not where the interesting logic lives.
package main

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"smsengine/internal/control"
	"smsengine/internal/control/httpapi"
	"smsengine/internal/engine"
	"smsengine/internal/sound"
	"smsengine/internal/soundtrack/dsl"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
	"github.com/joho/godotenv"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "render" {
		runRender(os.Args[2:])
		return
	}

	if err := godotenv.Load(); err != nil {
		log.Println("💡 No .env file found, using environment variables only")
	} else {
		log.Println("✅ Loaded environment from .env")
	}

	log.Println("🎵 ================================")
	log.Println("🎵  SECOND MUSIC SYSTEM - smsplay")
	log.Println("🎵 ================================")

	assetRoot := getEnvWithDefault("SMS_ASSET_ROOT", "assets")
	trackPath := getEnvWithDefault("SMS_SOUNDTRACK_FILE", "assets/soundtrack.track")
	sampleRate := getEnvInt("SMS_SAMPLE_RATE", 44100)
	layout := layoutFromEnv("SMS_LAYOUT", sound.Stereo)
	background := getEnvWithDefault("SMS_BACKGROUND_LOADING", "true") == "true"
	httpAddr := getEnvWithDefault("SMS_HTTP_ADDR", "")

	log.Printf("📁 Asset root: %s", assetRoot)
	log.Printf("🎼 Soundtrack: %s", trackPath)
	log.Printf("🔊 %d Hz, %s", sampleRate, layout)

	delegate := sound.NewFileDelegate(assetRoot)

	eng, err := engine.New(engine.Config{
		Delegate:          delegate,
		SpeakerLayout:     layout,
		SampleRate:        sampleRate,
		NumThreads:        getEnvInt("SMS_LOADER_THREADS", 0),
		BackgroundLoading: background,
	})
	if err != nil {
		log.Fatalf("❌ Failed to construct engine: %v", err)
	}
	defer eng.Close()

	src, err := os.ReadFile(trackPath)
	if err != nil {
		log.Fatalf("❌ Failed to read soundtrack file %s: %v", trackPath, err)
	}
	track, err := dsl.Parse(string(src))
	if err != nil {
		log.Fatalf("❌ Failed to parse soundtrack: %v", err)
	}
	eng.Commander().ReplaceSoundtrack(track)
	log.Printf("✅ Soundtrack loaded: %d flows, %d sounds, %d sequences",
		len(track.Flows), len(track.Sounds), len(track.Sequences))

	if err := speaker.Init(beep.SampleRate(sampleRate), sampleRate/10); err != nil {
		log.Fatalf("❌ Failed to open speaker: %v", err)
	}
	speaker.Play(&engineStreamer{engine: eng, channels: layout.Channels()})
	log.Println("✅ Audio thread running")

	if httpAddr != "" {
		srv := httpapi.NewServer(eng)
		go func() {
			if err := srv.Start(httpAddr); err != nil {
				log.Printf("⚠️ Debug inspector disabled: %v", err)
			}
		}()
		defer srv.Stop()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	log.Println("✅ smsplay ready! Press Ctrl+C to stop.")
	<-quit

	log.Println("🛑 Shutting down...")
	speaker.Close()
	log.Println("👋 Goodbye!")
}

const renderBlockFrames = 512

// runRender drives the engine in foreground (synchronous-load) mode for a
// fixed duration and writes the mixed output to a WAV file — the
// deterministic "recording pipeline" host named in spec §1, as opposed to
// the live-speaker path above. Foreground mode makes output a pure
// function of (soundtrack, flow, duration, sample rate): no background
// loader goroutine can finish a decode between one run and the next.
func runRender(args []string) {
	if len(args) != 3 {
		log.Fatalf("usage: smsplay render <flow-name> <seconds> <output.wav>")
	}
	flowName := args[0]
	seconds, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		log.Fatalf("❌ bad seconds %q: %v", args[1], err)
	}
	outPath := args[2]

	assetRoot := getEnvWithDefault("SMS_ASSET_ROOT", "assets")
	trackPath := getEnvWithDefault("SMS_SOUNDTRACK_FILE", "assets/soundtrack.track")
	sampleRate := getEnvInt("SMS_SAMPLE_RATE", 44100)
	layout := layoutFromEnv("SMS_LAYOUT", sound.Stereo)

	delegate := sound.NewFileDelegate(assetRoot)
	eng, err := engine.New(engine.Config{
		Delegate:          delegate,
		SpeakerLayout:     layout,
		SampleRate:        sampleRate,
		BackgroundLoading: false,
	})
	if err != nil {
		log.Fatalf("❌ Failed to construct engine: %v", err)
	}
	defer eng.Close()

	src, err := os.ReadFile(trackPath)
	if err != nil {
		log.Fatalf("❌ Failed to read soundtrack file %s: %v", trackPath, err)
	}
	track, err := dsl.Parse(string(src))
	if err != nil {
		log.Fatalf("❌ Failed to parse soundtrack: %v", err)
	}
	eng.Commander().ReplaceSoundtrack(track)
	eng.Commander().StartFlow(flowName, 1.0, 0, control.CurveLinear)

	out, err := os.Create(outPath)
	if err != nil {
		log.Fatalf("❌ Failed to create %s: %v", outPath, err)
	}
	defer out.Close()

	ch := layout.Channels()
	totalFrames := int64(seconds * float64(sampleRate))
	if err := sound.WriteWAVHeader(out, sampleRate, ch, totalFrames); err != nil {
		log.Fatalf("❌ Failed to write WAV header: %v", err)
	}

	buf := make([]float32, renderBlockFrames*ch)
	var written int64
	for written < totalFrames {
		blockFrames := int64(renderBlockFrames)
		if remain := totalFrames - written; remain < blockFrames {
			blockFrames = remain
		}
		block := buf[:blockFrames*int64(ch)]
		for i := range block {
			block[i] = 0
		}
		eng.TurnHandle(block)
		if err := sound.WriteWAVFrames(out, block); err != nil {
			log.Fatalf("❌ Failed to write samples: %v", err)
		}
		written += blockFrames
	}
	log.Printf("✅ Rendered %.2fs of flow %q to %s", seconds, flowName, outPath)
}

// engineStreamer adapts Engine.TurnHandle to beep.Streamer, the same
// decoded-PCM-to-beep-buffer conversion MusicPlayer.ReadSamples performs,
// generalized from stereo int16 to the engine's native interleaved f32.
type engineStreamer struct {
	engine   *engine.Engine
	channels int
	scratch  []float32
}

func (s *engineStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	frames := len(samples)
	need := frames * s.channels
	if cap(s.scratch) < need {
		s.scratch = make([]float32, need)
	}
	buf := s.scratch[:need]
	for i := range buf {
		buf[i] = 0
	}
	s.engine.TurnHandle(buf)

	for i := 0; i < frames; i++ {
		l := buf[i*s.channels]
		r := l
		if s.channels > 1 {
			r = buf[i*s.channels+1]
		}
		samples[i][0] = float64(l)
		samples[i][1] = float64(r)
	}
	return frames, true
}

func (s *engineStreamer) Err() error { return nil }

func getEnvWithDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func layoutFromEnv(key string, defaultVal sound.Layout) sound.Layout {
	switch os.Getenv(key) {
	case "mono":
		return sound.Mono
	case "stereo":
		return sound.Stereo
	case "headphones":
		return sound.Headphones
	case "quad":
		return sound.Quad
	case "5.1":
		return sound.Surround51
	case "7.1":
		return sound.Surround71
	case "":
		return defaultVal
	default:
		return defaultVal
	}
}
