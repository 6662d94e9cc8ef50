package audio_test

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/corvid-labs/voxline/pkg/audio"
)

// buildWAV assembles a minimal 16-bit PCM RIFF/WAVE file around samples.
func buildWAV(t *testing.T, sampleRate, channels int, samples []int16) []byte {
	t.Helper()
	dataLen := len(samples) * 2
	buf := make([]byte, 0, 44+dataLen)

	u32 := func(v int) []byte {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(v))
		return b
	}
	u16 := func(v int) []byte {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(v))
		return b
	}

	buf = append(buf, []byte("RIFF")...)
	buf = append(buf, u32(36+dataLen)...)
	buf = append(buf, []byte("WAVE")...)
	buf = append(buf, []byte("fmt ")...)
	buf = append(buf, u32(16)...)
	buf = append(buf, u16(1)...) // PCM
	buf = append(buf, u16(channels)...)
	buf = append(buf, u32(sampleRate)...)
	buf = append(buf, u32(sampleRate*channels*2)...)
	buf = append(buf, u16(channels*2)...)
	buf = append(buf, u16(16)...)
	buf = append(buf, []byte("data")...)
	buf = append(buf, u32(dataLen)...)
	for _, s := range samples {
		buf = append(buf, u16(int(uint16(s)))...)
	}
	return buf
}

func TestParseWAV_RejectsGarbage(t *testing.T) {
	t.Parallel()
	for _, input := range [][]byte{nil, []byte("short"), []byte("RIFFxxxxNOPE????????")} {
		if _, err := audio.ParseWAV(input); !errors.Is(err, audio.ErrInvalidWAV) {
			t.Errorf("ParseWAV(%q) err = %v, want ErrInvalidWAV", input, err)
		}
	}
}

func TestAnalyze_Duration(t *testing.T) {
	t.Parallel()
	// 16000 samples at 16 kHz mono = exactly 1 second.
	samples := make([]int16, 16000)
	wav := buildWAV(t, 16000, 1, samples)

	a, err := audio.Analyze(wav)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if math.Abs(a.DurationSeconds-1.0) > 1e-9 {
		t.Errorf("duration = %v, want 1.0", a.DurationSeconds)
	}
	if a.SampleRate != 16000 || a.Channels != 1 {
		t.Errorf("format = %d Hz %d ch, want 16000 Hz 1 ch", a.SampleRate, a.Channels)
	}
}

func TestAnalyze_SilenceHasZeroSNR(t *testing.T) {
	t.Parallel()
	wav := buildWAV(t, 16000, 1, make([]int16, 16000))

	a, err := audio.Analyze(wav)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if a.SNRdB != 0 {
		t.Errorf("silent SNR = %v, want 0", a.SNRdB)
	}
}

func TestAnalyze_SpeechOverNoiseHasPositiveSNR(t *testing.T) {
	t.Parallel()
	// Half the frames carry a loud tone, half a faint one. The louder
	// interleaved frames should dominate the 90th percentile.
	const rate = 16000
	samples := make([]int16, rate)
	frame := rate * 20 / 1000
	for i := range samples {
		phase := 2 * math.Pi * 200 * float64(i) / rate
		amp := 200.0
		if (i/frame)%2 == 0 {
			amp = 12000.0
		}
		samples[i] = int16(amp * math.Sin(phase))
	}
	wav := buildWAV(t, rate, 1, samples)

	a, err := audio.Analyze(wav)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if a.SNRdB < 20 {
		t.Errorf("SNR = %v dB, want at least 20 dB for a 35 dB level gap", a.SNRdB)
	}
}

func TestStereoToMono_Averages(t *testing.T) {
	t.Parallel()
	// One stereo frame: L=100, R=300 → mono 200.
	pcm := []byte{100, 0, 44, 1}
	mono := audio.StereoToMono(pcm)
	if len(mono) != 2 {
		t.Fatalf("mono length = %d, want 2", len(mono))
	}
	got := int16(mono[0]) | int16(mono[1])<<8
	if got != 200 {
		t.Errorf("mono sample = %d, want 200", got)
	}
}
