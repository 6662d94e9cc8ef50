package audio

import (
	"math"
	"sort"
)

// snrFrameMillis is the analysis frame length for the SNR estimate. 20 ms
// frames are short enough to separate speech bursts from pauses.
const snrFrameMillis = 20

// Analysis summarises a voice sample for the quality gate.
type Analysis struct {
	// DurationSeconds is the playback length of the PCM payload.
	DurationSeconds float64

	// SNRdB is the estimated signal-to-noise ratio in decibels.
	SNRdB float64

	// SampleRate and Channels are carried from the container header.
	SampleRate int
	Channels   int
}

// Analyze parses wav and estimates its duration and signal-to-noise ratio.
// Only 16-bit PCM is supported; stereo input is downmixed before analysis.
//
// The SNR estimate splits the signal into short frames, takes the 10th
// percentile of frame RMS as the noise floor and the 90th percentile as the
// speech level, and reports their ratio in dB. Silent or constant input
// yields 0 dB.
func Analyze(wav []byte) (Analysis, error) {
	info, err := ParseWAV(wav)
	if err != nil {
		return Analysis{}, err
	}

	a := Analysis{
		DurationSeconds: info.Duration(),
		SampleRate:      info.SampleRate,
		Channels:        info.Channels,
	}

	pcm := wav[info.DataOffset : info.DataOffset+info.DataLength]
	if info.BitDepth != 16 {
		// Unknown sample layout; report duration only.
		return a, nil
	}
	if info.Channels == 2 {
		pcm = StereoToMono(pcm)
	}

	a.SNRdB = estimateSNR(pcm, info.SampleRate)
	return a, nil
}

// estimateSNR computes the frame-energy SNR of 16-bit mono PCM in dB.
func estimateSNR(pcm []byte, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	frameSamples := sampleRate * snrFrameMillis / 1000
	if frameSamples <= 0 {
		return 0
	}
	totalSamples := len(pcm) / 2
	numFrames := totalSamples / frameSamples
	if numFrames < 2 {
		return 0
	}

	rms := make([]float64, 0, numFrames)
	for f := range numFrames {
		var sum float64
		base := f * frameSamples * 2
		for s := range frameSamples {
			v := float64(int16(pcm[base+s*2]) | int16(pcm[base+s*2+1])<<8)
			sum += v * v
		}
		rms = append(rms, math.Sqrt(sum/float64(frameSamples)))
	}
	sort.Float64s(rms)

	noise := percentile(rms, 0.10)
	signal := percentile(rms, 0.90)
	if noise <= 0 || signal <= noise {
		return 0
	}
	return 20 * math.Log10(signal/noise)
}

// percentile returns the p-quantile of sorted values.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
