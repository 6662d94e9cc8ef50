// Package audio provides WAV container parsing and lightweight signal
// analysis for voice samples entering the version pipeline. Analysis
// results feed the quality gate; no perceptual processing happens here.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrInvalidWAV is returned when input bytes are not a usable RIFF/WAVE file.
var ErrInvalidWAV = errors.New("invalid WAV data")

// Info holds the format metadata extracted from a RIFF/WAVE header.
type Info struct {
	DataOffset int // byte offset of the first PCM sample
	DataLength int // length of the PCM payload in bytes
	SampleRate int // samples per second (e.g., 16000, 44100)
	Channels   int // 1 = mono, 2 = stereo
	BitDepth   int // bits per sample, typically 16
}

// ParseWAV scans the RIFF/WAVE container in wav and returns the data layout
// and audio format from the "fmt " sub-chunk. Walking chunks is more robust
// than hardcoding a fixed 44-byte offset because the fmt chunk size may vary.
//
// Returns an error wrapping [ErrInvalidWAV] if wav is not a valid RIFF/WAVE
// container or if the fmt or data chunk cannot be located.
func ParseWAV(wav []byte) (Info, error) {
	if len(wav) < 12 {
		return Info{}, fmt.Errorf("%w: too short to be a RIFF file", ErrInvalidWAV)
	}
	if string(wav[0:4]) != "RIFF" {
		return Info{}, fmt.Errorf("%w: missing RIFF header", ErrInvalidWAV)
	}
	if string(wav[8:12]) != "WAVE" {
		return Info{}, fmt.Errorf("%w: missing WAVE identifier", ErrInvalidWAV)
	}

	var info Info
	foundFmt := false

	// Walk RIFF chunks starting immediately after the 12-byte RIFF/WAVE header.
	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				fmtData := wav[offset+8:]
				info.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				info.BitDepth = int(binary.LittleEndian.Uint16(fmtData[14:16]))
				foundFmt = true
			}
		case "data":
			if !foundFmt {
				return Info{}, fmt.Errorf("%w: data chunk before fmt chunk", ErrInvalidWAV)
			}
			info.DataOffset = offset + 8
			info.DataLength = chunkSize
			if info.DataOffset+info.DataLength > len(wav) {
				info.DataLength = len(wav) - info.DataOffset
			}
			return info, nil
		}

		// Advance past this chunk (chunks are word-aligned: pad by 1 if odd size).
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return Info{}, fmt.Errorf("%w: missing data chunk", ErrInvalidWAV)
}

// Duration returns the playback length in seconds of the PCM payload
// described by info. Returns 0 for malformed format fields.
func (i Info) Duration() float64 {
	bytesPerSample := i.BitDepth / 8
	if i.SampleRate <= 0 || i.Channels <= 0 || bytesPerSample <= 0 {
		return 0
	}
	frames := i.DataLength / (bytesPerSample * i.Channels)
	return float64(frames) / float64(i.SampleRate)
}

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono output.
// Uses int32 arithmetic to prevent overflow and clamps to int16 range.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		lSample := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		rSample := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := (lSample + rSample) / 2

		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}

		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}
