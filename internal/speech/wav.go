package speech

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var ErrNotWAV = errors.New("speech: not a RIFF/WAVE stream")

// WAVInfo is the header of a PCM WAV stream.
type WAVInfo struct {
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataSize      uint32
}

func (w WAVInfo) Duration() time.Duration {
	if w.ByteRate == 0 {
		return 0
	}
	return time.Duration(uint64(w.DataSize) * uint64(time.Second) / uint64(w.ByteRate))
}

// ReadWAVInfo walks the RIFF chunks up to the data chunk. Chunks other than
// "fmt " and "data" are skipped.
func ReadWAVInfo(data []byte) (WAVInfo, error) {
	r := bytes.NewReader(data)

	var riff struct {
		ID     [4]byte
		Size   uint32
		Format [4]byte
	}
	if err := binary.Read(r, binary.LittleEndian, &riff); err != nil {
		return WAVInfo{}, fmt.Errorf("%w: %v", ErrNotWAV, err)
	}
	if string(riff.ID[:]) != "RIFF" || string(riff.Format[:]) != "WAVE" {
		return WAVInfo{}, ErrNotWAV
	}

	var info WAVInfo
	haveFmt := false
	for {
		var hdr struct {
			ID   [4]byte
			Size uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
			if errors.Is(err, io.EOF) {
				return WAVInfo{}, fmt.Errorf("%w: no data chunk", ErrNotWAV)
			}
			return WAVInfo{}, fmt.Errorf("%w: %v", ErrNotWAV, err)
		}

		switch string(hdr.ID[:]) {
		case "fmt ":
			if hdr.Size < 16 {
				return WAVInfo{}, fmt.Errorf("%w: short fmt chunk", ErrNotWAV)
			}
			fields := []any{&info.AudioFormat, &info.NumChannels, &info.SampleRate, &info.ByteRate, &info.BlockAlign, &info.BitsPerSample}
			for _, f := range fields {
				if err := binary.Read(r, binary.LittleEndian, f); err != nil {
					return WAVInfo{}, fmt.Errorf("%w: %v", ErrNotWAV, err)
				}
			}
			if _, err := r.Seek(int64(hdr.Size-16)+int64(hdr.Size%2), io.SeekCurrent); err != nil {
				return WAVInfo{}, fmt.Errorf("%w: %v", ErrNotWAV, err)
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return WAVInfo{}, fmt.Errorf("%w: data before fmt", ErrNotWAV)
			}
			info.DataSize = hdr.Size
			if remaining := uint32(r.Len()); info.DataSize > remaining {
				info.DataSize = remaining
			}
			return info, nil
		default:
			if _, err := r.Seek(int64(hdr.Size)+int64(hdr.Size%2), io.SeekCurrent); err != nil {
				return WAVInfo{}, fmt.Errorf("%w: %v", ErrNotWAV, err)
			}
		}
	}
}

// ClipDuration returns how long clip plays. Only WAV is parsed; other
// formats report ok=false.
func ClipDuration(clip Clip) (time.Duration, bool, error) {
	format := strings.ToLower(clip.Format)
	if format != "" && format != "wav" && format != "wave" {
		return 0, false, nil
	}
	info, err := ReadWAVInfo(clip.Data)
	if err != nil {
		if format == "" {
			return 0, false, nil
		}
		return 0, false, err
	}
	return info.Duration(), true, nil
}

// EncodeWAV wraps 16-bit little-endian mono PCM in a WAV container.
func EncodeWAV(pcm []byte, sampleRate int) []byte {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	const (
		channels = 1
		bits     = 16
	)
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*channels*bits/8))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*bits/8))
	binary.Write(&buf, binary.LittleEndian, uint16(bits))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}
