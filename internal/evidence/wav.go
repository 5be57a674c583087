package evidence

import (
	"encoding/binary"
	"io"

	"github.com/oszuidwest/zwfm-alarmwatch/internal/audio"
)

// wavHeader is the canonical 44-byte PCM WAVE header.
type wavHeader struct {
	RIFF          [4]byte
	ChunkSize     uint32
	WAVE          [4]byte
	Fmt           [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Data          [4]byte
	DataSize      uint32
}

// WriteWAV writes samples as a mono 16-bit PCM WAVE stream.
func WriteWAV(w io.Writer, samples []int16) error {
	dataSize := uint32(len(samples) * audio.BytesPerSample)
	h := wavHeader{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1,
		Channels:      audio.Channels,
		SampleRate:    audio.SampleRate,
		ByteRate:      audio.SampleRate * audio.Channels * audio.BytesPerSample,
		BlockAlign:    audio.Channels * audio.BytesPerSample,
		BitsPerSample: 16,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      dataSize,
	}
	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, samples)
}

// pcmBytes encodes samples as s16le.
func pcmBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*audio.BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*audio.BytesPerSample:], uint16(s))
	}
	return out
}
