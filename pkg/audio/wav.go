package audio

import "encoding/binary"

// bitsPerSample is fixed at 16 for the PCM produced by this package.
const bitsPerSample = 16

// wavHeader is the 44-byte canonical header of a PCM WAV file: a RIFF
// descriptor, a 16-byte fmt chunk and the data chunk preamble.
type wavHeader struct {
	RIFF          [4]byte
	RIFFSize      uint32
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

const wavHeaderSize = 44

// EncodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container. The result is suitable for direct upload to HTTP
// transcription endpoints.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	frameBytes := channels * bitsPerSample / 8
	h := wavHeader{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		RIFFSize:      uint32(wavHeaderSize - 8 + len(pcm)),
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1, // integer PCM
		Channels:      uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * frameBytes),
		BlockAlign:    uint16(frameBytes),
		BitsPerSample: bitsPerSample,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(len(pcm)),
	}

	out := make([]byte, 0, wavHeaderSize+len(pcm))
	// Append only fails for types without a fixed size.
	out, _ = binary.Append(out, binary.LittleEndian, &h)
	return append(out, pcm...)
}
