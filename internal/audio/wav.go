package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
)

const (
	wavHeaderSize    = 44
	wavChannels      = 1
	wavBitsPerSample = 16
)

// wavHeader is the canonical 44-byte RIFF header for PCM16LE mono audio.
type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

func newWAVHeader(dataSize uint32, sampleRate int) wavHeader {
	return wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   wavChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * wavChannels * wavBitsPerSample / 8),
		BlockAlign:    wavChannels * wavBitsPerSample / 8,
		BitsPerSample: wavBitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
}

// Recorder appends captured PCM16LE frames to a WAV file and fixes up the
// header sizes on Close.
type Recorder struct {
	mu         sync.Mutex
	out        io.WriteSeeker
	closer     io.Closer
	sampleRate int
	written    uint32
	closed     bool
}

// CreateRecorder creates path and writes a header with zero sizes.
func CreateRecorder(path string, sampleRate int) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}
	r, err := NewRecorder(f, sampleRate)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

func NewRecorder(out io.WriteSeeker, sampleRate int) (*Recorder, error) {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if err := binary.Write(out, binary.LittleEndian, newWAVHeader(0, sampleRate)); err != nil {
		return nil, fmt.Errorf("write wav header: %w", err)
	}
	return &Recorder{out: out, sampleRate: sampleRate}, nil
}

func (r *Recorder) Write(pcm []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, os.ErrClosed
	}
	n, err := r.out.Write(pcm)
	r.written += uint32(n)
	return n, err
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	err := r.finalize()
	if r.closer != nil {
		if cerr := r.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (r *Recorder) finalize() error {
	if _, err := r.out.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind wav: %w", err)
	}
	if err := binary.Write(r.out, binary.LittleEndian, newWAVHeader(r.written, r.sampleRate)); err != nil {
		return fmt.Errorf("rewrite wav header: %w", err)
	}
	_, err := r.out.Seek(int64(wavHeaderSize)+int64(r.written), io.SeekStart)
	return err
}
