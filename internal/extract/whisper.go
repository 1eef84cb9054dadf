package extract

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"sync"
	"unsafe"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// whisperModels caches loaded whisper.cpp models by path so repeated
// transcriptions against the same model avoid re-loading weights.
var (
	whisperMu     sync.Mutex
	whisperModels = map[string]whisper.Model{}
)

func loadWhisperModel(modelPath string) (whisper.Model, error) {
	whisperMu.Lock()
	defer whisperMu.Unlock()
	if m, ok := whisperModels[modelPath]; ok {
		return m, nil
	}
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, err
	}
	whisperModels[modelPath] = m
	return m, nil
}

// transcribeWithWhisper decodes a WAV payload into float32 samples and runs
// them through a local whisper.cpp model (16-bit/32-bit PCM, stereo-to-mono
// downmix) against in-memory bytes instead of a file path.
func transcribeWithWhisper(modelPath string, wavData []byte) (string, error) {
	model, err := loadWhisperModel(modelPath)
	if err != nil {
		return "", fmt.Errorf("load whisper model: %w", err)
	}

	samples, err := decodeWAV(wavData)
	if err != nil {
		return "", fmt.Errorf("decode wav: %w", err)
	}

	ctx, err := model.NewContext()
	if err != nil {
		return "", fmt.Errorf("new whisper context: %w", err)
	}
	if err := ctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("process audio: %w", err)
	}

	var sb strings.Builder
	for {
		segment, err := ctx.NextSegment()
		if err != nil {
			break
		}
		sb.WriteString(segment.Text)
	}
	return strings.TrimSpace(sb.String()), nil
}

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

func decodeWAV(data []byte) ([]float32, error) {
	r := bytes.NewReader(data)
	var header wavHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("read wav header: %w", err)
	}
	if string(header.ChunkID[:]) != "RIFF" || string(header.Format[:]) != "WAVE" {
		return nil, fmt.Errorf("invalid wav file")
	}

	audioData := make([]byte, header.Subchunk2Size)
	if _, err := io.ReadFull(r, audioData); err != nil {
		return nil, fmt.Errorf("read audio data: %w", err)
	}

	var samples []float32
	switch header.BitsPerSample {
	case 16:
		for i := 0; i+1 < len(audioData); i += 2 {
			sample := int16(binary.LittleEndian.Uint16(audioData[i : i+2]))
			samples = append(samples, float32(sample)/32768.0)
		}
	case 32:
		for i := 0; i+3 < len(audioData); i += 4 {
			bits := binary.LittleEndian.Uint32(audioData[i : i+4])
			samples = append(samples, *(*float32)(unsafe.Pointer(&bits)))
		}
	default:
		return nil, fmt.Errorf("unsupported bits per sample: %d", header.BitsPerSample)
	}

	if header.NumChannels == 2 {
		mono := make([]float32, len(samples)/2)
		for i := range mono {
			mono[i] = (samples[i*2] + samples[i*2+1]) / 2.0
		}
		samples = mono
	}
	return samples, nil
}
