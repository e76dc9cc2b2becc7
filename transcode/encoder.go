package transcode

import (
	"fmt"
	"io"
	"os"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"

	"github.com/RyanBlaney/sonido-emotion/algorithms/common"
)

// EncodeWAV writes mono samples as 16-bit PCM WAV
func EncodeWAV(w io.WriteSeeker, pcm []float64, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	format := beep.Format{
		SampleRate:  beep.SampleRate(sampleRate),
		NumChannels: 1,
		Precision:   2,
	}

	pos := 0
	streamer := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if pos >= len(pcm) {
			return 0, false
		}
		n := copyMono(samples, pcm[pos:])
		pos += n
		return n, true
	})

	return wav.Encode(w, streamer, format)
}

// WriteWAVFile creates path and encodes pcm into it
func WriteWAVFile(path string, pcm []float64, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := EncodeWAV(f, pcm, sampleRate); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func copyMono(dst [][2]float64, src []float64) int {
	n := min(len(dst), len(src))
	for i := range n {
		v := common.Clamp(src[i], -1, 1)
		dst[i] = [2]float64{v, v}
	}
	return n
}
