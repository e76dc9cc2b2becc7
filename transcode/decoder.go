package transcode

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/faiface/beep/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"

	"github.com/RyanBlaney/sonido-emotion/logging"
)

var (
	// ErrUnsupportedFormat is returned when no native decoder matches and
	// the ffmpeg fallback is disabled
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrNoAudio is returned when a stream decodes to zero samples
	ErrNoAudio = errors.New("no audio samples decoded")
	// ErrTruncated is returned when a file holds fewer samples than its header declares
	ErrTruncated = errors.New("truncated audio data")
)

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	TargetSampleRate int           `json:"target_sample_rate"` // 0 keeps the native rate
	FFmpegPath       string        `json:"ffmpeg_path"`        // empty disables the ffmpeg fallback
	Timeout          time.Duration `json:"timeout"`            // per-decode limit, 0 means none
}

// DefaultDecoderConfig returns default decoder configuration
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		TargetSampleRate: 16000,
		FFmpegPath:       "",
		Timeout:          30 * time.Second,
	}
}

// Decoder turns audio files into mono PCM at a fixed sample rate.
// WAV, FLAC and MP3 are decoded in-process; anything else goes through
// ffmpeg when a binary is configured.
type Decoder struct {
	config *DecoderConfig
}

// NewDecoder creates a new audio decoder
func NewDecoder(config *DecoderConfig) *Decoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	return &Decoder{config: config}
}

// Config returns a copy of the decoder configuration
func (d *Decoder) Config() DecoderConfig {
	return *d.config
}

// DecodeFile decodes an audio file and returns mono PCM at the target rate
func (d *Decoder) DecodeFile(ctx context.Context, filename string) (*AudioData, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "DecodeFile",
		"filename":  filename,
	})

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	br := bufio.NewReader(&ctxReader{ctx: ctx, r: f})
	format := detectFormat(br, filename)

	logger.Debug("Starting audio file decode", logging.Fields{
		"format": string(format),
	})

	var (
		pcm  []float64
		meta *AudioMetadata
	)
	if format != FormatUnknown {
		pcm, meta, err = decodeNative(br, format)
		if err != nil && d.config.FFmpegPath != "" && ctx.Err() == nil {
			logger.Warn("Native decode failed, retrying with ffmpeg", logging.Fields{
				"error": err.Error(),
			})
			return d.decodeFileWithFFmpeg(ctx, filename)
		}
	} else if d.config.FFmpegPath != "" {
		return d.decodeFileWithFFmpeg(ctx, filename)
	} else {
		err = fmt.Errorf("%w: %s (native: %v, ffmpeg not configured)", ErrUnsupportedFormat, filename, d.SupportedFormats())
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("decode interrupted: %w", ctxErr)
		}
		logger.Debug("Audio decode failed", logging.Fields{"error": err.Error()})
		return nil, err
	}

	meta.Path = filename
	return d.finish(pcm, meta)
}

// DecodeBytes decodes an in-memory file
func (d *Decoder) DecodeBytes(ctx context.Context, data []byte) (*AudioData, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty audio data")
	}
	return d.DecodeReader(ctx, bytes.NewReader(data))
}

// DecodeReader decodes audio from an io.Reader. Only natively supported
// formats are accepted since the format is sniffed from the stream.
func (d *Decoder) DecodeReader(ctx context.Context, reader io.Reader) (*AudioData, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	br := bufio.NewReader(&ctxReader{ctx: ctx, r: reader})
	format := detectFormat(br, "")
	if format == FormatUnknown {
		return nil, ErrUnsupportedFormat
	}

	pcm, meta, err := decodeNative(br, format)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("decode interrupted: %w", ctxErr)
		}
		return nil, err
	}
	return d.finish(pcm, meta)
}

// SupportedFormats lists the formats decoded without external tools
func (d *Decoder) SupportedFormats() []Format {
	return []Format{FormatWAV, FormatFLAC, FormatMP3}
}

// ValidateConfig checks the configuration and, if set, that ffmpeg runs
func (d *Decoder) ValidateConfig() error {
	if d.config.TargetSampleRate < 0 {
		return fmt.Errorf("target sample rate must be non-negative, got %d", d.config.TargetSampleRate)
	}
	if d.config.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative, got %s", d.config.Timeout)
	}
	if d.config.FFmpegPath != "" {
		if err := exec.Command(d.config.FFmpegPath, "-version").Run(); err != nil {
			return fmt.Errorf("ffmpeg not available at %q: %w", d.config.FFmpegPath, err)
		}
	}
	return nil
}

func (d *Decoder) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.config.Timeout > 0 {
		return context.WithTimeout(ctx, d.config.Timeout)
	}
	return context.WithCancel(ctx)
}

// finish resamples mono PCM to the target rate and wraps it
func (d *Decoder) finish(pcm []float64, meta *AudioMetadata) (*AudioData, error) {
	if len(pcm) == 0 {
		return nil, ErrNoAudio
	}

	rate := meta.SampleRate
	if target := d.config.TargetSampleRate; target > 0 && target != rate {
		resampled, err := Resample(pcm, rate, target)
		if err != nil {
			return nil, err
		}
		pcm, rate = resampled, target
	}

	audio := NewAudioData(pcm, rate)
	audio.Metadata = meta
	return audio, nil
}

func detectFormat(br *bufio.Reader, filename string) Format {
	header, _ := br.Peek(12)
	if format := sniffFormat(header); format != FormatUnknown {
		return format
	}
	return FormatFromExtension(filename)
}

func decodeNative(r io.Reader, format Format) ([]float64, *AudioMetadata, error) {
	switch format {
	case FormatWAV:
		return decodeWAV(r)
	case FormatFLAC:
		return decodeFLAC(r)
	case FormatMP3:
		return decodeMP3(r)
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func decodeWAV(r io.Reader) ([]float64, *AudioMetadata, error) {
	stream, format, err := wav.Decode(r)
	if err != nil {
		return nil, nil, fmt.Errorf("wav decode: %w", err)
	}
	defer stream.Close()

	channels := format.NumChannels
	scale := wavScale(format.Precision)
	want := max(stream.Len(), 0)
	pcm := make([]float64, 0, want)
	buf := make([][2]float64, 4096)
	for {
		n, ok := stream.Stream(buf)
		for _, s := range buf[:n] {
			if channels >= 2 {
				pcm = append(pcm, (s[0]+s[1])/2*scale)
			} else {
				pcm = append(pcm, s[0]*scale)
			}
		}
		// beep keeps reporting ok with zero frames once the data runs out
		if !ok || n == 0 {
			break
		}
	}
	if err := stream.Err(); err != nil {
		return nil, nil, fmt.Errorf("wav stream: %w", err)
	}
	if len(pcm) < want {
		return nil, nil, fmt.Errorf("%w: got %d of %d frames", ErrTruncated, len(pcm), want)
	}

	return pcm, &AudioMetadata{
		Format:     FormatWAV,
		SampleRate: int(format.SampleRate),
		Channels:   channels,
		BitDepth:   format.Precision * 8,
		Frames:     len(pcm),
	}, nil
}

// wavScale undoes beep's 16- and 24-bit decoding, which divides by 2^n-1
// instead of 2^(n-1) and so returns half-amplitude samples
func wavScale(precision int) float64 {
	switch precision {
	case 2:
		return float64(1<<16-1) / (1 << 15)
	case 3:
		return float64(1<<24-1) / (1 << 23)
	default:
		return 1
	}
}

func decodeFLAC(r io.Reader) ([]float64, *AudioMetadata, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, nil, fmt.Errorf("flac decode: %w", err)
	}
	defer stream.Close()

	info := stream.Info
	bitDepth := int(info.BitsPerSample)
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, nil, fmt.Errorf("flac decode: invalid bit depth %d", bitDepth)
	}
	scale := float64(int64(1) << (bitDepth - 1))

	pcm := make([]float64, 0, int(info.NSamples))
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("flac frame: %w", err)
		}

		subframes := frame.Subframes
		if len(subframes) == 0 {
			continue
		}
		n := len(subframes[0].Samples)
		for i := range n {
			sum := 0.0
			for _, sf := range subframes {
				sum += float64(sf.Samples[i])
			}
			pcm = append(pcm, sum/float64(len(subframes))/scale)
		}
	}

	return pcm, &AudioMetadata{
		Format:     FormatFLAC,
		SampleRate: int(info.SampleRate),
		Channels:   int(info.NChannels),
		BitDepth:   bitDepth,
		Frames:     len(pcm),
	}, nil
}

// decodeMP3 reads go-mp3 output, which is always 16-bit little-endian stereo
func decodeMP3(r io.Reader) ([]float64, *AudioMetadata, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, nil, fmt.Errorf("mp3 decode: %w", err)
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, nil, fmt.Errorf("mp3 stream: %w", err)
	}

	frames := len(raw) / 4
	pcm := make([]float64, frames)
	for i := range frames {
		left := int16(binary.LittleEndian.Uint16(raw[i*4:]))
		right := int16(binary.LittleEndian.Uint16(raw[i*4+2:]))
		pcm[i] = (float64(left) + float64(right)) / 2 / 32768.0
	}

	return pcm, &AudioMetadata{
		Format:     FormatMP3,
		SampleRate: dec.SampleRate(),
		Channels:   2,
		BitDepth:   16,
		Frames:     frames,
	}, nil
}

// decodeFileWithFFmpeg asks ffmpeg for mono f64le at the target rate
func (d *Decoder) decodeFileWithFFmpeg(ctx context.Context, filename string) (*AudioData, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "decodeFileWithFFmpeg",
		"filename":  filename,
	})

	args := []string{"-v", "error", "-i", filename, "-vn", "-f", "f64le", "-ac", "1"}
	if d.config.TargetSampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(d.config.TargetSampleRate))
	}
	args = append(args, "pipe:1")

	cmd := exec.CommandContext(ctx, d.config.FFmpegPath, args...)

	logger.Debug("Running ffmpeg command", logging.Fields{
		"args": strings.Join(args, " "),
	})

	output, err := cmd.Output()
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			logger.Debug("FFmpeg decode failed", logging.Fields{
				"stderr": string(exitError.Stderr),
			})
			return nil, fmt.Errorf("ffmpeg decode failed: %w, stderr: %s", err, strings.TrimSpace(string(exitError.Stderr)))
		}
		return nil, fmt.Errorf("ffmpeg decode failed: %w", err)
	}

	samples := bytesToFloat64(output)
	if len(samples) == 0 {
		return nil, ErrNoAudio
	}

	audio := NewAudioData(samples, d.config.TargetSampleRate)
	audio.Metadata = &AudioMetadata{
		Path:       filename,
		SampleRate: d.config.TargetSampleRate,
		Channels:   1,
		Frames:     len(samples),
	}
	return audio, nil
}

// bytesToFloat64 converts raw float64 little-endian bytes to []float64
func bytesToFloat64(data []byte) []float64 {
	n := len(data) / 8
	samples := make([]float64, n)
	for i := range n {
		samples[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return samples
}

// ctxReader fails reads once its context is done, which lets the
// pure-Go decoders honor cancellation and timeouts
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
