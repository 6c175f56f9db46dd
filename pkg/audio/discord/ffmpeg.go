package discord

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/MrWong99/jukebox/pkg/audio"
)

// pcmSource opens a stream as raw 48 kHz stereo s16le PCM. wait releases the
// decoder and reports how it ended; it must be called after reading stops.
type pcmSource func(ctx context.Context, locator string) (pcm io.ReadCloser, wait func() error, err error)

// ffmpegArgs builds the decoder command line for locator.
func ffmpegArgs(locator string, opts audio.StreamOptions) []string {
	var args []string
	if opts.Reconnect && isRemote(locator) {
		delay := int(opts.ReconnectDelayMax.Seconds())
		if delay <= 0 {
			delay = 5
		}
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", strconv.Itoa(delay),
		)
	}
	args = append(args, "-i", locator, "-vn")
	if opts.Volume > 0 && opts.Volume != 1 {
		args = append(args, "-filter:a", "volume="+strconv.FormatFloat(opts.Volume, 'f', 2, 64))
	}
	return append(args,
		"-f", "s16le",
		"-ar", strconv.Itoa(opusSampleRate),
		"-ac", strconv.Itoa(opusChannels),
		"-loglevel", "warning",
		"pipe:1",
	)
}

func isRemote(locator string) bool {
	return strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://")
}

// ffmpegSource returns a pcmSource that decodes through the ffmpeg binary.
func ffmpegSource(path string, opts audio.StreamOptions) pcmSource {
	if path == "" {
		path = "ffmpeg"
	}
	return func(ctx context.Context, locator string) (io.ReadCloser, func() error, error) {
		cmd := exec.CommandContext(ctx, path, ffmpegArgs(locator, opts)...)
		stderr := &tailBuffer{max: 2048}
		cmd.Stderr = stderr

		out, err := cmd.StdoutPipe()
		if err != nil {
			return nil, nil, fmt.Errorf("discord: ffmpeg stdout: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return nil, nil, fmt.Errorf("discord: start ffmpeg: %w", err)
		}
		wait := func() error {
			err := cmd.Wait()
			if err == nil || ctx.Err() != nil {
				return nil
			}
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return fmt.Errorf("ffmpeg: %w: %s", err, msg)
			}
			return fmt.Errorf("ffmpeg: %w", err)
		}
		return out, wait, nil
	}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Write(p)
	if over := b.buf.Len() - b.max; over > 0 {
		b.buf.Next(over)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
