package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
)

// transcodeFunc converts the audio file at in to a 16-bit mono WAV file at
// out with the given sample rate.
type transcodeFunc func(ctx context.Context, in, out string, sampleRate int) error

// ffmpegTranscode returns a transcodeFunc that shells out to ffmpeg.
func ffmpegTranscode(bin string) transcodeFunc {
	return func(ctx context.Context, in, out string, sampleRate int) error {
		cmd := exec.CommandContext(ctx, bin,
			"-hide_banner", "-loglevel", "error", "-nostdin", "-y",
			"-i", in,
			"-ac", "1",
			"-ar", strconv.Itoa(sampleRate),
			"-c:a", "pcm_s16le",
			"-f", "wav",
			out,
		)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			msg := bytes.TrimSpace(stderr.Bytes())
			if len(msg) > 512 {
				msg = msg[:512]
			}
			return fmt.Errorf("ffmpeg transcode: %w: %s", err, msg)
		}
		return nil
	}
}
