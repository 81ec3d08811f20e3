package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MimeLyc/clipreel/pkg/log"
)

// EncodeSettings are the x264 parameters used whenever a clip is re-encoded.
type EncodeSettings struct {
	VideoCodec string
	Preset     string
	CRF        int
}

func DefaultEncodeSettings() EncodeSettings {
	return EncodeSettings{
		VideoCodec: "libx264",
		Preset:     "veryfast",
		CRF:        20,
	}
}

// Ffmpeg implements Operator on top of the ffmpeg and ffprobe binaries.
type Ffmpeg struct {
	ffmpegCmd  string
	ffprobeCmd string
	runner     Runner
	style      TextStyle
	encode     EncodeSettings
}

type FfmpegOption func(*Ffmpeg)

func WithBinaries(ffmpegCmd, ffprobeCmd string) FfmpegOption {
	return func(f *Ffmpeg) {
		if ffmpegCmd != "" {
			f.ffmpegCmd = ffmpegCmd
		}
		if ffprobeCmd != "" {
			f.ffprobeCmd = ffprobeCmd
		}
	}
}

func WithTextStyle(style TextStyle) FfmpegOption {
	return func(f *Ffmpeg) {
		f.style = style
	}
}

func WithEncodeSettings(encode EncodeSettings) FfmpegOption {
	return func(f *Ffmpeg) {
		f.encode = encode
	}
}

func NewFfmpeg(runner Runner, opts ...FfmpegOption) *Ffmpeg {
	f := &Ffmpeg{
		ffmpegCmd:  "ffmpeg",
		ffprobeCmd: "ffprobe",
		runner:     runner,
		style:      DefaultTextStyle(),
		encode:     DefaultEncodeSettings(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Dimensions reads the frame size of the first video stream.
func (f *Ffmpeg) Dimensions(ctx context.Context, path string) (Dimensions, error) {
	res := f.runner.Run(ctx, Command{
		Kind:    KindProbe,
		Program: f.ffprobeCmd,
		Args:    f.probeArgs(path),
	})
	if err := res.Failure(KindProbe); err != nil {
		return Dimensions{}, err
	}

	var probe struct {
		Streams []struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"streams"`
	}
	if err := json.Unmarshal([]byte(res.Stdout), &probe); err != nil {
		log.Error("Failed to parse ffprobe output for %s: %v", path, err)
		return Dimensions{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(probe.Streams) == 0 || probe.Streams[0].Width <= 0 || probe.Streams[0].Height <= 0 {
		return Dimensions{}, fmt.Errorf("no video stream in %s", path)
	}
	return Dimensions{Width: probe.Streams[0].Width, Height: probe.Streams[0].Height}, nil
}

func (f *Ffmpeg) Resize(ctx context.Context, input, output string, size Dimensions) Result {
	return f.runner.Run(ctx, Command{
		Kind:    KindResize,
		Program: f.ffmpegCmd,
		Args:    f.resizeArgs(input, output, size),
	})
}

func (f *Ffmpeg) Annotate(ctx context.Context, input, output string, overlay Overlay) Result {
	return f.runner.Run(ctx, Command{
		Kind:    KindAnnotate,
		Program: f.ffmpegCmd,
		Args:    f.annotateArgs(input, output, overlay),
	})
}

func (f *Ffmpeg) Concatenate(ctx context.Context, inputs []string, output string) Result {
	if len(inputs) == 0 {
		return Result{ExitCode: -1, Err: fmt.Errorf("no inputs to concatenate")}
	}
	return f.runner.Run(ctx, Command{
		Kind:    KindConcatenate,
		Program: f.ffmpegCmd,
		Args:    f.concatArgs(inputs, output),
	})
}

func (*Ffmpeg) probeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "json",
		path,
	}
}

// outputs are often part files, so the muxer is always named explicitly
func baseArgs() []string {
	return []string{"-y", "-hide_banner", "-nostdin", "-loglevel", "error"}
}

func (f *Ffmpeg) encodeArgs() []string {
	return []string{
		"-c:v", f.encode.VideoCodec,
		"-preset", f.encode.Preset,
		"-crf", fmt.Sprintf("%d", f.encode.CRF),
	}
}

func (f *Ffmpeg) resizeArgs(input, output string, size Dimensions) []string {
	chain := (&filterChain{}).Scale(size)

	args := append(baseArgs(), "-i", input, "-vf", chain.String())
	args = append(args, f.encodeArgs()...)
	return append(args, "-c:a", "copy", "-f", "mp4", output)
}

func (f *Ffmpeg) annotateArgs(input, output string, overlay Overlay) []string {
	m := f.style.Margin
	chain := (&filterChain{}).
		DrawText(overlay.BroadcasterName, f.style,
			fmt.Sprintf("(w-text_w)-%d", m), fmt.Sprintf("(h-text_h)-%d", m)).
		DrawText(overlay.Title, f.style,
			fmt.Sprintf("%d", m), fmt.Sprintf("%d", m))

	args := append(baseArgs(), "-i", input, "-vf", chain.String())
	args = append(args, f.encodeArgs()...)
	return append(args, "-codec:a", "copy", "-fps_mode", "vfr", "-f", "mp4", output)
}

// concatArgs joins every input's first video and audio stream, in order.
func (f *Ffmpeg) concatArgs(inputs []string, output string) []string {
	args := baseArgs()
	var pads strings.Builder
	for i, in := range inputs {
		args = append(args, "-i", in)
		fmt.Fprintf(&pads, "[%d:v:0][%d:a:0]", i, i)
	}
	graph := fmt.Sprintf("%sconcat=n=%d:v=1:a=1[outv][outa]", pads.String(), len(inputs))

	args = append(args, "-filter_complex", graph, "-map", "[outv]", "-map", "[outa]")
	args = append(args, f.encodeArgs()...)
	return append(args, "-fps_mode", "vfr", "-f", "mp4", output)
}
