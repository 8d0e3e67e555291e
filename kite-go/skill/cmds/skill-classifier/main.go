package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kiteco/skillview/kite-go/skill/frames"
	"github.com/kiteco/skillview/kite-golib/cmdline"
)

// syntheticVideos stands in for ffmpeg in smoke runs: every path is a 32 frame 64x64 clip.
func syntheticVideos(path string) frames.Source {
	return frames.SyntheticSource(path, 32, 64, 64)
}

// interruptible returns a context cancelled on SIGINT or SIGTERM.
func interruptible() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	cmdline.MustDispatch(trainCmd, inferCmd, extractCmd)
}
