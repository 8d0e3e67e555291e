package dataset

import (
	"context"

	"github.com/kiteco/skillview/kite-go/skill/frames"
	"github.com/kiteco/skillview/kite-golib/errors"
	"github.com/kiteco/skillview/kite-golib/kitelog"
)

// SourceFunc opens a video by resolved path.
type SourceFunc func(path string) frames.Source

// FFmpegSources opens every path with ffmpeg.
func FFmpegSources(path string) frames.Source {
	return frames.NewFFmpegSource(path)
}

// Assembler fetches the views of one sample. It holds only immutable configuration
// and can be shared between workers.
type Assembler struct {
	Root       string
	Cameras    []int
	ClipLen    int
	SampleRate int

	Counter frames.Counter
	Open    SourceFunc
	Labeler *Labeler
	Metrics *Metrics
	Logger  kitelog.Interface
}

// Result is the outcome of fetching one sample. A failed result has Err set and no views.
type Result struct {
	Sample Sample
	Views  []*frames.ViewTensor
	Label  Label
	Err    error
}

// Failed reports whether no view of the sample could be decoded.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Fetch samples and decodes every configured camera of sample. Views that fail to
// decode are dropped; if none remain the result is failed.
func (a *Assembler) Fetch(ctx context.Context, s *frames.Sampler, sample Sample) Result {
	res := Result{Sample: sample}

	var errs errors.Errors
	for _, cam := range a.Cameras {
		if cam < 0 || cam >= len(sample.VideoPaths) {
			continue
		}
		src := a.Open(ResolvePath(a.Root, sample.VideoPaths[cam]))
		vt, err := a.fetchView(ctx, s, src)
		a.Metrics.ViewsDecoded.Record(err == nil)
		if err != nil {
			a.Metrics.DecodeFailures.Add(1)
			a.Logger.Printf("sample %s: dropping camera %d: %v", sample.ID, cam, err)
			errs = errors.Append(errs, err)
			continue
		}
		res.Views = append(res.Views, vt)
	}

	if len(res.Views) == 0 {
		a.Metrics.SamplesFailed.Add(1)
		var cause error
		if errs != nil {
			cause = errs
		}
		res.Err = errors.Wrapf(cause, "sample %s: no view could be decoded", sample.ID)
		return res
	}
	res.Label = a.Labeler.Label(sample.Label)
	return res
}

func (a *Assembler) fetchView(ctx context.Context, s *frames.Sampler, src frames.Source) (*frames.ViewTensor, error) {
	n, err := a.Counter.FrameCount(ctx, src)
	if err != nil {
		return nil, err
	}
	indices, err := s.Sample(a.ClipLen, a.SampleRate, n)
	if err != nil {
		return nil, &frames.DecodeError{Path: src.Path(), Err: err}
	}
	return frames.Decode(src, indices)
}
