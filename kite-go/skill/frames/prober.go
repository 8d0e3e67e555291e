package frames

import (
	"context"
	"io"

	lru "github.com/hashicorp/golang-lru"
	"github.com/kiteco/skillview/kite-golib/errors"
)

// Info describes the first video stream of a source.
type Info struct {
	Frames int
	Width  int
	Height int
}

// InfoSource is implemented by sources that can report their metadata without a
// full decode.
type InfoSource interface {
	Source
	Probe(ctx context.Context) (Info, error)
}

// infoUser is implemented by sources that can reuse previously probed metadata.
type infoUser interface {
	useInfo(Info)
}

// Counter reports how many frames a source holds.
type Counter interface {
	FrameCount(ctx context.Context, src Source) (int, error)
}

// Prober counts frames and remembers the stream metadata per path. Only metadata is
// cached; frame indices are sampled fresh on every fetch.
type Prober struct {
	cache *lru.Cache
}

// NewProber returns a prober remembering up to size paths.
func NewProber(size int) (*Prober, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Prober{cache: cache}, nil
}

// FrameCount implements Counter. Sources that are not an InfoSource are decoded once
// to count their frames.
func (p *Prober) FrameCount(ctx context.Context, src Source) (int, error) {
	if v, ok := p.cache.Get(src.Path()); ok {
		info := v.(Info)
		if u, ok := src.(infoUser); ok {
			u.useInfo(info)
		}
		return info.Frames, nil
	}

	info, err := probe(ctx, src)
	if err != nil {
		return 0, &DecodeError{Path: src.Path(), Err: err}
	}
	if info.Frames < 1 {
		return 0, &DecodeError{Path: src.Path(), Err: errors.New("video has no frames")}
	}
	p.cache.Add(src.Path(), info)
	return info.Frames, nil
}

// Len returns the number of cached entries.
func (p *Prober) Len() int {
	return p.cache.Len()
}

func probe(ctx context.Context, src Source) (info Info, err error) {
	if s, ok := src.(InfoSource); ok {
		return s.Probe(ctx)
	}

	stream, err := src.Open()
	if err != nil {
		return Info{}, err
	}
	defer errors.Defer(&err, stream.Close)
	for {
		if err := ctx.Err(); err != nil {
			return Info{}, err
		}
		f, err := stream.Next()
		if err == io.EOF {
			return info, nil
		}
		if err != nil {
			return Info{}, errors.Wrapf(err, "error reading frame %d", info.Frames)
		}
		if info.Frames == 0 {
			info.Width, info.Height = f.W, f.H
		}
		info.Frames++
	}
}
