package frames

import (
	"context"
	"fmt"
	"io"
)

// Source is a decodable video.
type Source interface {
	// Path identifies the source in errors and logs.
	Path() string
	// Open starts a fresh decode from the first frame.
	Open() (Stream, error)
}

// Stream yields decoded frames in order. Next returns io.EOF after the last frame.
type Stream interface {
	Next() (Frame, error)
	Close() error
}

// Frame is one RGB24 image, row-major with interleaved channels.
type Frame struct {
	H, W int
	Pix  []uint8
}

// ViewTensor is a clip of T frames of one view, laid out (T, H, W, 3).
type ViewTensor struct {
	T, H, W int
	Pix     []uint8
}

// Frame returns a copy-free view of frame t.
func (v *ViewTensor) Frame(t int) []uint8 {
	n := v.H * v.W * 3
	return v.Pix[t*n : (t+1)*n]
}

// MemorySource serves in-memory frames. It is used for tests and synthetic runs.
type MemorySource struct {
	Name   string
	Frames []Frame
	// OpenErr, when set, is returned by Open.
	OpenErr error
	// Closed counts calls to Close on streams opened from this source.
	Closed int
}

// SyntheticSource returns a source of n frames of size h×w whose pixels encode the frame
// position, so decoded clips can be checked against sampled indices.
func SyntheticSource(name string, n, h, w int) *MemorySource {
	src := &MemorySource{Name: name}
	for i := 0; i < n; i++ {
		pix := make([]uint8, h*w*3)
		for j := range pix {
			pix[j] = uint8(i)
		}
		src.Frames = append(src.Frames, Frame{H: h, W: w, Pix: pix})
	}
	return src
}

// Path implements Source.
func (m *MemorySource) Path() string {
	return m.Name
}

// Open implements Source.
func (m *MemorySource) Open() (Stream, error) {
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	return &memoryStream{src: m}, nil
}

// FrameCount returns the number of frames held.
func (m *MemorySource) FrameCount() int {
	return len(m.Frames)
}

// Probe implements InfoSource.
func (m *MemorySource) Probe(ctx context.Context) (Info, error) {
	if m.OpenErr != nil {
		return Info{}, m.OpenErr
	}
	info := Info{Frames: len(m.Frames)}
	if len(m.Frames) > 0 {
		info.Width, info.Height = m.Frames[0].W, m.Frames[0].H
	}
	return info, nil
}

type memoryStream struct {
	src *MemorySource
	pos int
}

func (s *memoryStream) Next() (Frame, error) {
	if s.pos >= len(s.src.Frames) {
		return Frame{}, io.EOF
	}
	f := s.src.Frames[s.pos]
	s.pos++
	return f, nil
}

func (s *memoryStream) Close() error {
	s.src.Closed++
	return nil
}

func (f Frame) validate(h, w int) error {
	if f.H != h || f.W != w || len(f.Pix) != h*w*3 {
		return fmt.Errorf("frame is %dx%d with %d bytes, expected %dx%d", f.H, f.W, len(f.Pix), h, w)
	}
	return nil
}
