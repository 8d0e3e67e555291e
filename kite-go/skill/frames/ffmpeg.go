package frames

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os/exec"
	"strconv"

	"github.com/kiteco/skillview/kite-golib/errors"
	kexec "github.com/kiteco/skillview/kite-golib/exec"
	"github.com/kiteco/skillview/kite-golib/fileutil"
)

// FFmpegSource decodes a video file with the ffmpeg command line tools.
// s3:// paths are fetched into the local cache first.
type FFmpegSource struct {
	path string
	info *Info

	// FFmpeg and FFprobe override the binary names.
	FFmpeg  string
	FFprobe string
}

// NewFFmpegSource returns a source for path.
func NewFFmpegSource(path string) *FFmpegSource {
	return &FFmpegSource{path: path, FFmpeg: "ffmpeg", FFprobe: "ffprobe"}
}

// Path implements Source.
func (s *FFmpegSource) Path() string {
	return s.path
}

type probeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		NbFrames     string `json:"nb_frames"`
		NbReadFrames string `json:"nb_read_frames"`
	} `json:"streams"`
}

// Probe implements InfoSource. The container's frame count is used when present;
// otherwise ffprobe decodes the stream to count frames.
func (s *FFmpegSource) Probe(ctx context.Context) (Info, error) {
	if s.info != nil {
		return *s.info, nil
	}
	local, err := fileutil.DownloadedFile(s.path)
	if err != nil {
		return Info{}, err
	}
	info, err := s.probe(ctx, local, false)
	if err == errNoFrameCount {
		info, err = s.probe(ctx, local, true)
	}
	if err != nil {
		return Info{}, errors.Wrapf(err, "error probing %s", s.path)
	}
	s.info = &info
	return info, nil
}

func (s *FFmpegSource) probe(ctx context.Context, local string, count bool) (Info, error) {
	args := []string{"-v", "error", "-select_streams", "v:0", "-of", "json"}
	if count {
		args = append(args, "-count_frames", "-show_entries", "stream=width,height,nb_read_frames")
	} else {
		args = append(args, "-show_entries", "stream=width,height,nb_frames")
	}
	out, err := kexec.Output(ctx, s.FFprobe, append(args, local)...)
	if err != nil {
		return Info{}, err
	}
	return parseProbe(out)
}

func (s *FFmpegSource) useInfo(info Info) {
	s.info = &info
}

var errNoFrameCount = errors.New("container has no frame count")

func parseProbe(out []byte) (Info, error) {
	var p probeOutput
	if err := json.Unmarshal(out, &p); err != nil {
		return Info{}, err
	}
	if len(p.Streams) == 0 {
		return Info{}, errors.New("no video stream")
	}
	st := p.Streams[0]
	if st.Width <= 0 || st.Height <= 0 {
		return Info{}, errors.Errorf("invalid dimensions %dx%d", st.Width, st.Height)
	}
	count := st.NbFrames
	if count == "" || count == "N/A" {
		count = st.NbReadFrames
	}
	if count == "" || count == "N/A" {
		return Info{}, errNoFrameCount
	}
	n, err := strconv.Atoi(count)
	if err != nil {
		return Info{}, errors.Errorf("unknown frame count %q", count)
	}
	return Info{Frames: n, Width: st.Width, Height: st.Height}, nil
}

// Open implements Source. Frames are piped as raw rgb24. Dimensions come from Probe,
// which runs ffprobe only if no earlier probe was recorded.
func (s *FFmpegSource) Open() (Stream, error) {
	ctx, cancel := context.WithCancel(context.Background())
	info, err := s.Probe(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	local, err := fileutil.DownloadedFile(s.path)
	if err != nil {
		cancel()
		return nil, err
	}

	cmd := kexec.Command(ctx, s.FFmpeg,
		"-v", "error",
		"-i", local,
		"-map", "0:v:0",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, err
	}
	return &pipeStream{
		cmd:    cmd,
		r:      bufio.NewReaderSize(stdout, 1<<20),
		cancel: cancel,
		h:      info.Height,
		w:      info.Width,
	}, nil
}

type pipeStream struct {
	cmd    *exec.Cmd
	r      *bufio.Reader
	cancel context.CancelFunc
	h, w   int
}

func (p *pipeStream) Next() (Frame, error) {
	pix := make([]uint8, p.h*p.w*3)
	if _, err := io.ReadFull(p.r, pix); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Frame{}, errors.Errorf("truncated frame")
		}
		return Frame{}, err
	}
	return Frame{H: p.h, W: p.w, Pix: pix}, nil
}

// Close stops ffmpeg. Decoding usually stops before the end of the file, so the
// process exit status after cancellation is ignored.
func (p *pipeStream) Close() error {
	p.cancel()
	p.cmd.Wait()
	return nil
}
