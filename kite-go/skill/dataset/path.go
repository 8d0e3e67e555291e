package dataset

import (
	"strings"

	"github.com/kiteco/skillview/kite-golib/fileutil"
)

const (
	alignedDir    = "frame_aligned_videos"
	downscaledDir = "frame_aligned_videos/downscaled/448"
)

// ResolvePath maps an annotated video path to the downscaled copy under root.
func ResolvePath(root, p string) string {
	p = strings.Replace(p, alignedDir, downscaledDir, -1)
	if root == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "://") {
		return p
	}
	return fileutil.Join(root, p)
}
