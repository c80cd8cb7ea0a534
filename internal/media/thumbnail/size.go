package thumbnail

import (
	"fmt"
	"path"
)

// TargetSize returns the thumbnail dimensions for a source of srcW x srcH at
// the requested height. Width is height times the integer-truncated aspect
// ratio, so a 400x200 source at height 200 yields 400x200 and a 500x200
// source yields 400x200 as well. Sources narrower than they are tall truncate
// to a ratio of zero; those fall back to the proportional width.
func TargetSize(srcW, srcH, height int) (int, int) {
	if srcW <= 0 || srcH <= 0 || height <= 0 {
		return 0, 0
	}

	ratio := srcW / srcH
	if ratio > 0 {
		return height * ratio, height
	}

	width := (height*srcW + srcH/2) / srcH
	if width < 1 {
		width = 1
	}
	return width, height
}

// Key is the variants-store key of the thumbnail of imageID at height.
func Key(imageID string, height int, name string) string {
	return path.Join("thumbnails", imageID, fmt.Sprintf("%dpx_%s", height, path.Base(name)))
}
