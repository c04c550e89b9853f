package resize

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/vatsal3003/speedy-resizer/pkg/models"
)

// ImageProcessor runs a single ResizeJob end to end. It holds no state and
// is safe for concurrent use.
type ImageProcessor struct{}

func NewImageProcessor() *ImageProcessor {
	return &ImageProcessor{}
}

// ProcessJob decodes the source, transforms it and writes the JPEG result
// to job.DestPath. The destination directory must already exist.
func (p *ImageProcessor) ProcessJob(job models.ResizeJob) error {
	src, err := imaging.Open(job.SourcePath)
	if err != nil {
		return &DecodeError{Path: job.SourcePath, Err: err}
	}

	dst := Transform(src, job.Params)

	if err := writeJPEG(job.DestPath, dst, job.Params.Quality); err != nil {
		return &EncodeError{Path: job.DestPath, Err: err}
	}
	return nil
}

// writeJPEG encodes into a temp file next to path and renames it into place,
// so concurrent writers of the same name never leave a torn file behind.
func writeJPEG(path string, img image.Image, quality int) error {
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if err := Encode(tmp, img, quality); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to encode jpeg: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
