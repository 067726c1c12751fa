// Package files turns local files into Messages API content blocks.
package files

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"claudechat/internal/model"
)

// MaxFileSize caps how large an attached file may be.
const MaxFileSize = 5 << 20 // 5 MiB

// ErrTooLarge is returned for files over MaxFileSize.
var ErrTooLarge = errors.New("file exceeds the 5 MB attachment limit")

// ErrUnsupported is returned for binary files of no recognized type.
var ErrUnsupported = errors.New("unsupported file type")

var imageMediaTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// Processed is an attachment converted to its wire form.
type Processed struct {
	Block     model.ContentBlock
	Filename  string
	SizeBytes int64
	MimeType  string
}

// Process reads a file and converts it into the content block the API
// expects for its type: images and PDFs become base64 source blocks,
// anything that decodes as text becomes a labeled text block.
func Process(path string) (Processed, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Processed{}, fmt.Errorf("reading %s: %w", path, err)
	}
	if info.IsDir() {
		return Processed{}, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > MaxFileSize {
		return Processed{}, fmt.Errorf("%s: %w", filepath.Base(path), ErrTooLarge)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Processed{}, fmt.Errorf("reading %s: %w", path, err)
	}

	name := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(path))

	if mediaType, ok := imageMediaTypes[ext]; ok {
		return Processed{
			Block: model.ContentBlock{
				Type: model.BlockImage,
				Source: &model.BlockSource{
					Type:      "base64",
					MediaType: mediaType,
					Data:      base64.StdEncoding.EncodeToString(data),
				},
			},
			Filename:  name,
			SizeBytes: info.Size(),
			MimeType:  mediaType,
		}, nil
	}

	if ext == ".pdf" {
		return Processed{
			Block: model.ContentBlock{
				Type: model.BlockDocument,
				Source: &model.BlockSource{
					Type:      "base64",
					MediaType: "application/pdf",
					Data:      base64.StdEncoding.EncodeToString(data),
				},
			},
			Filename:  name,
			SizeBytes: info.Size(),
			MimeType:  "application/pdf",
		}, nil
	}

	if !isText(data) {
		return Processed{}, fmt.Errorf("%s: %w", name, ErrUnsupported)
	}

	return Processed{
		Block: model.ContentBlock{
			Type: model.BlockText,
			Text: fmt.Sprintf("Contents of %s:\n\n%s", name, string(data)),
		},
		Filename:  name,
		SizeBytes: info.Size(),
		MimeType:  "text/plain",
	}, nil
}

// isText reports whether data looks like valid UTF-8 text with no NUL
// bytes. Empty files count as text.
func isText(data []byte) bool {
	if !utf8.Valid(data) {
		return false
	}
	for _, b := range data {
		if b == 0 {
			return false
		}
	}
	return true
}
