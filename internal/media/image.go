package media

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"samples-backend/internal/apperr"
)

const (
	SamplesFolder  = "kuspid-samples"
	ProfilesFolder = SamplesFolder + "/profiles"
)

type Image struct {
	Data        []byte
	ContentType string
	Filename    string
}

func (img Image) filename() string {
	if img.Filename != "" {
		return img.Filename
	}
	return "upload"
}

// ReadImage returns the image sent in the named multipart field, or nil when
// the field is absent. The form must already be parsed. Content that does not
// sniff as an image is rejected whatever the declared Content-Type says.
func ReadImage(r *http.Request, field string, maxBytes int64) (*Image, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, apperr.BadRequest("Invalid multipart form")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, apperr.BadRequest("Failed to read file")
	}
	if len(data) == 0 {
		return nil, apperr.BadRequest("File is empty")
	}
	if int64(len(data)) > maxBytes {
		return nil, apperr.BadRequest(fmt.Sprintf("File exceeds the %d MB limit", maxBytes>>20))
	}

	detected := mimetype.Detect(data)
	if !strings.HasPrefix(detected.String(), "image/") {
		return nil, apperr.BadRequest("File must be an image")
	}

	return &Image{
		Data:        data,
		ContentType: detected.String(),
		Filename:    header.Filename,
	}, nil
}

// ParseForm parses a multipart body capped at maxBytes plus headroom for the
// text fields.
func ParseForm(w http.ResponseWriter, r *http.Request, maxBytes int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+(1<<20))
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.BadRequest(fmt.Sprintf("File exceeds the %d MB limit", maxBytes>>20))
		}
		return apperr.BadRequest("Invalid multipart form")
	}
	return nil
}
