package template

import (
	"bytes"
	"image"
	"templatestore/internal/store/tsm"

	"github.com/juju/errors"
)

// FromFile builds a template holding the encoded image bytes as read from
// disk. Only the image header is decoded, for format and dimensions.
func FromFile(name string, data []byte) (tsm.Template, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return tsm.Template{}, errors.Trace(err)
	}
	return tsm.Template{
		Name:   name,
		Format: format,
		Width:  cfg.Width,
		Height: cfg.Height,
		Data:   data,
	}, nil
}

// ToImage decodes the stored bytes of t.
func ToImage(t tsm.Template) (image.Image, error) {
	img, format, err := image.Decode(bytes.NewReader(t.Data))
	if err != nil {
		return nil, errors.NotValidf("template %q image data (%v)", t.Name, err)
	}
	if b := img.Bounds(); b.Dx() != t.Width || b.Dy() != t.Height {
		return nil, errors.NotValidf("template %q decoded as %s %dx%d, recorded %dx%d", t.Name, format, b.Dx(), b.Dy(), t.Width, t.Height)
	}
	return img, nil
}
