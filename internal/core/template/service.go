// Package template turns image files into store templates and back.
package template

import (
	"bytes"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"path/filepath"
	"strings"
	"templatestore/internal/store/tsm"
	"templatestore/internal/utils"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
)

var logger = loggo.GetLogger("templatestore.template")

func NewTemplateService(tsmHandler tsm.TsmHandler) *TemplateService {
	return &TemplateService{
		filesystemHandler: utils.NewFilesystemExecutor(),
		tsmHandler:        tsmHandler,
	}
}

type TemplateService struct {
	filesystemHandler utils.FilesystemHandler
	tsmHandler        tsm.TsmHandler
}

// TemplateName derives a template name from an image file: the base name
// up to its first dot. "assets/big_tree.png" becomes "big_tree".
func TemplateName(file string) string {
	base := filepath.Base(file)
	if i := strings.Index(base, "."); i > 0 {
		return base[:i]
	}
	return base
}

// Import reads every file and keeps its encoded bytes as the template
// data. Two files mapping to one name is an error.
func (s *TemplateService) Import(files []string) (map[string]tsm.Template, error) {
	templates := make(map[string]tsm.Template, len(files))
	sources := make(map[string]string, len(files))

	for _, file := range files {
		name := TemplateName(file)
		if prev, ok := sources[name]; ok {
			return nil, errors.AlreadyExistsf("template %q from both %q and %q", name, prev, file)
		}

		b, err := s.filesystemHandler.ReadFile(file)
		if err != nil {
			return nil, errors.Annotatef(err, "read %q", file)
		}
		t, err := FromFile(name, b)
		if err != nil {
			return nil, errors.Annotatef(err, "decode %q", file)
		}

		templates[name] = t
		sources[name] = file
		logger.Debugf("read %q as %s template %q (%dx%d)", file, t.Format, name, t.Width, t.Height)
	}
	return templates, nil
}

func (s *TemplateService) Add(p ServiceAddModel) error {
	templates, err := s.Import(p.Files)
	if err != nil {
		return err
	}
	return s.tsmHandler.AddTemplates(templates)
}

// Remove deletes templates and returns the names that were not present.
func (s *TemplateService) Remove(p ServiceRemoveModel) ([]string, error) {
	names := make([]string, 0, len(p.Names))
	for _, n := range p.Names {
		names = append(names, TemplateName(n))
	}
	return s.tsmHandler.RemoveTemplates(names)
}

func (s *TemplateService) List() []string {
	return s.tsmHandler.ListNames()
}

// Export writes the named template to <dir>/<name>.png and returns the path.
// PNG templates are written out as stored; other formats are re-encoded.
func (s *TemplateService) Export(p ServiceExportModel) (string, error) {
	t, err := s.tsmHandler.GetTemplate(p.Name)
	if err != nil {
		return "", err
	}
	data, err := pngBytes(t)
	if err != nil {
		return "", err
	}

	dir := p.Dir
	if dir == "" {
		dir = "."
	}
	if err := s.filesystemHandler.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Trace(err)
	}
	out := filepath.Join(dir, t.Name+".png")
	if err := s.filesystemHandler.WriteFile(out, data, 0o644); err != nil {
		return "", errors.Annotatef(err, "write %q", out)
	}
	return out, nil
}

func pngBytes(t tsm.Template) ([]byte, error) {
	img, err := ToImage(t)
	if err != nil {
		return nil, err
	}
	if t.Format == "png" {
		return t.Data, nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, errors.Annotatef(err, "encode %q", t.Name)
	}
	return buf.Bytes(), nil
}
