package tsm

import (
	"bytes"
	"sort"

	"github.com/juju/errors"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Backing file layout:
//
//	"TPLS" | version (1 byte) | zstd(msgpack(templateDocument))
const (
	formatMagic = "TPLS"
	headerLen   = len(formatMagic) + 1

	FormatVersion byte = 1
)

func encodeTemplates(templates map[string]Template, level zstd.EncoderLevel) ([]byte, error) {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)

	doc := templateDocument{Templates: make([]Template, 0, len(names))}
	for _, name := range names {
		doc.Templates = append(doc.Templates, templates[name])
	}

	var body bytes.Buffer
	if err := msgpack.NewEncoder(&body).Encode(&doc); err != nil {
		return nil, errors.Annotate(err, "serialize templates")
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer enc.Close()

	out := make([]byte, headerLen, headerLen+body.Len()/2)
	copy(out, formatMagic)
	out[len(formatMagic)] = FormatVersion
	return enc.EncodeAll(body.Bytes(), out), nil
}

func decodeTemplates(b []byte) (map[string]Template, error) {
	if len(b) < headerLen {
		return nil, errors.Errorf("file too short for header (%d bytes)", len(b))
	}
	if string(b[:len(formatMagic)]) != formatMagic {
		return nil, errors.Errorf("bad magic %q", b[:len(formatMagic)])
	}
	if v := b[len(formatMagic)]; v != FormatVersion {
		return nil, errors.Annotatef(ErrUnsupportedVersion, "version %d", v)
	}

	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer dec.Close()

	body, err := dec.DecodeAll(b[headerLen:], nil)
	if err != nil {
		return nil, errors.Annotate(err, "decompress")
	}

	var doc templateDocument
	if err := msgpack.Unmarshal(body, &doc); err != nil {
		return nil, errors.Annotate(err, "deserialize")
	}

	templates := make(map[string]Template, len(doc.Templates))
	for _, t := range doc.Templates {
		if t.Name == "" {
			return nil, errors.New("template with empty name")
		}
		if _, ok := templates[t.Name]; ok {
			return nil, errors.Errorf("duplicate template %q", t.Name)
		}
		templates[t.Name] = t
	}
	return templates, nil
}
