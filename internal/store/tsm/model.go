package tsm

import "bytes"

// Template is a named image held by the store. Data is opaque to the store.
type Template struct {
	Name   string `msgpack:"name"`
	Format string `msgpack:"format"`
	Width  int    `msgpack:"width"`
	Height int    `msgpack:"height"`
	Data   []byte `msgpack:"data"`
}

func (t Template) Clone() Template {
	t.Data = bytes.Clone(t.Data)
	return t
}

func (t Template) Equal(o Template) bool {
	return t.Name == o.Name &&
		t.Format == o.Format &&
		t.Width == o.Width &&
		t.Height == o.Height &&
		bytes.Equal(t.Data, o.Data)
}

// templateDocument is the serialized body of the backing file.
type templateDocument struct {
	Templates []Template `msgpack:"templates"`
}

type LoadStatus int

const (
	StatusLoaded LoadStatus = iota
	StatusAbsent
	StatusCorrupt
)

func (s LoadStatus) String() string {
	switch s {
	case StatusLoaded:
		return "loaded"
	case StatusAbsent:
		return "absent"
	case StatusCorrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// LoadResult is the outcome of reading the backing file. Templates is
// non-nil for StatusLoaded and StatusAbsent; Err is set for StatusCorrupt.
type LoadResult struct {
	Status    LoadStatus
	Templates map[string]Template
	Err       error
}
