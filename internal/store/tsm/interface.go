package tsm

type TsmStoreHandler interface {
	Path() string
	Load() (LoadResult, error)
	Save(templates map[string]Template) error
}

type TsmHandler interface {
	AddTemplates(entries map[string]Template) error
	RemoveTemplates(names []string) ([]string, error)
	GetTemplate(name string) (Template, error)
	ListNames() []string
	Persist() error
	Stale() bool
	Len() int
	Path() string
}
