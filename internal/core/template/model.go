package template

type ServiceAddModel struct {
	Files []string
}

type ServiceRemoveModel struct {
	// Names may be template names or the image file names they came from.
	Names []string
}

type ServiceExportModel struct {
	Name string
	Dir  string
}
