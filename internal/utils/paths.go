package utils

const (
	DefaultStorePath  = "store"
	DefaultConfigPath = "templatestore.yaml"

	LockSuffix = ".lock"
)
