package config

// Backend abstracts persistent config storage behind the env overrides.
type Backend interface {
	GetString(key string) (val string, ok bool, err error)
	SetString(key, val string) error
	Delete(key string) error
}
