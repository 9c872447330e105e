package config

// Section is one named group of settings persisted in the config file.
type Section interface {
	// ID is the key the section is stored under.
	ID() string
	Title() string
	Description() string

	// Data returns the persisted representation of the section.
	Data() map[string]interface{}
	// SetData applies persisted data. Unknown or mistyped keys are ignored.
	SetData(data map[string]interface{}) error

	Validate() error
	Reset()
}
