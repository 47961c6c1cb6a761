package domain

// Runtime — описание рантайма из каталога.
type Runtime struct {
	Key     string `yaml:"-" json:"key"`
	Name    string `yaml:"name" json:"name"`
	Version string `yaml:"version" json:"version"`
	Image   string `yaml:"image" json:"image"`

	// StartCommand — команда запуска для v2 рантаймов.
	StartCommand string `yaml:"startCommand" json:"start_command,omitempty"`
}
