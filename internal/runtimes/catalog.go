// Package runtimes — каталог рантаймов функций, по одной карте на версию.
package runtimes

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/Forge/internal/domain"
)

//go:embed runtimes.yaml
var defaultCatalog []byte

// Catalog — рантаймы v1 и v2 по ключу.
type Catalog struct {
	V1 map[string]domain.Runtime `yaml:"v1"`
	V2 map[string]domain.Runtime `yaml:"v2"`
}

// Default возвращает встроенный каталог.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load читает каталог из файла; пустой путь — встроенный каталог.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read runtimes catalog: %w", err)
	}
	return Parse(data)
}

// Parse разбирает YAML каталога.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse runtimes catalog: %w", err)
	}
	for key, rt := range c.V1 {
		rt.Key = key
		c.V1[key] = rt
	}
	for key, rt := range c.V2 {
		rt.Key = key
		c.V2[key] = rt
	}
	return &c, nil
}

// Resolve ищет рантайм: версия v2 — в карте v2, любая другая — в v1.
func (c *Catalog) Resolve(version, key string) (domain.Runtime, error) {
	runtimes := c.V1
	if version == domain.VersionV2 {
		runtimes = c.V2
	}
	rt, ok := runtimes[key]
	if !ok {
		return domain.Runtime{}, fmt.Errorf("%w: runtime %q (%s)", domain.ErrUnsupported, key, version)
	}
	return rt, nil
}
