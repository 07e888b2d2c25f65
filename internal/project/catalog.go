package project

import (
	"fmt"
	"os"

	"github.com/piwi3910/GantryGuard/internal/model"
)

// LoadCatalogFile reads a YAML machine catalog. An empty path returns the
// embedded default catalog.
func LoadCatalogFile(path string) (*model.Catalog, error) {
	if path == "" {
		return model.DefaultCatalog()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()

	c, err := model.LoadCatalog(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog %s: %w", path, err)
	}
	return c, nil
}
