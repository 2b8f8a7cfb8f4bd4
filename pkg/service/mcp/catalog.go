package mcp

import (
	_ "embed"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

type toolEntry struct {
	Name                string `yaml:"name"`
	Description         string `yaml:"description"`
	ArgumentDescription string `yaml:"argumentDescription"`
	Success             string `yaml:"success"`
}

// Catalog holds the names and texts the bridge advertises to agents
type Catalog struct {
	Server struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"server"`
	Tools struct {
		Add    toolEntry `yaml:"add"`
		Search toolEntry `yaml:"search"`
	} `yaml:"tools"`
	Prompt struct {
		Name        string   `yaml:"name"`
		Description string   `yaml:"description"`
		Completions []string `yaml:"completions"`
		Text        string   `yaml:"text"`
	} `yaml:"prompt"`
}

// LoadCatalog parses the embedded catalog
func LoadCatalog() (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(catalogYAML, &c); err != nil {
		return nil, goerr.Wrap(err, "failed to parse catalog")
	}

	if c.Tools.Add.Name == "" || c.Tools.Search.Name == "" || c.Prompt.Name == "" {
		return nil, goerr.New("catalog is incomplete")
	}
	return &c, nil
}
