package webproxy

import (
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig mirrors the YAML configuration file. Values set in the
// file override flag defaults; the listen port is always the
// positional command-line argument.
type FileConfig struct {
	Provider       string `yaml:"provider"`
	DBFilename     string `yaml:"dbFilename"`
	ManagementAddr string `yaml:"managementAddr"`
}

// LoadConfig reads and parses the configuration file at filename.
func LoadConfig(filename string) (FileConfig, error) {
	var config FileConfig
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = yaml.Unmarshal(configBytes, &config)
	return config, err
}
