package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadConfig loads the complete configuration from YAML file. Keys missing
// from the file keep the values of DefaultConfig.
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	config, err := ParseYAML(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", y.filename, err)
	}

	y.config = config
	return config, nil
}

// ParseYAML decodes a YAML configuration document on top of DefaultConfig.
func ParseYAML(data []byte) (*ConfigData, error) {
	yamlConfig := toYAML(DefaultConfig())
	if err := yaml.UnmarshalStrict(data, &yamlConfig); err != nil {
		return nil, err
	}
	return yamlConfig.toConfigData(), nil
}

// MarshalYAML renders c in the YAML configuration format.
func MarshalYAML(c *ConfigData) ([]byte, error) {
	return yaml.Marshal(toYAML(c))
}

// IsReadOnly returns true since YAML files are read-only through this interface
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}

// YAML-specific structs with the hyphenated key names of the file format
type ConfigYAML struct {
	Inversion InversionYAML `yaml:"inversion"`
	Storage   StorageYAML   `yaml:"storage"`
	Run       RunYAML       `yaml:"run"`
	Logging   LoggingYAML   `yaml:"logging,omitempty"`
	Sensors   []string      `yaml:"sensors"`
}

type InversionYAML struct {
	HalfLife          float64 `yaml:"half-life"`
	Wings             int     `yaml:"wings"`
	PriorScaleFactor  float64 `yaml:"prior-scale-factor"`
	PriorWeight       float64 `yaml:"prior-weight"`
	UsePrior          bool    `yaml:"use-prior"`
	ComputeSnow       bool    `yaml:"compute-snow"`
	StrictInputChecks bool    `yaml:"strict-input-checks"`
	MergeSnow         bool    `yaml:"merge-snow"`
	PreciseZenith     bool    `yaml:"precise-zenith"`
}

type StorageYAML struct {
	AccumulatorRoot string `yaml:"accumulator-root"`
	OutputRoot      string `yaml:"output-root"`
	PriorRoot       string `yaml:"prior-root,omitempty"`
	Compress        bool   `yaml:"compress"`
	CatalogPath     string `yaml:"catalog-path,omitempty"`
}

type RunYAML struct {
	Tile          string  `yaml:"tile"`
	Year          int     `yaml:"year"`
	DoY           int     `yaml:"doy"`
	Width         int     `yaml:"width"`
	Height        int     `yaml:"height"`
	Workers       int     `yaml:"workers"`
	NorthLatitude float64 `yaml:"north-latitude"`
	SouthLatitude float64 `yaml:"south-latitude"`
	Longitude     float64 `yaml:"longitude"`
}

type LoggingYAML struct {
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max-size-mb,omitempty"`
	MaxBackups int    `yaml:"max-backups,omitempty"`
}

func toYAML(c *ConfigData) ConfigYAML {
	return ConfigYAML{
		Inversion: InversionYAML(c.Inversion),
		Storage:   StorageYAML(c.Storage),
		Run:       RunYAML(c.Run),
		Logging:   LoggingYAML(c.Logging),
		Sensors:   append([]string(nil), c.Sensors...),
	}
}

func (y ConfigYAML) toConfigData() *ConfigData {
	return &ConfigData{
		Inversion: InversionData(y.Inversion),
		Storage:   StorageData(y.Storage),
		Run:       RunData(y.Run),
		Logging:   LoggingData(y.Logging),
		Sensors:   append([]string(nil), y.Sensors...),
	}
}
