package commands

import (
	"github.com/mosaicnetworks/tandem/src/config"
)

//CLIConfig contains configuration for the Run command
type CLIConfig struct {
	Tandem config.Config `mapstructure:",squash"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Tandem: *config.NewDefaultConfig(),
	}
}
