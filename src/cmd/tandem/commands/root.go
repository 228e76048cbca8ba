package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

//RootCmd is the root command for tandem
var RootCmd = &cobra.Command{
	Use:              "tandem",
	Short:            "slot-based block authoring with a finality gadget",
	TraverseChildren: true,
}
