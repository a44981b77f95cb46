package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/staff-eval/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "staff-eval",
	Short: "Call-center staff evaluation engine",
	Long: "Imports monthly attendance workbooks, links rows to the staff roster by name " +
		"and scores dispatch, fleet and physician collaborators against configurable threshold rules.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
