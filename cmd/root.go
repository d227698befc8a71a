package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/idxdb/cmd/registry"
	"github.com/ValentinKolb/idxdb/cmd/lock"
	"github.com/ValentinKolb/idxdb/cmd/records"
	"github.com/ValentinKolb/idxdb/cmd/util"
	"github.com/ValentinKolb/idxdb/lib/common"
	"github.com/ValentinKolb/idxdb/lib/idxdb"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "idxdb",
		Short: "indexed object store",
		Long: fmt.Sprintf(`idxdb (v%s)

A promise-free object store layer written in Go, modelled on the browser's
indexed database: versioned databases, object stores with secondary
indexes and transactional create, update, delete, get and cursor operations.`, Version),
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: printMetrics,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of idxdb",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("idxdb v%s\n", Version)
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add Commands
	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(registry.Commands...)
	RootCmd.AddCommand(records.Commands...)
	RootCmd.AddCommand(lock.LockCommands)

	// Add Flags
	util.SetupClientFlags(RootCmd)
}

// setup binds the flags of the executed command and configures the loggers
func setup(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	return common.InitLoggers(viper.GetString("log-level"))
}

func printMetrics(_ *cobra.Command, _ []string) {
	if viper.GetBool("metrics") {
		idxdb.WriteMetrics(os.Stderr)
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
