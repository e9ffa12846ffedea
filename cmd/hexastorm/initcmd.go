package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/darkomenz/hexastorm/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Run: func(cmd *cobra.Command, args []string) {
		if !initForce {
			if _, err := os.Stat(cfgFile); err == nil {
				cobra.CheckErr(fmt.Errorf("%s already exists, use --force to overwrite", cfgFile))
			}
		}
		cobra.CheckErr(config.Default().Save(cfgFile))
		fmt.Printf("wrote %s\n", cfgFile)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing file")
}
