package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the scanhead and clear any latched fault",
	Run: func(cmd *cobra.Command, args []string) {
		dev, err := openDevice()
		cobra.CheckErr(err)
		defer dev.Close()

		cobra.CheckErr(dev.Stop())
		fmt.Println("scanhead stopped")
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
