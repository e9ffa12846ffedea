package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/darkomenz/hexastorm/pkg/host"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List available serial ports",
	Run: func(cmd *cobra.Command, args []string) {
		ports, err := host.Ports()
		cobra.CheckErr(err)

		if len(ports) == 0 {
			fmt.Println("no serial ports found")
			return
		}
		for _, p := range ports {
			fmt.Println(p.Name)
		}
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}
