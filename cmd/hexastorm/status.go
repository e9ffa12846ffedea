package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the scanhead status",
	Run: func(cmd *cobra.Command, args []string) {
		dev, err := openDevice()
		cobra.CheckErr(err)
		defer dev.Close()

		st, err := dev.Status()
		cobra.CheckErr(err)

		fmt.Printf("state:       %s\n", st.State)
		fmt.Printf("faults:      %s\n", st.Faults)
		fmt.Printf("buffer full: %v\n", st.MemFull)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
