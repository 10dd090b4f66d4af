package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the embedded Jsonnet library version",
	Run: func(cmd *cobra.Command, args []string) {
		v, err := buildVM(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		version, err := v.Version(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
