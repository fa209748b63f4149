package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "atang",
		Short: "Gateway for the Si Atang image-discovery assistant widget",
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the widget gateway server",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
