package main

import (
	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "corpus"}

	root.AddCommand(serveCMD(), migrateCMD(), indexCMD(), queryCMD())
	_ = root.Execute()
}
