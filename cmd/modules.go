package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tracewire/tracewire/internal/directory"
	"github.com/tracewire/tracewire/internal/model"
)

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "List available lookup modules, costs and serving bots",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := directory.Load(cfg.Directory.Path)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "MODULE\tCOST\tSENSITIVE\tBOT")
		for _, info := range model.Catalog() {
			bot := "-"
			if entry, err := dir.Lookup(info.Name); err == nil {
				bot = entry.Identity
			}
			sensitive := ""
			if info.Sensitive {
				sensitive = "yes"
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", info.Name, info.Cost, sensitive, bot)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(modulesCmd)
}
