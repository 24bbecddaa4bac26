package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/susu3304/gastobot/internal/taxonomy"
)

var taxonomyCmd = &cobra.Command{
	Use:   "taxonomy [file]",
	Short: "Validate and print a category taxonomy",
	Long:  `Prints the built-in taxonomy, or validates and prints the YAML file given as argument.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		tax, err := loadTaxonomy(path)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, scope := range tax.Scopes() {
			fmt.Fprintf(out, "%s\n", scope)
			for _, c := range tax.Categories(scope) {
				fmt.Fprintf(out, "  %s\n", c.Name)
				for _, sub := range c.Subcategories {
					marker := ""
					if taxonomy.IsPocket(sub) {
						marker = " (bolsillo)"
					}
					fmt.Fprintf(out, "    - %s%s\n", taxonomy.DisplayName(sub), marker)
				}
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(taxonomyCmd)
}
