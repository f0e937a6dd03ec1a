package cmd

import (
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"

	"crmimport/internal/mapping"
	"crmimport/internal/models"

	"github.com/spf13/cobra"
)

var (
	saveProfile string
	profileName string
)

var mappingCmd = &cobra.Command{
	Use:   "mapping",
	Short: "Inspect and save column mappings",
}

var mappingSuggestCmd = &cobra.Command{
	Use:   "suggest FILE",
	Short: "Print the mapping suggested for a file's headers",
	Long: `Suggest reads only the headers of FILE and prints which column each CRM field
would be taken from. With --save the mapping is written as a YAML profile that
import and tui accept through --mapping.`,
	Args: cobra.ExactArgs(1),
	RunE: runMappingSuggest,
}

func init() {
	mappingSuggestCmd.Flags().StringVarP(&saveProfile, "save", "o", "", "write the suggested mapping to this YAML profile")
	mappingSuggestCmd.Flags().StringVar(&profileName, "name", "", "profile name stored in the file")
	mappingSuggestCmd.Flags().StringVar(&delimiter, "delimiter", "", `CSV delimiter (",", ";", "|" or "tab"); sniffed when empty`)
	mappingSuggestCmd.Flags().StringVar(&sheet, "sheet", "", "workbook sheet to read (first sheet when empty)")
	mappingCmd.AddCommand(mappingSuggestCmd)
}

func runMappingSuggest(cmd *cobra.Command, args []string) error {
	session, err := prepareSession(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	m := session.Mapping()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FIELD\tCOLUMN")
	for _, f := range models.Fields {
		col := "-"
		if m.IsMapped(f) {
			col = describeBinding(m, f)
		}
		fmt.Fprintf(w, "%s\t%s\n", f.Label(), col)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if missing := m.Missing(); len(missing) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "\nrequired but unmapped: %v\n", missing)
	}
	used := m.UsedColumns()
	var ignored []string
	for _, h := range session.Table().Headers {
		if !slices.Contains(used, h) {
			ignored = append(ignored, h)
		}
	}
	if len(ignored) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "\ncolumns not imported: %s\n", strings.Join(ignored, ", "))
	}

	if saveProfile == "" {
		return nil
	}
	if err := mapping.SaveProfile(saveProfile, mapping.Profile{Name: profileName, Mapping: m}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nprofile saved to %s\n", saveProfile)
	return nil
}
