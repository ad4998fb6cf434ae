package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/OmerRastgar/studio-sub002/internal/crosswalk"
)

var (
	crosswalkProjectID string
	crosswalkOutput    string
)

var crosswalkCmd = &cobra.Command{
	Use:   "crosswalk",
	Short: "Report inferred standard coverage for a project",
	Long: `Crosswalk reports, for every standard in the graph, how many of its
controls share a tag with the project's evidence. Standards the project
was never formally assessed against are included.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		report, err := crosswalk.New(a.store).Compute(ctx, crosswalkProjectID)
		if err != nil {
			return err
		}

		if crosswalkOutput == "json" {
			data, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(data))
			return nil
		}

		if report.NoTags {
			cmd.Println("warning: project evidence carries no tags; coverage is 0 everywhere")
		}
		for _, id := range report.NoTagEvidence {
			cmd.Printf("warning: evidence %s has no tags\n", id)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STANDARD\tNAME\tMATCHED\tTOTAL\tCOVERAGE\tSHARED TAGS")
		for _, cov := range report.Standards {
			coverage := fmt.Sprintf("%.1f%%", cov.Percentage)
			if cov.NotApplicable {
				coverage = "n/a"
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
				cov.StandardID, cov.StandardName, cov.MatchedControls,
				cov.TotalControls, coverage, strings.Join(cov.SharedTags, ","))
		}
		return w.Flush()
	},
}

func init() {
	crosswalkCmd.Flags().StringVar(&crosswalkProjectID, "project", "", "project id to report on")
	crosswalkCmd.Flags().StringVarP(&crosswalkOutput, "output", "o", "table", "output format: table or json")
	crosswalkCmd.MarkFlagRequired("project")
}
