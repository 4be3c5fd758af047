package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"uberfix/internal/domain"
)

type stagesOutput struct {
	Stages    []domain.StageDefinition `json:"stages" yaml:"stages"`
	HappyPath []domain.WorkflowStage   `json:"happy_path" yaml:"happy_path"`
}

type nextOutput struct {
	Stage      domain.WorkflowStage   `json:"stage" yaml:"stage"`
	Known      bool                   `json:"known" yaml:"known"`
	NextStages []domain.WorkflowStage `json:"next_stages" yaml:"next_stages"`
}

func NewStagesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "List every workflow stage with its legacy status and successors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := stagesOutput{Stages: domain.Stages(), HappyPath: domain.HappyPath()}
			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return f.Print(out, func(w io.Writer) error {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "STAGE\tLABEL\tSTATUS\tPROGRESS\tNEXT")
				for _, def := range out.Stages {
					progress := "-"
					if domain.StageIndex(string(def.Key)) >= 0 {
						progress = fmt.Sprintf("%d%%", domain.ProgressPercent(string(def.Key)))
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", def.Key, def.Label, def.LegacyStatus, progress, joinStages(def.NextStages))
				}
				return tw.Flush()
			})
		},
	}
}

func NewProgressCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "progress <stage>",
		Short: "Show where a stage sits on the happy path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := domain.Project(args[0])
			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return f.Print(p, func(w io.Writer) error {
				label := p.Stage.Label
				if !p.Stage.Known {
					label += " (unknown stage)"
				}
				fmt.Fprintf(w, "%s: %d%%\n", label, p.ProgressPercent)
				if p.OnHappyPath {
					fmt.Fprintf(w, "step %d of %d\n", p.Index+1, len(domain.HappyPath()))
				} else {
					fmt.Fprintln(w, "off the happy path")
				}
				fmt.Fprintf(w, "next: %s\n", joinStages(p.NextStages))
				return nil
			})
		},
	}
}

func NewNextCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "next <stage>",
		Short: "List the stages a request may move to next",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def := domain.Lookup(args[0])
			out := nextOutput{Stage: def.Key, Known: def.Known, NextStages: def.NextStages}
			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return f.Print(out, func(w io.Writer) error {
				for _, next := range out.NextStages {
					fmt.Fprintf(w, "%s\t%s\n", next, domain.Lookup(string(next)).Label)
				}
				return nil
			})
		},
	}
}

func joinStages(stages []domain.WorkflowStage) string {
	if len(stages) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(stages))
	for _, s := range stages {
		parts = append(parts, string(s))
	}
	return strings.Join(parts, ", ")
}
