package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hounfour/gateway/feedback"
)

func newTraceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Offline trajectory analysis",
	}
	cmd.AddCommand(newTraceAnalyzeCommand())
	return cmd
}

type traceAnalyzeReport struct {
	Path         string  `json:"path"`
	TotalLines   int     `json:"total_lines"`
	CorruptLines int     `json:"corrupt_lines"`
	Category     string  `json:"fault_category"`
	Confidence   float64 `json:"confidence"`
}

func newTraceAnalyzeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <trajectory.jsonl>",
		Short: "Parse a trajectory JSONL file and classify its dominant failure mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			parsed, err := feedback.ParseTrajectory(path)
			if err != nil {
				return fmt.Errorf("failed to parse trajectory: %w", err)
			}

			redactedEvents := make([]feedback.TrajectoryEvent, len(parsed.Events))
			for i, e := range parsed.Events {
				redactedEvents[i] = e
				redactedEvents[i].Content = feedback.Redact(e.Content)
				redactedEvents[i].Error = feedback.Redact(e.Error)
			}

			result := feedback.ClassifyFault(redactedEvents, feedback.DefaultOntology())

			report := traceAnalyzeReport{
				Path:         path,
				TotalLines:   parsed.TotalLines,
				CorruptLines: parsed.CorruptLines,
				Category:     result.Category,
				Confidence:   result.Confidence,
			}

			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}
