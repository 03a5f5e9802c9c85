package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/yungbote/courselens-backend/internal/app"
	"github.com/yungbote/courselens-backend/internal/pipeline"
)

var (
	analyzeCourseID        string
	analyzeGradebookPath   string
	analyzeEchoPath        string
	analyzeIncludeStudents bool
	analyzeJSON            bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze local gradebook and Echo360 exports",
	Long: `Runs the same pipeline as POST /analyze against local CSV exports and
prints the indicators, module tables and narrative report.`,
	Args: cobra.NoArgs,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeCourseID, "course-id", "", "Canvas course id")
	analyzeCmd.Flags().StringVar(&analyzeGradebookPath, "gradebook", "", "path to the Canvas gradebook CSV export")
	analyzeCmd.Flags().StringVar(&analyzeEchoPath, "echo", "", "path to the Echo360 analytics CSV export")
	analyzeCmd.Flags().BoolVar(&analyzeIncludeStudents, "include-students", false, "include de-identified per-student tables")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the response envelope as JSON")
	_ = analyzeCmd.MarkFlagRequired("course-id")
	_ = analyzeCmd.MarkFlagRequired("gradebook")
	_ = analyzeCmd.MarkFlagRequired("echo")
}

func fileSource(path string) pipeline.Source {
	return func() (io.ReadCloser, error) { return os.Open(path) }
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := app.New(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	env, err := a.Analyzer.Analyze(ctx, pipeline.Request{
		CourseID:        analyzeCourseID,
		Gradebook:       fileSource(analyzeGradebookPath),
		Echo:            fileSource(analyzeEchoPath),
		IncludeStudents: analyzeIncludeStudents,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if analyzeJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(env)
	}
	_, err = fmt.Fprint(out, renderEnvelope(env))
	return err
}
