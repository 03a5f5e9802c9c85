package main

import (
	"github.com/spf13/cobra"

	"github.com/yungbote/courselens-backend/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve POST /analyze and GET /health",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := app.New(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Run(ctx)
}
