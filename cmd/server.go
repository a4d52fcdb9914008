package cmd

import (
	"github.com/spf13/cobra"
	"transcribe-worker/config"
	server2 "transcribe-worker/server"
)

func server(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "start transcription worker",
		Run: func(cmd *cobra.Command, args []string) {
			server2.RunHttp(config)
		},
	}
}
