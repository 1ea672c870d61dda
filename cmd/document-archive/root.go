package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "document-archive",
		Short: "document archive API and conversion workers",
		Example: `document-archive serve
document-archive migrate
document-archive reprocess 12 15 --inline
document-archive reprocess --failed`,
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newReprocessCmd())
	root.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	root.CompletionOptions.HiddenDefaultCmd = true
	cobra.EnableCommandSorting = false
	return root
}
