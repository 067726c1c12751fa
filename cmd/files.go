package cmd

import (
	"fmt"
	"time"

	"claudechat/internal/cli"

	"github.com/spf13/cobra"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List registered attachments",
	RunE:  runFiles,
}

var filesRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Remove an attachment record",
	Args:  cobra.ExactArgs(1),
	RunE:  runFilesRm,
}

func init() {
	filesCmd.AddCommand(filesRmCmd)
	rootCmd.AddCommand(filesCmd)
}

func runFiles(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	_, reg, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer reg.Close()

	list, err := reg.List()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "  No attachments yet. Use /attach inside the chat.")
		return nil
	}

	now := time.Now()
	rows := make([][]string, 0, len(list))
	for _, a := range list {
		rows = append(rows, []string{
			a.Filename,
			a.MimeType,
			cli.FormatSize(a.SizeBytes),
			cli.FormatRelativeTime(a.AddedAt, now),
			a.ID,
		})
	}

	fmt.Fprint(cmd.OutOrStdout(), cli.RenderTable(cli.Table{
		Title:   "Attachments",
		Headers: []string{"File", "Type", "Size", "Added", "ID"},
		Rows:    rows,
	}))
	return nil
}

func runFilesRm(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	_, reg, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer reg.Close()

	removed, err := reg.Remove(args[0])
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("no attachment with ID %s", args[0])
	}
	fmt.Fprintln(cmd.OutOrStdout(), "  Removed.")
	return nil
}
