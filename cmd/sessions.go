package cmd

import (
	"fmt"
	"time"

	"claudechat/internal/cli"
	"claudechat/internal/config"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List saved conversations",
	RunE:  runSessions,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, reg, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer reg.Close()

	list, err := st.List()
	if err != nil {
		return err
	}

	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "  No saved conversations. Use /save inside the chat.")
		return nil
	}

	now := time.Now()
	rows := make([][]string, 0, len(list))
	for _, sc := range list {
		modelName := sc.Model
		if modelName != "" {
			modelName = config.AliasFor(cfg, modelName)
		}
		rows = append(rows, []string{
			sc.Name,
			fmt.Sprintf("%d", sc.Messages),
			modelName,
			cli.FormatRelativeTime(sc.ModTime, now),
		})
	}

	fmt.Fprint(cmd.OutOrStdout(), cli.RenderTable(cli.Table{
		Title:   "Saved conversations",
		Headers: []string{"Name", "Msgs", "Model", "Saved"},
		Rows:    rows,
	}))
	return nil
}
