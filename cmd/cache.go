package cmd

import (
	"fmt"
	"time"

	"claudechat/internal/cli"
	"claudechat/internal/config"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Show the cache checkpoint of the current conversation",
	RunE:  runCache,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
}

func runCache(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, reg, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer reg.Close()

	res, err := st.LoadCurrent()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if res == nil {
		fmt.Fprintln(out, "  No current conversation.")
		return nil
	}
	if res.CacheWarning != nil {
		fmt.Fprintf(out, "  Cache record unreadable, treated as no checkpoint: %v\n", res.CacheWarning)
		return nil
	}
	cp := res.Checkpoint
	if cp == nil {
		fmt.Fprintln(out, "  No cache checkpoint. Use /cache inside the chat to create one.")
		return nil
	}

	now := time.Now()
	fmt.Fprintf(out, "  Checkpoint after message %d (%d messages cached)\n",
		cp.Index+1, cp.TotalCachedMessages)
	fmt.Fprintf(out, "  Duration:        %s\n", cli.FormatMinutes(cp.DurationMinutes))
	fmt.Fprintf(out, "  State:           %s\n", cp.StateAt(now))
	if minutes, ok := cp.MinutesSinceHit(now); ok {
		fmt.Fprintf(out, "  Since last hit:  %s\n", cli.FormatMinutes(minutes))
	} else {
		fmt.Fprintln(out, "  Since last hit:  never confirmed")
	}
	fmt.Fprintf(out, "  Creation tokens: %s\n", cli.FormatNumber(int64(cp.CreationTokens)))
	fmt.Fprintf(out, "  Hit tokens:      %s\n", cli.FormatNumber(int64(cp.HitTokens)))

	modelID := ""
	if res.Conversation != nil {
		modelID = res.Conversation.CurrentModel
	}
	if spend, ok := config.EstimateCacheSpend(modelID, cp.DurationMinutes,
		cp.CreationTokens, cp.HitTokens); ok && spend > 0 {
		fmt.Fprintf(out, "  Est. spend:      %s\n", cli.FormatCost(spend))
	}
	return nil
}
