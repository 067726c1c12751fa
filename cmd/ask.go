package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var flagNoSave bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask one question without entering the chat UI",
	Long:  "Send one message in the current conversation and print the reply. The question comes from the arguments, or stdin when none are given. Cache checkpoints apply as in the chat UI.",
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&flagNoSave, "no-save", false, "Do not persist the exchange")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	si, err := newSession(cfg)
	if err != nil {
		return err
	}
	defer si.registry.Close()

	if si.cacheWarning != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "  warning: cache state discarded: %v\n", si.cacheWarning)
	}

	session := si.session
	if flagNoSave {
		session.DetachStore()
	}

	question := strings.Join(args, " ")
	if question == "" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("reading question: %w", err)
		}
		question = string(data)
	}

	reply, err := session.Send(context.Background(), question)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), reply.Text)
	return nil
}
