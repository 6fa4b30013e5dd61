package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "context [message]",
		Short: "Assemble the prompt context for an incoming message",
		Run:   runContext,
	}
	RootCmd.AddCommand(cmd)
}

func runContext(cmd *cobra.Command, args []string) {
	message := strings.TrimSpace(strings.Join(args, " "))
	if message == "" {
		exitErr("context", fmt.Errorf("message is required"))
	}

	mgr, durable, err := openManager()
	if err != nil {
		exitErr("open", err)
	}
	defer durable.Close()
	defer mgr.Close()

	// A fresh process has empty buffers; rebuild from durable state so
	// the context reflects past sessions.
	if _, err := mgr.Restore(cmd.Context(), userID); err != nil {
		exitErr("restore", err)
	}

	out, err := mgr.BuildContext(cmd.Context(), userID, message)
	if err != nil {
		exitErr("context", err)
	}
	fmt.Println(out)
}
