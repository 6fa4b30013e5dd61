package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "recall [text]",
		Short: "Save an explicit high-importance memory",
		Long:  "Stores the text directly in the long-term semantic tier, bypassing the importance gate.",
		Run:   runRecall,
	}
	RootCmd.AddCommand(cmd)
}

func runRecall(cmd *cobra.Command, args []string) {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		exitErr("recall", fmt.Errorf("text is required"))
	}

	mgr, durable, err := openManager()
	if err != nil {
		exitErr("open", err)
	}
	defer durable.Close()
	defer mgr.Close()

	if err := mgr.SaveRecallMemory(cmd.Context(), userID, text); err != nil {
		exitErr("recall", err)
	}
	fmt.Println("ok")
}
