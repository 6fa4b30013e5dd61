package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all stored data for a user",
		Run:   runClear,
	}
	cmd.Flags().Bool("yes", false, "Confirm deletion")
	RootCmd.AddCommand(cmd)
}

func runClear(cmd *cobra.Command, args []string) {
	yes, _ := cmd.Flags().GetBool("yes")
	if !yes {
		exitErr("clear", fmt.Errorf("pass --yes to confirm deleting all data for user %s", userID))
	}

	mgr, durable, err := openManager()
	if err != nil {
		exitErr("open", err)
	}
	defer durable.Close()
	defer mgr.Close()

	if err := mgr.ClearUser(cmd.Context(), userID); err != nil {
		exitErr("clear", err)
	}
	fmt.Println("ok")
}
