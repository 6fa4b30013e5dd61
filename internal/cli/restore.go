package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Rebuild session state from the durable tiers",
		Run:   runRestore,
	}
	RootCmd.AddCommand(cmd)
}

func runRestore(cmd *cobra.Command, args []string) {
	mgr, durable, err := openManager()
	if err != nil {
		exitErr("open", err)
	}
	defer durable.Close()
	defer mgr.Close()

	state, err := mgr.Restore(cmd.Context(), userID)
	if err != nil {
		exitErr("restore", err)
	}
	b, _ := json.MarshalIndent(state, "", "  ")
	fmt.Println(string(b))
}
