package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show the consolidated user profile",
		Run:   runProfile,
	}
	cmd.Flags().Bool("consolidate", false, "Run consolidation before printing")
	cmd.Flags().Int("snapshots", 0, "Print the last N profile snapshots instead")
	RootCmd.AddCommand(cmd)
}

func runProfile(cmd *cobra.Command, args []string) {
	consolidate, _ := cmd.Flags().GetBool("consolidate")
	snapshots, _ := cmd.Flags().GetInt("snapshots")

	mgr, durable, err := openManager()
	if err != nil {
		exitErr("open", err)
	}
	defer durable.Close()
	defer mgr.Close()

	if snapshots > 0 {
		snaps, err := mgr.Snapshots(cmd.Context(), userID, snapshots)
		if err != nil {
			exitErr("snapshots", err)
		}
		b, _ := json.MarshalIndent(snaps, "", "  ")
		fmt.Println(string(b))
		return
	}

	if consolidate {
		p, err := mgr.Consolidate(cmd.Context(), userID)
		if err != nil {
			exitErr("consolidate", err)
		}
		b, _ := json.MarshalIndent(p, "", "  ")
		fmt.Println(string(b))
		return
	}

	p, err := durable.Profile(cmd.Context(), userID)
	if err != nil {
		exitErr("profile", err)
	}
	if p == nil {
		fmt.Println("null")
		return
	}
	b, _ := json.MarshalIndent(p, "", "  ")
	fmt.Println(string(b))
}
