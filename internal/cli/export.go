package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nowwclub/companion-memory/memory"
)

// exportTurnLimit bounds how much of the turn log one export reads.
const exportTurnLimit = 10000

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all durable data for a user as JSON",
		Run:   runExport,
	}
	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	mgr, durable, err := openManager()
	if err != nil {
		exitErr("open", err)
	}
	defer durable.Close()
	defer mgr.Close()

	ctx := cmd.Context()

	turns, err := durable.RecentTurns(ctx, userID, exportTurnLimit)
	if err != nil {
		exitErr("export turns", err)
	}
	summary, err := durable.Summary(ctx, userID)
	if err != nil {
		exitErr("export summary", err)
	}
	episodes, err := durable.Episodes(ctx, userID, "")
	if err != nil {
		exitErr("export episodes", err)
	}
	profile, err := durable.Profile(ctx, userID)
	if err != nil {
		exitErr("export profile", err)
	}
	snapshots, err := durable.Snapshots(ctx, userID, 100)
	if err != nil {
		exitErr("export snapshots", err)
	}

	out := struct {
		UserID    string                  `json:"user_id"`
		Turns     []memory.Turn           `json:"turns"`
		Summary   *memory.SummaryState    `json:"summary,omitempty"`
		Episodes  []memory.EpisodicRecord `json:"episodes"`
		Profile   *memory.Profile         `json:"profile,omitempty"`
		Snapshots []memory.Profile        `json:"snapshots"`
	}{userID, turns, summary, episodes, profile, snapshots}

	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
}
