package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "episodes",
		Short: "List episodic flow records in chronological order",
		Run:   runEpisodes,
	}
	cmd.Flags().StringP("theme", "t", "", "Restrict to one theme")
	cmd.Flags().Bool("count", false, "Print only the record count")
	RootCmd.AddCommand(cmd)
}

func runEpisodes(cmd *cobra.Command, args []string) {
	theme, _ := cmd.Flags().GetString("theme")
	countOnly, _ := cmd.Flags().GetBool("count")

	mgr, durable, err := openManager()
	if err != nil {
		exitErr("open", err)
	}
	defer durable.Close()
	defer mgr.Close()

	if countOnly {
		n, err := mgr.CountEpisodes(cmd.Context(), userID, theme)
		if err != nil {
			exitErr("episodes", err)
		}
		fmt.Println(n)
		return
	}

	records, err := mgr.Episodes(cmd.Context(), userID, theme)
	if err != nil {
		exitErr("episodes", err)
	}
	b, _ := json.Marshal(records)
	fmt.Println(string(b))
}
