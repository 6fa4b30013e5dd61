package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the long-term semantic store",
		Run:   runSearch,
	}
	cmd.Flags().IntP("k", "k", 4, "Number of results")
	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		exitErr("search", fmt.Errorf("query is required"))
	}
	k, _ := cmd.Flags().GetInt("k")

	mgr, durable, err := openManager()
	if err != nil {
		exitErr("open", err)
	}
	defer durable.Close()
	defer mgr.Close()

	records, err := mgr.Search(cmd.Context(), userID, query, k)
	if err != nil {
		exitErr("search", err)
	}

	type result struct {
		ID         string    `json:"id"`
		Text       string    `json:"text"`
		Importance float64   `json:"importance"`
		Timestamp  time.Time `json:"timestamp"`
		Namespace  string    `json:"namespace"`
	}
	out := make([]result, 0, len(records))
	for _, r := range records {
		out = append(out, result{r.ID, r.Text, r.Importance, r.Timestamp, r.Namespace})
	}
	b, _ := json.Marshal(out)
	fmt.Println(string(b))
}
