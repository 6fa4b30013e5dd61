package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nowwclub/companion-memory/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "record [human text]",
		Short: "Record one human/agent exchange",
		Run:   runRecord,
	}

	cmd.Flags().StringP("reply", "r", "", "Agent reply text (required)")
	cmd.Flags().Bool("important", false, "Mark the exchange as important")
	cmd.Flags().String("flow", "", "Flow type (habit, goal, reminder, ...)")
	cmd.Flags().String("theme", "", "Theme for flow or intake metadata")
	cmd.Flags().Int("step", 0, "Flow step number")
	cmd.Flags().String("emotions", "", "Comma-separated intake emotion tags")
	cmd.Flags().String("metaphors", "", "Comma-separated intake visual metaphors")

	cmd.MarkFlagRequired("reply")

	RootCmd.AddCommand(cmd)
}

func runRecord(cmd *cobra.Command, args []string) {
	humanText := strings.TrimSpace(strings.Join(args, " "))
	if humanText == "" {
		exitErr("record", fmt.Errorf("human text is required"))
	}
	reply, _ := cmd.Flags().GetString("reply")
	important, _ := cmd.Flags().GetBool("important")
	flow, _ := cmd.Flags().GetString("flow")
	theme, _ := cmd.Flags().GetString("theme")
	step, _ := cmd.Flags().GetInt("step")
	emotions, _ := cmd.Flags().GetString("emotions")
	metaphors, _ := cmd.Flags().GetString("metaphors")

	meta := &memory.TurnMetadata{Kind: memory.MetaKindPlain, Important: important}
	switch {
	case emotions != "" || metaphors != "":
		meta.Kind = memory.MetaKindIntake
		meta.Intake = &memory.IntakeMetadata{
			Theme:     theme,
			Emotions:  splitList(emotions),
			Metaphors: splitList(metaphors),
		}
	case flow != "":
		meta.Kind = memory.MetaKindFlow
		meta.Flow = &memory.FlowMetadata{FlowType: flow, Step: step, Theme: theme}
	}

	mgr, durable, err := openManager()
	if err != nil {
		exitErr("open", err)
	}
	defer durable.Close()
	defer mgr.Close()

	id, err := mgr.Record(cmd.Context(), userID, humanText, reply, meta)
	if err != nil {
		exitErr("record", err)
	}

	b, _ := json.Marshal(map[string]string{"turn_id": id})
	fmt.Println(string(b))
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
