package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"
	"time"

	"gigchat/internal/api"
	"gigchat/internal/presence"
)

// Online prints the users currently connected to the server listening on
// adminAddr.
func Online(w io.Writer, adminAddr string) error {
	var stats api.StatsResponse
	if err := getJSON(fmt.Sprintf("http://%s/admin/stats", adminAddr), &stats); err != nil {
		return err
	}

	var entries []presence.Entry
	if err := getJSON(fmt.Sprintf("http://%s/admin/presence", adminAddr), &entries); err != nil {
		return err
	}

	fmt.Fprintf(w, "Online users: %d, live rooms: %d\n\n", stats.Online, stats.Rooms)
	if len(entries) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tNAME\tROLE\tLAST ACTIVE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.UserID, e.DisplayName, e.Role, e.LastActive.Format(time.RFC3339))
	}
	return tw.Flush()
}

func getJSON(url string, v any) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to call admin API: %w. Is the server running?", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("admin API error (Status: %d): %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
