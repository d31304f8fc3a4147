package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
)

// displayEvent mirrors the JSON shape internal/httpapi.wireEvent sends
// over GET /api/events — decoded independently here since the CLI talks
// to a running instance over HTTP rather than importing the server.
type displayEvent struct {
	ID        int64           `json:"id"`
	Timestamp string          `json:"timestamp"`
	Block     uint64          `json:"block"`
	Cycle     int64           `json:"cycle"`
	Kind      string          `json:"kind"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Show tails recent events, either from the live event ring of a
// running instance (over its HTTP API) or, with --from-storage, from
// the Postgres audit log of committed actions.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	if opts.FromStorage {
		return a.showFromStorage(ctx, opts)
	}
	return a.showFromLiveRing(ctx, opts)
}

func (a *App) showFromLiveRing(ctx context.Context, opts ShowOptions) error {
	url := fmt.Sprintf("%s/api/events?limit=%d", a.apiBaseURL(), limitOrDefault(opts.Limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("reach running instance at %s: %w (is it up? try --from-storage)", a.apiBaseURL(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET /api/events returned status %d", resp.StatusCode)
	}

	var events []displayEvent
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return fmt.Errorf("decode events response: %w", err)
	}
	if len(events) == 0 {
		fmt.Fprintln(os.Stdout, "no events found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tBlock\tCycle\tKind\tData")
	for _, e := range events {
		fmt.Fprintf(writer, "%s\t%d\t%d\t%s\t%s\n", e.Timestamp, e.Block, e.Cycle, e.Kind, sanitizeInline(string(e.Data)))
	}
	return writer.Flush()
}

func (a *App) showFromStorage(ctx context.Context, opts ShowOptions) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("storage.dsn not configured; cannot show from storage")
	}
	defer store.Close()

	events, err := store.ListRecentActionEvents(ctx, limitOrDefault(opts.Limit))
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(os.Stdout, "no action events found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tAction\tSuccess\tTxHash\tFailureReason\tBlockIncluded")
	for _, e := range events {
		block := ""
		if e.BlockIncluded != nil {
			block = strconv.FormatInt(*e.BlockIncluded, 10)
		}
		fmt.Fprintf(writer, "%s\t%s\t%t\t%s\t%s\t%s\n",
			e.Timestamp.UTC().Format(time.RFC3339), e.Action, e.Success, e.TxHash, sanitizeInline(e.FailureReason), block)
	}
	return writer.Flush()
}

func (a *App) apiBaseURL() string {
	addr := a.Config.HTTP.ListenAddr
	if strings.HasPrefix(addr, ":") {
		return "http://127.0.0.1" + addr
	}
	return "http://" + addr
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
