package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/carverauto/nodesim/pkg/catalog"
	"github.com/carverauto/nodesim/pkg/logger"
	"github.com/carverauto/nodesim/pkg/models"
	"github.com/carverauto/nodesim/pkg/session"
	"github.com/carverauto/nodesim/pkg/simclient"
)

// runHeadless logs counters every interval and alerts as they arrive. Alerts
// stay pending; nothing is stopped without an operator.
func runHeadless(ctx context.Context, sess *session.Session, interval time.Duration, log logger.Logger) error {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	alerts := sess.Alerts()

	for {
		select {
		case <-ctx.Done():
			return nil
		case a, ok := <-alerts:
			if !ok {
				alerts = nil
				continue
			}

			log.Warn().
				Str("alert_id", a.ID).
				Int("repeats", repeats(sess, a.NodeID)).
				Str("node_id", a.NodeID).
				Int("status_code", a.StatusCode).
				Str("detail", a.Detail).
				Msg("Node fault")
		case <-ticker.C:
			v := sess.View()

			log.Info().
				Str("stream", string(v.Connection)).
				Int("success", v.Counters.Success).
				Int("failure", v.Counters.Failure).
				Int("malformed", v.Counters.Malformed).
				Int("total", v.Counters.Total).
				Int("running", len(v.Counters.Running)).
				Int("pending_alerts", v.PendingAlerts).
				Strs("unhealthy", sess.Unhealthy()).
				Msg("Fleet status")
		}
	}
}

// repeats reports how many failures the node's pending alert has absorbed.
func repeats(sess *session.Session, nodeID string) int {
	for _, p := range sess.PendingAlerts() {
		if p.NodeID == nodeID {
			return p.Count
		}
	}

	return 0
}

func listVerticals(ctx context.Context, cat *catalog.Client, out io.Writer) error {
	verticals, err := cat.Verticals(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tVERTICAL\tPARAMETERS")

	for _, v := range verticals {
		bindings, err := cat.Parameters(ctx, v.ID)
		if err != nil {
			return fmt.Errorf("vertical %d: %w", v.ID, err)
		}

		names := make([]string, 0, len(bindings))
		for _, b := range bindings {
			names = append(names, fmt.Sprintf("%d:%s[%g,%g]", b.ID, b.Name, float64(b.Min), float64(b.Max)))
		}

		fmt.Fprintf(w, "%d\t%s\t%s\n", v.ID, v.Name, strings.Join(names, " "))
	}

	return w.Flush()
}

func listHistory(ctx context.Context, backend *simclient.Client, log logger.Logger) error {
	runs, err := backend.Simulations(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tPLATFORM\tNODES\tPARAMETERS")

	for i := range runs {
		params := "-"

		decoded, err := simclient.DecodeParameters(&runs[i])
		switch {
		case err != nil:
			log.Debug().Err(err).Str("timestamp", string(runs[i].Timestamp)).Msg("Unreadable run parameters")

			params = "(legacy format)"
		case len(decoded) > 0:
			names := make([]string, 0, len(decoded))
			for _, p := range decoded {
				names = append(names, fmt.Sprintf("%s[%g,%g]", p.Name, p.Min, p.Max))
			}

			params = strings.Join(names, " ")
		}

		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", runs[i].Timestamp, runs[i].Platform, len(runs[i].IDs()), params)
	}

	return w.Flush()
}

func downloadBackendLog(ctx context.Context, backend *simclient.Client, path string, ts models.RunTimestamp, log logger.Logger) error {
	var (
		raw []byte
		err error
	)

	if ts == "" {
		raw, err = backend.LoggerDump(ctx)
	} else {
		raw, err = backend.LoggerDumpAt(ctx, ts)
	}

	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	asJSON, err := simclient.WriteDump(f, raw)
	if cerr := f.Close(); err == nil {
		err = cerr
	}

	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	log.Info().Str("path", path).Bool("json", asJSON).Int("bytes", len(raw)).Msg("Saved backend log")

	return nil
}
