package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ruleassert/internal/harness"
	"github.com/roach88/ruleassert/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Session string
	Rule    string // optional - only events of this rule
}

// SessionSummary describes one journaled session.
type SessionSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	RuleBaseHash string `json:"rulebase_hash"`
	Firings      int64  `json:"firings"`
}

// ProvenanceEdge links a firing to a fact change its consequence made.
type ProvenanceEdge struct {
	FiringSeq int64  `json:"firing_seq"`
	Rule      string `json:"rule"`
	Kind      string `json:"kind"`
	Handle    int64  `json:"handle"`
}

// TraceResult holds the trace of one session.
type TraceResult struct {
	Session     SessionSummary       `json:"session"`
	Timeline    []harness.TraceEvent `json:"timeline"`
	Provenance  []ProvenanceEdge     `json:"provenance"`
	Activations []RuleActivations    `json:"activations"`
}

// RuleActivations is a rule's firing count.
type RuleActivations struct {
	Rule  string `json:"rule"`
	Count int64  `json:"count"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <journal.db>",
		Short: "Print journaled sessions",
		Long: `Print the sessions recorded in a journal.

Without --session, lists every session with its firing count. With
--session, prints the session's timeline of fact events and firings on
the pseudo clock, which firing caused which fact change, and per-rule
firing counts.

Examples:
  ruleassert trace ./journal.db
  ruleassert trace ./journal.db --session scenario-logical_events
  ruleassert trace ./journal.db --session scenario-logical_events --rule "input call"
  ruleassert trace ./journal.db --session scenario-logical_events --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Session, "session", "", "session id to trace")
	cmd.Flags().StringVar(&opts.Rule, "rule", "", "only show firings of and changes made by this rule")

	return cmd
}

func runTrace(opts *TraceOptions, path string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	// store.Open creates missing files; a trace of nothing is a usage error.
	if _, err := os.Stat(path); err != nil {
		return WrapExitError(ExitCommandError, "journal not found", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	if opts.Session == "" {
		sessions, err := listSessions(ctx, st)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read sessions", err)
		}
		if formatter.JSON() {
			return formatter.Success(sessions)
		}
		outputSessionsText(formatter.Writer, sessions)
		return nil
	}

	result, err := buildTrace(ctx, st, opts.Session, opts.Rule)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read trace", err)
	}
	if formatter.JSON() {
		return formatter.Success(result)
	}
	outputTraceText(formatter.Writer, result)
	return nil
}

func listSessions(ctx context.Context, st *store.Store) ([]SessionSummary, error) {
	records, err := st.ReadSessions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]SessionSummary, len(records))
	for i, rec := range records {
		counts, err := st.FiringCounts(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		out[i] = summarize(rec, counts)
	}
	return out, nil
}

func summarize(rec store.SessionRecord, counts []store.RuleCount) SessionSummary {
	s := SessionSummary{ID: rec.ID, Name: rec.Name, RuleBaseHash: rec.RuleBaseHash}
	for _, c := range counts {
		s.Firings += c.Count
	}
	return s
}

func buildTrace(ctx context.Context, st *store.Store, sessionID, rule string) (TraceResult, error) {
	rec, err := st.ReadSession(ctx, sessionID)
	if err != nil {
		return TraceResult{}, fmt.Errorf("session %q: %w", sessionID, err)
	}
	entries, err := st.ReadTrace(ctx, sessionID)
	if err != nil {
		return TraceResult{}, err
	}
	counts, err := st.FiringCounts(ctx, sessionID)
	if err != nil {
		return TraceResult{}, err
	}

	result := TraceResult{
		Session:     summarize(rec, counts),
		Timeline:    []harness.TraceEvent{},
		Provenance:  buildProvenance(entries),
		Activations: []RuleActivations{},
	}
	for _, ev := range harness.TraceEvents(entries) {
		if rule == "" || ev.Rule == rule {
			result.Timeline = append(result.Timeline, ev)
		}
	}
	for _, c := range counts {
		if rule == "" || c.Rule == rule {
			result.Activations = append(result.Activations, RuleActivations{Rule: c.Rule, Count: c.Count})
		}
	}
	if rule != "" {
		var kept []ProvenanceEdge
		for _, e := range result.Provenance {
			if e.Rule == rule {
				kept = append(kept, e)
			}
		}
		result.Provenance = kept
	}
	if result.Provenance == nil {
		result.Provenance = []ProvenanceEdge{}
	}
	return result, nil
}

// buildProvenance links every fact event made by a consequence to the
// firing of that rule it follows. Firings run one at a time, so the
// latest firing before the event is its cause.
func buildProvenance(entries []store.TraceEntry) []ProvenanceEdge {
	edges := []ProvenanceEdge{}
	var current *store.TraceEntry
	for i := range entries {
		e := &entries[i]
		if e.Kind == store.KindFire {
			current = e
			continue
		}
		if e.Rule == "" || current == nil || current.Rule != e.Rule {
			continue
		}
		edges = append(edges, ProvenanceEdge{
			FiringSeq: current.Seq,
			Rule:      e.Rule,
			Kind:      e.Kind,
			Handle:    int64(e.Handle),
		})
	}
	return edges
}

func outputSessionsText(w io.Writer, sessions []SessionSummary) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions found.")
		return
	}
	for _, s := range sessions {
		name := ""
		if s.Name != "" {
			name = fmt.Sprintf(" (%s)", s.Name)
		}
		fmt.Fprintf(w, "%s%s: %d firing(s)\n", s.ID, name, s.Firings)
	}
}

func outputTraceText(w io.Writer, result TraceResult) {
	fmt.Fprintf(w, "Session: %s\n", result.Session.ID)
	if result.Session.Name != "" {
		fmt.Fprintf(w, "Name: %s\n", result.Session.Name)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Timeline:")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, ev := range result.Timeline {
		fmt.Fprintf(w, "  %s  #%-3d %s\n", ev.Clock, ev.Seq, describeEvent(ev))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Activations:")
	if len(result.Activations) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, a := range result.Activations {
		fmt.Fprintf(w, "  %s: %d\n", a.Rule, a.Count)
	}
}

func describeEvent(ev harness.TraceEvent) string {
	if ev.Kind == store.KindFire {
		handles := make([]string, len(ev.Handles))
		for i, h := range ev.Handles {
			handles[i] = fmt.Sprintf("%d", h)
		}
		return fmt.Sprintf("fire    %s [%s]", ev.Rule, strings.Join(handles, ", "))
	}
	s := fmt.Sprintf("%-7s %d %s", ev.Kind, ev.Handle, ev.Fact)
	if ev.Rule != "" {
		s += " by " + ev.Rule
	}
	return s
}
