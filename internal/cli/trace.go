package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/parallel/internal/patch"
	"github.com/roach88/parallel/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Op       string // optional - filter to one patch op
	Identity int    // optional - one identity's history; -1 for all
	List     bool   // list sessions instead of showing one
}

// TraceTick groups the patches applied during one tick.
type TraceTick struct {
	Tick    int64        `json:"tick"`
	Patches []TracePatch `json:"patches"`
}

// TracePatch is one journaled patch in the trace output.
type TracePatch struct {
	Seq      int64  `json:"seq"`
	Identity int    `json:"identity"`
	Op       string `json:"op"`
	Key      string `json:"key,omitempty"`
	Value    string `json:"value,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Session  string      `json:"session"`
	Digest   string      `json:"digest"` // of the whole session, before filtering
	Timeline []TraceTick `json:"timeline"`
	Stats    TraceStats  `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalPatches int            `json:"total_patches"`
	Ticks        int            `json:"ticks"`
	Identities   int            `json:"identities"`
	ByOp         map[string]int `json:"by_op"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [session]",
		Short: "Show the patch journal for a session",
		Long: `Show the patches a run applied to the external tree, grouped by tick.

Without a session argument the most recent session is shown. Use --list
to list every session in the journal.

Examples:
  parallel trace --db ./journal.db
  parallel trace --db ./journal.db 0190c3f4-...
  parallel trace --db ./journal.db --op set_attr
  parallel trace --db ./journal.db --identity 3
  parallel trace --db ./journal.db --list --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			session := ""
			if len(args) == 1 {
				session = args[0]
			}
			return runTrace(opts, session, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Op, "op", "", "filter to one patch op")
	cmd.Flags().IntVar(&opts.Identity, "identity", -1, "show only patches of one identity")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list sessions")

	return cmd
}

func runTrace(opts *TraceOptions, session string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.Op != "" && !patch.Op(opts.Op).Valid() {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown op %q: must be one of %v", opts.Op, patch.Ops))
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.List {
		return listSessions(ctx, opts, st, cmd)
	}

	if session == "" {
		session, err = st.LatestSession(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return NewExitError(ExitCommandError, "journal has no sessions")
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to find latest session", err)
		}
	}

	patches, err := st.ReadSession(ctx, session)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}

	digest, err := patch.TraceDigest(patches)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to digest session", err)
	}

	if opts.Identity >= 0 {
		patches, err = st.ReadIdentity(ctx, session, opts.Identity)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read identity history", err)
		}
	}

	result := buildTrace(session, patches, patch.Op(opts.Op))
	result.Digest = digest

	formatter := newFormatter(opts.RootOptions, cmd)
	if formatter.JSON() {
		return formatter.Respond(CLIResponse{Status: "ok", Data: result, Session: result.Session})
	}
	return outputTraceText(formatter.Writer, result)
}

// buildTrace groups patches by tick. When op is set, only patches of that
// op are kept.
func buildTrace(session string, patches []patch.Patch, op patch.Op) TraceResult {
	result := TraceResult{
		Session:  session,
		Timeline: []TraceTick{},
		Stats:    TraceStats{ByOp: make(map[string]int)},
	}

	identities := make(map[int]bool)

	for _, p := range patches {
		if op != "" && p.Op != op {
			continue
		}

		n := len(result.Timeline)
		if n == 0 || result.Timeline[n-1].Tick != p.Tick {
			result.Timeline = append(result.Timeline, TraceTick{Tick: p.Tick})
			n++
		}
		result.Timeline[n-1].Patches = append(result.Timeline[n-1].Patches, TracePatch{
			Seq:      p.Seq,
			Identity: p.Identity,
			Op:       string(p.Op),
			Key:      p.Key,
			Value:    p.Value,
		})

		result.Stats.TotalPatches++
		result.Stats.ByOp[string(p.Op)]++
		identities[p.Identity] = true
	}

	result.Stats.Ticks = len(result.Timeline)
	result.Stats.Identities = len(identities)
	return result
}

func listSessions(ctx context.Context, opts *TraceOptions, st *store.Store, cmd *cobra.Command) error {
	sessions, err := st.Sessions(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list sessions", err)
	}

	formatter := newFormatter(opts.RootOptions, cmd)
	if formatter.JSON() {
		return formatter.Success(sessions)
	}

	w := formatter.Writer
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions found.")
		return nil
	}
	for _, s := range sessions {
		fmt.Fprintf(w, "%s  %-24s  %d patches, last tick %d\n", s.ID, s.Label, s.Patches, s.LastTick)
	}
	return nil
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult) error {
	fmt.Fprintf(w, "Trace for Session: %s\n", result.Session)
	fmt.Fprintf(w, "Digest: %s\n", result.Digest)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no patches)")
	}
	for _, tick := range result.Timeline {
		fmt.Fprintf(w, "  tick %d\n", tick.Tick)
		for _, p := range tick.Patches {
			fmt.Fprintf(w, "    [%d] #%d %s", p.Seq, p.Identity, p.Op)
			if p.Key != "" {
				fmt.Fprintf(w, " %s", p.Key)
			}
			if p.Value != "" {
				fmt.Fprintf(w, "=%q", p.Value)
			}
			fmt.Fprintln(w)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Patches: %d\n", result.Stats.TotalPatches)
	fmt.Fprintf(w, "  Ticks:         %d\n", result.Stats.Ticks)
	fmt.Fprintf(w, "  Identities:    %d\n", result.Stats.Identities)

	ops := make([]string, 0, len(result.Stats.ByOp))
	for op := range result.Stats.ByOp {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		fmt.Fprintf(w, "  %-14s %d\n", op+":", result.Stats.ByOp[op])
	}

	return nil
}
