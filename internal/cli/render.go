package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/roach88/storebus/internal/ir"
	"github.com/roach88/storebus/internal/store"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func writeTransition(w io.Writer, t ir.Transition) {
	line := fmt.Sprintf("    %s %s", t.ModuleID, t.Kind)
	if t.Version != "" {
		line += " " + t.Version
	}
	origin := string(t.Info.Origin)
	if len(t.Info.RequiredBy) > 0 {
		ids := make([]string, len(t.Info.RequiredBy))
		for i, id := range t.Info.RequiredBy {
			ids[i] = string(id)
		}
		origin += ", required by " + strings.Join(ids, ", ")
	}
	fmt.Fprintf(w, "%s (%s)\n", line, origin)
}

func renderScenario(sc *ir.Scenario) func(io.Writer) {
	return func(w io.Writer) {
		fmt.Fprintf(w, "Scenario %s\n", sc.ID)
		fmt.Fprintf(w, "  type: %s\n", sc.Type)
		fmt.Fprintf(w, "  created: %s\n", formatTime(sc.Date))
		fmt.Fprintf(w, "  updated: %s\n", formatTime(sc.UpdatedAt))
		if sc.ReturnURL != "" {
			fmt.Fprintf(w, "  return url: %s\n", sc.ReturnURL)
		}
		fmt.Fprintf(w, "  can rollback: %t\n", sc.CanRollback)
		if len(sc.Transitions) == 0 {
			fmt.Fprintln(w, "  transitions: none")
			return
		}
		fmt.Fprintln(w, "  transitions:")
		for _, t := range sc.SortedTransitions() {
			writeTransition(w, t)
		}
	}
}

func renderScenarios(list []*ir.Scenario) func(io.Writer) {
	return func(w io.Writer) {
		if len(list) == 0 {
			fmt.Fprintln(w, "No scenarios.")
			return
		}
		for _, sc := range list {
			fmt.Fprintf(w, "%s  %-7s  %d transition(s)  %s\n", sc.ID, sc.Type, len(sc.Transitions), formatTime(sc.Date))
		}
	}
}

func renderRebuild(st ir.RebuildState) func(io.Writer) {
	return func(w io.Writer) {
		fmt.Fprintf(w, "Rebuild %s\n", st.ID)
		fmt.Fprintf(w, "  scenario: %s (%s)\n", st.ScenarioID, st.ScenarioType)
		fmt.Fprintf(w, "  reason: %s\n", st.Reason)
		fmt.Fprintf(w, "  status: %s\n", st.Status)
		fmt.Fprintf(w, "  plan: %s\n", strings.Join(st.Plan, ", "))
		if st.Step.ID != "" {
			fmt.Fprintf(w, "  step: %s (%d/%d)\n", st.Step.ID, st.Step.Index+1, len(st.Plan))
			if st.Step.Attempts > 0 {
				fmt.Fprintf(w, "  attempts: %d\n", st.Step.Attempts)
			}
			if st.Step.LastError != "" {
				fmt.Fprintf(w, "  last error: %s\n", st.Step.LastError)
			}
		}
		if st.Error != "" {
			fmt.Fprintf(w, "  error: %s\n", st.Error)
		}
		fmt.Fprintf(w, "  updated: %s\n", formatTime(st.UpdatedAt))
	}
}

// leaseView is the JSON form of the rebuild lock. The token stays out of
// command output.
type leaseView struct {
	Held       bool      `json:"held"`
	Key        string    `json:"key,omitempty"`
	Holder     string    `json:"holder,omitempty"`
	AcquiredAt time.Time `json:"acquired_at,omitzero"`
	ExpiresAt  time.Time `json:"expires_at,omitzero"`
	Pinned     bool      `json:"pinned,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

func newLeaseView(l store.Lease, held bool) leaseView {
	if !held {
		return leaseView{}
	}
	return leaseView{
		Held:       true,
		Key:        l.Key,
		Holder:     l.Holder,
		AcquiredAt: l.AcquiredAt,
		ExpiresAt:  l.ExpiresAt,
		Pinned:     l.Pinned,
		Reason:     l.Reason,
	}
}

func renderLease(v leaseView, verb string) func(io.Writer) {
	return func(w io.Writer) {
		if !v.Held {
			fmt.Fprintln(w, "Rebuild lock is free")
			return
		}
		fmt.Fprintf(w, "Rebuild lock %s %s by %s\n", v.Key, verb, v.Holder)
		fmt.Fprintf(w, "  acquired: %s\n", formatTime(v.AcquiredAt))
		if v.Pinned {
			fmt.Fprintf(w, "  pinned: %s\n", v.Reason)
			return
		}
		fmt.Fprintf(w, "  expires: %s\n", formatTime(v.ExpiresAt))
	}
}

func renderModules(mods []ir.Module) func(io.Writer) {
	return func(w io.Writer) {
		if len(mods) == 0 {
			fmt.Fprintln(w, "No modules installed.")
			return
		}
		for _, m := range mods {
			state := "disabled"
			if m.Enabled {
				state = "enabled"
			}
			fmt.Fprintf(w, "%-24s %-10s %-8s %s\n", m.ID, m.Version, m.Type, state)
		}
	}
}
