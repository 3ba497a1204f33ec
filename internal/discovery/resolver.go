package discovery

import (
	"fmt"
	"sort"
	"strings"

	"nexus-catalog/internal/materializer"
	"nexus-catalog/internal/model"
	"nexus-catalog/internal/storage"
)

// Resolution records how a table's final name was decided.
type Resolution string

const (
	// ResolutionSingle: one reader produced the name and no rule applied.
	ResolutionSingle Resolution = "single"
	// ResolutionLabeled: the name was suffixed with the reader label.
	ResolutionLabeled Resolution = "labeled"
	// ResolutionUnion: several readers were merged by the default strategy.
	ResolutionUnion Resolution = "union"
	// ResolutionRule: an explicit per-table rule applied.
	ResolutionRule Resolution = "rule"
)

// Contribution is the set of blobs one reader mapped to a table.
type Contribution struct {
	ReaderIndex int                `json:"readerIndex"`
	Blobs       []storage.BlobPath `json:"blobs"`
}

// rawGroup is every contribution to one raw table name, in reader order.
type rawGroup struct {
	name          string
	contributions []Contribution
}

type resolvedTable struct {
	name          string
	rawName       string
	resolution    Resolution
	contributions []Contribution
}

// resolver applies the conflict policy to the raw groups of one run.
type resolver struct {
	readers   []materializer.MaterializedReader
	conflicts model.ConflictResolution
	log       *issueLog

	out   []*resolvedTable
	index map[string]*resolvedTable
}

// resolve decides final table names. For each raw name, in first-appearance
// order, the first applicable step wins:
//
//  1. an explicit rule: union merges, reject fails only on a real collision
//  2. a single producer keeps the name, suffixed with its label if any
//  3. all producers labeled: each is suffixed with its label
//  4. the default strategy
//
// Rules naming tables that were never produced are reported afterwards.
func resolve(groups []rawGroup, readers []materializer.MaterializedReader, conflicts model.ConflictResolution, log *issueLog) []resolvedTable {
	r := &resolver{
		readers:   readers,
		conflicts: conflicts,
		log:       log,
		index:     make(map[string]*resolvedTable),
	}
	produced := make(map[string]bool, len(groups))
	for _, g := range groups {
		produced[g.name] = true
		r.resolveGroup(g)
	}
	r.reportDeadRules(produced)

	out := make([]resolvedTable, len(r.out))
	for i, t := range r.out {
		out[i] = *t
	}
	return out
}

func (r *resolver) resolveGroup(g rawGroup) {
	collision := len(g.contributions) > 1

	if strategy, ok := r.conflicts.RuleFor(g.name); ok {
		switch {
		case strategy == model.ConflictUnion:
			r.emit(g.name, g.name, ResolutionRule, g.contributions...)
			if collision {
				r.log.infof(model.PhaseConflict, tableCtx(g.name),
					"Table '%s': merged %s by conflict rule 'union'", g.name, r.describe(g.contributions))
			}
		case collision:
			r.log.errorf(model.PhaseConflict, tableCtx(g.name),
				"Table '%s': produced by %d readers %s and conflict rule is 'reject'",
				g.name, len(g.contributions), r.describe(g.contributions))
		default:
			r.emit(g.name, g.name, ResolutionRule, g.contributions...)
		}
		return
	}

	if !collision {
		c := g.contributions[0]
		label := r.readers[c.ReaderIndex].Label
		if label == "" {
			r.emit(g.name, g.name, ResolutionSingle, c)
		} else {
			r.emit(withLabel(g.name, label), g.name, ResolutionLabeled, c)
		}
		return
	}

	if r.allLabeled(g.contributions) {
		r.resolveByLabel(g)
		return
	}

	switch r.conflicts.DefaultStrategy() {
	case model.ConflictUnion:
		r.emit(g.name, g.name, ResolutionUnion, g.contributions...)
		r.log.infof(model.PhaseConflict, tableCtx(g.name),
			"Table '%s': merged %s by default strategy 'union'", g.name, r.describe(g.contributions))
	default:
		r.log.errorf(model.PhaseConflict, tableCtx(g.name),
			"Table '%s': produced by %d readers %s and default conflict strategy is 'reject'",
			g.name, len(g.contributions), r.describe(g.contributions))
	}
}

// resolveByLabel suffixes every contribution with its reader label. Readers
// sharing a label would land on the same name, which is a conflict.
func (r *resolver) resolveByLabel(g rawGroup) {
	byName := make(map[string][]Contribution)
	var order []string
	for _, c := range g.contributions {
		name := withLabel(g.name, r.readers[c.ReaderIndex].Label)
		if _, seen := byName[name]; !seen {
			order = append(order, name)
		}
		byName[name] = append(byName[name], c)
	}

	var resolved []string
	for _, name := range order {
		cs := byName[name]
		if len(cs) > 1 {
			r.log.errorf(model.PhaseConflict, tableCtx(g.name),
				"Table '%s': readers %s share label '%s', suffixed name '%s' collides",
				g.name, r.describe(cs), r.readers[cs[0].ReaderIndex].Label, name)
			continue
		}
		r.emit(name, g.name, ResolutionLabeled, cs[0])
		resolved = append(resolved, name)
	}
	if len(resolved) > 1 {
		r.log.infof(model.PhaseConflict, tableCtx(g.name),
			"Table '%s': labeled readers disambiguated as %s", g.name, strings.Join(resolved, ", "))
	}
}

// emit adds contributions under a final name. Two raw names landing on the
// same final name are merged with a warning.
func (r *resolver) emit(name, raw string, res Resolution, cs ...Contribution) {
	if t, ok := r.index[name]; ok {
		if t.rawName != raw {
			r.log.warnf(model.PhaseConflict, tableCtx(name),
				"Tables '%s' and '%s' both resolve to '%s'; their blobs are merged", t.rawName, raw, name)
		}
		t.contributions = append(t.contributions, cs...)
		return
	}
	t := &resolvedTable{
		name:          name,
		rawName:       raw,
		resolution:    res,
		contributions: append([]Contribution(nil), cs...),
	}
	r.index[name] = t
	r.out = append(r.out, t)
}

func (r *resolver) reportDeadRules(produced map[string]bool) {
	names := make([]string, 0, len(r.conflicts.Rules))
	for name := range r.conflicts.Rules {
		if !produced[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		r.log.warnf(model.PhaseConflict, tableCtx(name),
			"Conflict rule for table '%s' will never apply: no reader produces this table", name)
	}
}

func (r *resolver) allLabeled(cs []Contribution) bool {
	for _, c := range cs {
		if r.readers[c.ReaderIndex].Label == "" {
			return false
		}
	}
	return true
}

func (r *resolver) describe(cs []Contribution) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = fmt.Sprintf("reader[%d] (%s)", c.ReaderIndex, r.readers[c.ReaderIndex].Type)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func withLabel(name, label string) string {
	if label == "" {
		return name
	}
	return name + "_" + label
}
