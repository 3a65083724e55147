// Package pipeline runs the phyloseq step end to end: load the four
// artifacts, keep the taxa of interest, optionally agglomerate them, write
// the snapshot and render the diagnostics.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jakubguzek/euglenida/phyloseq"
	"github.com/jakubguzek/euglenida/rarefy"
	"github.com/jakubguzek/euglenida/render"
	"github.com/jakubguzek/euglenida/snapshot"
	"go.uber.org/zap"
)

// Options configures one run.
type Options struct {
	Paths  phyloseq.Paths
	Outdir string

	// SnapshotName defaults to snapshot.DefaultName.
	SnapshotName string

	// FilterRank and FilterValue default to Order and Euglenida.
	FilterRank  string
	FilterValue string

	// Glom is the rank to agglomerate at. Blank means no agglomeration.
	Glom string
}

// Result describes what a run produced.
type Result struct {
	Loaded   *phyloseq.Dataset
	Filtered *phyloseq.Dataset

	// Final is Filtered, agglomerated when a glom rank was given.
	Final    *phyloseq.Dataset
	Depths   rarefy.Depths
	Snapshot string
	Render   *render.Result
}

// Pipeline wires the stages together.
type Pipeline struct {
	Loader   *phyloseq.Loader
	Renderer *render.Renderer
	Log      *zap.Logger
}

func (p *Pipeline) log() *zap.Logger {
	if p.Log == nil {
		return zap.NewNop()
	}
	return p.Log
}

// Run executes the stages in order and stops at the first failure. Ranks
// are validated against the loaded dataset before anything is written, so
// an unknown rank leaves no output behind.
func (p *Pipeline) Run(ctx context.Context, o Options) (*Result, error) {
	o = o.withDefaults()
	log := p.log()

	loader := p.Loader
	if loader == nil {
		loader = &phyloseq.Loader{Log: log}
	}

	loaded, err := loader.Load(ctx, o.Paths)
	if err != nil {
		return nil, err
	}
	res := &Result{Loaded: loaded}

	if err := loaded.ValidateRank(o.FilterRank); err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	glom := strings.TrimSpace(o.Glom)
	if glom != "" {
		if err := loaded.ValidateRank(glom); err != nil {
			return nil, fmt.Errorf("glom: %w", err)
		}
	}

	filtered, err := phyloseq.SubsetTaxa(loaded, o.FilterRank, o.FilterValue)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	res.Filtered = filtered
	log.Info("filtered taxa",
		zap.String("rank", o.FilterRank),
		zap.String("value", o.FilterValue),
		zap.Int("before", loaded.NTaxa()),
		zap.Int("after", filtered.NTaxa()))
	if filtered.NTaxa() == 0 {
		log.Warn("no taxa matched the filter", zap.String("rank", o.FilterRank), zap.String("value", o.FilterValue))
	}

	final := filtered
	if glom != "" {
		final, err = phyloseq.Glom(filtered, glom)
		if err != nil {
			return nil, fmt.Errorf("glom: %w", err)
		}
		log.Info("agglomerated taxa", zap.String("rank", glom), zap.Int("taxa", final.NTaxa()))
	}
	res.Final = final

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if res.Depths, err = rarefy.DepthSummary(final); err != nil {
		log.Warn("no sequencing depth to report", zap.Error(err))
	} else {
		log.Info("sequencing depth", zap.Stringer("depths", res.Depths))
	}

	res.Snapshot = filepath.Join(o.Outdir, o.SnapshotName)
	if err := snapshot.Save(ctx, res.Snapshot, final); err != nil {
		return nil, err
	}
	log.Info("wrote snapshot", zap.String("path", res.Snapshot))

	r := p.Renderer
	if r == nil {
		r = &render.Renderer{Log: log}
	}
	res.Render, err = r.Run(ctx, final, o.Outdir)
	if err != nil {
		return res, err
	}

	return res, nil
}

func (o Options) withDefaults() Options {
	if o.SnapshotName == "" {
		o.SnapshotName = snapshot.DefaultName
	}
	if o.FilterRank == "" {
		o.FilterRank = phyloseq.DefaultFilterRank
	}
	if o.FilterValue == "" {
		o.FilterValue = phyloseq.DefaultFilterValue
	}
	return o
}
