package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/memristive.report/internal/ivsweep"
	"github.com/banshee-data/memristive.report/internal/resultstore"
	"github.com/banshee-data/memristive.report/internal/units"
)

type storedEntry struct {
	ID             string             `json:"id"`
	Source         string             `json:"source"`
	DeviceID       string             `json:"device_id,omitempty"`
	DeviceType     ivsweep.DeviceType `json:"device_type"`
	Confidence     float64            `json:"confidence"`
	WeightsVersion string             `json:"weights_version"`
	Warnings       []string           `json:"warnings"`
	CreatedAt      time.Time          `json:"created_at"`
	Result         *ivsweep.Result    `json:"result"`
}

type storedReport struct {
	SchemaVersion uint                       `json:"schema_version"`
	Dirty         bool                       `json:"dirty,omitempty"`
	Records       []storedEntry              `json:"records"`
	Stored        map[ivsweep.DeviceType]int `json:"stored"`
}

// runQuery prints stored classifications selected by -show, -history or
// -recent. The database must already exist.
func runQuery(ctx context.Context, opts *options, stdout io.Writer, logger *log.Logger) int {
	if _, err := os.Stat(opts.dbPath); err != nil {
		logger.Printf("results database %s is not readable: %v", opts.dbPath, err)
		return exitUsage
	}
	store, err := resultstore.Open(opts.dbPath)
	if err != nil {
		logger.Printf("failed to open results database: %v", err)
		return exitUsage
	}
	defer store.Close()

	rep, err := loadStored(ctx, store, opts)
	if errors.Is(err, resultstore.ErrNotFound) {
		logger.Printf("no stored classification with id %s", opts.showID)
		return exitFailed
	}
	if err != nil {
		logger.Printf("failed to read results database: %v", err)
		return exitFailed
	}

	if opts.format == units.JSON {
		err = writeJSON(stdout, rep)
	} else {
		err = writeStoredText(stdout, rep)
	}
	if err != nil {
		logger.Printf("failed to write output: %v", err)
		return exitFailed
	}
	return exitOK
}

func loadStored(ctx context.Context, store *resultstore.Store, opts *options) (storedReport, error) {
	var rep storedReport
	var recs []resultstore.Record
	switch {
	case opts.showID != "":
		rec, err := store.Get(ctx, opts.showID)
		if err != nil {
			return rep, err
		}
		recs = []resultstore.Record{*rec}
	case opts.history != "":
		var err error
		if recs, err = store.ListBySource(ctx, opts.history); err != nil {
			return rep, err
		}
	default:
		var err error
		if recs, err = store.Recent(ctx, opts.recent); err != nil {
			return rep, err
		}
	}

	rep.Records = make([]storedEntry, len(recs))
	for k, r := range recs {
		rep.Records[k] = storedEntry{
			ID:             r.ID,
			Source:         r.Source,
			DeviceID:       r.DeviceID,
			DeviceType:     r.DeviceType,
			Confidence:     r.Confidence,
			WeightsVersion: r.WeightsVersion,
			Warnings:       r.Warnings,
			CreatedAt:      r.CreatedAt,
			Result:         r.Result,
		}
	}

	var err error
	if rep.Stored, err = store.CountByType(ctx); err != nil {
		return rep, err
	}
	rep.SchemaVersion, rep.Dirty, err = store.SchemaVersion()
	return rep, err
}

func writeStoredText(w io.Writer, rep storedReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, e := range rep.Records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.3f\tweights %s\n",
			e.ID, e.CreatedAt.Format(time.RFC3339), e.Source, e.DeviceType, e.Confidence, e.WeightsVersion)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	total := 0
	for _, n := range rep.Stored {
		total += n
	}
	line := fmt.Sprintf("schema %d: %d stored", rep.SchemaVersion, total)
	if counts := typeCounts(rep.Stored); counts != "" {
		line += " (" + counts + ")"
	}
	if rep.Dirty {
		line += ", dirty"
	}
	_, err := fmt.Fprintln(w, line)
	return err
}
