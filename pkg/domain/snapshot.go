package domain

import (
	"strings"
	"time"
)

type DisplayMode string

const (
	// DisplayModeSnapshot renders the chart from the interactive snapshot JSON.
	DisplayModeSnapshot DisplayMode = "snapshot"
	// DisplayModeImage falls back to the rendered PNG.
	DisplayModeImage DisplayMode = "image"
)

// VisualizationUnknown is recorded when the snapshot payload carries no
// recognizable visualization type.
const VisualizationUnknown = "unknown"

// supportedSnapshotTypes lists the chart types the embed front-end can render
// interactively. Everything else falls back to the image.
var supportedSnapshotTypes = map[string]struct{}{
	"barchart":    {},
	"linechart":   {},
	"piechart":    {},
	"combochart":  {},
	"scatterplot": {},
	"kpi":         {},
}

// DisplayModeFor picks the display mode for a visualization type.
func DisplayModeFor(visualization string) DisplayMode {
	if _, ok := supportedSnapshotTypes[strings.ToLower(visualization)]; ok {
		return DisplayModeSnapshot
	}
	return DisplayModeImage
}

// SnapshotRecord is the per-task metadata persisted next to the artifact
// files. Writing it is the commit point of a fetch transaction: a record
// exists if and only if all artifact files for the task are on disk.
type SnapshotRecord struct {
	ID                string      `json:"id"`
	Name              string      `json:"name"`
	Visualization     string      `json:"visualization"`
	ImageAvailable    bool        `json:"imageAvailable"`
	SnapshotAvailable bool        `json:"snapshotAvailable"`
	DisplayMode       DisplayMode `json:"displayMode"`
	LastUpdated       time.Time   `json:"lastUpdated"`
}

// CatalogEntry is the API projection of a SnapshotRecord. It never carries
// file paths, remote tokens, or the commit timestamp.
type CatalogEntry struct {
	ID                string      `json:"id"`
	Name              string      `json:"name"`
	Visualization     string      `json:"visualization"`
	ImageAvailable    bool        `json:"imageAvailable"`
	SnapshotAvailable bool        `json:"snapshotAvailable"`
	DisplayMode       DisplayMode `json:"displayMode"`
}

// EntryFromRecord projects a persisted record into its API view.
func EntryFromRecord(rec SnapshotRecord) CatalogEntry {
	return CatalogEntry{
		ID:                rec.ID,
		Name:              rec.Name,
		Visualization:     rec.Visualization,
		ImageAvailable:    rec.ImageAvailable,
		SnapshotAvailable: rec.SnapshotAvailable,
		DisplayMode:       rec.DisplayMode,
	}
}

// FetchOutcome is the result of one per-task fetch transaction. It is either
// complete with a committed record or failed with a reason; there is no
// partially-committed state. Use CompleteOutcome/FailedOutcome to construct.
type FetchOutcome struct {
	record *SnapshotRecord
	taskID string
	reason string
}

func CompleteOutcome(rec SnapshotRecord) FetchOutcome {
	return FetchOutcome{record: &rec, taskID: rec.ID}
}

func FailedOutcome(taskID, reason string) FetchOutcome {
	return FetchOutcome{taskID: taskID, reason: reason}
}

func (o FetchOutcome) Complete() bool { return o.record != nil }

func (o FetchOutcome) TaskID() string { return o.taskID }

// Record returns the committed record for a complete outcome, or false.
func (o FetchOutcome) Record() (SnapshotRecord, bool) {
	if o.record == nil {
		return SnapshotRecord{}, false
	}
	return *o.record, true
}

// Reason returns the failure reason for a failed outcome; empty when complete.
func (o FetchOutcome) Reason() string { return o.reason }
