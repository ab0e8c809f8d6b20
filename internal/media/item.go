package media

import "time"

// Metadata is the probed technical description of a media file.
type Metadata struct {
	DurationSeconds float64
	Container       string
	VideoCodec      string
	AudioCodec      string
	Width           int
	Height          int
	FrameRate       float64
}

// ConversionSpec captures the conversion an item was enqueued with. The
// spec travels with the item so queue snapshots restore exactly what was
// requested even if the configuration changed between runs.
type ConversionSpec struct {
	Container      string  `json:"container,omitempty"`
	VideoCodec     string  `json:"videoCodec,omitempty"`
	AudioCodec     string  `json:"audioCodec,omitempty"`
	MaxFrameRate   float64 `json:"maxFrameRate,omitempty"`
	DeleteOriginal bool    `json:"deleteOriginal,omitempty"`
}

// FailureRecord pins a failure to the phase that produced it.
type FailureRecord struct {
	Phase   Phase
	Message string
}

// Item is one discovered file moving through the pipeline. Path is the
// item's identity for duplicate detection; it is rewritten to the staged
// output after a conversion, with the source kept in OriginalPath.
type Item struct {
	Path          string
	Kind          Kind
	Metadata      *Metadata
	Conversion    ConversionSpec
	HomeMedia     bool
	Status        Status
	Failure       *FailureRecord
	SubtitleError string
	OriginalPath  string
	FinalPath     string
	DiscoveredAt  time.Time
}

// NewItem builds a freshly discovered item.
func NewItem(path string, kind Kind, conversion ConversionSpec) *Item {
	return &Item{
		Path:         path,
		Kind:         kind,
		Conversion:   conversion,
		Status:       StatusDiscovered,
		DiscoveredAt: time.Now().UTC(),
	}
}

// NeedsConversion reports whether the item's kind goes through the
// transcoder at all. Whether the file actually needs re-encoding is the
// converter's call once it sees the probed metadata.
func (i *Item) NeedsConversion() bool {
	return i.Kind.Convertible()
}

// MarkFailed records a terminal failure in the given phase.
func (i *Item) MarkFailed(phase Phase, err error) {
	i.Status = StatusFailed
	record := &FailureRecord{Phase: phase}
	if err != nil {
		record.Message = err.Error()
	}
	i.Failure = record
}

// FailedPhase returns the phase a failed item failed in, or empty.
func (i *Item) FailedPhase() Phase {
	if i.Failure == nil {
		return ""
	}
	return i.Failure.Phase
}

// ErrorMessage returns the recorded failure message, or empty.
func (i *Item) ErrorMessage() string {
	if i.Failure == nil {
		return ""
	}
	return i.Failure.Message
}

// FunctionallyMoved reports whether the item's file reached the library.
// An item that failed only at deleting the pre-conversion original still
// counts: the library copy is in place, only cleanup is owed.
func (i *Item) FunctionallyMoved() bool {
	if i.Status == StatusSucceeded {
		return true
	}
	return i.Status == StatusFailed && i.FailedPhase() == PhaseDeleting
}
