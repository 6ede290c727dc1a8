package scan

import (
	"time"

	"github.com/radouane/scanner/internal/imageasset"
	"github.com/radouane/scanner/internal/models"
	"github.com/radouane/scanner/internal/scanerr"
	"github.com/radouane/scanner/internal/scoring"
)

// ImageInfo describes the selected image for presentation.
type ImageInfo struct {
	Name       string                `json:"name"`
	MIMEType   string                `json:"mimeType"`
	Size       int                   `json:"size"`
	Width      int                   `json:"width,omitempty"`
	Height     int                   `json:"height,omitempty"`
	Source     imageasset.SourceKind `json:"source"`
	PreviewURL string                `json:"previewUrl"`
}

// Snapshot is the presentation view of the orchestrator at one point in time.
type Snapshot struct {
	State    State                  `json:"state"`
	Version  uint64                 `json:"version"`
	Image    *ImageInfo             `json:"image,omitempty"`
	Language string                 `json:"language"`
	Category string                 `json:"category,omitempty"`
	Result   *models.AnalysisResult `json:"result,omitempty"`
	Band     scoring.Band           `json:"band,omitempty"`
	Counts   map[models.Group]int   `json:"counts,omitempty"`
	Report   *scoring.Report        `json:"report,omitempty"`
	Error    *scanerr.Error         `json:"error,omitempty"`
	At       time.Time              `json:"at"`
}

// Snapshot returns the current presentation view.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// transitionLocked records a state change and returns the new view.
func (o *Orchestrator) transitionLocked() Snapshot {
	o.version++
	o.updated = time.Now()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:    o.state,
		Version:  o.version,
		Language: o.language,
		Category: o.category,
		Error:    o.err,
		Report:   o.report,
		At:       o.updated,
	}
	if a := o.asset; a != nil {
		snap.Image = &ImageInfo{
			Name:       a.Name(),
			MIMEType:   a.MIMEType(),
			Size:       a.Size(),
			Width:      a.Width(),
			Height:     a.Height(),
			Source:     a.Source(),
			PreviewURL: a.PreviewURL(),
		}
	}
	if o.result != nil {
		snap.Result = o.result
		snap.Band = scoring.BandFor(o.result.OverallScore)
		snap.Counts = o.result.Counts()
	}
	return snap
}
