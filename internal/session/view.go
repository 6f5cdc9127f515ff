package session

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// AppName prefixes the window-style title.
const AppName = "hash256"

// View is the JSON snapshot handed to the UI layer.
type View struct {
	Title      string       `json:"title"`
	Path       string       `json:"path"`
	Running    bool         `json:"running"`
	Cancelling bool         `json:"cancelling"`
	Token      uint64       `json:"token"`
	Progress   ProgressView `json:"progress"`

	Hex        string  `json:"hex"`
	Base64     string  `json:"base64"`
	ElapsedMs  int64   `json:"elapsed_ms"`
	Bytes      uint64  `json:"bytes"`
	SourcePath string  `json:"source_path"`
	Throughput float64 `json:"throughput_bytes_per_second"`
	Summary    string  `json:"summary"`
	Error      string  `json:"error,omitempty"`

	Uppercase bool `json:"uppercase"`
	AutoHash  bool `json:"auto_hash"`
}

// ProgressView is the live progress of the active run. Total and Percent are
// nil when the size is unknown.
type ProgressView struct {
	Processed uint64   `json:"processed"`
	Total     *uint64  `json:"total"`
	Percent   *float64 `json:"percent"`
}

// View renders s for display.
func (s State) View(version string) View {
	v := View{
		Title:      s.Title(version),
		Path:       s.Path,
		Running:    s.Running,
		Cancelling: s.Cancelling,
		Token:      uint64(s.Token),
		Progress:   ProgressView{Processed: s.Progress.Processed},
		Hex:        s.DisplayHex(),
		Error:      s.Error,
		Uppercase:  s.Uppercase,
		AutoHash:   s.AutoHash,
	}
	if s.Progress.TotalKnown {
		total := s.Progress.Total
		v.Progress.Total = &total
		if pct, ok := s.Progress.Percent(); ok {
			v.Progress.Percent = &pct
		}
	}
	if o := s.Output; o != nil {
		v.Base64 = o.Base64
		v.ElapsedMs = o.Elapsed.Milliseconds()
		v.Bytes = o.Bytes
		v.SourcePath = o.Path
		v.Throughput = throughput(o.Bytes, o.Elapsed)
	}
	v.Summary = s.summary()
	return v
}

// Title mirrors the window title of the desktop app.
func (s State) Title(version string) string {
	base := fmt.Sprintf("%s v%s", AppName, version)
	if !s.Running {
		return base
	}
	if pct, ok := s.Progress.Percent(); ok {
		return fmt.Sprintf("%s - %.0f%%", base, pct)
	}
	return base + " - hashing..."
}

// summary is the one-line meta text: duration, size and speed.
func (s State) summary() string {
	switch {
	case s.Running:
		return "Hashing..."
	case s.Error != "" || s.Output == nil:
		return ""
	}
	o := s.Output
	speed := throughput(o.Bytes, o.Elapsed)
	return fmt.Sprintf("%s • %s • %s/s",
		humanDuration(o.Elapsed), humanize.IBytes(o.Bytes), humanize.IBytes(uint64(speed)))
}

func throughput(bytes uint64, elapsed time.Duration) float64 {
	secs := elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(bytes) / secs
}

func humanDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1000 {
		return fmt.Sprintf("%d ms", ms)
	}
	return fmt.Sprintf("%.2f s", float64(ms)/1000)
}
