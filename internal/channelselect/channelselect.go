// Package channelselect implements the Channel Selector: heuristic EEG
// channel triage used when a client supplies no explicit channel list.
// Grounded on the source's ChannelSelector.get_intelligent_default_channels.
package channelselect

import (
	"log/slog"
	"math"
	"sort"
	"strings"

	"edfhub/internal/edf"
	"edfhub/internal/logging"
)

var annotationPatterns = []string{"event", "annotation", "trigger", "marker", "status", "evt"}
var nonEEGPatterns = []string{"ecg", "ekg", "emg", "eog", "pulse", "sat", "o2", "spo2", "resp", "hr", "temp"}

const problematicRange = 10_000.0

// MetadataSource resolves a file's FileMetadata through the single owner of
// cached metadata: the selector never reads metadata through a second path.
type MetadataSource interface {
	GetMetadata(path string) (*edf.FileMetadata, error)
}

// ChunkSource reads a raw, unpreprocessed probe chunk for variance analysis.
type ChunkSource interface {
	ReadRawChunk(path string, chunkStart, chunkSize int64) (*edf.Chunk, int64, error)
}

// Selector picks a default channel set for a file when the caller supplies
// none, favoring EEG-like signals over annotation and non-EEG channels.
type Selector struct {
	metadata MetadataSource
	chunks   ChunkSource
	logger   *slog.Logger
}

// New creates a Selector backed by the given metadata and chunk sources
// (normally both satisfied by the Chunk Orchestrator).
func New(metadata MetadataSource, chunks ChunkSource, logger *slog.Logger) *Selector {
	return &Selector{
		metadata: metadata,
		chunks:   chunks,
		logger:   logging.Default(logger).With("component", "channelselect"),
	}
}

// SelectDefaultChannels runs the full triage algorithm and returns an
// ordered, possibly empty, list of channel labels.
func (s *Selector) SelectDefaultChannels(path string, maxChannels int, probeOffset, probeSize int64) []string {
	meta, err := s.metadata.GetMetadata(path)
	if err != nil || meta == nil || len(meta.SignalLabels) == 0 {
		return nil
	}

	candidates := nameFilter(meta.SignalLabels)
	if len(candidates) == 0 {
		return fallback(meta.SignalLabels, maxChannels)
	}

	rangeFiltered, capped := s.rangeFilter(meta, candidates)
	if capped && maxChannels > 3 {
		maxChannels = 3
	}

	if len(rangeFiltered) >= maxChannels {
		return rangeFiltered[:maxChannels]
	}

	byVariance := s.varianceProbe(path, rangeFiltered, probeOffset, probeSize)
	if len(byVariance) > 0 {
		if len(byVariance) > maxChannels {
			byVariance = byVariance[:maxChannels]
		}
		return byVariance
	}

	if len(rangeFiltered) > 0 {
		n := maxChannels
		if n > len(rangeFiltered) {
			n = len(rangeFiltered)
		}
		return rangeFiltered[:n]
	}

	return fallback(meta.SignalLabels, maxChannels)
}

// nameFilter drops annotation-like and non-EEG physiologic channels by
// lowercased substring match.
func nameFilter(labels []string) []string {
	var out []string
	for _, label := range labels {
		lower := strings.ToLower(label)
		if containsAny(lower, annotationPatterns) || containsAny(lower, nonEEGPatterns) {
			continue
		}
		out = append(out, label)
	}
	return out
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// rangeFilter drops labels whose physical min/max are inverted or exceed the
// problematic range. Returns the filtered set and whether the caller should
// fall back to the original, capped-at-3 set.
func (s *Selector) rangeFilter(meta *edf.FileMetadata, candidates []string) ([]string, bool) {
	indexOf := make(map[string]int, len(meta.SignalLabels))
	for i, l := range meta.SignalLabels {
		indexOf[l] = i
	}

	var good []string
	for _, label := range candidates {
		idx, ok := indexOf[label]
		if !ok || idx >= len(meta.PhysicalMin) || idx >= len(meta.PhysicalMax) {
			continue
		}
		min := meta.PhysicalMin[idx]
		max := meta.PhysicalMax[idx]
		if min > max || math.Abs(min) > problematicRange || math.Abs(max) > problematicRange {
			continue
		}
		good = append(good, label)
	}

	if len(good) > 0 {
		return good, false
	}
	return candidates, true
}

type varianceEntry struct {
	label    string
	variance float64
}

// varianceProbe reads a short chunk and retains channels whose sample
// variance falls in the "interesting signal" band.
func (s *Selector) varianceProbe(path string, candidates []string, probeOffset, probeSize int64) []string {
	chunk, _, err := s.chunks.ReadRawChunk(path, probeOffset, probeSize)
	if err != nil || chunk == nil {
		return nil
	}

	candidateSet := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		candidateSet[c] = true
	}

	var entries []varianceEntry
	for _, sig := range chunk.Signals {
		if !candidateSet[sig.Label] {
			continue
		}
		v := varianceOfFinite(sig.Samples)
		if v > 0.001 && v < 1_000_000 {
			entries = append(entries, varianceEntry{label: sig.Label, variance: v})
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].variance > entries[j].variance })
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.label
	}
	return out
}

func varianceOfFinite(x []float64) float64 {
	var sum, sumSq float64
	var n int
	for _, v := range x {
		if !math.IsInf(v, 0) && !math.IsNaN(v) {
			sum += v
			sumSq += v * v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	mean := sum / float64(n)
	return sumSq/float64(n) - mean*mean
}

// fallback implements step 6(b)/(c): skip index 0 (often an event channel)
// if there are enough remaining labels, else take the unfiltered prefix.
func fallback(labels []string, maxChannels int) []string {
	if len(labels) == 0 {
		return nil
	}
	if len(labels) > maxChannels {
		rest := labels[1:]
		if len(rest) >= maxChannels {
			return rest[:maxChannels]
		}
	}
	n := maxChannels
	if n > len(labels) {
		n = len(labels)
	}
	return labels[:n]
}
