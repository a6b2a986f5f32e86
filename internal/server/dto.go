package server

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"edfhub/internal/edf"
)

// preprocessingOptionsDTO mirrors edf.PreprocessingOptions at the JSON
// boundary. A boundary decoder with DisallowUnknownFields rejects typos in
// client-supplied option names instead of silently ignoring them.
type preprocessingOptionsDTO struct {
	RemoveOutliers  bool    `json:"remove_outliers,omitempty"`
	Smoothing       bool    `json:"smoothing,omitempty"`
	SmoothingWindow int     `json:"smoothing_window,omitempty"`
	Normalization   string  `json:"normalization,omitempty"`
	ResampleHz      int     `json:"resample_hz,omitempty"`
	LowpassFilter   bool    `json:"lowpass_filter,omitempty"`
	HighpassFilter  bool    `json:"highpass_filter,omitempty"`
	NotchFilterHz   float64 `json:"notch_filter_hz,omitempty"`
	Detrend         bool    `json:"detrend,omitempty"`
}

func (d preprocessingOptionsDTO) toOptions() edf.PreprocessingOptions {
	return edf.PreprocessingOptions{
		RemoveOutliers:  d.RemoveOutliers,
		Smoothing:       d.Smoothing,
		SmoothingWindow: d.SmoothingWindow,
		Normalization:   edf.Normalization(d.Normalization),
		ResampleHz:      d.ResampleHz,
		LowpassFilter:   d.LowpassFilter,
		HighpassFilter:  d.HighpassFilter,
		NotchFilterHz:   d.NotchFilterHz,
		Detrend:         d.Detrend,
	}
}

// parsePreprocessingOptions decodes a raw JSON blob (query param or request
// body) into edf.PreprocessingOptions, rejecting unknown fields. An empty
// string returns the zero value.
func parsePreprocessingOptions(raw string) (edf.PreprocessingOptions, error) {
	if raw == "" {
		return edf.PreprocessingOptions{}, nil
	}
	var dto preprocessingOptionsDTO
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&dto); err != nil {
		return edf.PreprocessingOptions{}, fmt.Errorf("invalid preprocessing_options: %w", err)
	}
	return dto.toOptions(), nil
}

type fileMetadataDTO struct {
	TotalSamples        int64     `json:"total_samples"`
	NumSignals          int       `json:"num_signals"`
	SignalLabels        []string  `json:"signal_labels"`
	SamplingFrequencies []float64 `json:"sampling_frequencies"`
	FileDurationSeconds float64   `json:"file_duration_seconds"`
	PhysicalMin         []float64 `json:"physical_min"`
	PhysicalMax         []float64 `json:"physical_max"`
	DigitalMin          []int64   `json:"digital_min"`
	DigitalMax          []int64   `json:"digital_max"`
	StartDatetime       time.Time `json:"start_datetime"`
}

func newFileMetadataDTO(m *edf.FileMetadata) fileMetadataDTO {
	return fileMetadataDTO{
		TotalSamples:        m.TotalSamples,
		NumSignals:          m.NumSignals,
		SignalLabels:        m.SignalLabels,
		SamplingFrequencies: m.SamplingFrequencies,
		FileDurationSeconds: m.FileDurationSeconds,
		PhysicalMin:         m.PhysicalMin,
		PhysicalMax:         m.PhysicalMax,
		DigitalMin:          m.DigitalMin,
		DigitalMax:          m.DigitalMax,
		StartDatetime:       m.StartDatetime,
	}
}

type signalDTO struct {
	Label               string    `json:"label"`
	SamplingFrequencyHz float64   `json:"sampling_frequency_hz"`
	Samples             []float64 `json:"samples"`
}

type chunkDTO struct {
	Labels            []string    `json:"labels"`
	Signals           []signalDTO `json:"signals"`
	ChunkStartSamples int64       `json:"chunk_start_samples"`
	ChunkEndSamples   int64       `json:"chunk_end_samples"`
	ChunkSizeSamples  int64       `json:"chunk_size_samples"`
}

func newChunkDTO(c *edf.Chunk, channels []string) chunkDTO {
	wanted := make(map[string]bool, len(channels))
	for _, ch := range channels {
		wanted[ch] = true
	}

	out := chunkDTO{
		ChunkStartSamples: c.ChunkStartSamples,
		ChunkEndSamples:   c.ChunkEndSamples,
		ChunkSizeSamples:  c.ChunkSizeSamples,
	}
	for i, sig := range c.Signals {
		if len(wanted) > 0 && !wanted[sig.Label] {
			continue
		}
		out.Labels = append(out.Labels, c.Labels[i])
		out.Signals = append(out.Signals, signalDTO{
			Label:               sig.Label,
			SamplingFrequencyHz: sig.SamplingFrequencyHz,
			Samples:             sig.Samples,
		})
	}
	return out
}

type ddaResultDTO struct {
	FilePath     string          `json:"file_path"`
	Q            [][]*float64    `json:"Q"`
	ErrorKind    string          `json:"error_kind,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
}

type errorDTO struct {
	Error string `json:"error"`
}
