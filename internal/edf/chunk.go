package edf

import (
	"log/slog"
	"math"
	"time"

	"edfhub/internal/logging"
)

// ReadHeader opens path just long enough to parse its header and returns the
// resulting FileMetadata.
func ReadHeader(path string) (*FileMetadata, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.Metadata(), nil
}

// ReadChunkRaw opens a fresh reader over path (bypassing any handle pool),
// decodes one chunk, and closes it: the dedicated open-close sequence used
// on a cache miss.
func ReadChunkRaw(path string, chunkStart, chunkSize int64, logger *slog.Logger) (*Chunk, int64, error) {
	r, err := Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer r.Close()
	return ReadChunkFromReader(r, chunkStart, chunkSize, logger)
}

// ReadChunkFromReader decodes one chunk from an already-open reader, applying
// its bound-correction rules: negative starts clamp to zero, non-positive
// sizes fall back to DefaultChunkSize, the window clips to
// [0, total_samples], and a per-channel read that clips to zero yields a
// single-zero placeholder rather than failing the whole chunk.
func ReadChunkFromReader(r *Reader, chunkStart, chunkSize int64, logger *slog.Logger) (*Chunk, int64, error) {
	logger = logging.Default(logger)

	if chunkStart < 0 {
		chunkStart = 0
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	totalSamples := r.NumSamples()
	if chunkStart > totalSamples {
		chunkStart = totalSamples
	}
	end := chunkStart + chunkSize
	if end > totalSamples {
		end = totalSamples
	}
	effectiveSize := end - chunkStart
	if effectiveSize < 0 {
		effectiveSize = 0
	}

	meta := r.Metadata()
	numSignals := r.NumSignals()

	chunk := &Chunk{
		Labels:            append([]string(nil), meta.SignalLabels...),
		Signals:           make([]Signal, numSignals),
		ChunkStartSamples: chunkStart,
		ChunkEndSamples:   chunkStart + effectiveSize,
		ChunkSizeSamples:  effectiveSize,
		PhysicalMin:       append([]float64(nil), meta.PhysicalMin...),
		PhysicalMax:       append([]float64(nil), meta.PhysicalMax...),
		DigitalMin:        append([]int64(nil), meta.DigitalMin...),
		DigitalMax:        append([]int64(nil), meta.DigitalMax...),
		StartDatetime:     meta.StartDatetime,
	}

	for i := 0; i < numSignals; i++ {
		label := r.Label(i)
		freq := r.SampleFrequency(i)
		nForSignal := r.NumSamplesFor(i)

		readLen := nForSignal - chunkStart
		if readLen > effectiveSize {
			readLen = effectiveSize
		}
		if readLen < 0 {
			readLen = 0
		}

		if readLen == 0 {
			logger.Warn("channel read clipped to empty, returning zero placeholder",
				"signal", label, "chunk_start", chunkStart)
			chunk.Signals[i] = Signal{
				Label:               label,
				SamplingFrequencyHz: freq,
				Samples:             []float64{0},
			}
			continue
		}

		samples, err := r.ReadSamples(i, chunkStart, readLen)
		if err != nil {
			logger.Warn("channel read failed, returning zero placeholder",
				"signal", label, "chunk_start", chunkStart, "error", err)
			chunk.Signals[i] = Signal{
				Label:               label,
				SamplingFrequencyHz: freq,
				Samples:             []float64{0},
			}
			continue
		}
		chunk.Signals[i] = Signal{
			Label:               label,
			SamplingFrequencyHz: freq,
			Samples:             samples,
		}
	}

	return chunk, totalSamples, nil
}

// ApplyPreprocessing applies opts to every signal of a chunk. A nil chunk or
// zero opts returns c itself; otherwise it returns a new Chunk, and the input
// chunk's own Signal.Samples slices are never mutated.
func ApplyPreprocessing(c *Chunk, opts PreprocessingOptions) *Chunk {
	if c == nil || opts.IsZero() {
		return c
	}
	out := c.Clone()
	for i, sig := range out.Signals {
		out.Signals[i].Samples = Apply(sig.Samples, sig.SamplingFrequencyHz, opts)
	}
	return out
}

// SyntheticMetadata describes the fixed synthetic record: 1000 seconds at
// 512 Hz, single channel "EEG". This is a declared testability affordance,
// never triggered implicitly — callers opt in via config.
func SyntheticMetadata() *FileMetadata {
	const hz = 512.0
	const seconds = 1000.0
	return &FileMetadata{
		TotalSamples:        int64(hz * seconds),
		NumSignals:          1,
		SignalLabels:        []string{"EEG"},
		SamplingFrequencies: []float64{hz},
		FileDurationSeconds: seconds,
		PhysicalMin:         []float64{-500},
		PhysicalMax:         []float64{500},
		DigitalMin:          []int64{-2048},
		DigitalMax:          []int64{2047},
		StartDatetime:       time.Time{},
	}
}

// SyntheticChunk produces a deterministic 10 Hz sine wave over the synthetic
// record described by SyntheticMetadata.
func SyntheticChunk(chunkStart, chunkSize int64) (*Chunk, int64) {
	meta := SyntheticMetadata()
	if chunkStart < 0 {
		chunkStart = 0
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	end := chunkStart + chunkSize
	if end > meta.TotalSamples {
		end = meta.TotalSamples
	}
	size := end - chunkStart
	if size < 0 {
		size = 0
	}

	const signalHz = 10.0
	samples := make([]float64, size)
	for i := range samples {
		t := float64(chunkStart+int64(i)) / meta.SamplingFrequencies[0]
		samples[i] = math.Sin(2 * math.Pi * signalHz * t)
	}

	return &Chunk{
		Labels:            meta.SignalLabels,
		Signals:           []Signal{{Label: "EEG", SamplingFrequencyHz: meta.SamplingFrequencies[0], Samples: samples}},
		ChunkStartSamples: chunkStart,
		ChunkEndSamples:   chunkStart + size,
		ChunkSizeSamples:  size,
		PhysicalMin:       meta.PhysicalMin,
		PhysicalMax:       meta.PhysicalMax,
		DigitalMin:        meta.DigitalMin,
		DigitalMax:        meta.DigitalMax,
		StartDatetime:     meta.StartDatetime,
	}, meta.TotalSamples
}
