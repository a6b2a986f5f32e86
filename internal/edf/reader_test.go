package edf

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeTestEDF builds a minimal, spec-conformant EDF file with ns signals,
// each with samplesPerRecord[i] samples per record, numRecords records, and
// a fixed 1-second record duration. Every sample value is i (the global
// sample index) encoded in digital units, so tests can assert on exact
// physical values via the linear digital->physical mapping.
func writeTestEDF(t *testing.T, dir string, labels []string, samplesPerRecord []int64, numRecords int64) string {
	t.Helper()
	ns := len(labels)
	require.Equal(t, ns, len(samplesPerRecord))

	headerBytes := int64(256 + ns*256)

	buf := make([]byte, headerBytes)
	for i := range buf {
		buf[i] = ' '
	}
	putField := func(off int, s string) {
		copy(buf[off:], []byte(s))
	}
	putField(0, "0")
	putField(168, "01.01.20")
	putField(176, "00.00.00")
	putField(184, itoa(headerBytes))
	putField(236, itoa(numRecords))
	putField(244, "1")
	putField(252, itoa(int64(ns)))

	off := 256
	for _, l := range labels {
		putField(off, l)
		off += 16
	}
	dimensionOff := off + ns*80
	for i := 0; i < ns; i++ {
		putField(dimensionOff+i*8, "uV")
	}
	physMinOff := dimensionOff + ns*8
	for i := 0; i < ns; i++ {
		putField(physMinOff+i*8, "-1000")
	}
	physMaxOff := physMinOff + ns*8
	for i := 0; i < ns; i++ {
		putField(physMaxOff+i*8, "1000")
	}
	digMinOff := physMaxOff + ns*8
	for i := 0; i < ns; i++ {
		putField(digMinOff+i*8, "-2048")
	}
	digMaxOff := digMinOff + ns*8
	for i := 0; i < ns; i++ {
		putField(digMaxOff+i*8, "2047")
	}
	samplesOff := digMaxOff + ns*8 + ns*80
	for i := 0; i < ns; i++ {
		putField(samplesOff+i*8, itoa(samplesPerRecord[i]))
	}

	// Data records: value for signal i, record r, sample j is the global
	// sample index (r*samplesPerRecord[i] + j), clamped into digital range
	// via modulo so it round-trips losslessly as int16.
	var data []byte
	for r := int64(0); r < numRecords; r++ {
		for i := 0; i < ns; i++ {
			n := samplesPerRecord[i]
			for j := int64(0); j < n; j++ {
				globalIdx := r*n + j
				val := int16(globalIdx % 2048)
				b := make([]byte, 2)
				binary.LittleEndian.PutUint16(b, uint16(val))
				data = append(data, b...)
			}
		}
	}

	full := append(buf, data...)
	path := filepath.Join(dir, "test.edf")
	require.NoError(t, os.WriteFile(path, full, 0o644))
	return path
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var digits []byte
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	if neg {
		digits = append([]byte{'-'}, digits...)
	}
	return string(digits)
}

func TestOpenAndReadHeader(t *testing.T) {
	dir := t.TempDir()
	path := writeTestEDF(t, dir, []string{"EEG C3-M2", "EEG O1-M2"}, []int64{10, 10}, 5)

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, 2, r.NumSignals())
	require.Equal(t, int64(50), r.NumSamples())
	require.Equal(t, 10.0, r.SampleFrequency(0))
	require.Equal(t, "EEG C3-M2", r.Label(0))
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open("/nonexistent/path/does-not-exist.edf")
	require.ErrorIs(t, err, ErrFileNotFound)
}

func TestProbeSucceedsOnValidFile(t *testing.T) {
	dir := t.TempDir()
	path := writeTestEDF(t, dir, []string{"EEG"}, []int64{10}, 3)
	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, r.Probe())
}

func TestReadChunkBoundsCorrection(t *testing.T) {
	dir := t.TempDir()
	path := writeTestEDF(t, dir, []string{"EEG"}, []int64{10}, 10) // 100 samples total

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	// Negative start clamps to 0; oversized chunk clips to total.
	chunk, total, err := ReadChunkFromReader(r, -5, 1000, nil)
	require.NoError(t, err)
	require.Equal(t, int64(100), total)
	require.Equal(t, int64(0), chunk.ChunkStartSamples)
	require.Equal(t, int64(100), chunk.ChunkSizeSamples)
	require.Len(t, chunk.Signals[0].Samples, 100)
}

func TestReadChunkPastEndYieldsZeroPlaceholder(t *testing.T) {
	dir := t.TempDir()
	path := writeTestEDF(t, dir, []string{"EEG"}, []int64{10}, 5) // 50 samples

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	chunk, _, err := ReadChunkFromReader(r, 50, 100, nil)
	require.NoError(t, err)
	require.Equal(t, []float64{0}, chunk.Signals[0].Samples)
}

func TestReadChunkDefaultSizeSubstitution(t *testing.T) {
	dir := t.TempDir()
	path := writeTestEDF(t, dir, []string{"EEG"}, []int64{100}, 1000) // 100000 samples

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	chunk, _, err := ReadChunkFromReader(r, 0, 0, nil)
	require.NoError(t, err)
	require.Equal(t, int64(DefaultChunkSize), chunk.ChunkSizeSamples)
}

func TestChunkCloneIsDeepCopy(t *testing.T) {
	dir := t.TempDir()
	path := writeTestEDF(t, dir, []string{"EEG"}, []int64{10}, 5)
	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	chunk, _, err := ReadChunkFromReader(r, 0, 50, nil)
	require.NoError(t, err)

	clone := chunk.Clone()
	clone.Signals[0].Samples[0] = math.Inf(1)
	require.NotEqual(t, chunk.Signals[0].Samples[0], clone.Signals[0].Samples[0])
}

func TestSyntheticChunkDeterministic(t *testing.T) {
	c1, total1 := SyntheticChunk(0, 100)
	c2, total2 := SyntheticChunk(0, 100)
	require.Equal(t, total1, total2)
	require.Equal(t, c1.Signals[0].Samples, c2.Signals[0].Samples)
}
