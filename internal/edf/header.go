package edf

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	fixedHeaderBytes  = 256
	signalHeaderBytes = 256 // sum of the per-signal field widths below, per signal
)

// header is the decoded fixed-size EDF header record plus the per-signal
// header fields. It mirrors the standard EDF layout: an 8-byte version, a
// handful of ASCII administrative fields, then ns parallel arrays of
// per-signal metadata.
type header struct {
	numDataRecords       int64
	durationSeconds      float64
	numSignals           int
	labels               []string
	physicalDimension    []string
	physicalMin          []float64
	physicalMax          []float64
	digitalMin           []int64
	digitalMax           []int64
	samplesPerRecord     []int64
	headerBytes          int64
	startDatetime        time.Time
}

// parseHeader decodes the fixed 256-byte header plus the ns signal-header
// blocks from raw bytes. Returns ErrCorruptHeader on any structural failure.
func parseHeader(raw []byte) (*header, error) {
	if len(raw) < fixedHeaderBytes {
		return nil, fmt.Errorf("%w: file shorter than fixed header", ErrCorruptHeader)
	}

	startDateStr := trimField(raw[168:176])
	startTimeStr := trimField(raw[176:184])
	headerBytesStr := trimField(raw[184:192])
	numRecordsStr := trimField(raw[236:244])
	durationStr := trimField(raw[244:252])
	numSignalsStr := trimField(raw[252:256])

	headerBytes, err := strconv.ParseInt(headerBytesStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: header byte count %q: %v", ErrCorruptHeader, headerBytesStr, err)
	}
	numRecords, err := strconv.ParseInt(numRecordsStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: data record count %q: %v", ErrCorruptHeader, numRecordsStr, err)
	}
	duration, err := strconv.ParseFloat(durationStr, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: record duration %q: %v", ErrCorruptHeader, durationStr, err)
	}
	numSignals, err := strconv.Atoi(numSignalsStr)
	if err != nil || numSignals <= 0 {
		return nil, fmt.Errorf("%w: signal count %q", ErrCorruptHeader, numSignalsStr)
	}

	want := fixedHeaderBytes + numSignals*signalHeaderBytes
	if len(raw) < want {
		return nil, fmt.Errorf("%w: expected %d header bytes for %d signals, have %d", ErrCorruptHeader, want, numSignals, len(raw))
	}

	h := &header{
		numDataRecords:  numRecords,
		durationSeconds: duration,
		numSignals:      numSignals,
		headerBytes:     headerBytes,
		startDatetime:   parseEDFDatetime(startDateStr, startTimeStr),
	}

	// Per-signal fields live in ns parallel blocks starting right after the
	// fixed header, each block ns * fieldWidth bytes wide.
	off := fixedHeaderBytes
	h.labels = readFieldBlock(raw, off, numSignals, 16)
	off += numSignals * 16
	off += numSignals * 80 // transducer type, unused
	h.physicalDimension = readFieldBlock(raw, off, numSignals, 8)
	off += numSignals * 8
	physMinStr := readFieldBlock(raw, off, numSignals, 8)
	off += numSignals * 8
	physMaxStr := readFieldBlock(raw, off, numSignals, 8)
	off += numSignals * 8
	digMinStr := readFieldBlock(raw, off, numSignals, 8)
	off += numSignals * 8
	digMaxStr := readFieldBlock(raw, off, numSignals, 8)
	off += numSignals * 8
	off += numSignals * 80 // prefiltering, unused
	samplesStr := readFieldBlock(raw, off, numSignals, 8)

	h.physicalMin = make([]float64, numSignals)
	h.physicalMax = make([]float64, numSignals)
	h.digitalMin = make([]int64, numSignals)
	h.digitalMax = make([]int64, numSignals)
	h.samplesPerRecord = make([]int64, numSignals)

	for i := 0; i < numSignals; i++ {
		h.physicalMin[i], err = strconv.ParseFloat(strings.TrimSpace(physMinStr[i]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: physical_min[%d] %q: %v", ErrCorruptHeader, i, physMinStr[i], err)
		}
		h.physicalMax[i], err = strconv.ParseFloat(strings.TrimSpace(physMaxStr[i]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: physical_max[%d] %q: %v", ErrCorruptHeader, i, physMaxStr[i], err)
		}
		h.digitalMin[i], err = strconv.ParseInt(strings.TrimSpace(digMinStr[i]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: digital_min[%d] %q: %v", ErrCorruptHeader, i, digMinStr[i], err)
		}
		h.digitalMax[i], err = strconv.ParseInt(strings.TrimSpace(digMaxStr[i]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: digital_max[%d] %q: %v", ErrCorruptHeader, i, digMaxStr[i], err)
		}
		h.samplesPerRecord[i], err = strconv.ParseInt(strings.TrimSpace(samplesStr[i]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: samples_per_record[%d] %q: %v", ErrCorruptHeader, i, samplesStr[i], err)
		}
	}

	return h, nil
}

// readFieldBlock slices n consecutive fieldWidth-byte ASCII fields starting
// at off, trimming trailing padding from each.
func readFieldBlock(raw []byte, off, n, fieldWidth int) []string {
	out := make([]string, n)
	for i := 0; i < n; i++ {
		start := off + i*fieldWidth
		out[i] = trimField(raw[start : start+fieldWidth])
	}
	return out
}

func trimField(b []byte) string {
	return strings.TrimSpace(string(bytes.TrimRight(b, "\x00")))
}

// parseEDFDatetime parses the "dd.mm.yy" + "hh.mm.ss" header fields. EDF's
// two-digit year is resolved per the EDF+ convention: 85-99 -> 1900s, else
// 2000s. Any parse failure yields the zero time rather than an error — the
// start timestamp is metadata, not load-bearing for chunk arithmetic.
func parseEDFDatetime(dateStr, timeStr string) time.Time {
	dateStr = strings.ReplaceAll(dateStr, ".", " ")
	timeStr = strings.ReplaceAll(timeStr, ".", " ")
	var dd, mm, yy int
	if _, err := fmt.Sscanf(dateStr, "%d %d %d", &dd, &mm, &yy); err != nil {
		return time.Time{}
	}
	var hh, mi, ss int
	if _, err := fmt.Sscanf(timeStr, "%d %d %d", &hh, &mi, &ss); err != nil {
		return time.Time{}
	}
	year := 2000 + yy
	if yy >= 85 {
		year = 1900 + yy
	}
	return time.Date(year, time.Month(mm), dd, hh, mi, ss, 0, time.UTC)
}

// totalSamples returns the reference channel's (signal 0) total sample count
// across the whole file.
func (h *header) totalSamples() int64 {
	if h.numSignals == 0 {
		return 0
	}
	return h.numDataRecords * h.samplesPerRecord[0]
}

// samplingFrequency returns signal i's samples-per-second rate.
func (h *header) samplingFrequency(i int) float64 {
	if h.durationSeconds <= 0 {
		return 0
	}
	return float64(h.samplesPerRecord[i]) / h.durationSeconds
}

// toMetadata projects the decoded header into the cacheable FileMetadata view.
func (h *header) toMetadata() *FileMetadata {
	freqs := make([]float64, h.numSignals)
	for i := range freqs {
		freqs[i] = h.samplingFrequency(i)
	}
	return &FileMetadata{
		TotalSamples:        h.totalSamples(),
		NumSignals:          h.numSignals,
		SignalLabels:        append([]string(nil), h.labels...),
		SamplingFrequencies: freqs,
		FileDurationSeconds: float64(h.numDataRecords) * h.durationSeconds,
		PhysicalMin:         append([]float64(nil), h.physicalMin...),
		PhysicalMax:         append([]float64(nil), h.physicalMax...),
		DigitalMin:          append([]int64(nil), h.digitalMin...),
		DigitalMax:          append([]int64(nil), h.digitalMax...),
		StartDatetime:       h.startDatetime,
	}
}
