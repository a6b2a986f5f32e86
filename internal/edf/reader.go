package edf

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"syscall"
)

// Reader is an open handle onto one EDF file: the parsed header plus an
// mmap'd view of the data records. Safe for concurrent reads; Close is not
// safe to call concurrently with a read in progress.
type Reader struct {
	path string
	file *os.File
	data []byte
	hdr  *header

	dataOffset       int64
	recordBytesTotal int64
	signalOffset     []int64 // byte offset of signal i's block within one record

	mu     sync.Mutex
	closed bool
}

// Open mmaps path and parses its EDF header. Returns ErrFileNotFound if the
// path does not exist, ErrCorruptHeader if the header cannot be parsed.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("edf: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("edf: stat %s: %w", path, err)
	}
	if info.Size() < fixedHeaderBytes {
		f.Close()
		return nil, fmt.Errorf("%w: %s too small", ErrCorruptHeader, path)
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, int(info.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("edf: mmap %s: %w", path, err)
	}

	hdr, err := parseHeader(data)
	if err != nil {
		syscall.Munmap(data)
		f.Close()
		return nil, err
	}

	recordBytesTotal := int64(0)
	signalOffset := make([]int64, hdr.numSignals)
	for i, n := range hdr.samplesPerRecord {
		signalOffset[i] = recordBytesTotal
		recordBytesTotal += n * 2
	}

	return &Reader{
		path:             path,
		file:             f,
		data:             data,
		hdr:              hdr,
		dataOffset:       hdr.headerBytes,
		recordBytesTotal: recordBytesTotal,
		signalOffset:     signalOffset,
	}, nil
}

// Close unmaps the file and closes the underlying descriptor. Safe to call
// more than once.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	var err error
	if r.data != nil {
		if merr := syscall.Munmap(r.data); merr != nil {
			err = merr
		}
		r.data = nil
	}
	if cerr := r.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Path returns the path this reader was opened against.
func (r *Reader) Path() string { return r.path }

// NumSignals returns "signals_in_file" — the liveness probe's first check.
func (r *Reader) NumSignals() int { return r.hdr.numSignals }

// NumSamples returns the total sample count for the reference channel
// (signal 0), i.e. "getNSamples()" in the liveness probe.
func (r *Reader) NumSamples() int64 { return r.hdr.totalSamples() }

// NumSamplesFor returns the total sample count for a specific signal.
func (r *Reader) NumSamplesFor(sig int) int64 {
	if sig < 0 || sig >= r.hdr.numSignals {
		return 0
	}
	return r.hdr.numDataRecords * r.hdr.samplesPerRecord[sig]
}

// SampleFrequency returns "getSampleFrequency(sig)".
func (r *Reader) SampleFrequency(sig int) float64 {
	if sig < 0 || sig >= r.hdr.numSignals {
		return 0
	}
	return r.hdr.samplingFrequency(sig)
}

// Label returns signal i's channel label.
func (r *Reader) Label(sig int) string {
	if sig < 0 || sig >= r.hdr.numSignals {
		return ""
	}
	return r.hdr.labels[sig]
}

// Metadata projects the parsed header into a FileMetadata snapshot.
func (r *Reader) Metadata() *FileMetadata {
	return r.hdr.toMetadata()
}

// Probe performs the liveness check from the handle pool spec: read
// signals_in_file, getNSamples, getSampleFrequency(0), and a 1-sample read
// of signal 0. Returns an error describing the first failure.
func (r *Reader) Probe() error {
	if r.NumSignals() <= 0 {
		return fmt.Errorf("edf: probe: no signals reported")
	}
	if r.NumSamples() < 0 {
		return fmt.Errorf("edf: probe: negative sample count")
	}
	if r.SampleFrequency(0) <= 0 {
		return fmt.Errorf("edf: probe: non-positive sample frequency for signal 0")
	}
	if _, err := r.ReadSamples(0, 0, 1); err != nil {
		return fmt.Errorf("edf: probe: signal 0 read failed: %w", err)
	}
	return nil
}

// ReadSamples decodes count physical-unit samples of signal sig starting at
// global sample index start. The caller is responsible for clamping
// start/count to the signal's valid range first; ReadSamples itself only
// refuses to read past the mmap'd extent.
func (r *Reader) ReadSamples(sig int, start, count int64) ([]float64, error) {
	if sig < 0 || sig >= r.hdr.numSignals {
		return nil, fmt.Errorf("edf: signal index %d out of range [0,%d)", sig, r.hdr.numSignals)
	}
	if count <= 0 {
		return []float64{}, nil
	}

	perRecord := r.hdr.samplesPerRecord[sig]
	if perRecord <= 0 {
		return nil, fmt.Errorf("edf: signal %d has zero samples per record", sig)
	}

	digMin := r.hdr.digitalMin[sig]
	digMax := r.hdr.digitalMax[sig]
	physMin := r.hdr.physicalMin[sig]
	physMax := r.hdr.physicalMax[sig]
	scale := float64(0)
	if digMax != digMin {
		scale = (physMax - physMin) / float64(digMax-digMin)
	}

	out := make([]float64, count)
	for i := int64(0); i < count; i++ {
		s := start + i
		recordIdx := s / perRecord
		sampleInRecord := s % perRecord
		byteOff := r.dataOffset + recordIdx*r.recordBytesTotal + r.signalOffset[sig] + sampleInRecord*2
		if byteOff+2 > int64(len(r.data)) {
			return nil, fmt.Errorf("edf: sample %d of signal %d beyond end of file", s, sig)
		}
		raw := int16(binary.LittleEndian.Uint16(r.data[byteOff : byteOff+2]))
		out[i] = physMin + float64(int64(raw)-digMin)*scale
	}
	return out, nil
}
