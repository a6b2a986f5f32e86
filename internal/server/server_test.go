package server

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"edfhub/internal/config"
	"edfhub/internal/core"
	"edfhub/internal/logging"
)

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	var digits []byte
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	return string(digits)
}

func writeTestEDF(t *testing.T, path string, n int) {
	t.Helper()
	ns := 1
	headerBytes := 256 + ns*256
	buf := make([]byte, headerBytes)
	for i := range buf {
		buf[i] = ' '
	}
	put := func(off int, s string) { copy(buf[off:], []byte(s)) }
	put(0, "0")
	put(168, "01.01.20")
	put(176, "00.00.00")
	put(184, itoa(headerBytes))
	put(236, "1")
	put(244, "1")
	put(252, "1")
	put(256, "EEG C3-M2")
	put(256+16+80, "uV")
	put(256+16+80+8, "-1000")
	put(256+16+80+16, "1000")
	put(256+16+80+24, "-2048")
	put(256+16+80+32, "2047")
	put(256+16+80+40+80, itoa(n))

	var data []byte
	for i := 0; i < n; i++ {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(int16(i)))
		data = append(data, b...)
	}
	full := append(buf, data...)
	require.NoError(t, os.WriteFile(path, full, 0o644))
}

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.SyntheticMode = false
	cfg.DataRoot = dir
	cfg.AllowedRoots = []string{dir}
	cfg.PreloadWorkers = 2

	c := core.New(cfg, logging.Discard())
	t.Cleanup(c.Close)

	return New(c, Config{Logger: logging.Discard()}), dir
}

func TestHealthzAlwaysOK(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestInfoRejectsMissingFilePath(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/edf/info", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInfoRejectsPathOutsideAllowedRoots(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/edf/info?file_path=/etc/passwd", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestInfoReturnsMetadataForAllowedFile(t *testing.T) {
	s, dir := newTestServer(t)
	path := filepath.Join(dir, "rec.edf")
	writeTestEDF(t, path, 500)

	req := httptest.NewRequest(http.MethodGet, "/edf/info?file_path="+path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body fileMetadataDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.NumSignals)
	require.Equal(t, int64(500), body.TotalSamples)
}

func TestDataReturnsChunkForAllowedFile(t *testing.T) {
	s, dir := newTestServer(t)
	path := filepath.Join(dir, "rec.edf")
	writeTestEDF(t, path, 500)

	req := httptest.NewRequest(http.MethodGet, "/edf/data?file_path="+path+"&chunk_start=0&chunk_size=100", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body chunkDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Signals, 1)
}

func TestDataRejectsMalformedPreprocessingOptions(t *testing.T) {
	s, dir := newTestServer(t)
	path := filepath.Join(dir, "rec.edf")
	writeTestEDF(t, path, 500)

	req := httptest.NewRequest(http.MethodGet, "/edf/data?file_path="+path+"&chunk_start=0&chunk_size=100&preprocessing_options=%7B%22bogus_field%22%3Atrue%7D", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCacheStatsAlwaysObservable(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/edf/cache/stats", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCacheClearIsIdempotent(t *testing.T) {
	s, _ := newTestServer(t)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/edf/cache/clear", nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestDefaultChannelsRejectsPathOutsideAllowedRoots(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/edf/default_channels?file_path=/etc/passwd&max_channels=3", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDDARunNeverReturnsNon200(t *testing.T) {
	s, _ := newTestServer(t)
	body, _ := json.Marshal(ddaRequestDTO{FilePath: "/nonexistent.edf"})
	req := httptest.NewRequest(http.MethodPost, "/dda", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result ddaResultDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.NotEmpty(t, result.ErrorKind)
}

func TestDDAVariantsEnumeratesStaticList(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/dda/variants", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var variants []ddaVariant
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &variants))
	require.NotEmpty(t, variants)
}

func TestDDAHistoryMissingIDReturnsNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/dda/history/does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimitRejectsBurstAboveLimit(t *testing.T) {
	s, _ := newTestServer(t)
	s.rl = newRateLimiter(0, 1) // effectively one request ever per IP

	req1 := httptest.NewRequest(http.MethodGet, "/dda/variants", nil)
	req1.RemoteAddr = "10.0.0.1:5555"
	rec1 := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec1, req1)
	require.Equal(t, http.StatusOK, rec1.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/dda/variants", nil)
	req2.RemoteAddr = "10.0.0.1:5555"
	rec2 := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusTooManyRequests, rec2.Code)
}
