package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SyntheticMode = true
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsEmptyDataRoot(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SyntheticMode = true
	cfg.DataRoot = ""
	require.Error(t, cfg.Validate())
}

func TestValidateRequiresDDABinaryUnlessSynthetic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DDABinaryPath = ""
	cfg.SyntheticMode = false
	require.Error(t, cfg.Validate())

	cfg.SyntheticMode = true
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsOneSidedTLSConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SyntheticMode = true
	cfg.TLSCertFile = "/tmp/cert.pem"
	require.Error(t, cfg.Validate())

	cfg.TLSKeyFile = "/tmp/key.pem"
	require.NoError(t, cfg.Validate())
	require.True(t, cfg.TLSEnabled())
}

func TestMetadataTTLConvertsSecondsToDuration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MetadataTTLSeconds = 120
	require.Equal(t, 120*time.Second, cfg.MetadataTTL())
}

func TestIsAllowedPathRejectsPrefixCollision(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedRoots = []string{"/data"}
	require.True(t, cfg.IsAllowedPath("/data/patient1.edf"))
	require.True(t, cfg.IsAllowedPath("/data"))
	require.False(t, cfg.IsAllowedPath("/data-evil/patient1.edf"))
	require.False(t, cfg.IsAllowedPath("/other/patient1.edf"))
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("EDFHUB_DATA_ROOT", "/srv/edf")
	t.Setenv("EDFHUB_SYNTHETIC_MODE", "true")
	t.Setenv("EDFHUB_METADATA_CACHE_SIZE", "50")
	t.Setenv("EDFHUB_ALLOWED_ROOTS", "/srv/edf,/srv/edf2")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "/srv/edf", cfg.DataRoot)
	require.True(t, cfg.SyntheticMode)
	require.Equal(t, 50, cfg.MetadataCacheSize)
	require.Equal(t, []string{"/srv/edf", "/srv/edf2"}, cfg.AllowedRoots)
}

func TestLoadFailsValidationWithoutDDABinaryOrSynthetic(t *testing.T) {
	t.Setenv("EDFHUB_DDA_BINARY_PATH", "")
	t.Setenv("EDFHUB_SYNTHETIC_MODE", "false")

	_, err := Load()
	require.Error(t, err)
}
