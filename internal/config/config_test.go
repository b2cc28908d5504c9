package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte(content), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"db": { "host": "10.0.0.1", "port": "5433" }
	}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, "10.0.0.1", viper.GetString("db.host"))
	assert.Equal(t, "5433", viper.GetString("db.port"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./ocaplogs", viper.GetString("logsDir"))
	assert.Equal(t, 100, viper.GetInt("storage.framesPerChunk"))
	assert.Equal(t, false, viper.GetBool("storage.compressChunks"))
	assert.Equal(t, 10, viper.GetInt("loader.capacity"))
	assert.Equal(t, 262144, viper.GetInt("loader.decodeSliceSize"))
	assert.Equal(t, "local", viper.GetString("transport.type"))
	assert.Equal(t, "sqlite", viper.GetString("annotations.driver"))
	assert.Equal(t, "localhost", viper.GetString("db.host"))
	assert.Equal(t, "5432", viper.GetString("db.port"))
	assert.Equal(t, "postgres", viper.GetString("db.username"))
	assert.Equal(t, "postgres", viper.GetString("db.password"))
	assert.Equal(t, "ocap", viper.GetString("db.database"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
	assert.Equal(t, false, viper.GetBool("influx.enabled"))
	assert.Equal(t, false, viper.GetBool("otel.enabled"))
	assert.Equal(t, "ocap-inspector", viper.GetString("otel.serviceName"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestGetString(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	assert.Equal(t, "testValue", GetString("testKey"))
}

func TestGetInt(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testInt", 42)
	assert.Equal(t, 42, GetInt("testInt"))
}

func TestGetBool(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testBool", true)
	assert.Equal(t, true, GetBool("testBool"))
}

func TestGetStorageAndLoaderConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{
		"storage": { "framesPerChunk": 250, "compressChunks": true },
		"loader": { "capacity": 4, "decodeSliceSize": 1024 }
	}`)))

	sc := GetStorageConfig()
	assert.Equal(t, 250, sc.FramesPerChunk)
	assert.True(t, sc.CompressChunks)

	lc := GetLoaderConfig()
	assert.Equal(t, 4, lc.Capacity)
	assert.Equal(t, 1024, lc.DecodeSliceSize)
}

func TestGetTransportConfig(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{
		"transport": { "type": "websocket", "url": "ws://files:9000/chunks", "secret": "s3cret" }
	}`)))

	tc := GetTransportConfig()
	assert.Equal(t, "websocket", tc.Type)
	assert.Equal(t, "ws://files:9000/chunks", tc.URL)
	assert.Equal(t, "s3cret", tc.Secret)
	assert.Equal(t, 64, tc.BufferSize)
}

func TestGetAnnotationsConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	ac := GetAnnotationsConfig()
	assert.Equal(t, "sqlite", ac.Driver)
	assert.Equal(t, "./ocap_comments.db", ac.SqlitePath)
	assert.Equal(t, 10*time.Second, GetMonitorConfig().Interval)
}

func TestGetOTelConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetOTelConfig()
	assert.Equal(t, false, cfg.Enabled)
	assert.Equal(t, "ocap-inspector", cfg.ServiceName)
	assert.Equal(t, 5*time.Second, cfg.BatchTimeout)
	assert.Equal(t, "", cfg.Endpoint)
	assert.Equal(t, true, cfg.Insecure)
}

func TestGetOTelConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{
		"otel": {
			"enabled": true,
			"serviceName": "my-service",
			"batchTimeout": "30s",
			"endpoint": "localhost:4317",
			"insecure": false
		}
	}`)))

	oc := GetOTelConfig()
	assert.Equal(t, true, oc.Enabled)
	assert.Equal(t, "my-service", oc.ServiceName)
	assert.Equal(t, 30*time.Second, oc.BatchTimeout)
	assert.Equal(t, "localhost:4317", oc.Endpoint)
	assert.Equal(t, false, oc.Insecure)
}

func TestGetInfluxAndDBConfig(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{
		"influx": { "enabled": true, "host": "metrics", "bucket": "perf" },
		"db": { "database": "comments" }
	}`)))

	ic := GetInfluxConfig()
	assert.True(t, ic.Enabled)
	assert.Equal(t, "metrics", ic.Host)
	assert.Equal(t, "8086", ic.Port)
	assert.Equal(t, "perf", ic.Bucket)

	dc := GetDBConfig()
	assert.Equal(t, "comments", dc.Database)
	assert.Equal(t, "localhost", dc.Host)
}

func TestGetAPIConfig(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))
	assert.Equal(t, APIConfig{ServerURL: "http://localhost:5000"}, GetAPIConfig())

	require.NoError(t, Load(writeConfig(t, `{"api": {"serverUrl": "https://ocap.example.org", "apiKey": "k"}}`)))
	assert.Equal(t, APIConfig{ServerURL: "https://ocap.example.org", APIKey: "k"}, GetAPIConfig())
}
