package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ConfigFile is the name of the configuration file looked up in the config
// directory.
const ConfigFile = "ocap_inspector.cfg.json"

// StorageConfig holds chunked storage settings.
type StorageConfig struct {
	FramesPerChunk int  `json:"framesPerChunk" mapstructure:"framesPerChunk"`
	CompressChunks bool `json:"compressChunks" mapstructure:"compressChunks"`
}

// LoaderConfig holds frame loader settings.
type LoaderConfig struct {
	Capacity        int `json:"capacity" mapstructure:"capacity"`
	DecodeSliceSize int `json:"decodeSliceSize" mapstructure:"decodeSliceSize"`
}

// TransportConfig selects how chunks reach the loader.
type TransportConfig struct {
	Type       string `json:"type" mapstructure:"type"` // "local" or "websocket"
	URL        string `json:"url" mapstructure:"url"`
	Secret     string `json:"secret" mapstructure:"secret"`
	BufferSize int    `json:"bufferSize" mapstructure:"bufferSize"`
}

// AnnotationsConfig selects the comment store.
type AnnotationsConfig struct {
	Driver     string `json:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	SqlitePath string `json:"sqlitePath" mapstructure:"sqlitePath"`
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// InfluxConfig holds the InfluxDB reporter settings.
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// DBConfig holds the Postgres connection settings.
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// APIConfig points at the OCAP web frontend recordings are published to.
type APIConfig struct {
	ServerURL string `json:"serverUrl" mapstructure:"serverUrl"`
	APIKey    string `json:"apiKey" mapstructure:"apiKey"`
}

// MonitorConfig holds the status monitor settings.
type MonitorConfig struct {
	Interval time.Duration `json:"interval" mapstructure:"interval"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(ConfigFile)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./ocaplogs")

	viper.SetDefault("storage.framesPerChunk", 100)
	viper.SetDefault("storage.compressChunks", false)

	viper.SetDefault("loader.capacity", 10)
	viper.SetDefault("loader.decodeSliceSize", 256<<10)

	viper.SetDefault("transport.type", "local")
	viper.SetDefault("transport.url", "ws://localhost:5001/chunks")
	viper.SetDefault("transport.secret", "")
	viper.SetDefault("transport.bufferSize", 64)

	viper.SetDefault("annotations.driver", "sqlite")
	viper.SetDefault("annotations.sqlitePath", "./ocap_comments.db")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "ocap")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "ocap-metrics")
	viper.SetDefault("influx.bucket", "ocap-inspector")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "ocap-inspector")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("monitor.interval", "10s")

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetStorageConfig returns the chunked storage settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		FramesPerChunk: viper.GetInt("storage.framesPerChunk"),
		CompressChunks: viper.GetBool("storage.compressChunks"),
	}
}

// GetLoaderConfig returns the frame loader settings.
func GetLoaderConfig() LoaderConfig {
	return LoaderConfig{
		Capacity:        viper.GetInt("loader.capacity"),
		DecodeSliceSize: viper.GetInt("loader.decodeSliceSize"),
	}
}

// GetTransportConfig returns the chunk transport settings.
func GetTransportConfig() TransportConfig {
	return TransportConfig{
		Type:       viper.GetString("transport.type"),
		URL:        viper.GetString("transport.url"),
		Secret:     viper.GetString("transport.secret"),
		BufferSize: viper.GetInt("transport.bufferSize"),
	}
}

// GetAnnotationsConfig returns the comment store settings.
func GetAnnotationsConfig() AnnotationsConfig {
	return AnnotationsConfig{
		Driver:     viper.GetString("annotations.driver"),
		SqlitePath: viper.GetString("annotations.sqlitePath"),
	}
}

// GetMonitorConfig returns the status monitor settings.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval: viper.GetDuration("monitor.interval"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the InfluxDB reporter settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Protocol: viper.GetString("influx.protocol"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetDBConfig returns the Postgres connection settings.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetAPIConfig returns the web frontend settings.
func GetAPIConfig() APIConfig {
	return APIConfig{
		ServerURL: viper.GetString("api.serverUrl"),
		APIKey:    viper.GetString("api.apiKey"),
	}
}
