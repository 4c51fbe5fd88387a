package config

import (
	"log"
	"os"

	"github.com/coachlyai/pkg/configs"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Application config structure
type AppConfig struct {
	Name     string `mapstructure:"service_name" validate:"required"`
	Version  string `mapstructure:"version" validate:"required"`
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"required"`
	LogPath  string `mapstructure:"log_path" validate:"required"`

	PostgresConfig configs.PostgresConfig `mapstructure:"postgres" validate:"required"`
	RedisConfig    configs.RedisConfig    `mapstructure:"redis" validate:"required"`

	CaptureConfig  CaptureConfig  `mapstructure:"capture" validate:"required"`
	UplinkConfig   UplinkConfig   `mapstructure:"uplink" validate:"required"`
	RealtimeConfig RealtimeConfig `mapstructure:"realtime" validate:"required"`
	ProbeConfig    ProbeConfig    `mapstructure:"probe" validate:"required"`

	// Origin of the local UI allowed to hit the control surface.
	UiOrigin string `mapstructure:"ui_origin" validate:"required"`
}

// CaptureConfig controls the recording pipeline.
type CaptureConfig struct {
	// IntervalSeconds is the segment rotation period. Shorter intervals give
	// faster coaching feedback at the cost of more webhook requests.
	IntervalSeconds int    `mapstructure:"interval_seconds" validate:"required,gt=0"`
	SampleRate      uint32 `mapstructure:"sample_rate" validate:"required"`
	Channels        uint16 `mapstructure:"channels" validate:"required"`
	// SettleDelayMs is the pause between stopping a recorder pair and starting
	// the replacement pair on the same streams.
	SettleDelayMs int `mapstructure:"settle_delay_ms" validate:"gte=0"`
	// MicrophoneDevice / SystemDevice name the ffmpeg input devices.
	MicrophoneDevice string `mapstructure:"microphone_device"`
	SystemDevice     string `mapstructure:"system_device"`
}

// UplinkConfig points at the external analysis endpoints.
type UplinkConfig struct {
	AudioWebhookUrl    string `mapstructure:"audio_webhook_url" validate:"required,url"`
	AnalysisWebhookUrl string `mapstructure:"analysis_webhook_url" validate:"required,url"`
	TimeoutSeconds     int    `mapstructure:"timeout_seconds" validate:"required,gt=0"`
}

// RealtimeConfig points at the coaching-message feed.
type RealtimeConfig struct {
	Url                   string `mapstructure:"url" validate:"required"`
	MaxReconnectAttempts  int    `mapstructure:"max_reconnect_attempts" validate:"required,gt=0"`
	InitialBackoffSeconds int    `mapstructure:"initial_backoff_seconds" validate:"required,gt=0"`
	MaxBackoffSeconds     int    `mapstructure:"max_backoff_seconds" validate:"required,gt=0"`
}

// ProbeConfig controls the connection-quality sampler.
type ProbeConfig struct {
	Url             string `mapstructure:"url" validate:"required,url"`
	IntervalSeconds int    `mapstructure:"interval_seconds" validate:"required,gt=0"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds" validate:"required,gt=0"`
}

// reading config and intializing configs for application
func InitConfig() (*viper.Viper, error) {
	vConfig := viper.NewWithOptions(viper.KeyDelimiter("__"))

	vConfig.AddConfigPath(".")
	vConfig.SetConfigName(".env")
	path := os.Getenv("ENV_PATH")
	if path != "" {
		log.Printf("env path %v", path)
		vConfig.SetConfigFile(path)
	}
	vConfig.SetConfigType("env")
	vConfig.AutomaticEnv()

	setDefault(vConfig)
	if err := vConfig.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		log.Printf("Reading from env variables.")
	}

	return vConfig, nil
}

func setDefault(v *viper.Viper) {
	// setting all default values
	// keeping watch on https://github.com/spf13/viper/issues/188

	v.SetDefault("SERVICE_NAME", "coachd")
	v.SetDefault("VERSION", "0.0.1")
	v.SetDefault("HOST", "127.0.0.1")
	v.SetDefault("PORT", 8790)
	v.SetDefault("LOG_LEVEL", "debug")
	v.SetDefault("LOG_PATH", "logs")
	v.SetDefault("UI_ORIGIN", "http://localhost:5173")

	v.SetDefault("POSTGRES__HOST", "localhost")
	v.SetDefault("POSTGRES__PORT", 5432)
	v.SetDefault("POSTGRES__DB_NAME", "coachly")
	v.SetDefault("POSTGRES__AUTH__USER", "coachly")
	v.SetDefault("POSTGRES__AUTH__PASSWORD", "")
	v.SetDefault("POSTGRES__MAX_OPEN_CONNECTION", 10)
	v.SetDefault("POSTGRES__MAX_IDEAL_CONNECTION", 10)
	v.SetDefault("POSTGRES__SSL_MODE", "disable")

	v.SetDefault("REDIS__HOST", "localhost")
	v.SetDefault("REDIS__PORT", 6379)
	v.SetDefault("REDIS__PASSWORD", "")
	v.SetDefault("REDIS__DB", 0)

	v.SetDefault("CAPTURE__INTERVAL_SECONDS", 20)
	v.SetDefault("CAPTURE__SAMPLE_RATE", 16000)
	v.SetDefault("CAPTURE__CHANNELS", 1)
	v.SetDefault("CAPTURE__SETTLE_DELAY_MS", 100)
	v.SetDefault("CAPTURE__MICROPHONE_DEVICE", "default")
	v.SetDefault("CAPTURE__SYSTEM_DEVICE", "loopback")

	v.SetDefault("UPLINK__AUDIO_WEBHOOK_URL", "https://analysis.coachly.ai/hooks/audio-segment")
	v.SetDefault("UPLINK__ANALYSIS_WEBHOOK_URL", "https://analysis.coachly.ai/hooks/start-analysis")
	v.SetDefault("UPLINK__TIMEOUT_SECONDS", 30)

	v.SetDefault("REALTIME__URL", "wss://realtime.coachly.ai/v1/coaching")
	v.SetDefault("REALTIME__MAX_RECONNECT_ATTEMPTS", 8)
	v.SetDefault("REALTIME__INITIAL_BACKOFF_SECONDS", 1)
	v.SetDefault("REALTIME__MAX_BACKOFF_SECONDS", 30)

	v.SetDefault("PROBE__URL", "https://analysis.coachly.ai/ping")
	v.SetDefault("PROBE__INTERVAL_SECONDS", 10)
	v.SetDefault("PROBE__TIMEOUT_SECONDS", 5)
}

// Getting application config from viper
func GetApplicationConfig(v *viper.Viper) (*AppConfig, error) {
	var config AppConfig
	err := v.Unmarshal(&config)
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}

	// valdating the app config
	validate := validator.New()
	err = validate.Struct(&config)
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}
	return &config, nil
}
