package config

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"
)

type Config struct {
	MinIOBucket string        `yaml:"minio_bucket"`
	App         App           `yaml:"app"`
	DB          *sql.DB       `yaml:"db"`
	Queue       *RabbitMQ     `yaml:"rabbitmq"`
	Storage     *minio.Client `yaml:"storage"`
	Server      Server        `yaml:"server"`
	Provider    Provider      `yaml:"provider"`
	Poll        Poll          `yaml:"poll"`
	Summary     Summary       `yaml:"summary"`
}

type App struct {
	Environment string `yaml:"environment"`
	Host        string `yaml:"host"`
	Protocol    string `yaml:"protocol"`
}

type Server struct {
	HttpPort          string        `yaml:"http_port"`
	Workers           int           `yaml:"workers"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

type RabbitMQ struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	User string `json:"user"`
	Pass string `json:"pass"`
	Kind string `json:"kind"`
}

// Provider holds connection settings for the external speech-recognition
// service. Timeout bounds every outbound call, so a hung remote cannot stall
// a poll cycle forever.
type Provider struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type Poll struct {
	Interval time.Duration `yaml:"interval"`
}

type Summary struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

func Load(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	err := viper.ReadInConfig()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", viper.GetString("postgresql_host"))
	if err != nil {
		return nil, err
	}

	rabbitmq := &RabbitMQ{
		Host: viper.GetString("rabbitmq_host"),
		Port: viper.GetInt("rabbitmq_port"),
		User: viper.GetString("rabbitmq_user"),
		Pass: viper.GetString("rabbitmq_pass"),
		Kind: viper.GetString("rabbitmq_kind"),
	}

	minioClient, err := minio.New(viper.GetString("minio.url"), &minio.Options{
		Creds:  credentials.NewStaticV4(viper.GetString("minio.access_id"), viper.GetString("minio.secret_access_key"), ""),
		Secure: false,
	})
	if err != nil {
		return nil, err
	}

	pollInterval := viper.GetDuration("poll.interval")
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	heartbeat := viper.GetDuration("server.heartbeat_interval")
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	providerTimeout := viper.GetDuration("provider.timeout")
	if providerTimeout <= 0 {
		providerTimeout = 30 * time.Second
	}

	return &Config{
		MinIOBucket: viper.GetString("minio.bucket"),
		App: App{
			Environment: viper.GetString("app.environment"),
			Host:        viper.GetString("app.host"),
			Protocol:    viper.GetString("app.protocol"),
		},
		Server: Server{
			HttpPort:          viper.GetString("server.port"),
			Workers:           viper.GetInt("server.workers"),
			HeartbeatInterval: heartbeat,
		},
		Provider: Provider{
			BaseURL: viper.GetString("provider.base_url"),
			APIKey:  viper.GetString("provider.api_key"),
			Timeout: providerTimeout,
		},
		Poll: Poll{
			Interval: pollInterval,
		},
		Summary: Summary{
			BaseURL: viper.GetString("summary.base_url"),
			Timeout: viper.GetDuration("summary.timeout"),
		},
		DB:      db,
		Queue:   rabbitmq,
		Storage: minioClient,
	}, nil
}
