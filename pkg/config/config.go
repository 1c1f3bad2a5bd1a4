package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App      AppConfig
	GCP      GCPConfig
	GCS      GCSConfig
	PubSub   PubSubConfig
	Catalog  CatalogConfig
	Pipeline PipelineConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"IMGSYNC_APP_ENV" required:"true"`
	OpsPort      string `envconfig:"IMGSYNC_OPS_PORT" default:"8090"`
	LogLevel     string `envconfig:"IMGSYNC_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"IMGSYNC_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type GCPConfig struct {
	ProjectID              string `envconfig:"IMGSYNC_GCP_PROJECT_ID" required:"true"`
	Region                 string `envconfig:"IMGSYNC_GCP_REGION_DEFAULT" default:"us-central1"`
	CredentialsJSON        string `envconfig:"IMGSYNC_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"IMGSYNC_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName string `envconfig:"IMGSYNC_UPLOADS_BUCKET_NAME" required:"true"`
}

type PubSubConfig struct {
	// NotificationSubscription delivers storage object-created events to the producer.
	NotificationSubscription string `envconfig:"IMGSYNC_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
	ProcessingTopic          string `envconfig:"IMGSYNC_PUBSUB_PROCESSING_TOPIC" required:"true"`
	ProcessingSubscription   string `envconfig:"IMGSYNC_PUBSUB_PROCESSING_SUBSCRIPTION" required:"true"`
	ProcessingDLQTopic       string `envconfig:"IMGSYNC_PUBSUB_PROCESSING_DLQ_TOPIC" required:"true"`
}

type CatalogConfig struct {
	Endpoint       string        `envconfig:"IMGSYNC_CATALOG_API_ENDPOINT" required:"true"`
	ConsumerKey    string        `envconfig:"IMGSYNC_CATALOG_API_CONSUMER_KEY" required:"true"`
	ConsumerSecret string        `envconfig:"IMGSYNC_CATALOG_API_CONSUMER_SECRET" required:"true"`
	Token          string        `envconfig:"IMGSYNC_CATALOG_API_TOKEN" required:"true"`
	TokenSecret    string        `envconfig:"IMGSYNC_CATALOG_API_TOKEN_SECRET" required:"true"`
	Timeout        time.Duration `envconfig:"IMGSYNC_CATALOG_API_TIMEOUT" default:"3m"`
}

type PipelineConfig struct {
	MaxAttempts int `envconfig:"IMGSYNC_PIPELINE_MAX_ATTEMPTS" default:"5"`
}
