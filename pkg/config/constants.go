package config

// EnvPrefix is passed to envconfig; every variable is fully spelled in the
// struct tags, so the prefix stays empty.
const EnvPrefix = ""

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

const (
	EnvAppEnv             = "IMGSYNC_APP_ENV"
	EnvCatalogEndpoint    = "IMGSYNC_CATALOG_API_ENDPOINT"
	EnvGCPProjectID       = "IMGSYNC_GCP_PROJECT_ID"
	EnvUploadsBucket      = "IMGSYNC_UPLOADS_BUCKET_NAME"
	EnvProcessingTopic    = "IMGSYNC_PUBSUB_PROCESSING_TOPIC"
	EnvProcessingDLQTopic = "IMGSYNC_PUBSUB_PROCESSING_DLQ_TOPIC"
	EnvProcessingSub      = "IMGSYNC_PUBSUB_PROCESSING_SUBSCRIPTION"
	EnvNotificationSub    = "IMGSYNC_PUBSUB_NOTIFICATION_SUBSCRIPTION"
	EnvCatalogConsumerKey = "IMGSYNC_CATALOG_API_CONSUMER_KEY"
	EnvCatalogToken       = "IMGSYNC_CATALOG_API_TOKEN"
)
