package common

const (
	EnvKeyGoEnv string = "GO_ENV"

	EnvKeyRunIntegrationTests string = "RUN_INTEGRATION_TESTS"

	EnvKeyCCTDBType string = "CCT_DB_TYPE"
	EnvKeyCCTDbPath string = "CCT_DB_PATH"
	EnvKeyCCTDbDSN  string = "CCT_DB_DSN"

	EnvKeyCCTHttpHostPort string = "CCT_HTTP_HOST_PORT"

	EnvKeyCCTJwtSecret       string = "CCT_JWT_SECRET"
	EnvKeyCCTTokenTTLMinutes string = "CCT_TOKEN_TTL_MINUTES"

	EnvKeyCCTDefaultRate  string = "CCT_DEFAULT_RATE"
	EnvKeyCCTDefaultBurst string = "CCT_DEFAULT_BURST"

	EnvKeyCCTSmsWebhookURL  string = "CCT_SMS_WEBHOOK_URL"
	EnvKeyCCTPushWebhookURL string = "CCT_PUSH_WEBHOOK_URL"

	LoggerNameCCTCore       string = "cct_core"
	LoggerNameRestfulServer string = "restful_server"
	LoggerFieldCCTCategory  string = "category"

	LoggerCategoryIdentity  string = "identity"
	LoggerCategoryRegistry  string = "registry"
	LoggerCategoryTelemetry string = "telemetry"
	LoggerCategorySettings  string = "settings"
	LoggerCategoryTrigger   string = "trigger"
	LoggerCategoryNotify    string = "notify"
)
