package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"probecloud.xyz/cct-backend/pkg/cct"
	"probecloud.xyz/cct-backend/pkg/common"
	"probecloud.xyz/cct-backend/pkg/db"
	cctHttp "probecloud.xyz/cct-backend/pkg/http"
)

func main() {
	var err error

	err = godotenv.Load()
	if err != nil {
		log.Fatal("Error loading .env file, copy .env.example to .env first if in development")
	}

	var dbInstance *db.DB
	cctDbType := os.Getenv(common.EnvKeyCCTDBType)
	switch cctDbType {
	case "file":
		dbInstance = db.GetInstance(db.UseSqliteDialector())
	case "memory":
		dbInstance = db.GetInstance(db.UseMemorySqliteDialector())
	case "postgres":
		dbInstance = db.GetInstance(db.UsePostgresDialector())
	default:
		log.Fatal("Unknown CCT_DB_TYPE: " + cctDbType)
	}

	httpHostPort := strings.TrimSpace(os.Getenv(common.EnvKeyCCTHttpHostPort))

	jwtSecret := os.Getenv(common.EnvKeyCCTJwtSecret)
	if jwtSecret == "" {
		log.Fatal("CCT_JWT_SECRET not set in .env")
	}

	var tokenTTLMinutes int64
	if tokenTTLMinutes, err = strconv.ParseInt(os.Getenv(common.EnvKeyCCTTokenTTLMinutes), 10, 64); err != nil {
		log.Fatal("Invalid CCT_TOKEN_TTL_MINUTES, or not set in .env, should be an int value")
	}

	var defaultRate float64
	var defaultBurst int64

	if defaultRate, err = strconv.ParseFloat(os.Getenv(common.EnvKeyCCTDefaultRate), 64); err != nil {
		log.Fatal("Invalid CCT_DEFAULT_RATE, or not set in .env, should be a float64 value")
	}

	if defaultBurst, err = strconv.ParseInt(os.Getenv(common.EnvKeyCCTDefaultBurst), 10, 64); err != nil {
		log.Fatal("Invalid CCT_DEFAULT_BURST, or not set in .env, should be an int value")
	}

	logger := common.GetLogger()

	cctCore := cct.CCT{
		Db: *dbInstance,
	}
	cctCore.WithServices(cct.ServiceOpts{
		Identity:  cctCore.GetIIdentity(),
		Registry:  cctCore.GetIRegistry(),
		Telemetry: cctCore.GetITelemetry(),
		Evaluator: cctCore.GetIEvaluator(),
		Notifier:  cctCore.GetINotifier(),
		Sync:      cctCore.GetISync(),
		Senders: cct.DefaultSenders(
			os.Getenv(common.EnvKeyCCTSmsWebhookURL),
			os.Getenv(common.EnvKeyCCTPushWebhookURL),
		),
	})

	if httpHostPort == "" {
		// fallback to default http port
		httpHostPort = ":1080"
	}

	rs := &cctHttp.RestfulServer{
		Server:           gin.Default(),
		Cct:              &cctCore,
		RateLimiterStore: cct.NewRateLimiterStore(rate.Limit(defaultRate), int(defaultBurst)),
		JWTSecret:        []byte(jwtSecret),
		TokenTTL:         time.Duration(tokenTTLMinutes) * time.Minute,
	}
	rs.Setup()

	logger.Info("http server created with:",
		zap.String("default_limiter",
			fmt.Sprintf("{\"default_rate\": %v, \"default_burst\": %v}", defaultRate, defaultBurst)))

	logger.Info("Starting HTTP server on: " + httpHostPort)
	if err := rs.Server.Run(httpHostPort); err != nil {
		log.Fatalf("http server failed to serve: %v", err)
	}
}
