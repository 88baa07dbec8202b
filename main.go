package main

import (
	"context"
	"net/http"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/yumyai/qtlview/internal/util"
	"github.com/yumyai/qtlview/logger"
	"github.com/yumyai/qtlview/pkg/dataset"
	mydb "github.com/yumyai/qtlview/pkg/db"
	"github.com/yumyai/qtlview/pkg/dispatch"
	"github.com/yumyai/qtlview/pkg/ensimpl"
	"github.com/yumyai/qtlview/pkg/handler"
	"github.com/yumyai/qtlview/pkg/middle"
	"github.com/yumyai/qtlview/pkg/state"
	"github.com/yumyai/qtlview/pkg/tasks"
	"github.com/yumyai/qtlview/pkg/transport"
	"go.uber.org/zap"
)

const VERSION = "0.1.0"

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	logger.Warn("No local environment, using default value", zap.String("key", key), zap.String("default", fallback))
	return fallback
}

func mustGetenv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		logger.Fatal("Missing required environment", zap.String("key", key))
	}
	return v
}

func getenvInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func main() {

	// Try load env
	dotenvErr := godotenv.Load()

	level := logger.ParseLevel(os.Getenv("QTLVIEW_LOG_LEVEL"))
	if err := logger.InitLogger(level); err != nil {
		panic(err)
	}
	defer logger.Sync() // Make sure that the buffered is flushed.

	if dotenvErr != nil {
		logger.Warn("No .env found, using local environment")
	}

	addr := getenv("QTLVIEW_ADDR", "0.0.0.0:8080")
	dataDir := getenv("QTLVIEW_DATA", "./data")
	registryLoc := mustGetenv("QTLVIEW_DATASETS")

	client := transport.NewClient(
		getenvInt("QTLVIEW_RETRIES", transport.DefaultRetries),
		getenvDuration("QTLVIEW_RETRY_INTERVAL", transport.DefaultRetryInterval),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// Dataset registry
	var (
		datasets []*dataset.Dataset
		err      error
	)
	if util.IsURL(registryLoc) {
		datasets, err = dataset.FetchRemote(ctx, client, registryLoc)
	} else {
		if !util.FileExists(registryLoc) {
			logger.Fatal("Dataset registry not found", zap.String("path", registryLoc))
		}
		datasets, err = dataset.ReadFile(registryLoc)
	}
	if err != nil {
		logger.Fatal("Cannot read dataset registry", zap.Error(err))
	}

	var chroms dataset.ChromosomeSource
	if u := os.Getenv("QTLVIEW_CHROMOSOME_URL"); u != "" {
		chroms = &dataset.RemoteChromosomes{Client: client, URL: u}
	}
	reg, err := dataset.NewRegistry(ctx, datasets, chroms)
	if err != nil {
		logger.Fatal("Invalid dataset registry", zap.Error(err))
	}

	// Phenotype index
	dsn := ":memory:"
	if dbDir := path.Join(dataDir, "db"); util.DirExists(dbDir) {
		dsn = path.Join(dbDir, "phenotypes.db")
	}
	phenos, err := mydb.OpenPhenotypeIndex(ctx, dsn)
	if err != nil {
		logger.Fatal("Cannot open phenotype index", zap.Error(err))
	}
	defer phenos.Close()
	if err := phenos.LoadRegistry(ctx, reg); err != nil {
		logger.Fatal("Cannot index phenotypes", zap.Error(err))
	}

	// Compute service
	orch := tasks.NewOrchestrator(client,
		mustGetenv("QTLVIEW_SUBMIT_URL"),
		mustGetenv("QTLVIEW_STATUS_URL"),
		mustGetenv("QTLVIEW_CANCEL_URL"),
	)
	orch.PollInterval = getenvDuration("QTLVIEW_POLL_INTERVAL", tasks.DefaultPollInterval)

	apiURL := mustGetenv("QTLVIEW_API_URL")
	appState := state.NewAppState(reg)
	app := &handler.AppContext{
		State:    appState,
		Dispatch: dispatch.New(appState),
		Tasks:    orch,
		Requests: state.RequestBuilder{
			RBaseURL: mustGetenv("QTLVIEW_R_BASE_URL"),
			APIURL:   apiURL,
			Cores:    getenvInt("QTLVIEW_CORES", 0),
		},
		Phenotypes: phenos,
		Genes:      ensimpl.NewClient(client, apiURL),
	}

	logger.Info("Start:", zap.String("Version", VERSION))
	logger.Info("Open phenotype index on", zap.String("DB_LOC", dsn))

	mux := handler.NewRouter(app)

	// Apply middleware
	mwLog := middle.CreateMiddlewareLogger(level)
	defer mwLog.Sync()
	root := middle.Chain(mux, middle.RequestIDMiddleware(mwLog), middle.LoggingMiddleware(mwLog))

	logger.Info("Server starting", zap.String("addr", addr))
	httpErr := http.ListenAndServe(addr, root)
	if httpErr != nil {
		logger.Error("Error starting server:", zap.String("error message", httpErr.Error()))
	}
}
