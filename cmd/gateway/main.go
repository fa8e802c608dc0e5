package main

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/ruteri/sensor-anchoring-gateway/anchor"
	"github.com/ruteri/sensor-anchoring-gateway/backend"
	"github.com/ruteri/sensor-anchoring-gateway/cmd/flags"
	"github.com/ruteri/sensor-anchoring-gateway/common"
	"github.com/ruteri/sensor-anchoring-gateway/config"
	"github.com/ruteri/sensor-anchoring-gateway/cryptoutils"
	"github.com/ruteri/sensor-anchoring-gateway/envelope"
	"github.com/ruteri/sensor-anchoring-gateway/httpserver"
	"github.com/ruteri/sensor-anchoring-gateway/identity"
	"github.com/ruteri/sensor-anchoring-gateway/interfaces"
	"github.com/ruteri/sensor-anchoring-gateway/metrics"
	"github.com/ruteri/sensor-anchoring-gateway/storage"
	"github.com/ruteri/sensor-anchoring-gateway/token"
	"github.com/urfave/cli/v2"
	"go.uber.org/atomic"
)

var (
	flagConfig = &cli.StringFlag{
		Name:    "config",
		EnvVars: []string{"GATEWAY_CONFIG"},
		Usage:   "path to the YAML configuration file",
	}
	flagListenAddr = &cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:8080",
		Usage: "address to listen on for the status API",
	}
	flagGatewayID = &cli.StringFlag{
		Name:    "gateway-id",
		EnvVars: []string{"GATEWAY_ID"},
		Usage:   "gateway UUID, derived from the first hardware address when empty",
	}
	flagBackendURL = &cli.StringFlag{
		Name:    "backend-url",
		EnvVars: []string{"GATEWAY_BACKEND_URL"},
		Usage:   "base URL of the identity and key services",
	}
	flagBackendSRV = &cli.StringFlag{
		Name:  "backend-srv",
		Usage: "DNS SRV name to resolve the backend URL from, e.g. _anchor._tcp.example.com",
	}
	flagAnchorURL = &cli.StringFlag{
		Name:  "anchor-url",
		Usage: "anchoring endpoint, defaults to <backend-url>/api/anchor",
	}
	flagBackendPubkey = &cli.StringFlag{
		Name:    "backend-pubkey",
		EnvVars: []string{"GATEWAY_BACKEND_PUBKEY"},
		Usage:   "hex encoded ed25519 key signing backend responses",
	}
	flagToken = &cli.StringFlag{
		Name:    "token",
		EnvVars: []string{"GATEWAY_TOKEN"},
		Usage:   "registration token, opaque or JWT",
	}
	flagTokenFile = &cli.StringFlag{
		Name:  "token-file",
		Usage: "file to read the registration token from",
	}
	flagStore = &cli.StringSliceFlag{
		Name:  "store",
		Usage: "context store location URI (memory://, file://, s3://, vault://), repeatable",
	}
	flagStorePassphrase = &cli.StringFlag{
		Name:    "store-passphrase",
		EnvVars: []string{"GATEWAY_STORE_PASSPHRASE"},
		Usage:   "seal stored contexts with this passphrase",
	}
	flagSensors = &cli.StringSliceFlag{
		Name:  "sensor",
		Usage: "simulated sensor id, repeatable",
	}
	flagNoSimulate = &cli.BoolFlag{
		Name:  "no-simulate",
		Usage: "do not run the built-in sensor simulator",
	}
	flagWorkers = &cli.IntFlag{
		Name:  "workers",
		Usage: "number of anchoring workers",
	}
	flagAdminKeys = &cli.StringFlag{
		Name:  "admin-keys-file",
		Usage: "JSON file with admin public keys, enables the admin API",
	}
	flagAlreadyRegistered = &cli.StringFlag{
		Name:  "already-registered",
		Usage: "policy for identities the backend already knows: fail or reconcile",
	}
	flagVerification = &cli.StringFlag{
		Name:  "verification",
		Usage: "policy for unverifiable responses: report-delivered or treat-as-failure",
	}
)

func main() {
	app := &cli.App{
		Name:  "gateway",
		Usage: "Provision sensor identities and anchor signed readings",
		Flags: append([]cli.Flag{
			flagConfig,
			flagListenAddr,
			flagGatewayID,
			flagBackendURL,
			flagBackendSRV,
			flagAnchorURL,
			flagBackendPubkey,
			flagToken,
			flagTokenFile,
			flagStore,
			flagStorePassphrase,
			flagSensors,
			flagNoSimulate,
			flagWorkers,
			flagAdminKeys,
			flagAlreadyRegistered,
			flagVerification,
			flags.LogServiceFlagFn("sensor-anchoring-gateway"),
		}, flags.CommonFlags...),
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// loadConfig reads the configuration file and applies the flags set on the command line.
func loadConfig(cCtx *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(cCtx.String(flagConfig.Name))
	if err != nil {
		return nil, err
	}

	setString := func(f *cli.StringFlag, dst *string) {
		if cCtx.IsSet(f.Name) {
			*dst = cCtx.String(f.Name)
		}
	}
	setString(flagListenAddr, &cfg.Server.ListenAddr)
	setString(flagGatewayID, &cfg.Gateway.ID)
	setString(flagBackendURL, &cfg.Backend.URL)
	setString(flagBackendSRV, &cfg.Backend.SRV)
	setString(flagAnchorURL, &cfg.Backend.AnchorURL)
	setString(flagBackendPubkey, &cfg.Backend.PublicKey)
	setString(flagToken, &cfg.Token.Value)
	setString(flagTokenFile, &cfg.Token.File)
	setString(flagStorePassphrase, &cfg.Store.Passphrase)
	setString(flagAdminKeys, &cfg.Server.AdminKeysFile)
	setString(flagAlreadyRegistered, &cfg.Policies.AlreadyRegistered)
	setString(flagVerification, &cfg.Policies.Verification)

	if cCtx.IsSet(flagStore.Name) {
		cfg.Store.URIs = cCtx.StringSlice(flagStore.Name)
	}
	if cCtx.IsSet(flagSensors.Name) {
		cfg.Sensors.IDs = cCtx.StringSlice(flagSensors.Name)
	}
	if cCtx.Bool(flagNoSimulate.Name) {
		cfg.Sensors.Simulate = false
	}
	if cCtx.IsSet(flagWorkers.Name) {
		cfg.Workers = cCtx.Int(flagWorkers.Name)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func run(cCtx *cli.Context) error {
	cfg, err := loadConfig(cCtx)
	if err != nil {
		return err
	}

	logger := flags.SetupLogger(cCtx)

	ctx, stop := flags.SignalContext(context.Background())
	defer stop()

	gatewayID, err := cryptoutils.GatewayID(cfg.Gateway.ID)
	if err != nil {
		logger.Error("Failed to determine gateway id", "err", err)
		return err
	}
	logger.Info("Gateway identity", "gateway_id", gatewayID.String(), "namespace", cfg.Gateway.Namespace)

	locations := make([]interfaces.StorageBackendLocation, 0, len(cfg.Store.URIs))
	for _, uri := range cfg.Store.URIs {
		loc, err := interfaces.NewStorageBackendLocation(uri)
		if err != nil {
			return err
		}
		locations = append(locations, loc)
	}
	blobs, err := storage.NewStorageBackendFactory(logger).CreateMultiBackend(locations)
	if err != nil {
		logger.Error("Failed to create context store", "err", err)
		return err
	}
	store := storage.NewContextStore(blobs, storage.ContextStoreOpts{Passphrase: []byte(cfg.Store.Passphrase)}, logger)

	holder := token.NewHolder(nil)
	rawToken, err := cfg.TokenValue()
	if err != nil {
		return err
	}
	if t, err := token.Load(rawToken, interfaces.SystemClock{}); err == nil {
		holder.Set(t)
	} else {
		logger.Warn("No registration token configured, new sensors cannot be provisioned", "err", err)
	}

	baseURL := cfg.Backend.URL
	if cfg.Backend.SRV != "" {
		baseURL, err = backend.ResolveSRV(ctx, cfg.Backend.SRV, "https", cfg.Backend.Resolver)
		if err != nil {
			logger.Error("Failed to resolve backend", "err", err, "srv", cfg.Backend.SRV)
			return err
		}
		logger.Info("Resolved backend", "url", baseURL)
	}

	backendKey, err := cfg.BackendPublicKey()
	if err != nil {
		return err
	}
	if backendKey == nil {
		logger.Warn("unable to load backend key, responses will not verify")
	}

	crypto := cryptoutils.NewEd25519Provider()
	client := backend.NewClient(backend.ClientOpts{
		BaseURL:     baseURL,
		DeviceType:  cfg.Backend.DeviceType,
		KeyValidity: cfg.Keys.Validity,
		AnchorToken: holder,
		HTTPClient:  &http.Client{Timeout: cfg.Backend.Timeout},
	}, crypto, logger)

	alreadyRegistered, _ := identity.ParseAlreadyRegisteredPolicy(cfg.Policies.AlreadyRegistered)
	manager := identity.NewManager(identity.ManagerOpts{
		Namespace:         cfg.Gateway.Namespace,
		GatewayID:         gatewayID,
		ClockThreshold:    cfg.Gateway.ClockThreshold,
		KeyValidity:       cfg.Keys.Validity,
		RotationLead:      cfg.Keys.RotationLead,
		AlreadyRegistered: alreadyRegistered,
	}, store, crypto, client, holder, interfaces.SystemClock{}, logger)

	serverCfg := flags.ConfigureServer(cCtx, logger, cfg.Server.ListenAddr)
	metricsSrv, err := metrics.New(common.PackageName, serverCfg.MetricsAddr)
	if err != nil {
		return err
	}
	serverCfg.Metrics = metricsSrv
	metricsSrv.Metrics.InitLabels(reasonLabels(), []string{
		anchor.ClassSuccess.String(),
		anchor.ClassClientOrServerError.String(),
		anchor.ClassUnexpected.String(),
	})

	pipeline := newPipeline(cfg, baseURL, backendKey, manager, store, client, crypto, metricsSrv.Metrics, logger)

	var admin *httpserver.AdminHandler
	if cfg.Server.AdminKeysFile != "" {
		adminKeys, err := loadAdminKeys(cfg.Server.AdminKeysFile)
		if err != nil {
			logger.Error("Failed to load admin keys", "err", err)
			return err
		}
		logger.Info("Admin API enabled", "admins", len(adminKeys))
		admin = httpserver.NewAdminHandler(adminKeys, manager, holder, pipeline.Intake, pipeline, logger)
	}

	server, err := httpserver.New(serverCfg, httpserver.NewHandler(manager, pipeline, logger), admin)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}
	server.RunInBackground()

	logger.Info("Gateway is running, press Ctrl+C to stop")
	err = pipeline.Run(ctx)
	logger.Info("Shutdown signal received")

	server.Shutdown()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newPipeline(cfg *config.Config, baseURL string, backendKey ed25519.PublicKey, manager *identity.Manager, store interfaces.ContextStore, client interfaces.BackendClient, crypto interfaces.CryptoProvider, m *metrics.Metrics, logger *slog.Logger) *anchor.Pipeline {
	queue := anchor.NewQueue(cfg.Queue.Capacity)
	interval := atomic.NewDuration(cfg.Sensors.Interval)
	verification, _ := anchor.ParseVerificationPolicy(cfg.Policies.Verification)

	p := &anchor.Pipeline{
		Queue:  queue,
		Intake: anchor.NewIntake(queue, m, logger),
	}

	if cfg.Sensors.Simulate {
		p.Simulator = anchor.NewSimulator(anchor.SimulatorOpts{
			Sensors:      cfg.Sensors.IDs,
			StartupDelay: cfg.Sensors.StartupDelay,
			PushTimeout:  cfg.Queue.PushTimeout,
		}, p.Intake, interval, logger.With("component", "simulator"))
	}

	builder := envelope.NewBuilder(crypto, store, logger)
	for i := 0; i < cfg.Workers; i++ {
		workerLog := logger.With("component", "worker", "worker", i)
		p.Workers = append(p.Workers, anchor.NewWorker(anchor.WorkerOpts{
			Endpoint:         cfg.AnchorEndpoint(baseURL),
			BackendPublicKey: backendKey,
			PopTimeout:       cfg.Queue.PopTimeout,
			Verification:     verification,
		}, queue, manager, builder, client, crypto, m, workerLog,
			anchor.NewDiagnosticsHandler(workerLog),
			anchor.NewIntervalHandler(interval, workerLog)))
	}
	return p
}

func reasonLabels() []string {
	labels := make([]string, len(identity.Reasons))
	for i, r := range identity.Reasons {
		labels[i] = string(r)
	}
	return labels
}

func loadAdminKeys(path string) (map[string]ed25519.PublicKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return httpserver.LoadAdminKeys(f)
}
