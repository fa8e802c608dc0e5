package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ruteri/sensor-anchoring-gateway/backend"
	"github.com/ruteri/sensor-anchoring-gateway/cmd/flags"
	"github.com/ruteri/sensor-anchoring-gateway/cryptoutils"
	"github.com/ruteri/sensor-anchoring-gateway/interfaces"
	"github.com/urfave/cli/v2"
)

var (
	flagListenAddr = &cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:8081",
		Usage: "address to listen on",
	}
	flagToken = &cli.StringFlag{
		Name:    "token",
		EnvVars: []string{"MOCK_BACKEND_TOKEN"},
		Usage:   "bearer token required on registration requests, any token is accepted when empty",
	}
	flagInterval = &cli.UintFlag{
		Name:  "interval",
		Usage: "measurement interval in seconds pushed back to devices, 0 to push nothing",
	}
	flagKeySeed = &cli.StringFlag{
		Name:    "key-seed",
		EnvVars: []string{"MOCK_BACKEND_KEY_SEED"},
		Usage:   "hex encoded 32 byte ed25519 seed, a fresh key is generated when empty",
	}
	flagBackendID = &cli.StringFlag{
		Name:  "backend-id",
		Usage: "UUID placed in response envelopes",
	}
)

func main() {
	app := &cli.App{
		Name:  "mock-backend",
		Usage: "Serve an in-memory identity, key and anchoring backend",
		Flags: append([]cli.Flag{
			flagListenAddr,
			flagToken,
			flagInterval,
			flagKeySeed,
			flagBackendID,
			flags.LogServiceFlagFn("mock-backend"),
		}, flags.LogFlags...),
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadKeys(seedHex string) (interfaces.KeyPair, error) {
	if seedHex == "" {
		return cryptoutils.NewEd25519Provider().GenerateKeyPair()
	}
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return interfaces.KeyPair{}, fmt.Errorf("invalid key seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return interfaces.KeyPair{}, fmt.Errorf("invalid key seed length %d, expected %d", len(seed), ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return interfaces.KeyPair{Public: priv.Public().(ed25519.PublicKey), Private: priv}, nil
}

func run(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	keys, err := loadKeys(cCtx.String(flagKeySeed.Name))
	if err != nil {
		return err
	}

	backendID := uuid.New()
	if raw := cCtx.String(flagBackendID.Name); raw != "" {
		backendID, err = uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid backend id: %w", err)
		}
	}

	handler := backend.NewHandler(backend.HandlerOpts{
		ID:       backendID,
		Keys:     keys,
		Token:    cCtx.String(flagToken.Name),
		Interval: uint32(cCtx.Uint(flagInterval.Name)),
	}, cryptoutils.NewEd25519Provider(), logger)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return httplogger.LoggingMiddlewareSlog(logger, next)
	})
	handler.RegisterRoutes(r)
	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(handler.Stats())
	})

	srv := &http.Server{
		Addr:              cCtx.String(flagListenAddr.Name),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "err", err)
		}
	}()

	logger.Info("Mock backend listening",
		"addr", srv.Addr,
		"backend_id", backendID.String(),
		"pubkey", hex.EncodeToString(handler.PublicKey()))

	ctx, stop := flags.SignalContext(context.Background())
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "err", err)
		return err
	}
	logger.Info("Mock backend stopped")
	return nil
}
