package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/ruteri/sensor-anchoring-gateway/httpserver"
	"github.com/urfave/cli/v2"
)

var flagGatewayServer *cli.StringFlag = &cli.StringFlag{
	Name:  "gateway-server-addr",
	Value: "http://127.0.0.1:8080/admin",
	Usage: "Gateway admin API address to request",
}
var flagAdminPrivkey *cli.StringFlag = &cli.StringFlag{
	Name:  "admin-privkey-file",
	Value: "admin-private.hex",
	Usage: "Path to admin private key seed",
}
var flagAdminPubkey *cli.StringFlag = &cli.StringFlag{
	Name:  "admin-pubkey-file",
	Value: "admin-public.hex",
	Usage: "Path to admin public key",
}
var flagAdminKeys *cli.StringFlag = &cli.StringFlag{
	Name:  "admin-keys-file",
	Value: "admins.json",
	Usage: "Path to file to use for the gateway admin configuration",
}
var flagSensor *cli.StringFlag = &cli.StringFlag{
	Name:     "sensor",
	Required: true,
	Usage:    "Sensor identifier",
}

func main() {
	app := &cli.App{
		Name:           "admin client",
		Usage:          "Administer a running sensor anchoring gateway",
		DefaultCommand: "status",
		Commands: []*cli.Command{
			{
				Name:  "status",
				Usage: "Show token validity and pipeline counters",
				Flags: []cli.Flag{
					flagGatewayServer,
				},
				Action: func(cCtx *cli.Context) error {
					adminClient := httpserver.NewAdminClient(cCtx.String(flagGatewayServer.Name), nil)
					status, err := adminClient.GetStatus(cCtx.Context)
					if err != nil {
						return err
					}
					return printJSON(status)
				},
			},
			{
				Name:  "generate-admin",
				Usage: "Generate a new admin key pair",
				Flags: []cli.Flag{
					flagAdminPrivkey,
					flagAdminPubkey,
				},
				Action: func(cCtx *cli.Context) error {
					pub, priv, err := ed25519.GenerateKey(rand.Reader)
					if err != nil {
						return fmt.Errorf("failed to generate ed25519 key: %w", err)
					}

					if err := os.WriteFile(cCtx.String(flagAdminPrivkey.Name), []byte(hex.EncodeToString(priv.Seed())), 0600); err != nil {
						return err
					}
					if err := os.WriteFile(cCtx.String(flagAdminPubkey.Name), []byte(hex.EncodeToString(pub)), 0644); err != nil {
						return err
					}

					fmt.Println(httpserver.AdminID(pub))
					return nil
				},
			},
			{
				Name:  "generate-admin-config",
				Usage: "Create the gateway admin keys file from admin public keys",
				Flags: []cli.Flag{
					flagAdminKeys,
					&cli.StringSliceFlag{
						Name:     "admin-pubkey-files",
						Required: true,
					},
				},
				Action: func(cCtx *cli.Context) error {
					config := httpserver.AdminKeysConfig{}

					for _, path := range cCtx.StringSlice("admin-pubkey-files") {
						pub, err := readPublicKey(path)
						if err != nil {
							return err
						}
						config.Admins = append(config.Admins, httpserver.AdminMetadata{
							ID:     httpserver.AdminID(pub),
							PubKey: hex.EncodeToString(pub),
						})
					}

					configBytes, err := json.MarshalIndent(config, "", "  ")
					if err != nil {
						return err
					}
					return os.WriteFile(cCtx.String(flagAdminKeys.Name), configBytes, 0600)
				},
			},
			{
				Name:  "set-token",
				Usage: "Replace the registration token of the gateway",
				Flags: []cli.Flag{
					flagGatewayServer,
					flagAdminPrivkey,
					&cli.StringFlag{
						Name:  "token",
						Usage: "Registration token",
					},
					&cli.StringFlag{
						Name:  "token-file",
						Usage: "File to read the registration token from",
					},
				},
				Action: func(cCtx *cli.Context) error {
					raw := cCtx.String("token")
					if path := cCtx.String("token-file"); path != "" {
						data, err := os.ReadFile(path)
						if err != nil {
							return err
						}
						raw = strings.TrimSpace(string(data))
					}

					adminClient, err := signedClient(cCtx)
					if err != nil {
						return err
					}
					status, err := adminClient.SetToken(cCtx.Context, raw)
					if err != nil {
						return err
					}
					return printJSON(status)
				},
			},
			{
				Name:  "ensure-ready",
				Usage: "Provision a sensor identity without submitting a reading",
				Flags: []cli.Flag{
					flagGatewayServer,
					flagAdminPrivkey,
					flagSensor,
				},
				Action: func(cCtx *cli.Context) error {
					adminClient, err := signedClient(cCtx)
					if err != nil {
						return err
					}
					resp, err := adminClient.EnsureReady(cCtx.Context, cCtx.String(flagSensor.Name))
					if err != nil {
						return err
					}
					if err := printJSON(resp); err != nil {
						return err
					}
					if !resp.Ready {
						return fmt.Errorf("sensor not ready: %s", resp.Reason)
					}
					return nil
				},
			},
			{
				Name:  "submit-reading",
				Usage: "Queue a reading for anchoring",
				Flags: []cli.Flag{
					flagGatewayServer,
					flagAdminPrivkey,
					flagSensor,
					&cli.IntSliceFlag{
						Name:     "value",
						Required: true,
						Usage:    "Measured value, repeatable",
					},
				},
				Action: func(cCtx *cli.Context) error {
					raw := cCtx.IntSlice("value")
					values := make([]int32, len(raw))
					for i, v := range raw {
						values[i] = int32(v)
					}

					adminClient, err := signedClient(cCtx)
					if err != nil {
						return err
					}
					accepted, err := adminClient.SubmitReading(cCtx.Context, cCtx.String(flagSensor.Name), values)
					if err != nil {
						return err
					}
					if !accepted {
						return fmt.Errorf("reading dropped, queue is full")
					}
					fmt.Println("accepted")
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func signedClient(cCtx *cli.Context) (*httpserver.AdminClient, error) {
	seedHex, err := os.ReadFile(cCtx.String(flagAdminPrivkey.Name))
	if err != nil {
		return nil, err
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(seedHex)))
	if err != nil {
		return nil, fmt.Errorf("invalid admin private key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid admin private key length %d", len(seed))
	}
	return httpserver.NewAdminClient(cCtx.String(flagGatewayServer.Name), ed25519.NewKeyFromSeed(seed)), nil
}

func readPublicKey(path string) (ed25519.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pub, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid public key in %s: %w", path, err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid public key length in %s", path)
	}
	return ed25519.PublicKey(pub), nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
