// Command worldstate-cli exercises the worldstate library end to end:
// inspecting an account at a given state root, running a V1->V2
// migration, and serving Prometheus metrics for a long-lived process.
package main

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/chainkit/worldstate"
	"github.com/chainkit/worldstate/log"
	"github.com/chainkit/worldstate/metrics"
	"github.com/chainkit/worldstate/storage"
	"github.com/chainkit/worldstate/types"
)

var cliLog = log.Default().Module("worldstate-cli")

func main() {
	app := &cli.App{
		Name:  "worldstate-cli",
		Usage: "inspect, migrate, and serve metrics for a worldstate-backed chain",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to a worldstate YAML config",
			},
			&cli.StringFlag{
				Name:  "datadir",
				Usage: "LevelDB directory (overrides config)",
			},
		},
		Commands: []*cli.Command{
			inspectCommand,
			migrateCommand,
			serveMetricsCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		cliLog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (worldstate.Config, error) {
	cfg := worldstate.DefaultConfig()
	if p := c.String("config"); p != "" {
		var err error
		cfg, err = worldstate.LoadConfig(p)
		if err != nil {
			return worldstate.Config{}, err
		}
	}
	if d := c.String("datadir"); d != "" {
		cfg.DataDir = d
	}
	return cfg, nil
}

func parseHash(s string) (types.Hash, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return types.Hash{}, err
	}
	return types.BytesToHash(b)
}

func parseAddress(s string) (types.Address, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return types.Address{}, err
	}
	return types.BytesToAddress(b)
}

var inspectCommand = &cli.Command{
	Name:  "inspect",
	Usage: "print an account's Nonce, Balance, Code length, CBIVersion, and StorageHash at a state root",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "root", Required: true, Usage: "state root (hex)"},
		&cli.StringFlag{Name: "address", Required: true, Usage: "account address (hex)"},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		db, err := storage.OpenLevelDB(cfg.DataDir)
		if err != nil {
			return err
		}
		defer db.Close()

		root, err := parseHash(c.String("root"))
		if err != nil {
			return fmt.Errorf("invalid root: %w", err)
		}
		addr, err := parseAddress(c.String("address"))
		if err != nil {
			return fmt.Errorf("invalid address: %w", err)
		}

		ws, err := worldstate.Open(db, root)
		if err != nil {
			return err
		}

		nonce, err := ws.GetNonce(addr)
		if err != nil {
			return err
		}
		balance, err := ws.GetBalance(addr)
		if err != nil {
			return err
		}
		code, err := ws.GetCode(addr)
		if err != nil {
			return err
		}
		cbi, err := ws.GetCBIVersion(addr)
		if err != nil {
			return err
		}
		storageHash, err := ws.GetStorageHash(addr)
		if err != nil {
			return err
		}

		fmt.Printf("address:      %s\n", addr.Hex())
		fmt.Printf("nonce:        %d\n", nonce)
		fmt.Printf("balance:      %d\n", balance)
		fmt.Printf("code length:  %d\n", len(code))
		fmt.Printf("cbi version:  %d\n", cbi)
		fmt.Printf("storage root: %s\n", storageHash.Hex())
		return nil
	},
}

var migrateCommand = &cli.Command{
	Name:  "migrate",
	Usage: "migrate a V1 account trie rooted at --v1-root into a fresh V2 trie",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "v1-root", Required: true, Usage: "V1 state root (hex)"},
		&cli.IntFlag{Name: "concurrency", Value: worldstate.DefaultMigrationBudget.Concurrency},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		db, err := storage.OpenLevelDB(cfg.DataDir)
		if err != nil {
			return err
		}
		defer db.Close()

		v1Root, err := parseHash(c.String("v1-root"))
		if err != nil {
			return fmt.Errorf("invalid v1-root: %w", err)
		}

		budget := worldstate.DefaultMigrationBudget
		budget.Concurrency = c.Int("concurrency")

		v2Root, changes, err := worldstate.MigrateV1ToV2(db, v1Root, worldstate.MigrationOptions{
			Budget: budget,
			Progress: func(cp worldstate.MigrationCheckpoint) {
				cliLog.Info("migration progress",
					"addresses", cp.AddressesMigrated, "bytes", cp.BytesWritten)
			},
		})
		if err != nil {
			return err
		}
		if err := db.Apply(changes.Inserts, changes.Deletes); err != nil {
			return err
		}

		fmt.Printf("v1 root: %s\n", v1Root.Hex())
		fmt.Printf("v2 root: %s\n", v2Root.Hex())
		fmt.Printf("nodes inserted: %d\n", len(changes.Inserts))
		return nil
	},
}

var serveMetricsCommand = &cli.Command{
	Name:  "serve-metrics",
	Usage: "serve Prometheus-format metrics over HTTP until interrupted",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "addr", Value: ":9200", Usage: "listen address"},
		&cli.StringFlag{Name: "namespace", Value: "worldstate"},
	},
	Action: func(c *cli.Context) error {
		handler := metrics.NewPrometheusHandler(c.String("namespace"), metrics.DefaultRegistry)
		mux := http.NewServeMux()
		mux.Handle("/metrics", handler)
		cliLog.Info("serving metrics", "addr", c.String("addr"))
		return http.ListenAndServe(c.String("addr"), mux)
	},
}
