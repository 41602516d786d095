// main.go - poold: the shielded pool daemon.
//
// serve    exposes a ledger's read surface over HTTP
// fixtures generates deterministic tree test vectors
// scan     reconstructs a balance history against a remote pool
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/spf13/cobra"

	"shieldedpool/client"
	"shieldedpool/internal/field"
	"shieldedpool/internal/fixtures"
	"shieldedpool/internal/pool"
)

func main() {
	root := &cobra.Command{
		Use:           "poold",
		Short:         "Shielded pool daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), fixturesCmd(), scanCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ledger read surface over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := LoadConfig(configPath)
			if err != nil {
				return err
			}
			log := newLogger(config.LogLevel)

			var ledger *pool.Ledger
			if _, err := os.Stat(config.SnapshotPath); err == nil {
				ledger, err = pool.LoadFromFile(config.SnapshotPath, pool.WithLogger(log))
				if err != nil {
					return fmt.Errorf("load ledger snapshot: %w", err)
				}
				log.Info().Str("path", config.SnapshotPath).Msg("ledger restored from snapshot")
			} else {
				ledger = pool.New(field.FromUint64(config.ChainID), pool.WithLogger(log))
				log.Info().Uint64("chain_id", config.ChainID).Msg("empty ledger created")
			}

			limiter := newClientRateLimiter(config.RateLimitTokens, config.RateLimitRefill, time.Second)
			srv := &http.Server{
				Addr:         config.ListenAddr,
				Handler:      newServer(ledger, log).routes(limiter),
				ReadTimeout:  time.Duration(config.ReadTimeoutSeconds) * time.Second,
				WriteTimeout: time.Duration(config.WriteTimeoutSeconds) * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", config.ListenAddr).Msg("poold listening")
				errCh <- srv.ListenAndServe()
			}()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case sig := <-stop:
				log.Info().Str("signal", sig.String()).Msg("shutting down")
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("http shutdown")
				}
			}

			if config.SnapshotPath != "" {
				if err := ledger.SaveToFile(config.SnapshotPath); err != nil {
					return fmt.Errorf("save ledger snapshot: %w", err)
				}
				log.Info().Str("path", config.SnapshotPath).Msg("ledger snapshot saved")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "poold.json", "config file path")
	return cmd
}

func fixturesCmd() *cobra.Command {
	var (
		leaves uint64
		seed   uint64
		out    string
	)
	cmd := &cobra.Command{
		Use:   "fixtures",
		Short: "Generate deterministic tree test vectors",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := fixtures.Generate(leaves, seed)
			if err != nil {
				return err
			}
			if err := fixtures.Verify(f); err != nil {
				return fmt.Errorf("generated fixture failed self-check: %w", err)
			}
			if err := fixtures.WriteFile(out, f); err != nil {
				return err
			}
			fmt.Printf("wrote %d leaves to %s\n", leaves, out)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&leaves, "leaves", 16, "number of leaves")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "leaf seed")
	cmd.Flags().StringVarP(&out, "out", "o", "tree_fixture.json", "output file")
	return cmd
}

func scanCmd() *cobra.Command {
	var (
		baseURL    string
		secretStr  string
		chainID    uint64
		assetStr   string
		checkpoint uint64
		maxSteps   uint64
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Reconstruct a balance history against a remote pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			var secret, asset fr.Element
			if _, err := secret.SetString(secretStr); err != nil {
				return fmt.Errorf("parse secret: %w", err)
			}
			if _, err := asset.SetString(assetStr); err != nil {
				return fmt.Errorf("parse asset: %w", err)
			}

			remote := client.New(baseURL)
			if !remote.Healthy() {
				return fmt.Errorf("pool at %s is not healthy", baseURL)
			}
			opts := &pool.ScanOptions{MaxSteps: maxSteps}
			if checkpoint > 0 {
				opts.Checkpoint = &pool.Checkpoint{Nonce: checkpoint}
			}
			history, err := pool.Discover(remote, secret, field.FromUint64(chainID), asset, opts)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(history)
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:8545", "pool base URL")
	cmd.Flags().StringVar(&secretStr, "secret", "", "user secret (decimal or 0x hex)")
	cmd.Flags().Uint64Var(&chainID, "chain", 1, "chain id")
	cmd.Flags().StringVar(&assetStr, "asset", "1", "asset id (decimal or 0x hex)")
	cmd.Flags().Uint64Var(&checkpoint, "checkpoint", 0, "resume scan from this nonce")
	cmd.Flags().Uint64Var(&maxSteps, "max-steps", 0, "membership query budget (0 = default)")
	_ = cmd.MarkFlagRequired("secret")
	return cmd
}
