package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kvstore-collector/internal/collector/adapter/http"
	"kvstore-collector/internal/collector/config"
	"kvstore-collector/internal/collector/domain/model"
	"kvstore-collector/internal/di"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:   "kvcollector",
		Short: "Collect report data into a key-value store",
		Long: `Collect tabular report data into key-value store collections.

Configuration comes from the environment (optionally a .env file); the
report inputs are listed in the YAML file named by COLLECTOR_INPUTS_FILE.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if err := godotenv.Load(envFile); err != nil {
				log.Printf("Warning: Could not load %s file: %v", envFile, err)
			}
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	root.AddCommand(newRunCommand(), newServeCommand(), newCollectionsCommand())
	return root
}

// setup loads configuration and initializes the collector module.
func setup(ctx context.Context) (*di.Container, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	container := di.NewContainer()
	container.InitializeLogger(cfg)
	if err := container.InitializeCollector(ctx, cfg); err != nil {
		return nil, err
	}
	return container, nil
}

func newRunCommand() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every configured input, or one with --input",
		Long: `Run report inputs one after another.

Every run records a status snapshot. The command exits non-zero when any
run failed.

Example:
  kvcollector run
  kvcollector run --input pipeline`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			container, err := setup(ctx)
			if err != nil {
				return err
			}
			defer container.Close()
			appLogger := container.Logger

			inputs, err := container.LoadInputs()
			if err != nil {
				return err
			}
			if input != "" {
				in, ok := config.Find(inputs, input)
				if !ok {
					return fmt.Errorf("input %q is not defined in %s", input, container.Config.InputsFile)
				}
				inputs = []config.InputDefinition{in}
			}

			outcomes, runErr := container.GetCollectorModule().RunInputs(ctx, inputs)
			for _, o := range outcomes {
				fields := map[string]interface{}{
					"input":   o.Input,
					"status":  string(o.Snapshot.Status),
					"stored":  o.Snapshot.RecordsStored,
					"updated": o.Snapshot.RecordsUpdated,
					"failed":  o.Snapshot.RecordsFailed,
				}
				if o.Err != nil {
					appLogger.WithFields(fields).Errorf("run failed: %s", o.Snapshot.Message)
					continue
				}
				appLogger.WithFields(fields).Info("run completed")
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "name of the single input to run")
	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve run status over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer container.Close()
			appLogger := container.Logger
			if err := container.Config.ValidateServe(); err != nil {
				return err
			}

			var reports []model.ReportIdentity
			inputs, err := container.LoadInputs()
			if err != nil {
				appLogger.Warnf("serving without the inputs list: %v", err)
			}
			for _, in := range inputs {
				reports = append(reports, in.Identity())
			}

			module := container.GetCollectorModule()
			if module.Status == nil {
				return errors.New("the configured tracker cannot read snapshots back")
			}

			app := fiber.New(fiber.Config{
				AppName:               "kvcollector status",
				ReadTimeout:           30 * time.Second,
				WriteTimeout:          30 * time.Second,
				IdleTimeout:           60 * time.Second,
				DisableStartupMessage: true,
			})
			app.Use(recover.New())
			http.NewStatusHandler(module.Status, reports, appLogger).RegisterRoutes(app)

			serverAddr := container.Config.Server.Addr()
			appLogger.Infof("starting status server on %s", serverAddr)

			serverShutdown := make(chan error, 1)
			go func() {
				serverShutdown <- app.Listen(serverAddr)
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-serverShutdown:
				return err
			case sig := <-quit:
				appLogger.Infof("received shutdown signal: %v", sig)
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := app.ShutdownWithContext(shutdownCtx); err != nil {
					appLogger.Errorf("server forced to shutdown: %v", err)
				}
				appLogger.Info("status server stopped")
			}
			return nil
		},
	}
}

func newCollectionsCommand() *cobra.Command {
	var app string
	cmd := &cobra.Command{
		Use:   "collections",
		Short: "List the collections of an app",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer container.Close()

			if app == "" {
				app = container.Config.KVStore.App
			}
			names, err := container.GetCollectorModule().Store.ListCollections(cmd.Context(), app)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&app, "app", "", "app namespace (default KVSTORE_APP)")
	return cmd
}
