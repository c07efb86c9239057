package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"listing-scraper/config"
	"listing-scraper/scraper"
	"listing-scraper/scraper/sites"
	"listing-scraper/services"
	"listing-scraper/storage"
	"listing-scraper/utils"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile  string
	exitCode int
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return exitCode
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./scraper.yaml or $HOME/.listing-scraper.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "debug, info, warn or error")
	rootCmd.PersistentFlags().Bool("log-json", false, "emit JSON logs")

	rootCmd.Flags().IntP("concurrency", "c", 3, "browser sessions shared by all sites")
	rootCmd.Flags().StringP("renderer", "r", config.RendererChrome, "page renderer: chrome, rod or http")
	rootCmd.Flags().StringP("output", "o", "output/listings.csv", "default output file (.csv or .xlsx)")
	rootCmd.Flags().Bool("append", false, "merge into existing output instead of replacing it")
	rootCmd.Flags().Bool("headless", true, "run the browser headless")
	rootCmd.Flags().StringP("locations", "l", "", "CSV or XLSX file of City Name/Province rows to fan out over locations.sites")

	cobra.CheckErr(viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level")))
	cobra.CheckErr(viper.BindPFlag("log_json", rootCmd.PersistentFlags().Lookup("log-json")))
	for _, name := range []string{"concurrency", "renderer", "output", "append", "headless"} {
		cobra.CheckErr(viper.BindPFlag(name, rootCmd.Flags().Lookup(name)))
	}
	cobra.CheckErr(viper.BindPFlag("locations.file", rootCmd.Flags().Lookup("locations")))

	rootCmd.AddCommand(sitesCmd, historyCmd)
}

// initConfig reads the .env file, the config file and SCRAPER_* env vars.
func initConfig() {
	_ = godotenv.Load()

	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(".")
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName("scraper")
	}

	viper.SetEnvPrefix("scraper")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		cobra.CheckErr(err)
	}
}

var rootCmd = &cobra.Command{
	Use:          "listing-scraper",
	Short:        "Scrape rental listings from several sites into one CSV or XLSX file",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		if !cfg.HasJobs() {
			return fmt.Errorf("no sites or locations file configured (known sites: %v)", sites.IDs())
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		code, err := run(ctx, cfg)
		exitCode = code
		return err
	},
}

func run(ctx context.Context, cfg *config.Config) (int, error) {
	logger, err := utils.NewLogger(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		return 1, err
	}
	defer logger.Sync()

	jobs, err := cfg.Jobs()
	if err != nil {
		utils.Error("Could not build jobs: %v", err)
		return 1, nil
	}

	utils.Section("Listing Scraper")
	utils.Info("Scraper starting | jobs=%d renderer=%s sessions=%d delay=%v-%v",
		len(jobs), cfg.Renderer, cfg.Concurrency, cfg.MinDelay, cfg.MaxDelay)

	renderer, err := newRenderer(cfg, logger)
	if err != nil {
		utils.Error("Could not start renderer: %v", err)
		return 1, nil
	}
	defer renderer.Close()

	mirrors, closeMirrors, err := newMirrors(ctx, cfg)
	if err != nil {
		utils.Error("Could not set up output mirrors: %v", err)
		return 1, nil
	}
	defer closeMirrors()

	opts := []scraper.Option{
		scraper.WithLogger(logger),
		scraper.WithRetryPolicy(cfg.RetryPolicy()),
		scraper.WithDelays(cfg.MinDelay, cfg.MaxDelay),
	}
	if cfg.HistoryDB != "" {
		history, err := storage.OpenRunHistory(cfg.HistoryDB)
		if err != nil {
			utils.Error("Could not open run history: %v", err)
			return 1, nil
		}
		defer history.Close()
		opts = append(opts, scraper.WithHistory(history))
	}

	writer := storage.NewOutputWriter(cfg.Append, logger, mirrors...)
	orchestrator := scraper.NewOrchestrator(renderer, sites.Lookup, writer, opts...)

	summary, err := orchestrator.Run(ctx, jobs)
	if err != nil {
		utils.Error("Output failed: %v", err)
	}

	utils.Section("Run Summary")
	printSummary(os.Stdout, summary)
	if summary.RecordsWritten() == 0 {
		utils.Warn("No listings scraped.")
		return summary.ExitCode(), nil
	}

	if err == nil {
		utils.Success("Saved %d listings from %d jobs", summary.RecordsWritten(), len(jobs))
	}

	records, err := loadOutputs(jobs)
	if err != nil {
		utils.Warn("Could not read output back for the report: %v", err)
	} else {
		services.PrintReport(os.Stdout, services.GenerateReport(records))
	}
	return summary.ExitCode(), nil
}

func newRenderer(cfg *config.Config, logger *zap.Logger) (scraper.Renderer, error) {
	switch cfg.Renderer {
	case config.RendererRod:
		return scraper.NewRodRenderer(cfg.Headless, cfg.Concurrency, logger)
	case config.RendererHTTP:
		return scraper.NewHTTPRenderer(cfg.Concurrency, logger), nil
	default:
		return scraper.NewChromeRenderer(cfg.Headless, cfg.Concurrency, logger)
	}
}

func newMirrors(ctx context.Context, cfg *config.Config) ([]storage.Mirror, func(), error) {
	var (
		mirrors []storage.Mirror
		closers []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if cfg.PostgresDSN != "" {
		pg, err := storage.NewPostgresWriter(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, closeAll, err
		}
		closers = append(closers, pg.Close)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, closeAll, err
		}
		mirrors = append(mirrors, pg)
	}

	if cfg.S3Bucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, closeAll, fmt.Errorf("load aws config: %w", err)
		}
		mirrors = append(mirrors, storage.NewS3Uploader(awsCfg, cfg.S3Bucket, cfg.S3Prefix))
	}
	return mirrors, closeAll, nil
}
