package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"contact_harvest/egresspool"
	"contact_harvest/egresspool/storage"
	"contact_harvest/egresspool/validator"
	"contact_harvest/internal/app"
	"contact_harvest/internal/browser"
	"contact_harvest/internal/browser/chrome"
	"contact_harvest/internal/browser/static"
	"contact_harvest/internal/extract"
	"contact_harvest/internal/fetch"
	"contact_harvest/internal/service/monitor"
	"contact_harvest/internal/shared/config"
	"contact_harvest/internal/shared/logger"
	"contact_harvest/internal/shared/types"
	"contact_harvest/internal/store"
)

const (
	exitOK     = 0
	exitAbort  = 1
	exitConfig = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	configDir := flag.String("configdir", "configs", "Path to config directory")
	flag.Parse()

	iniPath := filepath.Join(*configDir, "harvest.ini")

	// 1. 加载 .ini 行为配置
	cfg, err := config.LoadIni(iniPath)
	if err != nil {
		// Use standard fmt before logger is initialized.
		fmt.Fprintf(os.Stderr, "Fatal: Failed to load config file '%s': %v\n", iniPath, err)
		return exitConfig
	}

	resolvePaths(*configDir, cfg)

	// 1.1 初始化日志系统
	closer, err := logger.Init(cfg.LogConf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: Failed to initialize logger: %v\n", err)
		return exitConfig
	}
	defer closer.Close()
	log := logger.WithComponent("Main")

	// 2. 加载站点描述
	profile, err := config.LoadProfile(cfg.RunConf.SiteProfile)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load site profile.")
		return exitConfig
	}
	extractor, err := extract.New(profile.Extract, logger.WithComponent("Extract"))
	if err != nil {
		log.Error().Err(err).Msg("Invalid extraction rules in site profile.")
		return exitConfig
	}
	candidates, err := storage.ReadCandidates(cfg.RunConf.CandidatesFile)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read egress candidates.")
		return exitConfig
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. 打开持久化存储与出口池
	backend, err := store.Open(ctx, cfg.StoreConf)
	if err != nil {
		log.Error().Err(err).Str("backend", cfg.StoreConf.Backend).Msg("Failed to open store.")
		return exitAbort
	}
	defer backend.Close()

	poolOpts := egresspool.Options{MaxUses: cfg.PoolConf.MaxUses}
	if cfg.PoolConf.Probe {
		poolOpts.Validator = validator.NewValidator(cfg.PoolConf.ProbeTimeout, cfg.PoolConf.ProbeConcurrency, cfg.PoolConf.ProbeTarget)
	}
	pool, err := egresspool.Load(ctx, candidates, backend.Blocklist, poolOpts)
	if err != nil {
		if errors.Is(err, types.ErrNoEgressAvailable) {
			log.Error().Err(err).Msg("All egress endpoints are blocked or unusable. Please add new endpoints.")
		} else {
			log.Error().Err(err).Msg("Failed to load egress pool.")
		}
		return exitAbort
	}

	// 4. 询问输入表格与是否续跑
	prompter := app.NewPrompter(os.Stdin, os.Stdout)
	inputPath, err := prompter.InputPath()
	if err != nil {
		log.Error().Err(err).Msg("No input table given.")
		return exitAbort
	}
	table, err := app.ReadTableFile(inputPath, cfg.RunConf.NameColumn, cfg.RunConf.LocalityColumn)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read input table.")
		return exitAbort
	}
	source := app.SourceID(inputPath)
	start, err := app.StartRow(ctx, backend.Checkpoints, source, prompter)
	if err != nil {
		log.Error().Err(err).Msg("Failed to determine start row.")
		return exitAbort
	}
	if start > 0 {
		log.Info().Int("start_row", start).Msg("Resuming from checkpoint.")
	} else {
		log.Info().Msg("Starting from the beginning.")
	}

	// 5. 组装运行循环
	deps := app.RunnerDeps{
		Pool:        pool,
		Launcher:    newLauncher(cfg.BrowserConf, profile),
		Fetcher:     fetch.NewController(profile, fetch.OptionsFromConfig(cfg.FetchConf), extractor, logger.WithComponent("Fetch")),
		Checkpoints: backend.Checkpoints,
		Results:     backend.Results,
	}
	if cfg.MonitorConf.ListenAddr != "" {
		hub := monitor.NewHub()
		if _, err := monitor.Start(ctx, hub, cfg.MonitorConf); err != nil {
			log.Warn().Err(err).Str("listen_addr", cfg.MonitorConf.ListenAddr).Msg("Monitor disabled.")
		} else {
			deps.Reporter = hub
		}
	}
	runner := app.NewRunner(deps, app.Options{
		RetryBudget:         cfg.RunConf.RetryBudget,
		TransientRetryDelay: cfg.RunConf.TransientRetryDelay,
	}, logger.WithComponent("Run"))

	_, runErr := runner.Run(ctx, source, table.Rows, start)

	// 6. 无论运行是否中止都导出已持久化的结果
	output := cfg.RunConf.OutputFile
	if output == "" {
		output = app.DefaultOutputPath(inputPath)
	}
	matched, err := app.Export(context.Background(), backend.Results, table, source, output)
	if err != nil {
		log.Error().Err(err).Str("output", output).Msg("Export failed.")
		return exitAbort
	}
	log.Info().Str("output", output).Int("rows", len(table.Rows)).Int("with_results", matched).Msg("Data exported.")

	if errors.Is(runErr, types.ErrNoEgressAvailable) {
		for _, ep := range pool.Blocked() {
			log.Warn().Str("egress", ep.Address()).Time("blocked_at", ep.BlockedAt).Msg("Blocked egress endpoint.")
		}
		log.Error().Msg("All egress endpoints are blocked. Please add new endpoints.")
	}
	if runErr != nil {
		return exitAbort
	}
	return exitOK
}

func newLauncher(cfg types.BrowserConf, profile *types.SiteProfile) browser.Launcher {
	if cfg.Backend == "http" {
		return static.NewLauncher(static.Options{UserAgent: cfg.UserAgent, Timeout: cfg.PageTimeout})
	}
	return chrome.NewLauncher(chrome.Options{
		ChromePath:     cfg.ChromePath,
		Headless:       cfg.Headless,
		UserAgent:      cfg.UserAgent,
		PageTimeout:    cfg.PageTimeout,
		LocatorTimeout: cfg.LocatorTimeout,
		HoldDuration:   cfg.HoldDuration,
		Challenge:      profile.Challenge,
	})
}

// resolvePaths 将 ini 中的相对路径统一解析到配置目录下。
func resolvePaths(dir string, cfg *types.Config) {
	cfg.LogConf.File = resolve(dir, cfg.LogConf.File)
	cfg.StoreConf.Dir = resolve(dir, cfg.StoreConf.Dir)
	cfg.RunConf.CandidatesFile = resolve(dir, cfg.RunConf.CandidatesFile)
	cfg.RunConf.SiteProfile = resolve(dir, cfg.RunConf.SiteProfile)
	cfg.RunConf.OutputFile = resolve(dir, cfg.RunConf.OutputFile)
}

// resolve 将相对路径解析到配置目录下；空路径保持为空。
func resolve(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
