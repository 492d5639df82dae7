package types

import "time"

// LogConf contains logging specific configuration
type LogConf struct {
	Level string `ini:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	File  string `ini:"file"` // 为空时只输出到控制台
}

// RunConf 控制一次采集运行的输入输出与重试预算。
type RunConf struct {
	CandidatesFile string `ini:"candidates_file" validate:"required"`
	OutputFile     string `ini:"output_file"`
	SiteProfile    string `ini:"site_profile"`
	NameColumn     string `ini:"name_column" validate:"required"`
	LocalityColumn string `ini:"locality_column" validate:"required"`

	RetryBudget         int           `ini:"retry_budget" validate:"min=1"`
	TransientRetryDelay time.Duration `ini:"transient_retry_delay" validate:"min=0"`
}

// PoolConf 包含出口代理池的配置
type PoolConf struct {
	MaxUses          int           `ini:"max_uses" validate:"min=1"`
	Probe            bool          `ini:"probe"`
	ProbeTimeout     time.Duration `ini:"probe_timeout" validate:"min=0"`
	ProbeConcurrency int           `ini:"probe_concurrency" validate:"min=1"`
	ProbeTarget      string        `ini:"probe_target" validate:"required_if=Probe true"`
}

// FetchConf holds the timings and thresholds of a single fetch attempt.
type FetchConf struct {
	SettleDelay        time.Duration `ini:"settle_delay" validate:"min=0"`
	ChallengePasses    int           `ini:"challenge_passes" validate:"min=0"`
	ChallengeSettle    time.Duration `ini:"challenge_settle" validate:"min=0"`
	DetailSettle       time.Duration `ini:"detail_settle" validate:"min=0"`
	DetailClickRounds  int           `ini:"detail_click_rounds" validate:"min=1"`
	SummaryThreshold   int           `ini:"summary_threshold" validate:"min=1"`
	NavigationInterval time.Duration `ini:"navigation_interval" validate:"min=0"`
}

// BrowserConf 选择页面渲染后端。
type BrowserConf struct {
	Backend        string        `ini:"backend" validate:"oneof=chrome http"`
	ChromePath     string        `ini:"chrome_path"`
	Headless       bool          `ini:"headless"`
	UserAgent      string        `ini:"user_agent"`
	PageTimeout    time.Duration `ini:"page_timeout" validate:"min=0"`
	LocatorTimeout time.Duration `ini:"locator_timeout" validate:"min=0"`
	HoldDuration   time.Duration `ini:"hold_duration" validate:"min=0"`
}

// StoreConf 选择持久化后端。
type StoreConf struct {
	Backend  string `ini:"backend" validate:"oneof=file postgres"`
	Dir      string `ini:"dir" validate:"required_if=Backend file"`
	PgDSN    string `ini:"pg_dsn" validate:"required_if=Backend postgres"`
	MaxConns int32  `ini:"max_conns" validate:"min=0"`
}

// MonitorConf configures the optional live progress endpoint.
type MonitorConf struct {
	ListenAddr string `ini:"listen_addr"`
	User       string `ini:"user"`
	Password   string `ini:"password"`
}

// Config 是 harvest 的统一配置结构体
type Config struct {
	LogConf     `ini:"log"`
	RunConf     `ini:"run"`
	PoolConf    `ini:"pool"`
	FetchConf   `ini:"fetch"`
	BrowserConf `ini:"browser"`
	StoreConf   `ini:"store"`
	MonitorConf `ini:"monitor"`
}

// DefaultConfig returns the values used for any key missing from harvest.ini.
func DefaultConfig() *Config {
	return &Config{
		LogConf: LogConf{Level: "info", File: "harvest.log"},
		RunConf: RunConf{
			CandidatesFile:      "proxies.txt",
			NameColumn:          "Name (Formatted)",
			LocalityColumn:      "Contact Address (City, State)",
			RetryBudget:         5,
			TransientRetryDelay: 2 * time.Second,
		},
		PoolConf: PoolConf{
			MaxUses:          15,
			ProbeTimeout:     10 * time.Second,
			ProbeConcurrency: 5,
			ProbeTarget:      "www.google.com:443",
		},
		FetchConf: FetchConf{
			SettleDelay:       15 * time.Second,
			ChallengePasses:   3,
			ChallengeSettle:   2 * time.Second,
			DetailSettle:      8 * time.Second,
			DetailClickRounds: 3,
			SummaryThreshold:  6,
		},
		BrowserConf: BrowserConf{
			Backend:        "chrome",
			PageTimeout:    60 * time.Second,
			LocatorTimeout: 5 * time.Second,
			HoldDuration:   12 * time.Second,
		},
		StoreConf: StoreConf{
			Backend:  "file",
			Dir:      "data",
			MaxConns: 4,
		},
	}
}
