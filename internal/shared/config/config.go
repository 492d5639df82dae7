package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"contact_harvest/internal/shared/types"
)

//go:embed default_profile.yaml
var defaultProfile []byte

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadIni 加载 harvest.ini 行为配置文件，缺省值来自 types.DefaultConfig。
func LoadIni(fileName string) (*types.Config, error) {
	cfg := types.DefaultConfig()
	iniFile, err := ini.Load(fileName)
	if err != nil {
		return nil, err
	}
	if err := iniFile.MapTo(cfg); err != nil {
		return nil, err
	}
	overrideFromEnvString(&cfg.StoreConf.PgDSN, "HARVEST_PG_DSN")
	overrideFromEnvString(&cfg.LogConf.Level, "HARVEST_LOG_LEVEL")
	overrideFromEnvInt(&cfg.PoolConf.MaxUses, "HARVEST_MAX_USES")
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct tags on a loaded configuration or site profile.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid configuration: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// LoadProfile 加载站点描述文件；fileName 为空时使用内置默认描述。
func LoadProfile(fileName string) (*types.SiteProfile, error) {
	data := defaultProfile
	if fileName != "" {
		var err error
		data, err = os.ReadFile(fileName)
		if err != nil {
			return nil, fmt.Errorf("failed to read site profile: %w", err)
		}
	}

	var p types.SiteProfile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal site profile: %w", err)
	}
	if p.Extract.NameSeparator == "" {
		p.Extract.NameSeparator = ","
	}
	if err := Validate(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func overrideFromEnvString(target *string, envName string) {
	if envValue := os.Getenv(envName); envValue != "" {
		*target = envValue
	}
}

func overrideFromEnvInt(target *int, envName string) {
	envValue := os.Getenv(envName)
	if envValue != "" {
		if intValue, err := strconv.Atoi(envValue); err == nil {
			*target = intValue
		}
	}
}
