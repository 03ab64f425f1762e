package orchestrator_config

import (
	"time"

	"github.com/forgefleet/fleetops/internal/domain/fleet"
	"github.com/forgefleet/fleetops/internal/obs"
	pg "github.com/forgefleet/fleetops/internal/repository/postgres"
	"github.com/forgefleet/fleetops/internal/services/prober"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Kafka struct {
	Brokers       []string `mapstructure:"brokers"`
	TriggerTopic  string   `mapstructure:"trigger_topic"`
	GroupID       string   `mapstructure:"group_id"`
	FromBeginning bool     `mapstructure:"from_beginning"`
}

type Sweep struct {
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
	RunTimeout    time.Duration `mapstructure:"run_timeout"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	MetricsAddr   string        `mapstructure:"metrics_addr"`
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

func (oc *OTEL) AsOTELConfig() *obs.OTELConfig {
	return &obs.OTELConfig{
		Enable:      oc.Enable,
		Endpoint:    oc.OTLPEndpoint,
		ServiceName: oc.ServiceName,
		SampleRatio: oc.SampleRatio,
	}
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func (lc *Log) AsLoggerConfig(app App) obs.LogConfig {
	return obs.LogConfig{
		Level:  lc.Level,
		Pretty: lc.Pretty,
		App:    app.Name,
		Env:    app.Env,
		Ver:    app.Version,
	}
}

// Config carries the fleet registry: the orchestrator probes exactly
// the workers listed here, nothing is discovered at runtime.
type Config struct {
	App   App            `mapstructure:"app"`
	DB    pg.Config      `mapstructure:"db"`
	Kafka Kafka          `mapstructure:"kafka"`
	Fleet []fleet.Worker `mapstructure:"fleet"`
	Probe prober.Config  `mapstructure:"probe"`
	Sweep Sweep          `mapstructure:"sweep"`
	OTEL  OTEL           `mapstructure:"otel"`
	Log   Log            `mapstructure:"log"`
}
