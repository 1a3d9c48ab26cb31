package observability

import (
	"strings"
	"time"

	"github.com/smallbiznis/clinicdesk/internal/config"
)

// Config is the observability view of the application config: what the
// logger, tracer and meter need to label and export bill traffic.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64

	// SlowQuery is the latency above which the gorm logger warns.
	SlowQuery time.Duration
}

const defaultSlowQuery = 200 * time.Millisecond

var devEnvironments = map[string]struct{}{
	"dev":         {},
	"development": {},
	"local":       {},
	"test":        {},
}

func LoadConfig(cfg config.Config) Config {
	tc := cfg.Telemetry

	out := Config{
		ServiceName:          firstNonEmpty(cfg.AppName, "clinicdesk"),
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             cfg.LogLevel,
		LogFormat:            cfg.LogFormat,
		OtelEnabled:          tc.OtelEnabled,
		OtelExporterEndpoint: tc.OtlpEndpoint,
		OtelExporterProtocol: exporterProtocol(tc.OtlpProtocol),
		OtelSamplingRatio:    clampRatio(tc.SamplingRatio),
		SlowQuery:            tc.SlowQuery,
	}
	if out.SlowQuery <= 0 {
		out.SlowQuery = defaultSlowQuery
	}
	return out
}

// Debug turns on stack traces and SQL logging.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	_, ok := devEnvironments[strings.ToLower(strings.TrimSpace(c.Environment))]
	return ok
}

// exporterProtocol folds the OTLP protocol names onto the two exporters
// the tracer and meter build.
func exporterProtocol(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "http", "http/protobuf", "http/json":
		return "http"
	default:
		return "grpc"
	}
}

func clampRatio(r float64) float64 {
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	default:
		return r
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
