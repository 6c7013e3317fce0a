package engine

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"relay/internal/config"
	"relay/internal/offsets"
	"relay/internal/spec"
	"relay/internal/telemetry"
	"relay/sink"
	ksink "relay/sink/kafka"
	"relay/sink/stdout"
	"relay/source/kafka"
)

type Config struct {
	SpecPath    string // engine YAML
	MetricsPort int    // overrides telemetry.metrics_port when > 0
}

func Bootstrap(cfg Config) (*Engine, error) {
	// 1. engine spec + source config
	file, confPath, err := config.LoadEngineSpec(cfg.SpecPath)
	if err != nil {
		return nil, fmt.Errorf("spec: %w", err)
	}
	if file.Source.Kind != "kafka" {
		return nil, fmt.Errorf("unsupported source %q", file.Source.Kind)
	}
	kc, err := config.LoadKafkaConfig(confPath)
	if err != nil {
		return nil, fmt.Errorf("source config: %w", err)
	}

	// 2. offset store
	var store offsets.Store = offsets.NewMemory()
	if file.Offsets.Path != "" {
		if store, err = offsets.OpenBolt(file.Offsets.Path); err != nil {
			return nil, fmt.Errorf("offsets: %w", err)
		}
	}

	// 3. sinks
	sinks, err := buildSinks(file)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	// 4. partition monitor + initial assignments
	mon, err := kafka.NewMonitor(kc)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("monitor: %w", err)
	}
	initial, err := mon.Start()
	if err != nil {
		_ = mon.Close()
		_ = store.Close()
		return nil, fmt.Errorf("monitor: %w", err)
	}

	// 5. metrics
	port := file.Telemetry.MetricsPort
	if cfg.MetricsPort > 0 {
		port = cfg.MetricsPort
	}
	if port > 0 {
		telemetry.Expose(port)
	}

	return newEngine(file, kc, mon, store, sinks, initial), nil
}

type namedSink struct {
	name string
	sink.Adapter
}

func buildSinks(file spec.File) ([]namedSink, error) {
	var out []namedSink
	for _, name := range file.Sinks {
		drv, err := sink.NewAdapter(name)
		if err != nil {
			return nil, err
		}

		switch name {
		case "stdout":
			err = drv.Configure(stdout.Config{
				DelayMS:      file.Debug.PerRecordDelayMS,
				PrintCounter: file.Debug.PrintCounter,
				TruncateAt:   file.Debug.TruncateAt,
			})

		case "kafka":
			var kc ksink.Config
			if err = decodeSinkConfig(file.SinkConfigs.Kafka, &kc); err == nil {
				err = drv.Configure(kc)
			}

		default:
			err = fmt.Errorf("no config block for sink %q", name)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, namedSink{name: name, Adapter: drv})
	}
	return out, nil
}

// decodeSinkConfig narrows a free-form YAML block into a driver config
// struct by running it back through the marshaller.
func decodeSinkConfig(raw any, out any) error {
	if raw == nil {
		return nil
	}
	b, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, out)
}
