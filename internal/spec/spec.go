package spec

type sinkConfigs struct {
	Kafka  any `yaml:"kafka"`
	Stdout any `yaml:"stdout"`
}

type debugSection struct {
	PerRecordDelayMS int  `yaml:"per_record_delay_ms"`
	PrintCounter     bool `yaml:"print_counter"`
	TruncateAt       int  `yaml:"truncate_at"`
}

type File struct {
	SchemaVersion string `yaml:"schema_version"`

	Source struct {
		Kind   string `yaml:"kind"`
		Driver string `yaml:"driver"`
		Config string `yaml:"config"`
	} `yaml:"source"`

	// Parallel source tasks; matching partitions are spread round-robin
	// across them.
	Tasks int `yaml:"tasks"`

	Sinks       []string    `yaml:"sinks"`
	SinkConfigs sinkConfigs `yaml:"sink_configs"`

	Offsets struct {
		Path string `yaml:"path"` // empty → volatile in-memory store
	} `yaml:"offsets"`

	Telemetry struct {
		MetricsPort int `yaml:"metrics_port"` // 0 → endpoint disabled
	} `yaml:"telemetry"`

	Debug debugSection `yaml:"debug"`
}
