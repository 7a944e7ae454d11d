// Package constants defines shared configuration constants.
package constants

var (
	// ConfigFile is the configuration file name looked up in DefaultDir.
	ConfigFile = "paramcapture.yaml"

	DefaultDir = ".paramcapture"

	// DefaultCatalogFile is the metadata snapshot the resolver loads when no
	// catalog path is configured.
	DefaultCatalogFile = "catalog.yaml"

	// DefaultProfilerSocket is where the in-process profiler listens for
	// install and uninstall commands.
	DefaultProfilerSocket = "/tmp/paramcapture-profiler.sock"

	// DefaultEventSocket is where the agent receives probe hits.
	DefaultEventSocket = "/tmp/paramcapture-events.sock"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "PARAMCAPTURE_"
)
