package config

import "reflect"

// ConfigDiff describes what changed between two configs. Hot fields are
// applied in place; everything else is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	PersonaChanged bool
	NewPersona     string

	// RestartRequired names the top-level sections whose changes only take
	// effect after a restart.
	RestartRequired []string
}

// Changed reports whether anything differs at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.PersonaChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new and classifies the differences.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Assistant.Persona != new.Assistant.Persona {
		d.PersonaChanged = true
		d.NewPersona = new.Assistant.Persona
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	oldAssistant, newAssistant := old.Assistant, new.Assistant
	oldAssistant.Persona, newAssistant.Persona = "", ""

	sections := []struct {
		name     string
		old, new any
	}{
		{"server", oldServer, newServer},
		{"providers", old.Providers, new.Providers},
		{"resilience", old.Resilience, new.Resilience},
		{"audio", old.Audio, new.Audio},
		{"pipeline", old.Pipeline, new.Pipeline},
		{"assistant", oldAssistant, newAssistant},
		{"telemetry", old.Telemetry, new.Telemetry},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}
	return d
}
