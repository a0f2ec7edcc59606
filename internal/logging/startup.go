package logging

import (
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StartupLogger collects the resolved configuration and storage resources
// of a command, then emits a single structured zerolog event summarising
// them. It makes it easy to see how a run was configured when reading its
// logs afterwards.
type StartupLogger struct {
	name         string
	version      string
	initDuration time.Duration

	directories  map[string]string
	s3Buckets    map[string]string
	dynamoTables map[string]string
	features     map[string]bool
	config       map[string]string
}

// NewStartupLogger creates a StartupLogger for the named command
// (e.g. "retouch edit").
func NewStartupLogger(name string) *StartupLogger {
	return &StartupLogger{
		name:         name,
		directories:  make(map[string]string),
		s3Buckets:    make(map[string]string),
		dynamoTables: make(map[string]string),
		features:     make(map[string]bool),
		config:       make(map[string]string),
	}
}

// Version sets the build version baked into the binary.
func (s *StartupLogger) Version(v string) *StartupLogger {
	s.version = v
	return s
}

// Directory registers a local directory the command reads or writes.
func (s *StartupLogger) Directory(label, path string) *StartupLogger {
	s.directories[label] = path
	return s
}

// S3Bucket registers an S3 bucket used by this command.
func (s *StartupLogger) S3Bucket(label, name string) *StartupLogger {
	s.s3Buckets[label] = name
	return s
}

// DynamoTable registers a DynamoDB table used by this command.
func (s *StartupLogger) DynamoTable(label, name string) *StartupLogger {
	s.dynamoTables[label] = name
	return s
}

// Feature registers a boolean feature flag (e.g. "metrics").
func (s *StartupLogger) Feature(name string, enabled bool) *StartupLogger {
	s.features[name] = enabled
	return s
}

// Config registers a non-sensitive configuration key-value pair.
func (s *StartupLogger) Config(key, value string) *StartupLogger {
	s.config[key] = value
	return s
}

// InitDuration records how long startup took.
func (s *StartupLogger) InitDuration(d time.Duration) *StartupLogger {
	s.initDuration = d
	return s
}

// Log emits a single structured INFO event with everything collected.
func (s *StartupLogger) Log() {
	evt := log.Info()

	app := zerolog.Dict().
		Str("name", s.name).
		Str("goVersion", runtime.Version()).
		Str("arch", runtime.GOARCH).
		Str("region", os.Getenv("AWS_REGION")).
		Str("logLevel", zerolog.GlobalLevel().String())
	if s.version != "" {
		app = app.Str("version", s.version)
	}
	evt = evt.Dict("app", app)

	// Resources: only non-empty maps are attached.
	resources := zerolog.Dict()
	hasResources := false
	if len(s.directories) > 0 {
		resources = resources.Dict("directories", dictFromMap(s.directories))
		hasResources = true
	}
	if len(s.s3Buckets) > 0 {
		resources = resources.Dict("s3Buckets", dictFromMap(s.s3Buckets))
		hasResources = true
	}
	if len(s.dynamoTables) > 0 {
		resources = resources.Dict("dynamoTables", dictFromMap(s.dynamoTables))
		hasResources = true
	}
	if hasResources {
		evt = evt.Dict("resources", resources)
	}

	if len(s.features) > 0 {
		d := zerolog.Dict()
		for k, v := range s.features {
			d = d.Bool(k, v)
		}
		evt = evt.Dict("features", d)
	}

	if len(s.config) > 0 {
		evt = evt.Dict("config", dictFromMap(s.config))
	}

	if s.initDuration > 0 {
		evt = evt.Dur("initDuration", s.initDuration)
	}

	evt.Msg("Startup complete")
}

func dictFromMap(m map[string]string) *zerolog.Event {
	d := zerolog.Dict()
	for k, v := range m {
		d = d.Str(k, v)
	}
	return d
}
