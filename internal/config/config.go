package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	ListenAddr   string `envconfig:"LISTEN_ADDR" default:":8000"`
	DataPath     string `envconfig:"DATA_PATH" default:"/app/data"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:""`
	LogPath      string `envconfig:"LOG_PATH" default:""`
	JWTSecret    string `envconfig:"JWT_SECRET" default:""`
	AuthDisabled bool   `envconfig:"AUTH_DISABLED" default:"false"`
	PolicyFile   string `envconfig:"POLICY_FILE" default:""`

	// Session lifecycle
	SessionDuration time.Duration `envconfig:"SESSION_DURATION" default:"1h"`
	ExtendDuration  time.Duration `envconfig:"EXTEND_DURATION" default:"1h"`
	MaxDuration     time.Duration `envconfig:"MAX_DURATION" default:"8h"`
	ClockTick       time.Duration `envconfig:"CLOCK_TICK" default:"1s"`

	// Connection health
	SamplerInterval      time.Duration `envconfig:"SAMPLER_INTERVAL" default:"10s"`
	DegradeProbability   float64       `envconfig:"DEGRADE_PROBABILITY" default:"0.05"`
	LossProbability      float64       `envconfig:"LOSS_PROBABILITY" default:"0.02"`
	AutoReconnectDelay   time.Duration `envconfig:"AUTO_RECONNECT_DELAY" default:"3s"`
	ManualReconnectDelay time.Duration `envconfig:"MANUAL_RECONNECT_DELAY" default:"2s"`
	ProbeMode            string        `envconfig:"PROBE_MODE" default:"synthetic"`
	ProbeTimeout         time.Duration `envconfig:"PROBE_TIMEOUT" default:"5s"`

	// Views
	TerminalLogCapacity    int           `envconfig:"TERMINAL_LOG_CAPACITY" default:"500"`
	FramebufferLogCapacity int           `envconfig:"FRAMEBUFFER_LOG_CAPACITY" default:"200"`
	TerminalTick           time.Duration `envconfig:"TERMINAL_TICK" default:"5s"`
	FramebufferTick        time.Duration `envconfig:"FRAMEBUFFER_TICK" default:"8s"`
	OutputProbability      float64       `envconfig:"OUTPUT_PROBABILITY" default:"0.3"`
	CommandRate            float64       `envconfig:"COMMAND_RATE" default:"2"`
	CommandBurst           int           `envconfig:"COMMAND_BURST" default:"5"`

	// Housekeeping
	ExpiredRetention   time.Duration `envconfig:"EXPIRED_RETENTION" default:"15m"`
	AuditRetentionDays int           `envconfig:"AUDIT_RETENTION_DAYS" default:"90"`
}

var Cfg Settings

// FromEnv reads Settings from REMOTE_ACCESS_* variables without applying
// the policy file.
func FromEnv() (Settings, error) {
	var s Settings
	err := envconfig.Process("REMOTE_ACCESS", &s)
	return s, err
}

func Load() {
	s, err := FromEnv()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	Cfg = s
	if Cfg.PolicyFile != "" {
		p, err := LoadPolicy(Cfg.PolicyFile)
		if err != nil {
			log.Fatalf("failed to load session policy: %v", err)
		}
		p.Apply(&Cfg)
	}
	if err := Cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
}

// LogFile returns the log file path, defaulting under DataPath.
func (s Settings) LogFile() string {
	if s.LogPath != "" {
		return s.LogPath
	}
	return s.DataPath + "/remote-access.log"
}

// DatabaseFile returns the SQLite path, defaulting under DataPath.
func (s Settings) DatabaseFile() string {
	if s.DatabasePath != "" {
		return s.DatabasePath
	}
	return s.DataPath + "/remote-access.db"
}
