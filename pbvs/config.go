package pbvs

import (
	_ "embed"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

//go:embed config.default.yaml
var defaultConfigYAML []byte

// envPrefix scopes environment overrides, e.g. PBVS_CAMERA_TAG_OFFSET_X.
const envPrefix = "PBVS_"

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// NATSConfig controls the broker connection.
type NATSConfig struct {
	URL           string        `koanf:"url"`
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
}

// TopicsConfig names the streams and the arm this controller drives.
type TopicsConfig struct {
	ArmID             int     `koanf:"arm_id"`
	Odom              string  `koanf:"odom"`
	PoseTopic         string  `koanf:"pose_topic"`
	ObjectFilter      bool    `koanf:"object_filter"`
	ConfidenceMinimum float64 `koanf:"confidence_minimum"`
	ArmStatusTopic    string  `koanf:"arm_status_topic"`
	ArmControlTopic   string  `koanf:"arm_control_topic"`
}

// PoseSubject is the subject carrying target poses, filtered when enabled.
func (t TopicsConfig) PoseSubject() string {
	if t.ObjectFilter {
		return t.PoseTopic + "_filter"
	}
	return t.PoseTopic
}

// ConfidenceSubject is the subject carrying detector confidence.
func (t TopicsConfig) ConfidenceSubject() string { return t.PoseTopic + "_confidence" }

// DetectionSubject is the subject the detection-enable signal is sent on.
func (t TopicsConfig) DetectionSubject() string { return t.PoseTopic + "_detection" }

// CameraConfig holds the parking thresholds.
type CameraConfig struct {
	TagOffsetX                float64 `koanf:"tag_offset_x"`
	DesiredDistThreshold      float64 `koanf:"desired_dist_threshold"`
	HorizonAlignmentThreshold float64 `koanf:"horizon_alignment_threshold"`
	ParkingTolerance          float64 `koanf:"parking_tolerance"`
}

// ClawConfig bounds the claw arm. Heights and lengths share the arm's units.
type ClawConfig struct {
	LowerZ            float64 `koanf:"lower_z"`
	UpperZ            float64 `koanf:"upper_z"`
	HeightIncrement   float64 `koanf:"height_increment"`
	MinHeight         float64 `koanf:"min_height"`
	MaxHeight         float64 `koanf:"max_height"`
	TargetX           float64 `koanf:"target_x"`
	XTolerance        float64 `koanf:"x_tolerance"`
	LengthIncrement   float64 `koanf:"length_increment"`
	MaxLength         float64 `koanf:"max_length"`
	BlindExtendLength float64 `koanf:"blind_extend_length"`
	RetractLength     float64 `koanf:"retract_length"`
	LiftHeight        float64 `koanf:"lift_height"`
	Tolerance         float64 `koanf:"tolerance"`
}

// MotionConfig controls requests to the remote platform executor.
type MotionConfig struct {
	SubjectPrefix  string        `koanf:"subject_prefix"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

// GoalConfig names the goal service subject.
type GoalConfig struct {
	Subject string `koanf:"subject"`
}

// CancelSubject is where goal cancellation requests arrive.
func (g GoalConfig) CancelSubject() string { return g.Subject + ".cancel" }

// StatusConfig controls the HTTP status and metrics endpoint.
type StatusConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// AppConfig aggregates all configuration sections.
type AppConfig struct {
	Hz     float64      `koanf:"hz"`
	Log    LogConfig    `koanf:"log"`
	NATS   NATSConfig   `koanf:"nats"`
	Topics TopicsConfig `koanf:"topics"`
	Camera CameraConfig `koanf:"camera"`
	Claw   ClawConfig   `koanf:"claw"`
	Motion MotionConfig `koanf:"motion"`
	Goal   GoalConfig   `koanf:"goal"`
	Status StatusConfig `koanf:"status"`
}

// DefaultConfig returns the embedded defaults.
func DefaultConfig() AppConfig {
	cfg, err := loadConfig(nil)
	if err != nil {
		panic(errors.Wrap(err, "embedded default config"))
	}
	return cfg
}

// LoadConfig reads the YAML config at path over the embedded defaults, then
// applies PBVS_ environment overrides. An empty path skips the file.
func LoadConfig(path string) (AppConfig, error) {
	var content []byte
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return AppConfig{}, errors.Wrapf(err, "read config %s", path)
		}
		content = data
	}
	cfg, err := loadConfig(content)
	if err != nil {
		return AppConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

func loadConfig(file []byte) (AppConfig, error) {
	var cfg AppConfig
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(defaultConfigYAML), yaml.Parser()); err != nil {
		return cfg, errors.Wrap(err, "load defaults")
	}
	if len(file) > 0 {
		if err := k.Load(rawbytes.Provider(file), yaml.Parser()); err != nil {
			return cfg, errors.Wrap(err, "load config file")
		}
	}
	// PBVS_CAMERA_TAG_OFFSET_X -> camera.tag_offset_x: the first segment is the
	// section, the rest is the field name.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(key, "_", 2)
		if len(parts) == 1 {
			return key
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return cfg, errors.Wrap(err, "load environment")
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, errors.Wrap(err, "unmarshal config")
	}
	return cfg, nil
}

// Validate rejects configurations the controller cannot run with.
func (c AppConfig) Validate() error {
	if c.Hz <= 0 {
		return errors.New("hz must be > 0")
	}
	if c.NATS.URL == "" {
		return errors.New("nats.url must be set")
	}
	subjects := map[string]string{
		"topics.odom":              c.Topics.Odom,
		"topics.pose_topic":        c.Topics.PoseTopic,
		"topics.arm_status_topic":  c.Topics.ArmStatusTopic,
		"topics.arm_control_topic": c.Topics.ArmControlTopic,
		"motion.subject_prefix":    c.Motion.SubjectPrefix,
		"goal.subject":             c.Goal.Subject,
	}
	for name, value := range subjects {
		if strings.TrimSpace(value) == "" {
			return errors.Errorf("%s must be set", name)
		}
	}
	if c.Topics.ConfidenceMinimum < 0 || c.Topics.ConfidenceMinimum > 1 {
		return errors.Errorf("topics.confidence_minimum %v outside [0, 1]", c.Topics.ConfidenceMinimum)
	}
	if c.Claw.LowerZ > c.Claw.UpperZ {
		return errors.New("claw.lower_z must not exceed claw.upper_z")
	}
	if c.Claw.MinHeight > c.Claw.MaxHeight {
		return errors.New("claw.min_height must not exceed claw.max_height")
	}
	if c.Claw.MaxLength <= 0 {
		return errors.New("claw.max_length must be > 0")
	}
	if c.Claw.Tolerance < 0 {
		return errors.New("claw.tolerance must be >= 0")
	}
	if c.Motion.RequestTimeout <= 0 {
		return errors.New("motion.request_timeout must be > 0")
	}
	return nil
}
