package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/joshp123/smartmeter/internal/schema"
)

const (
	SchemaVersion        = 1
	DefaultPath          = "/etc/smartmeter/config.pbtxt"
	DefaultGRPCAddr      = "0.0.0.0:9000"
	DefaultHTTPAddr      = "0.0.0.0:8080"
	DefaultBaseDir       = "/mnt/p1tmpfs/data"
	DefaultArchivePrefix = "smartmeter/data"
	DefaultMQTTTopic     = "smartmeter/p1"
	DefaultPollInterval  = 10 * time.Second
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
)

const (
	SourceSerial     = "serial"
	SourceTCP        = "tcp"
	SourceHomeWizard = "homewizard"
)

// Config is the runtime view of config.pbtxt.
type Config struct {
	SchemaVersion int
	Core          CoreConfig
	Data          DataConfig
	Reader        *ReaderConfig
	Archive       *ArchiveConfig
	MQTT          *MQTTConfig
	Log           LogConfig
}

type CoreConfig struct {
	GRPCAddr string
	HTTPAddr string
}

// DataConfig describes where data sets live and how the endpoint treats names.
type DataConfig struct {
	BaseDir               string
	DailyDir              string
	BackupDir             string
	WritePrimaryValues    bool
	StrictSetNames        bool
	MissingStatusNotFound bool
}

type ReaderConfig struct {
	Source       string
	Device       string
	BaudRate     int
	SerialMode   string
	Address      string
	BaseURL      string
	PollInterval time.Duration
}

type ArchiveConfig struct {
	Endpoint      string
	Bucket        string
	Prefix        string
	AccessKeyFile string
	SecretKeyFile string
	Region        string
}

type MQTTConfig struct {
	Broker       string
	Topic        string
	Username     string
	PasswordFile string
	ClientID     string
	Retain       bool
}

type LogConfig struct {
	Level  string
	Format string
	File   string
}

// Load parses the textproto config file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes textproto config content, applies defaults, and validates.
func Parse(data []byte) (*Config, error) {
	md, err := schema.Config()
	if err != nil {
		return nil, err
	}

	msg := dynamicpb.NewMessage(md)
	if err := prototext.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := fromMessage(fields{msg})
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromMessage(root fields) *Config {
	cfg := &Config{SchemaVersion: root.int("schema_version")}

	if core, ok := root.sub("core"); ok {
		cfg.Core = CoreConfig{
			GRPCAddr: core.str("grpc_addr"),
			HTTPAddr: core.str("http_addr"),
		}
	}
	if data, ok := root.sub("data"); ok {
		cfg.Data = DataConfig{
			BaseDir:               data.str("base_dir"),
			DailyDir:              data.str("daily_dir"),
			BackupDir:             data.str("backup_dir"),
			WritePrimaryValues:    data.bool("write_primary_values"),
			StrictSetNames:        data.bool("strict_set_names"),
			MissingStatusNotFound: data.bool("missing_status_not_found"),
		}
	}
	if reader, ok := root.sub("reader"); ok {
		cfg.Reader = &ReaderConfig{
			Source:       strings.ToLower(reader.str("source")),
			Device:       reader.str("device"),
			BaudRate:     reader.int("baud_rate"),
			SerialMode:   strings.ToUpper(reader.str("serial_mode")),
			Address:      reader.str("address"),
			BaseURL:      reader.str("base_url"),
			PollInterval: time.Duration(reader.int("poll_interval_seconds")) * time.Second,
		}
	}
	if archive, ok := root.sub("archive"); ok {
		cfg.Archive = &ArchiveConfig{
			Endpoint:      archive.str("endpoint"),
			Bucket:        archive.str("bucket"),
			Prefix:        archive.str("prefix"),
			AccessKeyFile: archive.str("access_key_file"),
			SecretKeyFile: archive.str("secret_key_file"),
			Region:        archive.str("region"),
		}
	}
	if mqtt, ok := root.sub("mqtt"); ok {
		cfg.MQTT = &MQTTConfig{
			Broker:       mqtt.str("broker"),
			Topic:        mqtt.str("topic"),
			Username:     mqtt.str("username"),
			PasswordFile: mqtt.str("password_file"),
			ClientID:     mqtt.str("client_id"),
			Retain:       mqtt.bool("retain"),
		}
	}
	if log, ok := root.sub("log"); ok {
		cfg.Log = LogConfig{
			Level:  log.str("level"),
			Format: log.str("format"),
			File:   log.str("file"),
		}
	}
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Core.GRPCAddr == "" {
		cfg.Core.GRPCAddr = DefaultGRPCAddr
	}
	if cfg.Core.HTTPAddr == "" {
		cfg.Core.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.Data.BaseDir == "" {
		cfg.Data.BaseDir = DefaultBaseDir
	}
	if cfg.Data.DailyDir == "" {
		cfg.Data.DailyDir = strings.TrimRight(cfg.Data.BaseDir, "/") + "/daily"
	}

	if cfg.Reader != nil {
		switch cfg.Reader.Source {
		case SourceSerial:
			if cfg.Reader.BaudRate == 0 {
				cfg.Reader.BaudRate = 9600
			}
			if cfg.Reader.SerialMode == "" {
				if cfg.Reader.BaudRate == 115200 {
					cfg.Reader.SerialMode = "8N1"
				} else {
					cfg.Reader.SerialMode = "7E1"
				}
			}
		case SourceHomeWizard:
			if cfg.Reader.PollInterval == 0 {
				cfg.Reader.PollInterval = DefaultPollInterval
			}
		}
	}

	if cfg.Archive != nil && cfg.Archive.Prefix == "" {
		cfg.Archive.Prefix = DefaultArchivePrefix
	}
	if cfg.MQTT != nil {
		if cfg.MQTT.Topic == "" {
			cfg.MQTT.Topic = DefaultMQTTTopic
		}
		if cfg.MQTT.ClientID == "" {
			cfg.MQTT.ClientID = "smartmeter"
		}
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

// Validate enforces required invariants beyond proto typing.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if cfg.SchemaVersion != SchemaVersion {
		return fmt.Errorf("schema_version must be %d", SchemaVersion)
	}
	if cfg.Core.GRPCAddr == "" {
		return fmt.Errorf("core.grpc_addr is required")
	}
	if cfg.Core.HTTPAddr == "" {
		return fmt.Errorf("core.http_addr is required")
	}
	if cfg.Data.BaseDir == "" {
		return fmt.Errorf("data.base_dir is required")
	}

	if r := cfg.Reader; r != nil {
		switch r.Source {
		case SourceSerial:
			if r.Device == "" {
				return fmt.Errorf("reader.device is required for serial source")
			}
			if r.BaudRate != 9600 && r.BaudRate != 115200 {
				return fmt.Errorf("reader.baud_rate must be 9600 or 115200")
			}
			if r.SerialMode != "7E1" && r.SerialMode != "8N1" {
				return fmt.Errorf("reader.serial_mode must be 7E1 or 8N1")
			}
		case SourceTCP:
			if r.Address == "" {
				return fmt.Errorf("reader.address is required for tcp source")
			}
		case SourceHomeWizard:
			if r.BaseURL == "" {
				return fmt.Errorf("reader.base_url is required for homewizard source")
			}
			if r.PollInterval < 0 {
				return fmt.Errorf("reader.poll_interval_seconds must not be negative")
			}
		default:
			return fmt.Errorf("reader.source must be one of serial, tcp, homewizard")
		}
	}

	if a := cfg.Archive; a != nil {
		if a.Endpoint == "" {
			return fmt.Errorf("archive.endpoint is required")
		}
		if a.Bucket == "" {
			return fmt.Errorf("archive.bucket is required")
		}
		if a.AccessKeyFile == "" {
			return fmt.Errorf("archive.access_key_file is required")
		}
		if a.SecretKeyFile == "" {
			return fmt.Errorf("archive.secret_key_file is required")
		}
	}

	if cfg.MQTT != nil && cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}

	return nil
}

// fields reads scalar and message fields from a dynamic config message by name.
type fields struct {
	msg protoreflect.Message
}

func (f fields) field(name string) protoreflect.FieldDescriptor {
	fd := f.msg.Descriptor().Fields().ByName(protoreflect.Name(name))
	if fd == nil {
		panic(fmt.Sprintf("config: %s has no field %q", f.msg.Descriptor().FullName(), name))
	}
	return fd
}

func (f fields) str(name string) string {
	return strings.TrimSpace(f.msg.Get(f.field(name)).String())
}

func (f fields) int(name string) int {
	return int(f.msg.Get(f.field(name)).Int())
}

func (f fields) bool(name string) bool {
	return f.msg.Get(f.field(name)).Bool()
}

func (f fields) sub(name string) (fields, bool) {
	fd := f.field(name)
	if !f.msg.Has(fd) {
		return fields{}, false
	}
	return fields{f.msg.Get(fd).Message()}, true
}
