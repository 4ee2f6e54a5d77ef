package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/talostrading/latency/histlog"
	"github.com/talostrading/latency/latencyopts"
)

// EnvPrefix prefixes the environment variables overriding configuration
// keys; dots in keys become underscores, e.g. LATENCY_HIST_DIR.
const EnvPrefix = "LATENCY"

type Log struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=trace debug info warn warning error fatal panic"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=text json"`
}

type Targets struct {
	TCP []string `mapstructure:"tcp" validate:"dive,host_port"`
	TLS []string `mapstructure:"tls" validate:"dive,host_port"`
}

type ClientTLS struct {
	// ServerName defaults to the host part of each TLS target.
	ServerName         string `mapstructure:"server_name"`
	CAFile             string `mapstructure:"ca_file" validate:"omitempty,file"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

type Client struct {
	Targets          Targets       `mapstructure:"targets"`
	Throttle         time.Duration `mapstructure:"throttle" validate:"gte=0"`
	ReconnectBackoff time.Duration `mapstructure:"reconnect_backoff" validate:"gt=0"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout" validate:"gt=0"`
	TLS              ClientTLS     `mapstructure:"tls"`
	// CPUs are assigned to engines in order, one CPU per engine.
	CPUs []int `mapstructure:"cpus" validate:"dive,gte=0"`
	Log  Log   `mapstructure:"log"`
}

func (c *Client) Validate() error {
	if len(c.Targets.TCP)+len(c.Targets.TLS) == 0 {
		return errors.New("no targets configured")
	}
	return nil
}

type ServerTLS struct {
	CertFile string `mapstructure:"cert_file" validate:"omitempty,file"`
	KeyFile  string `mapstructure:"key_file" validate:"omitempty,file"`
}

type Hist struct {
	Dir      string        `mapstructure:"dir" validate:"required"`
	Series   string        `mapstructure:"series" validate:"required,excludesall=/\\"`
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`
}

type Server struct {
	Listen    string    `mapstructure:"listen" validate:"required,host_port"`
	TLSListen string    `mapstructure:"tls_listen" validate:"omitempty,host_port"`
	TLS       ServerTLS `mapstructure:"tls"`
	Hist      Hist      `mapstructure:"hist"`
	KeepAlive bool      `mapstructure:"keep_alive"`
	Metrics   bool      `mapstructure:"metrics"`
	Profiling bool      `mapstructure:"profiling"`
	Log       Log       `mapstructure:"log"`
}

func (s *Server) Validate() error {
	if s.TLSListen != "" && (s.TLS.CertFile == "" || s.TLS.KeyFile == "") {
		return errors.New("tls_listen requires tls.cert_file and tls.key_file")
	}
	return nil
}

func SetClientDefaults(v *viper.Viper) {
	v.SetDefault("targets.tcp", []string{})
	v.SetDefault("targets.tls", []string{})
	v.SetDefault("throttle", time.Duration(0))
	v.SetDefault("reconnect_backoff", time.Second)
	v.SetDefault("connect_timeout", latencyopts.DefaultConnectTimeout)
	v.SetDefault("tls.server_name", "")
	v.SetDefault("tls.ca_file", "")
	v.SetDefault("tls.insecure_skip_verify", false)
	v.SetDefault("cpus", []int{})
	setLogDefaults(v)
}

func SetServerDefaults(v *viper.Viper) {
	v.SetDefault("listen", "127.0.0.1:8080")
	v.SetDefault("tls_listen", "")
	v.SetDefault("tls.cert_file", "")
	v.SetDefault("tls.key_file", "")
	v.SetDefault("hist.dir", "var/hist")
	v.SetDefault("hist.series", "latency_server")
	v.SetDefault("hist.interval", histlog.DefaultFlushInterval)
	v.SetDefault("keep_alive", true)
	v.SetDefault("metrics", true)
	v.SetDefault("profiling", false)
	setLogDefaults(v)
}

func setLogDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads the optional file and the environment into v, unmarshals the
// result into out and validates it. Defaults and flags must already be
// registered with v.
func Load(v *viper.Viper, file string, out interface{}) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "could not read config file %s", file)
		}
	}

	if err := v.Unmarshal(out); err != nil {
		return errors.Wrap(err, "could not decode configuration")
	}

	return Validate(out)
}
