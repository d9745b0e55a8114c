// cmd/server/config.go
package main

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	listen    string
	port      int
	verbosity int
}

func (c *Config) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if net.ParseIP(c.listen) == nil {
		return fmt.Errorf("invalid listen address: %q", c.listen)
	}
	return nil
}

func (c *Config) addr() string {
	return net.JoinHostPort(c.listen, strconv.Itoa(c.port))
}

// logLevel maps -v counts onto logrus levels: errors only by default,
// trace at -vvvv and beyond.
func (c *Config) logLevel() logrus.Level {
	switch c.verbosity {
	case 0:
		return logrus.ErrorLevel
	case 1:
		return logrus.WarnLevel
	case 2:
		return logrus.InfoLevel
	case 3:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}

func newCmd(cfg *Config, run func(cmd *cobra.Command, cfg *Config) error) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("YGAME")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "ygame-server",
		Short:         "Realtime coordination server for two-seat board games.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return run(cmd, cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.listen, "listen", "l", "127.0.0.1", "address to listen on (env: YGAME_LISTEN)")
	fs.IntVarP(&cfg.port, "port", "p", 8000, "port to listen on (env: YGAME_PORT)")
	fs.CountVarP(&cfg.verbosity, "verbose", "v", "increase log verbosity, repeatable (env: YGAME_VERBOSE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})

	return cmd
}
