// Package config loads the exchange protocol's configurable timeouts
// from a layered key/value source under the "Halibut:" prefix, using
// viper rather than hand-parsed flags.
package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Keys under the Halibut: prefix.
const (
	PollingRequestQueueTimeout                   = "PollingRequestQueueTimeout"
	PollingRequestMaximumMessageProcessingTimeout = "PollingRequestMaximumMessageProcessingTimeout"
	RetryListeningSleepInterval                  = "RetryListeningSleepInterval"
	ConnectionErrorRetryTimeout                   = "ConnectionErrorRetryTimeout"
	TCPClientSendTimeout                          = "TcpClientSendTimeout"
	TCPClientReceiveTimeout                       = "TcpClientReceiveTimeout"
	TCPClientPooledConnectionTimeout               = "TcpClientPooledConnectionTimeout"
	TCPClientHeartbeatSendTimeout                  = "TcpClientHeartbeatSendTimeout"
	TCPClientHeartbeatReceiveTimeout                = "TcpClientHeartbeatReceiveTimeout"
	TCPClientConnectTimeout                       = "TcpClientConnectTimeout"
	PollingQueueWaitTimeout                       = "PollingQueueWaitTimeout"
)

// Prefix is prepended to every key in the backing key/value source, e.g.
// the environment variable HALIBUT_POLLINGQUEUEWAITTIMEOUT or a config
// file section named "Halibut".
const Prefix = "Halibut"

var defaults = map[string]time.Duration{
	PollingRequestQueueTimeout:                     2 * time.Minute,
	PollingRequestMaximumMessageProcessingTimeout:  10 * time.Minute,
	RetryListeningSleepInterval:                    1 * time.Second,
	ConnectionErrorRetryTimeout:                     5 * time.Minute,
	TCPClientSendTimeout:                           10 * time.Minute,
	TCPClientReceiveTimeout:                        10 * time.Minute,
	TCPClientPooledConnectionTimeout:                9 * time.Minute,
	TCPClientHeartbeatSendTimeout:                   60 * time.Second,
	TCPClientHeartbeatReceiveTimeout:                60 * time.Second,
	TCPClientConnectTimeout:                        60 * time.Second,
	PollingQueueWaitTimeout:                         30 * time.Second,
}

// Timeouts is the typed accessor for the eleven configurable durations.
// It is read-only after Load: the core itself sets no timers and never
// mutates these values.
type Timeouts struct {
	v *viper.Viper
}

// Load builds a Timeouts reader from (lowest to highest priority) the
// compiled-in defaults, an optional config file at path (ignored if
// empty or missing), and environment variables prefixed HALIBUT_.
// Unknown keys under the prefix are ignored, not errors, so future
// timeout knobs don't break old deployments.
func Load(path string) (*Timeouts, error) {
	v := viper.New()
	v.SetEnvPrefix(strings.ToUpper(Prefix))
	v.AutomaticEnv()

	for key, d := range defaults {
		v.SetDefault(key, d)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, err
			}
		}
		// Keys under the file's "Halibut" section take the place of the
		// compiled-in defaults; environment variables still win over them.
		if section := v.Sub(Prefix); section != nil {
			for key := range defaults {
				if section.IsSet(key) {
					v.SetDefault(key, section.Get(key))
				}
			}
		}
	}

	return &Timeouts{v: v}, nil
}

func (t *Timeouts) duration(key string) time.Duration {
	if d := t.v.GetDuration(key); d != 0 {
		return d
	}
	return defaults[key]
}

func (t *Timeouts) PollingRequestQueueTimeout() time.Duration { return t.duration(PollingRequestQueueTimeout) }
func (t *Timeouts) PollingRequestMaximumMessageProcessingTimeout() time.Duration {
	return t.duration(PollingRequestMaximumMessageProcessingTimeout)
}
func (t *Timeouts) RetryListeningSleepInterval() time.Duration {
	return t.duration(RetryListeningSleepInterval)
}
func (t *Timeouts) ConnectionErrorRetryTimeout() time.Duration {
	return t.duration(ConnectionErrorRetryTimeout)
}
func (t *Timeouts) TCPClientSendTimeout() time.Duration      { return t.duration(TCPClientSendTimeout) }
func (t *Timeouts) TCPClientReceiveTimeout() time.Duration  { return t.duration(TCPClientReceiveTimeout) }
func (t *Timeouts) TCPClientPooledConnectionTimeout() time.Duration {
	return t.duration(TCPClientPooledConnectionTimeout)
}
func (t *Timeouts) TCPClientHeartbeatSendTimeout() time.Duration {
	return t.duration(TCPClientHeartbeatSendTimeout)
}
func (t *Timeouts) TCPClientHeartbeatReceiveTimeout() time.Duration {
	return t.duration(TCPClientHeartbeatReceiveTimeout)
}
func (t *Timeouts) TCPClientConnectTimeout() time.Duration { return t.duration(TCPClientConnectTimeout) }
func (t *Timeouts) PollingQueueWaitTimeout() time.Duration { return t.duration(PollingQueueWaitTimeout) }
