package config

// Default values.
const (
	DefaultListenAddress             = "127.0.0.1"
	DefaultTCPMaxConnections         = 100
	DefaultTCPIdleTimeoutSeconds     = 60
	DefaultUDPMaxRequestsPerSecond   = 100
	DefaultUDPRateLimitWindowSeconds = 1
	DefaultHealthCheckPort           = 8080

	DefaultEchoPort    = 2007
	DefaultDiscardPort = 2009
	DefaultDaytimePort = 2013
	DefaultChargenPort = 2019
)

func ptr[T any](v T) *T { return &v }

// DefaultProtocolConfiguration returns the shared defaults bound to port on
// both transports.
func DefaultProtocolConfiguration(port int) ProtocolConfiguration {
	return ProtocolConfiguration{
		Enabled:                   true,
		TCPEnabled:                true,
		UDPEnabled:                true,
		ListenAddress:             DefaultListenAddress,
		TCPPort:                   port,
		UDPPort:                   port,
		TCPMaxConnections:         ptr(DefaultTCPMaxConnections),
		TCPIdleTimeoutSeconds:     ptr(DefaultTCPIdleTimeoutSeconds),
		UDPMaxRequestsPerSecond:   ptr(DefaultUDPMaxRequestsPerSecond),
		UDPRateLimitWindowSeconds: DefaultUDPRateLimitWindowSeconds,
	}
}

// DefaultConfiguration returns the configuration used when no file is given.
// Echo and chargen start with UDP disabled.
func DefaultConfiguration() *Configuration {
	echo := DefaultProtocolConfiguration(DefaultEchoPort)
	echo.UDPEnabled = false
	chargen := DefaultProtocolConfiguration(DefaultChargenPort)
	chargen.UDPEnabled = false

	return &Configuration{
		Servers: ServersConfiguration{
			Echo:    EchoConfiguration{ProtocolConfiguration: echo},
			Discard: DiscardConfiguration{ProtocolConfiguration: DefaultProtocolConfiguration(DefaultDiscardPort)},
			Daytime: DaytimeConfiguration{ProtocolConfiguration: DefaultProtocolConfiguration(DefaultDaytimePort), Format: "o"},
			Chargen: ChargenConfiguration{ProtocolConfiguration: chargen},
		},
		HealthCheck: HealthCheckConfiguration{
			Enabled:       true,
			ListenAddress: DefaultListenAddress,
			Port:          DefaultHealthCheckPort,
		},
		Metrics: MetricsConfiguration{Backend: MetricsBackendBuiltin},
		Logging: LoggingConfiguration{Level: "info", Format: "text"},
	}
}
