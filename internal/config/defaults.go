package config

import "time"

// Defaults. The service record matches the one the Android app registers, so
// the two interoperate.
const (
	DefaultTransport      = TransportBlueZ
	DefaultAdapter        = "hci0"
	DefaultServiceName    = "BluetoothChat"
	DefaultServiceUUID    = "79433a70-ec23-4c09-8c39-70b6584c9e34"
	DefaultChannel        = 22
	DefaultReadBufferSize = 1024
	DefaultConnectTimeout = 30 * time.Second
	DefaultScanTimeout    = 10 * time.Second
	DefaultVerbose        = 1
)

// Default returns a Config populated with the defaults above.
func Default() *Config {
	return &Config{
		Transport: DefaultTransport,
		Adapter:   DefaultAdapter,
		Service: ServiceConfig{
			Name:    DefaultServiceName,
			UUID:    DefaultServiceUUID,
			Channel: DefaultChannel,
		},
		ReadBufferSize: DefaultReadBufferSize,
		ConnectTimeout: DefaultConnectTimeout,
		ScanTimeout:    DefaultScanTimeout,
		Verbose:        DefaultVerbose,
	}
}
