// Package discovery reads and writes the daemon's discovery file, the
// INI the CLI uses to locate a running simulator.
package discovery

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// DefaultFileName under the scene directory.
const DefaultFileName = "netsim.ini"

// Info is what a running daemon advertises.
type Info struct {
	GRPCPort int
	WebPort  int
}

// Write publishes the daemon's ports, replacing any previous file.
func Write(path string, info Info) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("discovery dir: %w", err)
	}
	v := viper.New()
	v.SetConfigType("ini")
	v.Set("grpc.port", info.GRPCPort)
	v.Set("web.port", info.WebPort)
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write discovery file: %w", err)
	}
	return nil
}

// Read loads a discovery file. A missing grpc.port is an error: the file
// exists only to locate the simulator.
func Read(path string) (Info, error) {
	v := viper.New()
	v.SetConfigType("ini")
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Info{}, fmt.Errorf("read discovery file: %w", err)
	}
	info := Info{
		GRPCPort: v.GetInt("grpc.port"),
		WebPort:  v.GetInt("web.port"),
	}
	if info.GRPCPort == 0 {
		return Info{}, fmt.Errorf("discovery file %s has no grpc.port", path)
	}
	return info, nil
}

// Remove deletes the discovery file on shutdown. Missing files are fine.
func Remove(path string) {
	os.Remove(path)
}
