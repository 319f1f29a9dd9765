// netsimd is the wireless network simulator daemon: it multiplexes
// virtual radio traffic between emulated devices.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lcalzada-xor/netsim/internal/app"
	"github.com/lcalzada-xor/netsim/internal/config"
	"github.com/lcalzada-xor/netsim/internal/telemetry"
)

func main() {
	cfg := config.Load()

	root := &cobra.Command{
		Use:     "netsimd",
		Short:   "Wireless network simulator daemon",
		Version: telemetry.Version,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg.DiscoveryPath = filepath.Join(cfg.SceneDir, "netsim.ini")

			application, err := app.New(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return application.Run(ctx)
		},
	}

	flags := root.Flags()
	flags.IntVar(&cfg.GRPCPort, "grpc-port", cfg.GRPCPort, "Packet streamer port (0 picks one)")
	flags.StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "Control surface HTTP address")
	flags.StringVar(&cfg.SceneDir, "scene-dir", cfg.SceneDir, "Directory for captures and the discovery file")
	flags.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the SQLite event store (empty to disable)")
	flags.StringVar(&cfg.MQTTBroker, "mqtt", cfg.MQTTBroker, "MQTT broker URL for scene updates (empty to disable)")
	flags.StringVar(&cfg.MQTTTopic, "mqtt-topic", cfg.MQTTTopic, "MQTT topic for scene updates")
	flags.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Set the config's Debug field (log output does not change with it)")

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}
