// Package app is the composition root: it wires the scene, facades,
// hub, capture, storage and servers together and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net"

	"google.golang.org/grpc"

	"github.com/lcalzada-xor/netsim/internal/adapters/bt"
	"github.com/lcalzada-xor/netsim/internal/adapters/capture"
	"github.com/lcalzada-xor/netsim/internal/adapters/mqtt"
	"github.com/lcalzada-xor/netsim/internal/adapters/storage"
	"github.com/lcalzada-xor/netsim/internal/adapters/stream"
	"github.com/lcalzada-xor/netsim/internal/adapters/uwb"
	"github.com/lcalzada-xor/netsim/internal/adapters/web"
	"github.com/lcalzada-xor/netsim/internal/adapters/wifi"
	"github.com/lcalzada-xor/netsim/internal/config"
	"github.com/lcalzada-xor/netsim/internal/core/domain"
	"github.com/lcalzada-xor/netsim/internal/core/ports"
	"github.com/lcalzada-xor/netsim/internal/core/services/hub"
	"github.com/lcalzada-xor/netsim/internal/core/services/notify"
	"github.com/lcalzada-xor/netsim/internal/core/services/scene"
	"github.com/lcalzada-xor/netsim/internal/discovery"
	"github.com/lcalzada-xor/netsim/internal/telemetry"
)

// Application holds the daemon's components.
type Application struct {
	Config *config.Config
	Scene  *scene.Controller
	Hub    *hub.Hub
	Bus    *notify.Bus

	BTFacade   *bt.Facade
	WifiFacade *wifi.Facade
	UWBFacade  *uwb.Facade

	Captures  *capture.Manager
	Store     *storage.SQLiteStore
	Publisher *mqtt.Publisher
	WebServer *web.Server
	Backend   *stream.Backend

	wifiService    *wifi.MediumService
	grpcServer     *grpc.Server
	tracerShutdown func(context.Context) error
}

// New bootstraps every component. Nothing listens yet; Run does that.
func New(cfg *config.Config) (*Application, error) {
	app := &Application{Config: cfg}
	if err := app.bootstrap(); err != nil {
		return nil, fmt.Errorf("application bootstrap failed: %w", err)
	}
	return app, nil
}

func (app *Application) bootstrap() error {
	telemetry.InitMetrics()

	shutdown, err := telemetry.InitTracer()
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	app.tracerShutdown = shutdown

	if app.Config.DBPath != "" {
		store, err := storage.NewSQLiteStore(app.Config.DBPath)
		if err != nil {
			return fmt.Errorf("open event store: %w", err)
		}
		app.Store = store
	}

	ids := scene.NewIDAllocator()
	app.Scene = scene.NewController(ids)
	app.Bus = notify.NewBus()
	app.Scene.SetNotifier(app.Bus)

	app.Captures = capture.NewManager(app.Config.SceneDir, eventStoreOrNil(app.Store))
	app.Scene.SetCaptureController(app.Captures)
	if app.Store != nil {
		app.Scene.SetEventStore(app.Store)
	}

	app.Hub = hub.NewHub()
	app.Hub.AddTap(app.Captures)

	app.BTFacade = bt.NewFacade(app.Scene)
	app.BTFacade.SetResponseSink(app.Hub)

	app.wifiService = wifi.NewMediumService()
	app.WifiFacade = wifi.NewFacade(app.wifiService)
	app.WifiFacade.SetResponseSink(app.Hub)

	app.UWBFacade = uwb.NewFacade()

	for kind, facade := range map[domain.ChipKind]ports.Facade{
		domain.ChipKindBluetooth: app.BTFacade,
		domain.ChipKindWifi:      app.WifiFacade,
		domain.ChipKindUWB:       app.UWBFacade,
	} {
		app.Scene.RegisterFacade(kind, facade)
		app.Hub.RegisterFacade(kind, facade)
	}

	if app.Config.MQTTBroker != "" {
		pub, err := mqtt.NewPublisher(app.Config.MQTTBroker, app.Config.MQTTTopic)
		if err != nil {
			// The broker is an observer; a dead one must not stop the
			// simulator.
			log.Printf("app: mqtt publisher disabled: %v", err)
		} else {
			app.Publisher = pub
			app.Bus.Register(func() {
				go pub.PublishDevices(app.Scene.List())
			})
		}
	}

	app.Backend = stream.NewBackend(app.Scene, app.Hub)
	app.WebServer = web.NewServer(app.Config.HTTPAddr, app.Scene, app.Bus)
	return nil
}

// Run serves the backend and the control surface until ctx is cancelled.
func (app *Application) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", app.Config.GRPCPort))
	if err != nil {
		return fmt.Errorf("backend listen: %w", err)
	}
	app.grpcServer, err = stream.Serve(lis, app.Backend)
	if err != nil {
		return err
	}

	grpcPort := lis.Addr().(*net.TCPAddr).Port
	webPort := portOfAddr(app.Config.HTTPAddr)
	if err := discovery.Write(app.Config.DiscoveryPath, discovery.Info{GRPCPort: grpcPort, WebPort: webPort}); err != nil {
		log.Printf("app: discovery file: %v", err)
	}
	slog.Info("netsimd up", "grpc_port", grpcPort, "web_addr", app.Config.HTTPAddr, "scene_dir", app.Config.SceneDir)

	webErr := make(chan error, 1)
	go func() { webErr <- app.WebServer.Run(ctx) }()

	select {
	case <-ctx.Done():
	case err := <-webErr:
		if err != nil {
			log.Printf("app: web server failed: %v", err)
		}
	}
	app.shutdown()
	return nil
}

func (app *Application) shutdown() {
	slog.Info("netsimd shutting down")
	discovery.Remove(app.Config.DiscoveryPath)
	if app.grpcServer != nil {
		app.grpcServer.GracefulStop()
	}
	app.Captures.StopAll()
	app.BTFacade.Stop()
	app.wifiService.Close()
	if app.Publisher != nil {
		app.Publisher.Close()
	}
	if app.Store != nil {
		app.Store.Close()
	}
	if app.tracerShutdown != nil {
		if err := app.tracerShutdown(context.Background()); err != nil {
			log.Printf("app: tracer shutdown: %v", err)
		}
	}
}

// eventStoreOrNil avoids handing a typed-nil pointer to an interface
// field.
func eventStoreOrNil(store *storage.SQLiteStore) ports.EventStore {
	if store == nil {
		return nil
	}
	return store
}

func portOfAddr(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	var port int
	fmt.Sscanf(portStr, "%d", &port)
	return port
}
