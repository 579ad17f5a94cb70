package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/samsamfire/xrce-agent/config"
	"github.com/samsamfire/xrce-agent/metrics"
	"github.com/samsamfire/xrce-agent/middleware"
	"github.com/samsamfire/xrce-agent/processor"
	"github.com/samsamfire/xrce-agent/registry"
	"github.com/samsamfire/xrce-agent/transportio"
)

func main() {
	configPath := flag.String("config", "", "agent INI configuration file path (defaults built in if empty)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	metricsBind := flag.String("metrics-bind", "", "address to serve /metrics on, e.g. :9100 (disabled if empty)")
	udpBind := flag.String("udp-bind", "", "override the UDP listener address from config")
	tcpBind := flag.String("tcp-bind", "", "override the TCP listener address from config")
	flag.Parse()

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		fmt.Printf("invalid log level %q: %v\n", *logLevel, err)
		os.Exit(1)
	}
	log.SetLevel(level)

	cfg := config.Default()
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Printf("failed to load config %q: %v\n", *configPath, err)
			os.Exit(1)
		}
	}
	if *udpBind != "" {
		cfg.UDP.Bind = *udpBind
	}
	if *tcpBind != "" {
		cfg.TCP.Bind = *tcpBind
	}

	facade := middleware.NewInMemory()
	if cfg.MiddlewareConfigPath != "" {
		if err := facade.LoadConfigFile(cfg.MiddlewareConfigPath); err != nil {
			fmt.Printf("failed to load middleware config %q: %v\n", cfg.MiddlewareConfigPath, err)
			os.Exit(1)
		}
	}

	reg := registry.New(func(clientKey uint32) middleware.Facade { return facade })

	sender := newBroker()
	proc := processor.New(reg, sender, 200*time.Millisecond)
	proc.SetWindows(uint16(cfg.ReliableWindow), uint16(cfg.BestEffortWindow))
	proc.SetClientExpiry(cfg.ClientExpiry)

	m := metrics.New()
	promReg := prometheus.NewRegistry()
	m.MustRegister(promReg)
	proc.SetMetrics(m)

	ctx, cancel := context.WithCancel(context.Background())

	adapters, err := startAdapters(ctx, cfg, sender, proc, m)
	if err != nil {
		fmt.Printf("failed to start transports: %v\n", err)
		os.Exit(1)
	}
	if len(adapters) == 0 {
		fmt.Println("no transport enabled, nothing to serve")
		os.Exit(1)
	}

	if *metricsBind != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: *metricsBind, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("metrics server stopped")
			}
		}()
		log.WithField("addr", *metricsBind).Info("serving metrics")
	}

	// Processor.Run fires Sweep once every heartbeat period (T_hb).
	sweepPeriod := cfg.HeartbeatPeriod
	if sweepPeriod <= 0 {
		sweepPeriod = config.Default().HeartbeatPeriod
	}
	go proc.Run(ctx, sweepPeriod)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	log.Info("shutting down")
	cancel()
	for _, key := range reg.Keys() {
		reg.DeleteClient(key)
	}
	time.Sleep(100 * time.Millisecond)
}

// broker multiplexes Send calls across every running transport adapter by
// matching the destination endpoint's Network field. Incoming packets do
// not pass through it: runAdapter hands them straight to Processor.Process.
type broker struct {
	proc     *processor.Processor
	adapters map[string]transportio.Adapter
}

func newBroker() *broker {
	return &broker{adapters: make(map[string]transportio.Adapter)}
}

func (b *broker) attach(network string, a transportio.Adapter) {
	b.adapters[network] = a
}

func (b *broker) Send(dest processor.Endpoint, data []byte) error {
	a, ok := b.adapters[dest.Network]
	if !ok {
		return transportio.ErrNotConnected
	}
	return a.Send(dest, data)
}

func startAdapters(ctx context.Context, cfg config.Config, b *broker, proc *processor.Processor, m *metrics.Metrics) ([]transportio.Adapter, error) {
	var started []transportio.Adapter

	if cfg.UDP.Enabled {
		newAdapter, ok := transportio.AvailableAdapters["udp"]
		if !ok {
			return nil, fmt.Errorf("no udp transport registered")
		}
		a, err := newAdapter(map[string]string{
			"bind": cfg.UDP.Bind,
			"mtu":  fmt.Sprintf("%d", cfg.UDP.MTU),
		})
		if err != nil {
			return nil, fmt.Errorf("udp: %w", err)
		}
		b.attach("udp", a)
		started = append(started, a)
		go runAdapter(ctx, "udp", a, proc)
	}

	if cfg.TCP.Enabled {
		newAdapter, ok := transportio.AvailableAdapters["tcp"]
		if !ok {
			return nil, fmt.Errorf("no tcp transport registered")
		}
		a, err := newAdapter(map[string]string{"bind": cfg.TCP.Bind})
		if err != nil {
			return nil, fmt.Errorf("tcp: %w", err)
		}
		b.attach("tcp", a)
		started = append(started, a)
		go runAdapter(ctx, "tcp", a, proc)
	}

	if cfg.Serial.Enabled {
		a, err := startSerial(cfg.Serial)
		if err != nil {
			return nil, fmt.Errorf("serial: %w", err)
		}
		a.SetMetrics(m)
		b.attach("serial", a)
		started = append(started, a)
		go runAdapter(ctx, "serial", a, proc)
	}

	return started, nil
}

func runAdapter(ctx context.Context, name string, a transportio.Adapter, proc *processor.Processor) {
	if err := a.Run(ctx, proc.Process); err != nil && ctx.Err() == nil {
		log.WithError(err).WithField("transport", name).Error("transport stopped")
	}
}

// startSerial opens the configured device node directly, the same way the
// bus layer below talks to hardware without going through a third-party
// driver: a device file under /dev is just a file descriptor to read and
// write.
func startSerial(cfg config.SerialConfig) (*transportio.SerialAdapter, error) {
	f, err := os.OpenFile(cfg.Device, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	maxFrameLen := cfg.MaxFrameLen
	if maxFrameLen <= 0 {
		maxFrameLen = 65535
	}
	a := transportio.NewSerialAdapter(f, cfg.LocalAddr, cfg.PeerAddr, maxFrameLen, cfg.Device)
	return a, nil
}
