package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/giongto35/rtc-canary/pkg/certpool"
	"github.com/giongto35/rtc-canary/pkg/config"
	"github.com/giongto35/rtc-canary/pkg/logger"
	"github.com/giongto35/rtc-canary/pkg/monitoring"
	"github.com/giongto35/rtc-canary/pkg/router"
	"github.com/giongto35/rtc-canary/pkg/service"
	"github.com/giongto35/rtc-canary/pkg/signaling"
	"github.com/giongto35/rtc-canary/pkg/stream"
	"github.com/giongto35/rtc-canary/pkg/webrtc"
	"github.com/gofrs/uuid"
	pion "github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus"
	flag "github.com/spf13/pflag"
)

var Version = "?"

const shutdownTimeout = 5 * time.Second

// loadConfig reads the flags twice, the first pass finds the config
// directory and the second one puts the overrides over the file values.
func loadConfig() (config.Config, error) {
	conf := config.NewConfig()
	path := flag.StringP("conf", "c", "", "Directory with the config.yaml file")
	conf.WithFlags(flag.CommandLine)
	flag.Parse()
	if err := config.LoadConfig(&conf, *path); err != nil {
		return conf, err
	}
	flag.Parse()
	if conf.Signaling.ClientId == "" {
		conf.Signaling.ClientId = uuid.Must(uuid.NewV4()).String()
	}
	return conf, nil
}

// relayServers returns the relays of the signaling channel.
// The websocket transport knows only the configured ones,
// so without them there is nothing to wait for.
func relayServers(conf *config.Config) []pion.ICEServer {
	relays := webrtc.ToIceServers(conf.Signaling.Relays)
	if len(relays) == 0 {
		conf.Webrtc.IceConfigWait = 0
	}
	return relays
}

func run() error {
	conf, err := loadConfig()
	log := logger.NewConsole(conf.Debug, "canary", false)
	if err != nil {
		log.Error().Err(err).Msg("Config load")
		return err
	}
	log.Info().Msgf("version: %v", Version)
	log.Info().Msgf("role: %v, client: %v", conf.Router.Role, conf.Signaling.ClientId)
	log.Debug().Msgf("conf: %+v", conf)

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(reg)

	api, err := webrtc.NewApiFactory(conf.Webrtc, log, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebRTC API")
		return err
	}
	defer func() {
		if err := api.Close(); err != nil {
			log.Warn().Err(err).Msg("WebRTC API close")
		}
	}()

	certs := certpool.New(conf.Router.CertPoolSize, nil, log)
	dial := signaling.NewWebsocketDialer(conf.Signaling, relayServers(&conf), log)
	r, err := router.New(conf, dial, api, log, router.WithMetrics(metrics), router.WithCertPool(certs))
	if err != nil {
		log.Error().Err(err).Msg("Router")
		return err
	}

	st, err := stream.New(conf.Stream, r, metrics, log)
	if err != nil {
		log.Error().Err(err).Msg("Stream")
		return err
	}
	var src stream.Source
	if conf.Stream.Source != "" {
		if src, err = stream.NewFileSource(conf.Stream.Source, conf.Stream.Fps, conf.Stream.VideoCodec, log); err != nil {
			log.Error().Err(err).Msg("File source")
			return err
		}
	} else {
		src = stream.NewSyntheticSource(conf.Stream.Fps, log)
	}

	var services service.Group
	if conf.Monitoring.IsEnabled() {
		services.Add(monitoring.New(conf.Monitoring, reg, log))
	}
	services.Add(
		service.NewFunc("router", func(ctx context.Context) {
			if err := r.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("Router start")
			}
			r.Run(ctx)
		}),
		service.NewFunc("source", func(ctx context.Context) {
			if err := src.Run(ctx, st); err != nil {
				log.Error().Err(err).Msg("Frame source")
			}
		}),
	)
	if err = services.Start(); err != nil {
		log.Error().Err(err).Msg("Start")
		_ = services.Shutdown(context.Background())
		return err
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	sig := <-signals
	log.Info().Msgf("Shutting down [os:%v]", sig)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err = services.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Shutdown")
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}
