// Command cyclewatch infers appliance run cycles from power-sensor readings
// arriving over MQTT, tracks energy, cost, and maintenance counters, and
// publishes the derived state back to the broker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/cyclewatch/internal/appliance"
	"codeberg.org/mutker/cyclewatch/internal/config"
	"codeberg.org/mutker/cyclewatch/internal/errors"
	"codeberg.org/mutker/cyclewatch/internal/logger"
	"codeberg.org/mutker/cyclewatch/internal/mqtt"
	"codeberg.org/mutker/cyclewatch/internal/pid"
	"codeberg.org/mutker/cyclewatch/internal/store"
)

var cfg *config.Config

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	logger.SetLogLevel(cfg.LoggerLevel())
	logger.Debug().Msg("Config loaded")
}

func main() {
	errFactory := errors.New()

	if err := pid.Write(); err != nil {
		logger.FatalWithCode(errFactory.Wrap(errors.ErrInitApp, err)).Msg("Failed to write PID file")
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			logger.Error().Err(err).Msg("Failed to remove PID file")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := run(ctx); err != nil {
		logger.ErrorWithCode(errFactory.Wrap(errors.ErrMainLoop, err)).Send()
		os.Exit(1)
	}
	logger.Info().Msg("Exiting...")
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func run(ctx context.Context) error {
	repo, err := store.NewRepository(store.Config{DBPath: cfg.Database})
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close state repository")
		}
	}()

	client, err := mqtt.NewClient(mqtt.Config{
		Broker:          cfg.MQTT.Broker,
		ClientID:        cfg.MQTT.ClientID,
		Username:        cfg.MQTT.Username,
		Password:        cfg.MQTT.Password,
		BaseTopic:       cfg.MQTT.BaseTopic,
		DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	if len(cfg.Appliances) == 0 {
		logger.Warn().Msg("No appliances configured")
	}

	monitors := make([]*appliance.Monitor, 0, len(cfg.Appliances))
	defer func() {
		for _, mon := range monitors {
			mon.Close()
		}
	}()

	for name, section := range cfg.Appliances {
		mon, err := buildMonitor(name, section, repo, client)
		if err != nil {
			return err
		}
		monitors = append(monitors, mon)
	}

	if err := client.Connect(); err != nil {
		return err
	}

	for name, section := range cfg.Appliances {
		mon := monitorByName(monitors, name)
		engineCfg, err := section.Resolve()
		if err != nil {
			return err
		}
		if err := subscribeAppliance(client, section, engineCfg, mon); err != nil {
			return err
		}

		costTracked := section.RateTopic != "" || section.CostPerKWH != nil
		client.PublishDiscovery(name, costTracked, engineCfg.ServiceEnabled)
	}

	go watchReload(ctx, monitors)

	return loop(ctx, monitors)
}

// watchReload re-reads the configuration on SIGHUP and applies the new
// detection settings to running monitors. Topology changes (adding or
// removing appliances, changing topics) still require a restart.
func watchReload(ctx context.Context, monitors []*appliance.Monitor) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			reload(monitors)
		}
	}
}

func reload(monitors []*appliance.Monitor) {
	newCfg, err := config.Load()
	if err != nil {
		logger.Warn().Err(err).Msg("Ignoring invalid configuration on reload")
		return
	}

	for name, section := range newCfg.Appliances {
		mon := monitorByName(monitors, name)
		if mon == nil {
			logger.Warn().Str("appliance", name).Msg("New appliance requires a restart")
			continue
		}

		engineCfg, err := section.Resolve()
		if err != nil {
			logger.Warn().Str("appliance", name).Err(err).Msg("Keeping previous settings")
			continue
		}
		if err := mon.Reconfigure(engineCfg); err != nil {
			logger.Warn().Str("appliance", name).Err(err).Msg("Keeping previous settings")
		}
	}

	logger.Info().Msg("Configuration reloaded")
}

func buildMonitor(name string, section config.Appliance, repo *store.Repository, client *mqtt.Client) (*appliance.Monitor, error) {
	engineCfg, err := section.Resolve()
	if err != nil {
		return nil, err
	}

	mon, err := appliance.NewMonitor(name, engineCfg,
		appliance.WithStore(repo),
		appliance.WithNotify(client.PublishState),
	)
	if err != nil {
		return nil, err
	}

	events := mon.Subscribe(16)
	go func() {
		for ev := range events {
			client.PublishTransition(ev)
		}
	}()

	if err := mon.Start(); err != nil {
		return nil, err
	}

	return mon, nil
}

func subscribeAppliance(client *mqtt.Client, section config.Appliance, engineCfg appliance.Config, mon *appliance.Monitor) error {
	if err := client.SubscribePower(section.PowerTopic, func(ts time.Time, watts float64) {
		// Malformed readings are already logged by the monitor; nothing
		// useful to do with the error here.
		_ = mon.HandleReading(ts, watts)
	}); err != nil {
		return err
	}

	if section.RateTopic != "" {
		if err := client.SubscribeRate(section.RateTopic, func(ts time.Time, rate float64) {
			_ = mon.HandleRate(ts, rate)
		}); err != nil {
			return err
		}
	}

	if engineCfg.ServiceEnabled {
		if err := client.SubscribeService(mon.Name(), func() {
			_ = mon.ServicePerformed()
		}); err != nil {
			return err
		}
	}

	return nil
}

func monitorByName(monitors []*appliance.Monitor, name string) *appliance.Monitor {
	for _, mon := range monitors {
		if mon.Name() == name {
			return mon
		}
	}

	return nil
}

// loop keeps the daemon alive and persists accounting state periodically so
// a crash loses at most one interval of accrual.
func loop(ctx context.Context, monitors []*appliance.Monitor) error {
	if cfg.PersistInterval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(time.Duration(cfg.PersistInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, mon := range monitors {
				if err := mon.Persist(); err != nil {
					logger.Warn().Str("appliance", mon.Name()).Err(err).Msg("Periodic persist failed")
				}
			}
		}
	}
}
