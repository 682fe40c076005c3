// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"airnode/internal/climate"
	"airnode/internal/config"
	"airnode/internal/datalogger"
	"airnode/internal/history"
	"airnode/internal/metrics"
	"airnode/internal/node"
	"airnode/internal/ota"
	"airnode/internal/remote"
	"airnode/internal/sgp30"
	"airnode/internal/status"
	"airnode/pkg/appctx"
	"airnode/pkg/eventbus"
	"airnode/pkg/logger"
	"airnode/pkg/modbus"
	"airnode/pkg/netwait"
	"airnode/pkg/rootserv"
	"airnode/pkg/service"
	"airnode/pkg/sysmon"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// remoteChannel is what both transports provide.
type remoteChannel interface {
	node.Channel
	service.Runnable
}

func main() {

	rootdir := os.Getenv("PROJECT_ROOT")
	if rootdir == "" {
		rootdir = "."
	}

	logPath := filepath.Join(rootdir, "var/logs/airnode.log")
	os.MkdirAll(filepath.Dir(logPath), 0755)
	if err := logger.Init(logPath); err != nil {
		fmt.Fprintln(os.Stderr, "log file disabled:", err)
	}
	log := logger.New("Main")

	appConf := config.LoadFile(filepath.Join(rootdir, "var/config/airnode.json"))

	// use conf to pass eventbus to whoever needs it
	appConf.EventBus = eventbus.New()
	appConf.DataDir = filepath.Join(rootdir, "var/cache")
	appConf.RootDir = rootdir

	ctx, ctxCancel := appctx.New()

	if _, err := netwait.Wait(ctx, appConf.Credentials.SSID, time.Second); err != nil {
		log.Error("network: %v", err)
		os.Exit(1)
	}

	if _, err := host.Init(); err != nil {
		log.Error("periph host init: %v", err)
		os.Exit(1)
	}

	climateSensor, closeClimate, err := openClimate(ctx, appConf)
	if err != nil {
		log.Error("climate sensor: %v", err)
		os.Exit(1)
	}

	gasBus, err := i2creg.Open(appConf.Gas.I2CBus)
	if err != nil {
		log.Error("gas sensor bus: %v", err)
		os.Exit(1)
	}

	gasSensor, err := sgp30.New(gasBus, appConf.Gas.Address)
	if err != nil {
		log.Error("gas sensor: %v", err)
		os.Exit(1)
	}

	channel := openRemote(appConf)

	otaStaging := appConf.OTA.StagingDir
	if otaStaging == "" {
		otaStaging = filepath.Join(appConf.DataDir, "ota")
	}
	otaServer := ota.NewServer(appConf.OTA.ListenAddr, otaStaging)

	scheduler := node.NewScheduler(node.Options{
		DeviceID:      appConf.Node.DeviceID,
		ClimateEvery:  appConf.Node.ClimateInterval(),
		GasEvery:      appConf.Node.GasInterval(),
		PollEvery:     appConf.Node.PollInterval(),
		WarmupSamples: *appConf.Node.WarmupSamples,
		InboxSize:     appConf.Node.InboxSize,
	}, node.SystemClock{}, climateSensor, gasSensor, channel, otaServer, appConf.EventBus)

	// init services
	server := rootserv.New(appConf.HTTP.Addr, "airnode "+appConf.Node.DeviceID)
	sysMonitorService := sysmon.New(appConf.DataDir)
	metricsService := metrics.New(appConf.EventBus)
	historyService := history.New(appConf.EventBus, history.Options{
		DataDir:       appConf.DataDir,
		SnapshotEvery: time.Duration(appConf.History.SnapshotMinutes) * time.Minute,
		Retention:     time.Duration(appConf.History.RetentionHours) * time.Hour,
	})
	dataLoggerService := datalogger.New(historyService, sysMonitorService, datalogger.Options{
		Addr:     appConf.DataLogger.EmonCMSAddr,
		APIKey:   appConf.DataLogger.EmonCMSApiKey,
		Interval: time.Duration(appConf.DataLogger.IntervalSeconds) * time.Second,
		DeviceID: appConf.Node.DeviceID,
	})
	statusService := status.NewWebService(appConf.EventBus, scheduler)

	// attach web handler enabled services
	server.Attach("/logger", "Logger", logger.WebService())
	server.Attach("/monitor", "System Monitor", sysMonitorService)
	server.Attach("/history", "Sensor History", historyService)
	server.Attach("/node", "Node Status and Commands", statusService)
	server.Attach("/metrics", "Prometheus Metrics", metricsService.Handler())

	// start runnable services
	exitCh := service.Start(ctx, ctxCancel, []service.Runnable{
		channel,
		scheduler,
		metricsService,
		historyService,
		dataLoggerService,
		server,
		service.Func(func(ctx context.Context) {
			<-ctx.Done()
			otaServer.Close()
		}),
	})

	// waits for all services to stop
	code := <-exitCh
	closeClimate()
	gasBus.Close()
	logger.Close()
	os.Exit(code)
}

func openClimate(ctx context.Context, conf *config.Config) (node.ClimateSensor, func(), error) {
	switch conf.Climate.Driver {
	case "modbus":
		path := conf.Climate.ModbusConfig
		if !filepath.IsAbs(path) {
			path = filepath.Join(conf.RootDir, path)
		}
		modbusConf, err := modbus.LoadConfig(path)
		if err != nil {
			return nil, nil, err
		}
		client, err := modbus.NewClient(ctx, modbusConf)
		if err != nil {
			return nil, nil, err
		}
		return climate.NewModbus(client), client.Close, nil

	default:
		bus, err := i2creg.Open(conf.Climate.I2CBus)
		if err != nil {
			return nil, nil, err
		}
		dev, err := climate.NewBME280(bus, conf.Climate.BME280Address)
		if err != nil {
			bus.Close()
			return nil, nil, err
		}
		return dev, func() {
			dev.Close()
			bus.Close()
		}, nil
	}
}

func openRemote(conf *config.Config) remoteChannel {
	if conf.Remote.Transport == "websocket" {
		return remote.NewWebSocket(conf.Remote.WebSocketURL, conf.Node.DeviceID, conf.Credentials.AuthKey)
	}
	return remote.NewMQTT(remote.MQTTOptions{
		Broker:      conf.Remote.MQTTBroker,
		Port:        conf.Remote.MQTTPort,
		TopicPrefix: conf.Remote.TopicPrefix,
		DeviceID:    conf.Node.DeviceID,
		AuthKey:     conf.Credentials.AuthKey,
	})
}
