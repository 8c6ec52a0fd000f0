package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mblsha/miniware-mdp-m01/internal/device"
	"github.com/mblsha/miniware-mdp-m01/internal/server"
	"github.com/mblsha/miniware-mdp-m01/web"
)

func main() {
	configPath := flag.String("config", "/etc/mdpdash/config.yaml", "Path to config file")
	demo := flag.Bool("demo", false, "Run with a simulated instrument")
	listenAddr := flag.String("listen", "", "Override listen address (e.g. :8080)")
	port := flag.String("port", "", "Override serial port path")
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("[main] mdpdash starting")

	cfg := server.LoadConfig(*configPath)

	if *demo {
		cfg.Device.Type = "demo"
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}
	if *port != "" {
		cfg.Device.Type = "serial"
		cfg.Device.PortPath = *port
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[main] received %v, shutting down", sig)
		cancel()
	}()

	var prov device.Provider
	switch cfg.Device.Type {
	case "serial":
		prov = device.NewSerial(device.SerialConfig{
			PortPath: cfg.Device.PortPath,
			BaudRate: cfg.Device.BaudRate,
		})
	default:
		prov = device.NewDemo()
	}

	// Connect with exponential backoff; the dashboard starts regardless and
	// fills in once the instrument appears.
	go connectWithRetry(ctx, prov, 10)
	defer prov.Close()

	session := device.NewSession(prov, device.SessionConfig{
		HeartbeatInterval: time.Duration(cfg.Device.HeartbeatMs) * time.Millisecond,
		SwitchSuppress:    cfg.Device.SwitchSuppress,
		WaveMaxTime:       cfg.Wave.MaxTime,
	})

	srv := server.New(cfg, session, web.FS)

	go func() {
		if err := session.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("[main] session exited: %v", err)
		}
	}()

	if err := srv.Run(ctx); err != nil {
		log.Printf("[main] server exited: %v", err)
	}
}

// connectWithRetry attempts to connect with exponential backoff.
// Starts at 1s, doubles each attempt up to 60s, retries up to maxAttempts
// then continues at max interval indefinitely.
func connectWithRetry(ctx context.Context, prov device.Provider, maxAttempts int) {
	delay := 1 * time.Second
	maxDelay := 60 * time.Second
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := prov.Connect(); err != nil {
			attempt++
			if attempt <= maxAttempts {
				log.Printf("[device] connect attempt %d/%d failed: %v (retry in %v)",
					attempt, maxAttempts, err, delay)
			} else {
				log.Printf("[device] connect attempt %d failed: %v (retry in %v)",
					attempt, err, delay)
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
		} else {
			log.Printf("[device] connected to %s (attempt %d)", prov.Name(), attempt+1)
			return
		}
	}
}
