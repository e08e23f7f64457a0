// Command actorcored is the actorcored process entrypoint: load
// configuration, wire a runtime.Node, register the reference service
// modules, bootstrap configured services, and run until signaled.
// Grounded on the teacher's cmd/enterprise/main.go (load config, build
// the façade, start, block on OS signals, shut down with a timeout)
// narrowed to this runtime's own fixed Node lifecycle instead of a
// generic dependency-injected app.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/actorcore/actorcored/internal/runtime"
	"github.com/actorcore/actorcored/modules/echo"
	"github.com/actorcore/actorcored/modules/gate"
	"github.com/actorcore/actorcored/modules/udpecho"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	flag.Parse()

	cfg, err := runtime.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("actorcored: load config: %v", err)
	}

	node, err := runtime.NewNode(*cfg)
	if err != nil {
		log.Fatalf("actorcored: construct node: %v", err)
	}

	node.RegisterModule("echo", echo.New(node.Reactor()))
	node.RegisterModule("gate", gate.New(node.Reactor()))
	node.RegisterModule("udpecho", udpecho.New(node.Reactor()))

	if err := node.Start(); err != nil {
		log.Fatalf("actorcored: start: %v", err)
	}
	log.Printf("actorcored: node %d running, %d workers", cfg.NodeID, cfg.Workers)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Print("actorcored: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		node.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Print("actorcored: shutdown timed out")
	}
}
