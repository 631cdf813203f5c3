// Serves the dataset scaling API over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sensorable/kittiscale/server"
)

var (
	configFilePath string // The YAML configuration file.
	listenAddr     string // The address to listen on.
	debug          bool   // Log request details.
)

func init() {
	flag.StringVar(&configFilePath, "config", "kittiscale.yaml",
		"The configuration file `path`")
	flag.StringVar(&listenAddr, "addr", ":8080", "The `address` to listen on")
	flag.BoolVar(&debug, "debug", debug, "Log request details")
	flag.Parse()
}

func main() {
	log.Print("Initializing the REST API")

	store, err := server.NewStore(configFilePath)
	if err != nil {
		log.Fatal("Failed to load the configuration: ", err)
	}

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           server.New(store, debug).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Print("Shutdown failed: ", err)
		}
	}()

	log.Printf("Listening on %s", listenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	log.Print("Server stopped")
}
