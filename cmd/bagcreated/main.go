package main

// The bagcreated server assembles packages on request. See package server
// for the routes.

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ndlib/bagcreate/harvest"
	"github.com/ndlib/bagcreate/server"
)

var (
	configFile = flag.String("config", "", "TOML configuration file")
	port       = flag.String("port", "", "Port to listen on (overrides the configuration)")
	pprofPort  = flag.String("pprof", "", "Port for the pprof server, if any")
)

func main() {
	flag.Parse()

	cfg := harvest.DefaultConfig()
	if *configFile != "" {
		var err error
		cfg, err = harvest.LoadConfig(*configFile)
		if err != nil {
			log.Fatalln(err)
		}
	}
	if *port != "" {
		cfg.Port = *port
	}

	h, err := harvest.New(cfg, log.New(os.Stderr, "", log.LstdFlags))
	if err != nil {
		log.Fatalln(err)
	}
	defer h.Close()

	s := &server.RESTServer{
		PortNumber: cfg.Port,
		PProfPort:  *pprofPort,
		Harvester:  h,
	}
	go signalHandler(s)
	if err := s.Run(); err != nil {
		log.Println(err)
	}
}

// signalHandler stops the server on SIGINT or SIGTERM. A package being
// assembled is finished first.
func signalHandler(s *server.RESTServer) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("Received signal, stopping")
	if err := s.Stop(); err != nil {
		log.Println(err)
	}
}
