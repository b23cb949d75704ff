package main

import (
	"github.com/sirupsen/logrus"

	"github.com/sourcequery/engine/client"
	"github.com/sourcequery/engine/config"
	"github.com/sourcequery/engine/transport"
)

func newClient(opts *globalOptions) (*client.Client, error) {
	cfg := config.Default()
	if opts.configFile != "" {
		loaded, err := config.Load(opts.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{})
	return client.New(cfg, log, nil)
}

func (o *globalOptions) destination(kind transport.Kind) transport.Destination {
	return transport.Destination{Host: o.host, Port: o.port, Kind: kind}
}
