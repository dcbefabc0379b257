package main

import (
	"context"
	"fmt"

	"whatsapp-blaster/internal/campaign"
	"whatsapp-blaster/internal/config"
	"whatsapp-blaster/internal/database"
	"whatsapp-blaster/internal/webdriver"
	"whatsapp-blaster/internal/whatsapp"

	"go.uber.org/zap"
)

// newLauncher picks the lane driver for the configured executor.
func newLauncher(c *config.Config, store *database.Store, log *zap.Logger) (campaign.Launcher, error) {
	switch c.Executor {
	case "cloud":
		return &whatsapp.Launcher{
			BaseURL:        c.GraphAPIURL,
			Token:          c.WhatsAppToken,
			PhoneNumberIDs: c.PhoneNumberIDs,
			Recorder:       store,
			Logger:         log.Named("cloud"),
		}, nil
	case "web", "":
		return &webdriver.Launcher{Settings: c.Browser, Logger: log.Named("web")}, nil
	}
	return nil, fmt.Errorf("unknown executor %q", c.Executor)
}

// controllerFactory builds each run from a fresh snapshot of the live
// config, so settings saved through the API apply to the next run.
func controllerFactory(live *config.Live, store *database.Store, observer campaign.Observer, log *zap.Logger) campaign.ControllerFactory {
	return func(ctx context.Context) (*campaign.Controller, error) {
		c := live.Snapshot()
		launcher, err := newLauncher(c, store, log)
		if err != nil {
			return nil, err
		}
		return &campaign.Controller{
			Source:    store,
			Launcher:  launcher,
			Persister: campaign.NewPersister(store, store, c.Campaign.Persist(), log.Named("persist")),
			Observer:  observer,
			Options:   c.Campaign.Options(),
			Logger:    log.Named("campaign"),
		}, nil
	}
}
