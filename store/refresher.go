package store

import (
	"fmt"
	"time"

	"github.com/vatsimnerd/perfetch"

	reliefapi "github.com/Trung-Nam-2512/floodsos-sub001/relief-api"
)

// Refresher periodically re-fetches the authoritative feature set and
// merges it into the store. The poll period is multiplied by
// HiddenFactor while the view is not visible.
type Refresher struct {
	cfg   *Config
	store *Store

	stop       chan bool
	visibility chan bool
	stopped    bool
}

func NewRefresher(cfg *Config, store *Store) *Refresher {
	return &Refresher{
		cfg:        cfg,
		store:      store,
		stop:       make(chan bool),
		visibility: make(chan bool, 1),
	}
}

func (r *Refresher) Start() error {
	if r.stopped {
		return fmt.Errorf("can't start once stopped refresher")
	}
	go r.loop()
	return nil
}

func (r *Refresher) Stop() {
	r.stopped = true
	r.stop <- true
}

// SetVisible reports view visibility changes. The current poll timer is
// dropped and restarted with the adjusted period.
func (r *Refresher) SetVisible(visible bool) {
	select {
	case r.visibility <- visible:
	default:
	}
}

func (r *Refresher) hiddenFactor() time.Duration {
	if r.cfg.HiddenFactor > 1 {
		return time.Duration(r.cfg.HiddenFactor)
	}
	return 2
}

func (r *Refresher) loop() {
	visible := true
	for {
		period := r.cfg.Poll.Period
		if !visible {
			period *= r.hiddenFactor()
		}
		if !r.pollSession(period, &visible) {
			return
		}
	}
}

// pollSession runs one poller until visibility flips (returns true to
// restart with a new period) or the refresher stops (returns false).
func (r *Refresher) pollSession(period time.Duration, visible *bool) bool {
	log.WithField("period", period).Debug("starting poll session")

	poller := perfetch.New(
		period,
		perfetch.HTTPGetFetcher(r.cfg.URL, r.cfg.Poll.Timeout),
	)
	// Stop closes every subscriber channel; an extra Unsubscribe after
	// it would close psub twice and panic the session restart.
	psub := poller.Subscribe(1024)

	attempt := 0
	for {
		err := poller.Start()
		if err == nil {
			break
		}
		attempt++
		log.WithError(err).WithField("retries_left", r.cfg.Boot.Retries-attempt).Error("error fetching features (initial)")
		if attempt >= r.cfg.Boot.Retries {
			// give up rather than tear down the whole map view
			log.Error("error fetching features (initially), no retries left")
			return false
		}
		time.Sleep(r.cfg.Boot.RetryCooldown)
	}
	defer poller.Stop()

	for {
		select {
		case raw := <-psub.Updates():
			if raw == nil {
				continue
			}
			features, err := reliefapi.DecodeListPayload(raw)
			if err != nil {
				log.WithError(err).Error("error decoding features payload")
				continue
			}
			log.WithField("count", len(features)).Debug("got refresh from features poller")
			r.store.ApplyRefresh(features)

		case v := <-r.visibility:
			if v == *visible {
				continue
			}
			*visible = v
			return true

		case <-r.stop:
			return false
		}
	}
}
