// Package registration announces the node on the archive network at boot.
// The announcement is purely informational, a failed registration never
// blocks ingest.
package registration

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/derad-network/derad/network"
	"github.com/derad-network/derad/tracker/archive"
)

var log = logrus.WithField("prefix", "registration")

const registerTimeout = 30 * time.Second

// Archiver is the slice of the archive client registration needs.
type Archiver interface {
	Address() string
	SignMessage(msg []byte) ([]byte, error)
	Upload(ctx context.Context, data []byte, tags []archive.Tag) (string, error)
}

// Config describes the node being announced.
type Config struct {
	Archive   Archiver
	Version   string
	NodeType  string
	BeastPort int
	APIPort   int
}

// Service performs the one shot boot announcement.
type Service struct {
	ctx      context.Context
	cancel   context.CancelFunc
	cfg      *Config
	lookupIP func(ctx context.Context) (string, error)
	now      func() time.Time
}

// New builds the registration service.
func New(ctx context.Context, cfg *Config) *Service {
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		lookupIP: network.ExternalIP,
		now:      time.Now,
	}
}

// Start announces the node in the background.
func (s *Service) Start() {
	go func() {
		if err := s.register(); err != nil {
			registrationFailures.Inc()
			log.WithError(err).Warn("Could not register node on archive network")
		}
	}()
}

func (s *Service) register() error {
	ctx, cancel := context.WithTimeout(s.ctx, registerTimeout)
	defer cancel()

	ip, err := s.lookupIP(ctx)
	if err != nil {
		return errors.Wrap(err, "could not resolve public ip")
	}
	ts := s.now().UnixMilli()

	// Maps marshal with sorted keys, which is the canonical serialisation
	// the signature covers.
	message, err := json.Marshal(map[string]interface{}{
		"version":       s.cfg.Version,
		"publicIP":      ip,
		"beastPort":     s.cfg.BeastPort,
		"apiPort":       s.cfg.APIPort,
		"walletAddress": s.cfg.Archive.Address(),
		"timestamp":     ts,
		"nodeType":      s.cfg.NodeType,
	})
	if err != nil {
		return errors.Wrap(err, "could not serialise node info")
	}
	sig, err := s.cfg.Archive.SignMessage(message)
	if err != nil {
		return errors.Wrap(err, "could not sign node info")
	}
	payload, err := json.Marshal(struct {
		NodeInfo  json.RawMessage `json:"nodeInfo"`
		Signature []byte          `json:"signature"`
		Message   string          `json:"message"`
	}{NodeInfo: message, Signature: sig, Message: string(message)})
	if err != nil {
		return errors.Wrap(err, "could not serialise registration")
	}

	tags := []archive.Tag{
		{Name: "App-Name", Value: "DeradNetwork"},
		{Name: "Type", Value: "node-registration"},
		{Name: "Version", Value: s.cfg.Version},
		{Name: "Node-Type", Value: s.cfg.NodeType},
		{Name: "Timestamp", Value: strconv.FormatInt(ts, 10)},
	}
	txID, err := s.cfg.Archive.Upload(ctx, payload, tags)
	if err != nil {
		return errors.Wrap(err, "could not upload registration")
	}
	registrationsSubmitted.Inc()
	log.WithFields(logrus.Fields{
		"tx":       txID,
		"publicIp": ip,
	}).Info("Node registered on archive network")
	return nil
}

// Stop cancels an announcement still in flight.
func (s *Service) Stop() error {
	s.cancel()
	return nil
}

// Status always reports healthy, registration is informational.
func (s *Service) Status() error {
	return nil
}
