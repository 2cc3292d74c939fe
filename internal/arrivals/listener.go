// Package arrivals ingests drop-off announcements published by roadside
// assistance crews so the front desk sees inbound vehicles before they reach
// the driveway.
package arrivals

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bohania/reception-desk/internal/db"
	"github.com/bohania/reception-desk/internal/intake"
	"github.com/bohania/reception-desk/internal/models"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	// Topic carries JSON announcement payloads.
	Topic = "reception/arrivals"

	connectTimeout = 10 * time.Second
	insertTimeout  = 5 * time.Second
)

// Announcement is the wire payload published by assistance crews.
type Announcement struct {
	RegNo  string `json:"vehicle_reg_no"`
	Phone  string `json:"phone"`
	Source string `json:"source"`
	Note   string `json:"note"`
}

// Listener subscribes to the arrivals topic and queues announcements in the
// store for the front desk.
type Listener struct {
	store  db.RecordStore
	logger *log.Logger
	client mqtt.Client
}

// NewListener creates an arrivals listener backed by the given store.
func NewListener(store db.RecordStore, logger *log.Logger) *Listener {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Listener{store: store, logger: logger}
}

// Start connects to the broker and subscribes. It returns once the
// subscription is live.
func (l *Listener) Start(brokerURL string) error {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID("reception-desk-" + primitive.NewObjectID().Hex()).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true)
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		l.logger.WithError(err).Warn("mqtt connection lost")
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}

	token := client.Subscribe(Topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		if err := l.ingest(msg.Payload()); err != nil {
			l.logger.WithError(err).WithField("topic", msg.Topic()).Error("failed to ingest arrival")
		}
	})
	if token.Wait() && token.Error() != nil {
		client.Disconnect(250)
		return fmt.Errorf("mqtt subscribe: %w", token.Error())
	}

	l.client = client
	l.logger.WithFields(log.Fields{"broker": brokerURL, "topic": Topic}).Info("arrivals listener started")
	return nil
}

// Stop disconnects from the broker.
func (l *Listener) Stop() {
	if l.client != nil {
		l.client.Disconnect(250)
		l.client = nil
	}
}

// ingest validates one announcement and queues it.
func (l *Listener) ingest(payload []byte) error {
	var announcement Announcement
	if err := json.Unmarshal(payload, &announcement); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if strings.TrimSpace(announcement.RegNo) == "" && strings.TrimSpace(announcement.Phone) == "" {
		return fmt.Errorf("announcement carries neither reg no nor phone")
	}

	source := models.Source(announcement.Source)
	if !models.IsValidSource(source) {
		source = models.SourceRSA
	}

	arrival := models.Arrival{
		ArrivalID:  primitive.NewObjectID().Hex(),
		RegNo:      intake.NormalizeIdentifier(announcement.RegNo),
		Phone:      strings.TrimSpace(announcement.Phone),
		Source:     source,
		Note:       announcement.Note,
		ReceivedAt: time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()
	if err := l.store.InsertArrival(ctx, arrival); err != nil {
		return fmt.Errorf("insert arrival: %w", err)
	}

	l.logger.WithFields(log.Fields{
		"arrival_id":     arrival.ArrivalID,
		"vehicle_reg_no": arrival.RegNo,
		"source":         arrival.Source,
	}).Info("arrival queued")
	return nil
}
