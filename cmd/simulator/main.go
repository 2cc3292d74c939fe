// Drop-off simulator: publishes roadside-assistance arrival announcements to
// the broker so the desk can be exercised without real tow trucks.
package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/bohania/reception-desk/internal/arrivals"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

var stateCodes = []string{"KA", "MH", "DL", "TN", "AP", "GJ", "RJ", "UP"}

var notes = []string{
	"towed from ORR",
	"breakdown on highway, customer following in cab",
	"flat battery, jump start failed",
	"accident recovery, front bumper damage",
	"overheating, coolant leak",
}

func randomRegNo() string {
	letters := "ABCDEFGHJKLMNPRSTUVWXYZ"
	state := stateCodes[rand.Intn(len(stateCodes))]
	series := string(letters[rand.Intn(len(letters))]) + string(letters[rand.Intn(len(letters))])
	return fmt.Sprintf("%s%02d%s%04d", state, rand.Intn(60)+1, series, rand.Intn(9000)+1000)
}

func randomPhone() string {
	return fmt.Sprintf("9%09d", rand.Intn(1000000000))
}

func randomAnnouncement() arrivals.Announcement {
	announcement := arrivals.Announcement{
		RegNo:  randomRegNo(),
		Source: "RSA",
		Note:   notes[rand.Intn(len(notes))],
	}
	// Crews don't always have the customer's number.
	if rand.Intn(4) > 0 {
		announcement.Phone = randomPhone()
	}
	return announcement
}

func main() {
	brokerURL := os.Getenv("MQTT_BROKER_URL")
	if brokerURL == "" {
		brokerURL = "tcp://localhost:1883"
	}

	interval := 10 * time.Second
	if v := os.Getenv("SIM_TICK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			interval = time.Duration(n) * time.Second
		}
	}

	count := 0 // 0 means publish forever
	if v := os.Getenv("SIM_ARRIVAL_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			count = n
		}
	}

	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(fmt.Sprintf("arrival-sim-%d", os.Getpid())).
		SetConnectTimeout(10 * time.Second)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.WithError(token.Error()).Fatal("failed to connect to broker")
	}
	defer client.Disconnect(250)

	log.WithFields(log.Fields{
		"broker":   brokerURL,
		"topic":    arrivals.Topic,
		"interval": interval,
	}).Info("starting drop-off simulation")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	published := 0
	for range ticker.C {
		announcement := randomAnnouncement()
		payload, err := json.Marshal(announcement)
		if err != nil {
			log.WithError(err).Error("failed to marshal announcement")
			continue
		}

		token := client.Publish(arrivals.Topic, 1, false, payload)
		if token.Wait() && token.Error() != nil {
			log.WithError(token.Error()).Error("failed to publish announcement")
			continue
		}

		published++
		log.WithFields(log.Fields{
			"vehicle_reg_no": announcement.RegNo,
			"published":      published,
		}).Info("announced drop-off")

		if count > 0 && published >= count {
			break
		}
	}

	log.WithField("published", published).Info("simulation finished")
}
