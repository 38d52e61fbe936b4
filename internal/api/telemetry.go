package api

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/carewatch-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/carewatch-core/internal/radar"
)

// fallRefreshTimeout bounds the alert refresh triggered by a fall alert.
const fallRefreshTimeout = 15 * time.Second

// subscribeTelemetry subscribes to radar telemetry and fall alerts and
// relays them to WebSocket clients.
func (s *Server) subscribeTelemetry(ctx context.Context) error {
	if s.mqtt == nil {
		return nil // MQTT not configured; live relay disabled
	}
	topics := mqtt.Topics{}

	s.logger.Info("subscribing to radar telemetry",
		"vitals", topics.AllVitals(),
		"postures", topics.AllPostures(),
		"falls", topics.FallAlerts(),
	)

	if err := s.mqtt.Subscribe(topics.AllVitals(), 0, s.handleVital); err != nil {
		return fmt.Errorf("subscribing to vitals: %w", err)
	}
	if err := s.mqtt.Subscribe(topics.AllPostures(), 0, s.handlePosture); err != nil {
		return fmt.Errorf("subscribing to postures: %w", err)
	}
	err := s.mqtt.Subscribe(topics.FallAlerts(), 1, func(topic string, payload []byte) error {
		return s.handleFallAlert(ctx, payload)
	})
	if err != nil {
		return fmt.Errorf("subscribing to fall alerts: %w", err)
	}
	return nil
}

// personForDevice returns the person an active mapping binds deviceID to.
func (s *Server) personForDevice(deviceID string) (id, name string) {
	for _, m := range s.cache.Mappings() {
		if m.DeviceID == deviceID && m.Active {
			return m.PersonID, m.PersonName
		}
	}
	return "", ""
}

// handleVital records a vital frame and broadcasts it.
func (s *Server) handleVital(topic string, payload []byte) error {
	deviceID, _ := mqtt.DeviceFromTopic(topic)
	v, err := radar.ParseVital(deviceID, payload, s.now())
	if err != nil {
		return err
	}
	if v.DeviceID == "" {
		return fmt.Errorf("%w: vital frame without device id", radar.ErrInvalidPayload)
	}
	if v.PersonID == "" {
		v.PersonID, _ = s.personForDevice(v.DeviceID)
	}

	s.influx.WriteVital(v.DeviceID, v.PersonID, v.Values(), v.Timestamp)
	s.hub.Broadcast(radar.ChannelVital, v)
	return nil
}

// handlePosture formats a posture frame for display, records its summary
// and broadcasts it.
func (s *Server) handlePosture(topic string, payload []byte) error {
	deviceID, _ := mqtt.DeviceFromTopic(topic)
	p, err := radar.ParsePosture(deviceID, payload, s.now())
	if err != nil {
		return err
	}
	if p.DeviceID == "" {
		return fmt.Errorf("%w: posture frame without device id", radar.ErrInvalidPayload)
	}
	if p.PersonID == "" {
		p.PersonID, _ = s.personForDevice(p.DeviceID)
	}

	d := radar.FormatPostureForDisplay(p)
	s.influx.WritePosture(d.DeviceID, d.PersonID, d.TotalPointCloudCount, d.KeypointCount, d.DataQuality, d.DataType, d.Timestamp)
	s.hub.Broadcast(radar.ChannelPosture, d)
	return nil
}

// handleFallAlert broadcasts a fall alert at once, then refreshes the
// alert list in the background and pushes the new stats.
func (s *Server) handleFallAlert(ctx context.Context, payload []byte) error {
	a, err := radar.ParseFallAlert(payload, s.now())
	if err != nil {
		return err
	}
	if a.PersonID == "" || a.PersonName == "" {
		personID, personName := s.personForDevice(a.DeviceID)
		if a.PersonID == "" {
			a.PersonID = personID
		}
		if a.PersonName == "" {
			a.PersonName = personName
		}
	}

	s.logger.Warn("fall alert received",
		"device_id", a.DeviceID,
		"person_id", a.PersonID,
		"severity", a.Severity,
	)
	s.influx.WriteFall(a.DeviceID, a.PersonID, a.Severity, a.FallDetectedAt)
	s.hub.Broadcast(radar.ChannelFallAlert, a)

	go s.refreshAfterFall(ctx)
	return nil
}

func (s *Server) refreshAfterFall(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, fallRefreshTimeout)
	defer cancel()

	s.scope.RefreshAlerts(ctx, "")
	s.publishScope(s.scope.View())
}
