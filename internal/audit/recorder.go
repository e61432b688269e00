// Package audit records security events from the login flow. Events fan
// out to Kafka (for downstream consumers) and ClickHouse (for the admin
// analytics queries). Recording is best effort: a sink failure is logged,
// never surfaced into the login path.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/errgroup"

	"campus-auth-service/internal/bucketing"
	"campus-auth-service/internal/client"
	"campus-auth-service/internal/models"
	"campus-auth-service/internal/util"
)

type Recorder struct {
	producer *client.KafkaProducer
	chClient *client.ClickHouseClient
	buckets  *bucketing.Manager
	topic    string

	now func() time.Time
}

// NewRecorder accepts nil sinks; whatever is wired gets written to.
func NewRecorder(producer *client.KafkaProducer, chClient *client.ClickHouseClient, buckets *bucketing.Manager, topic string) *Recorder {
	return &Recorder{
		producer: producer,
		chClient: chClient,
		buckets:  buckets,
		topic:    topic,
		now:      time.Now,
	}
}

// Record captures one event. Sinks are written concurrently; failures are
// logged and swallowed.
func (r *Recorder) Record(ctx context.Context, userID, eventType, ipAddress, details string) {
	at := r.now().UTC()
	ev := &models.SecurityEvent{
		EventBucket: r.buckets.EventBucket(userID),
		UserID:      userID,
		EventDate:   r.buckets.DateBucket(at),
		EventTime:   at,
		EventType:   eventType,
		IPAddress:   ipAddress,
		Details:     details,
	}

	g, gctx := errgroup.WithContext(ctx)

	if r.producer != nil {
		g.Go(func() error {
			payload, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			return r.producer.Publish(gctx, r.topic, []byte(ev.UserID), payload)
		})
	}

	if r.chClient != nil {
		g.Go(func() error {
			return r.chClient.Exec(gctx, `INSERT INTO security_events
				(event_bucket, user_id, event_date, event_time, event_type, ip_address, details)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				ev.EventBucket, ev.UserID, ev.EventDate, ev.EventTime,
				ev.EventType, ev.IPAddress, ev.Details)
		})
	}

	if err := g.Wait(); err != nil {
		util.Warn("Failed to record security event",
			util.String("event_type", eventType),
			util.String("user_id", userID),
			util.ErrorField(err))
	}
}

// RecentFailures returns failed-login and rejected-code events for a user
// within the window, newest first.
func (r *Recorder) RecentFailures(ctx context.Context, userID string, since time.Time) ([]*models.SecurityEvent, error) {
	if r.chClient == nil {
		return nil, nil
	}

	rows, err := r.chClient.Query(ctx, `SELECT
			event_bucket, user_id, event_date, event_time, event_type, ip_address, details
		FROM security_events
		WHERE user_id = ? AND event_time >= ? AND event_type IN (?, ?)
		ORDER BY event_time DESC`,
		userID, since.UTC(), models.EventLoginFailed, models.EventCodeRejected)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.SecurityEvent
	for rows.Next() {
		ev := &models.SecurityEvent{}
		if err := rows.Scan(
			&ev.EventBucket, &ev.UserID, &ev.EventDate, &ev.EventTime,
			&ev.EventType, &ev.IPAddress, &ev.Details); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	return events, rows.Err()
}
