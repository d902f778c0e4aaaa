// Package redisbus publishes flow.Hooks lifecycle events onto a Redis
// pub/sub channel so an out-of-process observer (a dashboard, an audit
// log) can watch a Runtime without being linked into it. It is a
// publish-only transport: the gate hooks (OnRoutineStart, OnEventEmit,
// OnSlotBeforeEnqueue) always allow the action through, since a remote
// subscriber cannot answer synchronously within the scheduler's call.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flowmesh/flowengine/flow"
)

// Event is the JSON envelope published for every lifecycle point.
type Event struct {
	Kind      string         `json:"kind"`
	At        time.Time      `json:"at"`
	FlowID    string         `json:"flow_id,omitempty"`
	WorkerID  string         `json:"worker_id,omitempty"`
	JobID     string         `json:"job_id,omitempty"`
	RoutineID string         `json:"routine_id,omitempty"`
	Status    string         `json:"status,omitempty"`
	EventName string         `json:"event_name,omitempty"`
	Err       string         `json:"error,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Publisher publishes flow.Hooks events to a Redis channel. It implements
// flow.Hooks, so it can be installed directly on a Runtime, typically
// wrapped in a flow/hooks.Bus alongside other observers.
type Publisher struct {
	client  *redis.Client
	channel string
	ctx     context.Context
}

// Config configures a Publisher.
type Config struct {
	RedisURL string // defaults to redis://localhost:6379/0
	Channel  string // defaults to "flowengine:hooks"
}

// NewPublisher dials Redis and returns a ready Publisher.
func NewPublisher(ctx context.Context, cfg Config) (*Publisher, error) {
	url := cfg.RedisURL
	if url == "" {
		url = "redis://localhost:6379/0"
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redisbus: parse url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redisbus: connect: %w", err)
	}
	channel := cfg.Channel
	if channel == "" {
		channel = "flowengine:hooks"
	}
	return &Publisher{client: client, channel: channel, ctx: ctx}, nil
}

// Close releases the underlying Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}

func (p *Publisher) publish(ev Event) {
	ev.At = time.Now()
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	p.client.Publish(p.ctx, p.channel, payload)
}

func (p *Publisher) OnWorkerStart(f *flow.Flow, ws *flow.WorkerState) {
	p.publish(Event{Kind: "worker_start", FlowID: f.ID(), WorkerID: ws.ID()})
}

func (p *Publisher) OnWorkerStop(f *flow.Flow, ws *flow.WorkerState, status flow.WorkerStatus) {
	p.publish(Event{Kind: "worker_stop", FlowID: f.ID(), WorkerID: ws.ID(), Status: string(status)})
}

func (p *Publisher) OnJobStart(job *flow.JobContext, ws *flow.WorkerState) {
	p.publish(Event{Kind: "job_start", JobID: job.ID(), WorkerID: ws.ID(), FlowID: ws.FlowID()})
}

func (p *Publisher) OnJobEnd(job *flow.JobContext, ws *flow.WorkerState, status flow.JobStatus, err error) {
	e := Event{Kind: "job_end", JobID: job.ID(), WorkerID: ws.ID(), FlowID: ws.FlowID(), Status: string(status)}
	if err != nil {
		e.Err = err.Error()
	}
	p.publish(e)
}

func (p *Publisher) OnRoutineStart(routineID string, ws *flow.WorkerState, job *flow.JobContext) bool {
	p.publish(Event{Kind: "routine_start", RoutineID: routineID, WorkerID: ws.ID(), JobID: job.ID()})
	return true
}

func (p *Publisher) OnRoutineEnd(routineID string, ws *flow.WorkerState, job *flow.JobContext, status string, err error) {
	e := Event{Kind: "routine_end", RoutineID: routineID, WorkerID: ws.ID(), JobID: job.ID(), Status: status}
	if err != nil {
		e.Err = err.Error()
	}
	p.publish(e)
}

func (p *Publisher) OnEventEmit(eventName, sourceRoutineID string, ws *flow.WorkerState, job *flow.JobContext, data flow.Payload) bool {
	p.publish(Event{Kind: "event_emit", EventName: eventName, RoutineID: sourceRoutineID, WorkerID: ws.ID(), JobID: job.ID(), Data: data})
	return true
}

func (p *Publisher) OnSlotBeforeEnqueue(slotName, targetRoutineID string, job *flow.JobContext, data flow.Payload, flowID string) (bool, string) {
	p.publish(Event{Kind: "slot_enqueue", RoutineID: targetRoutineID, JobID: job.ID(), FlowID: flowID, Data: data, EventName: slotName})
	return true, ""
}

var _ flow.Hooks = (*Publisher)(nil)
