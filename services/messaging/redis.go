package messaging

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"sjsage522/dealalert/logger"
	"sjsage522/dealalert/pkg/errors"
)

const (
	defaultReadBlock   = 5 * time.Second
	defaultSendTimeout = 15 * time.Second
	reconnectDelay     = 2 * time.Second
)

var errClosed = errors.NewDelivery("messaging", "event stream closed", nil)

// RedisOptions configures a RedisClient
type RedisOptions struct {
	Addr            string
	DB              int
	Password        string
	StreamPrefix    string
	StreamMaxLength int64
	ReadBlock       time.Duration
	SendTimeout     time.Duration
}

// RedisClient delivers alerts as entries on per-destination Redis streams.
// A gateway process owns the actual chat session and consumes
// <prefix>:out:<destination>; inbound chat messages arrive on <prefix>:in.
type RedisClient struct {
	client *redis.Client
	opts   RedisOptions
	events chan Event
	log    *logger.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewRedisClient creates a new Redis stream transport
func NewRedisClient(opts RedisOptions) *RedisClient {
	if opts.StreamPrefix == "" {
		opts.StreamPrefix = "dealalert"
	}
	if opts.ReadBlock <= 0 {
		opts.ReadBlock = defaultReadBlock
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		DB:       opts.DB,
		Password: opts.Password,
	})

	return &RedisClient{
		client: client,
		opts:   opts,
		events: make(chan Event, 32),
		log:    logger.ForMessaging(),
	}
}

// OutboundStream returns the stream alerts for destination are written to
func (c *RedisClient) OutboundStream(destination string) string {
	return c.opts.StreamPrefix + ":out:" + destination
}

// InboundStream returns the stream inbound commands are read from
func (c *RedisClient) InboundStream() string {
	return c.opts.StreamPrefix + ":in"
}

// Start pings Redis and starts the inbound reader
func (c *RedisClient) Start(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		if isAuthError(err) {
			werr := errors.NewDelivery("redis", "authentication failed", err)
			c.emit(Event{Type: EventAuthFailure, Err: werr})
			return werr
		}
		return errors.NewDelivery("redis", "failed to connect to "+c.opts.Addr, err)
	}

	readCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.log.Info().Str("addr", c.opts.Addr).Str("inbound", c.InboundStream()).Msg("Redis transport ready")
	c.emit(Event{Type: EventReady})

	c.wg.Add(1)
	go c.readLoop(readCtx)
	return nil
}

// SendText appends a text alert to the destination stream
func (c *RedisClient) SendText(ctx context.Context, destination, text string) error {
	return c.publish(ctx, destination, map[string]interface{}{
		"type": "text",
		"text": text,
	})
}

// SendImage appends an image alert to the destination stream. The image is
// base64 encoded.
func (c *RedisClient) SendImage(ctx context.Context, destination string, image []byte, mimeType, caption string) error {
	return c.publish(ctx, destination, map[string]interface{}{
		"type":    "image",
		"caption": caption,
		"mime":    mimeType,
		"image":   base64.StdEncoding.EncodeToString(image),
	})
}

func (c *RedisClient) publish(ctx context.Context, destination string, values map[string]interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.SendTimeout)
	defer cancel()

	args := &redis.XAddArgs{
		Stream: c.OutboundStream(destination),
		Values: values,
	}
	if c.opts.StreamMaxLength > 0 {
		args.MaxLen = c.opts.StreamMaxLength
		args.Approx = true
	}

	if err := c.client.XAdd(ctx, args).Err(); err != nil {
		return errors.NewDelivery("redis", fmt.Sprintf("failed to send %s alert to %s", values["type"], destination), err)
	}
	return nil
}

// Events returns the lifecycle and inbound message stream
func (c *RedisClient) Events() <-chan Event {
	return c.events
}

// Close stops the reader and closes the connection
func (c *RedisClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		c.wg.Wait()
		err = c.client.Close()
		close(c.events)
	})
	return err
}

func (c *RedisClient) readLoop(ctx context.Context) {
	defer c.wg.Done()

	// Only commands sent after startup are answered
	lastID := fmt.Sprintf("%d-0", time.Now().UnixMilli())
	connected := true

	for {
		if ctx.Err() != nil {
			return
		}

		streams, err := c.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{c.InboundStream(), lastID},
			Count:   10,
			Block:   c.opts.ReadBlock,
		}).Result()

		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if connected {
				connected = false
				c.log.Warn().Err(err).Msg("Lost connection to Redis")
				c.emit(Event{Type: EventDisconnected, Err: err})
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}

		if !connected {
			connected = true
			c.log.Info().Msg("Reconnected to Redis")
			c.emit(Event{Type: EventReady})
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				lastID = msg.ID
				c.handleInbound(ctx, msg)
			}
		}
	}
}

func (c *RedisClient) handleInbound(ctx context.Context, msg redis.XMessage) {
	from, _ := msg.Values["from"].(string)
	body, _ := msg.Values["body"].(string)

	c.emit(Event{Type: EventMessage, From: from, Body: body})

	if strings.TrimSpace(body) == PingCommand && from != "" {
		if err := c.SendText(ctx, from, PongReply); err != nil {
			c.log.Error().Err(err).Str("from", from).Msg("Failed to answer ping")
		}
	}
}

// emit never blocks the reader; events are dropped when nobody listens
func (c *RedisClient) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	select {
	case c.events <- ev:
	default:
		c.log.Debug().Str("event", string(ev.Type)).Msg("Event dropped, no listener")
	}
}

func isAuthError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "NOAUTH") ||
		strings.Contains(msg, "WRONGPASS") ||
		strings.Contains(msg, "invalid password")
}

var _ Client = (*RedisClient)(nil)
