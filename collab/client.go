package collab

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Dhairya-Sondhi/CodeLab-IDE/domain"
)

const (
	outboxSize   = 256
	pingInterval = 30 * time.Second
)

// Inbound message budget per connection. Collaborative typing produces a
// burst of small updates per keystroke, so the ceiling is generous; it only
// sheds clients that are clearly misbehaving.
const (
	inboundRate  rate.Limit = 500
	inboundBurst            = 1000
)

// Client is one websocket connection. It may join any number of rooms; every
// frame it sends names the room it targets.
type Client struct {
	id       string
	identity domain.Identity
	conn     NetworkConnection
	outbox   chan []byte
	closing  chan string
	limiter  *rate.Limiter
	service  *Service

	closeOnce sync.Once

	mu    sync.Mutex
	rooms map[string]struct{}
}

func NewClient(conn NetworkConnection, identity domain.Identity, service *Service) *Client {
	return &Client{
		id:       uuid.NewString(),
		identity: identity,
		conn:     conn,
		outbox:   make(chan []byte, outboxSize),
		closing:  make(chan string, 1),
		limiter:  rate.NewLimiter(inboundRate, inboundBurst),
		service:  service,
		rooms:    make(map[string]struct{}),
	}
}

func (c *Client) Id() string { return c.id }

// send enqueues a frame for the write pump. A full outbox means the client
// stopped draining; dropping a frame would break the per-connection ordering
// guarantee, so the connection is closed instead and the client is expected
// to reconnect and re-snapshot.
func (c *Client) send(data []byte) bool {
	select {
	case c.outbox <- data:
		return true
	default:
		log.Warn().Str("connection", c.id).Msg("outbox overflow, dropping connection")
		c.requestClose("slow-consumer")
		return false
	}
}

// requestClose hands the close to the write pump, the only goroutine allowed
// to write to the socket.
func (c *Client) requestClose(reason string) {
	c.closeOnce.Do(func() { c.closing <- reason })
}

func (c *Client) joinedRoom(roomId string) {
	c.mu.Lock()
	c.rooms[roomId] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) inRoom(roomId string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[roomId]
	return ok
}

func (c *Client) joinedRooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		ids = append(ids, id)
	}
	return ids
}

// ReadPump consumes frames from the socket and dispatches them until the
// connection errors, then runs disconnect cleanup for every joined room.
func (c *Client) ReadPump() {
	defer c.service.Disconnect(c)
	for {
		data, err := c.conn.Read()
		if err != nil {
			return
		}
		if !c.limiter.Allow() {
			log.Warn().Str("connection", c.id).Msg("inbound rate limit exceeded, frame dropped")
			continue
		}
		c.service.Dispatch(c, data)
	}
}

// WritePump drains the outbox onto the socket and keeps the connection alive
// with periodic pings. It also performs any requested close, so nothing else
// ever writes to the socket concurrently.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case data, ok := <-c.outbox:
			if !ok {
				return
			}
			if err := c.conn.Write(data); err != nil {
				return
			}
		case reason := <-c.closing:
			c.conn.Close(reason)
			return
		case <-ticker.C:
			if err := c.conn.Ping(); err != nil {
				return
			}
		}
	}
}
