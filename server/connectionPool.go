package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// connItem wraps a gRPC connection with a lastUsed timestamp.
type connItem struct {
	conn     *grpc.ClientConn
	lastUsed time.Time
}

// ConnectionPool caches gRPC connections keyed by target address. It backs the
// health probes sent to index daemons.
type ConnectionPool struct {
	mu           sync.Mutex
	connections  map[string]*connItem
	idleTimeout  time.Duration
	cleanupDelay time.Duration
	stop         chan struct{}
	stopOnce     sync.Once
}

// NewConnectionPool initializes a new connection pool with the given idle timeout.
// cleanupDelay determines how often the janitor will scan for idle connections.
func NewConnectionPool(idleTimeout, cleanupDelay time.Duration) *ConnectionPool {
	cp := &ConnectionPool{
		connections:  make(map[string]*connItem),
		idleTimeout:  idleTimeout,
		cleanupDelay: cleanupDelay,
		stop:         make(chan struct{}),
	}
	go cp.evictIdleConnections()
	return cp
}

// GetConn retrieves an existing connection or creates a new one if needed.
// It also updates the lastUsed time on every access.
func (p *ConnectionPool) GetConn(addr string) (*grpc.ClientConn, error) {
	p.mu.Lock()
	item, exists := p.connections[addr]
	if exists {
		item.lastUsed = time.Now()
		p.mu.Unlock()
		return item.conn, nil
	}
	p.mu.Unlock()

	conn, err := grpc.NewClient(addr,
		grpc.WithContextDialer(func(ctx context.Context, s string) (net.Conn, error) {
			if s == "" {
				return nil, fmt.Errorf("empty address provided")
			}
			var d net.Dialer
			return d.DialContext(ctx, "tcp", s)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	conn.Connect()

	p.mu.Lock()
	// another goroutine might have created the connection
	if existing, exists := p.connections[addr]; exists {
		p.mu.Unlock()
		conn.Close()
		return existing.conn, nil
	}
	p.connections[addr] = &connItem{
		conn:     conn,
		lastUsed: time.Now(),
	}
	p.mu.Unlock()

	return conn, nil
}

// Probe asks the daemon at addr for the health of service. The empty service
// is the overall status.
func (p *ConnectionPool) Probe(ctx context.Context, addr, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := p.GetConn(addr)
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Len returns the number of cached connections.
func (p *ConnectionPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.connections)
}

// Close stops the janitor and closes every cached connection.
func (p *ConnectionPool) Close() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.mu.Lock()
	defer p.mu.Unlock()
	for addr, item := range p.connections {
		item.conn.Close()
		delete(p.connections, addr)
	}
}

// evictIdleConnections runs in a background goroutine to close idle connections.
func (p *ConnectionPool) evictIdleConnections() {
	ticker := time.NewTicker(p.cleanupDelay)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
		}
		now := time.Now()
		p.mu.Lock()
		for addr, item := range p.connections {
			if now.Sub(item.lastUsed) > p.idleTimeout {
				item.conn.Close()
				delete(p.connections, addr)
			}
		}
		p.mu.Unlock()
	}
}
