package cache

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ValkeyConfig holds connection parameters for a Valkey/Redis-compatible server.
type ValkeyConfig struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ValkeyProvider implements Provider over a single pooled RESP connection.
// The connection is re-dialed transparently after an IO error.
type ValkeyProvider struct {
	cfg ValkeyConfig

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
}

// NewValkeyProvider dials the configured server and verifies it with a PING.
func NewValkeyProvider(cfg ValkeyConfig) (*ValkeyProvider, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("valkey addr is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 500 * time.Millisecond
	}

	p := &ValkeyProvider{cfg: cfg}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connect(); err != nil {
		return nil, err
	}
	reply, err := p.roundTrip("PING")
	if err != nil {
		return nil, err
	}
	if reply != "PONG" {
		return nil, fmt.Errorf("unexpected PING reply %q", reply)
	}
	return p, nil
}

// Get fetches bytes by key, returning ErrCacheMiss when the key is absent.
func (p *ValkeyProvider) Get(ctx context.Context, key string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reply, err := p.roundTrip("GET", key)
	if err != nil {
		return nil, err
	}
	if reply == respNil {
		return nil, ErrCacheMiss
	}
	return []byte(reply), nil
}

// Set stores bytes with the provided TTL; ttl <= 0 stores without expiry.
func (p *ValkeyProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	args := []string{"SET", key, string(value)}
	if ttl > 0 {
		args = append(args, "PX", strconv.FormatInt(ttl.Milliseconds(), 10))
	}
	reply, err := p.roundTrip(args...)
	if err != nil {
		return err
	}
	if reply != "OK" {
		return fmt.Errorf("unexpected SET reply %q", reply)
	}
	return nil
}

// Del removes a key.
func (p *ValkeyProvider) Del(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := p.roundTrip("DEL", key)
	return err
}

// Close tears down the connection.
func (p *ValkeyProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

// respNil is a sentinel distinguishing a RESP nil bulk string from an empty one.
const respNil = "\x00valkey-nil"

func (p *ValkeyProvider) connect() error {
	conn, err := net.DialTimeout("tcp", p.cfg.Addr, p.cfg.DialTimeout)
	if err != nil {
		return err
	}
	p.conn = conn
	p.reader = bufio.NewReader(conn)
	p.writer = bufio.NewWriter(conn)

	if p.cfg.Password != "" {
		if reply, err := p.exchange([]string{"AUTH", p.cfg.Password}); err != nil || reply != "OK" {
			conn.Close()
			p.conn = nil
			if err != nil {
				return err
			}
			return fmt.Errorf("unexpected AUTH reply %q", reply)
		}
	}
	if p.cfg.DB > 0 {
		if reply, err := p.exchange([]string{"SELECT", strconv.Itoa(p.cfg.DB)}); err != nil || reply != "OK" {
			conn.Close()
			p.conn = nil
			if err != nil {
				return err
			}
			return fmt.Errorf("unexpected SELECT reply %q", reply)
		}
	}
	return nil
}

// roundTrip writes one command and reads one reply. Callers hold p.mu.
func (p *ValkeyProvider) roundTrip(args ...string) (string, error) {
	if p.conn == nil {
		if err := p.connect(); err != nil {
			return "", err
		}
	}

	reply, err := p.exchange(args)
	if err != nil {
		// One reconnect attempt after a broken connection.
		p.conn.Close()
		p.conn = nil
		if err := p.connect(); err != nil {
			return "", err
		}
		reply, err = p.exchange(args)
		if err != nil {
			p.conn.Close()
			p.conn = nil
			return "", err
		}
	}
	return reply, nil
}

func (p *ValkeyProvider) exchange(args []string) (string, error) {
	p.conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout))
	fmt.Fprintf(p.writer, "*%d\r\n", len(args))
	for _, arg := range args {
		fmt.Fprintf(p.writer, "$%d\r\n%s\r\n", len(arg), arg)
	}
	if err := p.writer.Flush(); err != nil {
		return "", err
	}

	p.conn.SetReadDeadline(time.Now().Add(p.cfg.ReadTimeout))
	return p.readReply()
}

func (p *ValkeyProvider) readReply() (string, error) {
	line, err := p.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("empty valkey reply")
	}

	switch line[0] {
	case '+':
		return line[1:], nil
	case ':':
		return line[1:], nil
	case '-':
		return "", fmt.Errorf("valkey error: %s", line[1:])
	case '$':
		size, err := strconv.Atoi(line[1:])
		if err != nil {
			return "", fmt.Errorf("bad bulk length %q", line[1:])
		}
		if size < 0 {
			return respNil, nil
		}
		buf := make([]byte, size+2)
		if _, err := readFull(p.reader, buf); err != nil {
			return "", err
		}
		return string(buf[:size]), nil
	default:
		return "", fmt.Errorf("unsupported valkey reply %q", line)
	}
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
