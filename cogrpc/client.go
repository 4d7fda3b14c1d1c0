package cogrpc

import (
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"relaynet.dev/cogrpc/relay"
	"relaynet.dev/cogrpc/trust"
)

const (
	// AuthorizationMetadataKey carries the CCA on CollectCargo calls.
	AuthorizationMetadataKey = "authorization"
	// AuthorizationScheme prefixes the base64-encoded CCA.
	AuthorizationScheme = "Relaynet-CCA"
)

// Client talks to one CogRPC server.
//
// A Client is safe for concurrent use. Each DeliverCargo/CollectCargo
// invocation owns its own gRPC stream and tracking state.
type Client struct {
	serverAddress string
	target        string
	useTLS        bool
	decision      trust.Decision

	opts  *options
	log   *zap.Logger
	cc    *grpc.ClientConn
	relay relay.CargoRelayClient

	mu       sync.Mutex
	closed   bool
	calls    sync.WaitGroup
	nextCall uint64
	inflight map[uint64]context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// New builds a client for serverAddress, an http:// or https:// URL.
//
// With TLS required (the default) a plaintext URL is rejected before any
// network activity. For TLS connections the host is resolved once to decide
// whether certificate validation is relaxed for a private subnet; see package
// trust. When validation is relaxed the channel dials the decided address
// rather than the host name, so a later lookup cannot land on another peer.
// No connection is attempted until the first call.
func New(serverAddress string, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	u, err := url.Parse(serverAddress)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidAddress, serverAddress, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w %q: scheme must be http or https", ErrInvalidAddress, serverAddress)
	}
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("%w %q: missing host", ErrInvalidAddress, serverAddress)
	}
	if o.requireTLS && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: cannot connect to %s with TLS required", trust.ErrTLSRequired, serverAddress)
	}

	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}

	c := &Client{
		serverAddress: serverAddress,
		target:        net.JoinHostPort(host, port),
		useTLS:        o.requireTLS || u.Scheme == "https",
		opts:          o,
		inflight:      make(map[uint64]context.CancelFunc),
	}
	c.log = o.logger.With(zap.String("server", c.target))

	creds := insecure.NewCredentials()
	var dialOpts []grpc.DialOption
	if c.useTLS {
		addr, err := c.resolve(host)
		if err != nil {
			return nil, err
		}
		c.decision = trust.Decide(addr, true)
		creds = credentials.NewTLS(c.decision.TLSConfig(host, o.compatHandshake))
		if c.decision.BypassValidation {
			// Pin the channel to the address the decision was made for.
			dialOpts = append(dialOpts, grpc.WithAuthority(c.target))
			c.target = net.JoinHostPort(addr.Unmap().String(), port)
			c.log.Info("private subnet server: accepting self-issued certificate", zap.Stringer("addr", addr))
		}
	}

	dialOpts = append(dialOpts, grpc.WithTransportCredentials(creds))
	dialOpts = append(dialOpts, o.dialOpts...)
	// passthrough leaves name resolution to the dialer.
	cc, err := grpc.NewClient("passthrough:///"+c.target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("cogrpc: build channel for %s: %w", c.target, err)
	}
	c.cc = cc
	c.relay = relay.NewCargoRelayClient(cc)
	return c, nil
}

// ServerAddress returns the URL the client was built with.
func (c *Client) ServerAddress() string { return c.serverAddress }

// Target returns the host:port the channel connects to. For a private
// subnet server reached over TLS the host is the resolved address.
func (c *Client) Target() string { return c.target }

// RequireTLS reports whether plaintext addresses are refused.
func (c *Client) RequireTLS() bool { return c.opts.requireTLS }

// UsesTLS reports whether the channel is secured with TLS.
func (c *Client) UsesTLS() bool { return c.useTLS }

// TrustDecision returns the decision made when the channel was built.
func (c *Client) TrustDecision() trust.Decision { return c.decision }

// Close stops accepting calls and waits up to the grace period for in-flight
// calls to finish. Calls still running after that are cancelled and the
// connection is shut down. Repeated calls return the first result without
// waiting.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.log.Info("closing cogrpc client")
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		done := make(chan struct{})
		go func() {
			c.calls.Wait()
			close(done)
		}()
		timer := time.NewTimer(c.opts.grace())
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			c.log.Warn("grace period elapsed; forcing close", zap.Duration("grace", c.opts.grace()))
			c.cancelCalls()
		}
		c.closeErr = c.cc.Close()
	})
	return c.closeErr
}

// beginCall registers an in-flight call and derives its context, bounded by
// the call deadline. end must be called exactly once when the call is over;
// extra calls are ignored.
func (c *Client) beginCall(parent context.Context) (ctx context.Context, cancel context.CancelFunc, end func(), err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, nil, nil, ErrClientClosed
	}
	ctx, cancel = context.WithTimeout(parent, c.opts.callDeadline)
	c.nextCall++
	id := c.nextCall
	c.inflight[id] = cancel
	c.calls.Add(1)

	var once sync.Once
	end = func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.inflight, id)
			c.mu.Unlock()
			c.calls.Done()
		})
	}
	return ctx, cancel, end, nil
}

// cancelCalls cancels the context of every call still in flight.
func (c *Client) cancelCalls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cancel := range c.inflight {
		cancel()
	}
}

func (c *Client) resolve(host string) (netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.callDeadline)
	defer cancel()
	addrs, err := c.opts.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("cogrpc: resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return netip.Addr{}, fmt.Errorf("cogrpc: resolve %s: no addresses", host)
	}
	return addrs[0], nil
}

func authorizationValue(cca []byte) string {
	return AuthorizationScheme + " " + base64.StdEncoding.EncodeToString(cca)
}

func withAuthorization(ctx context.Context, cca []byte) context.Context {
	return metadata.AppendToOutgoingContext(ctx, AuthorizationMetadataKey, authorizationValue(cca))
}
