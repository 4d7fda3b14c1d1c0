package cogrpc

import (
	"context"
	"net"
	"net/netip"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// DefaultCallDeadline bounds every DeliverCargo/CollectCargo call and, unless
// overridden, the grace period of Close.
const DefaultCallDeadline = 5 * time.Second

// Resolver looks up the addresses of a server host. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

type options struct {
	requireTLS      bool
	callDeadline    time.Duration
	closeGrace      time.Duration
	compatHandshake bool
	logger          *zap.Logger
	resolver        Resolver
	dialOpts        []grpc.DialOption
}

func defaultOptions() *options {
	return &options{
		requireTLS:   true,
		callDeadline: DefaultCallDeadline,
		logger:       zap.NewNop(),
		resolver:     net.DefaultResolver,
	}
}

func (o *options) grace() time.Duration {
	if o.closeGrace > 0 {
		return o.closeGrace
	}
	return o.callDeadline
}

type Option func(*options)

// WithRequireTLS refuses plaintext server addresses when true (the default).
func WithRequireTLS(require bool) Option {
	return func(o *options) {
		o.requireTLS = require
	}
}

// WithCallDeadline sets the fixed deadline applied to each call from its start.
func WithCallDeadline(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.callDeadline = d
		}
	}
}

// WithCloseGrace sets how long Close waits for in-flight calls before
// forcing the connection shut. It defaults to the call deadline.
func WithCloseGrace(d time.Duration) Option {
	return func(o *options) {
		o.closeGrace = d
	}
}

// WithCompatHandshake caps TLS at 1.2 for servers that cannot negotiate 1.3.
func WithCompatHandshake(enable bool) Option {
	return func(o *options) {
		o.compatHandshake = enable
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithResolver replaces net.DefaultResolver for the trust decision lookup.
func WithResolver(r Resolver) Option {
	return func(o *options) {
		if r != nil {
			o.resolver = r
		}
	}
}

// WithDialOptions appends gRPC dial options, e.g. a custom context dialer.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *options) {
		o.dialOpts = append(o.dialOpts, opts...)
	}
}
