package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"relaynet.dev/cogrpc/cogrpc"
	"relaynet.dev/cogrpc/internal/relaytest"
	"relaynet.dev/cogrpc/relay"
	"relaynet.dev/cogrpc/spool"
)

type env struct {
	opts   []cogrpc.Option
	dir    string
	config string
	outbox string
	inbox  string
}

// setup starts svc and points the command at it through a config file.
func setup(t *testing.T, svc *relaytest.Service) env {
	t.Helper()
	srv := relaytest.Start(t, svc)

	dir := t.TempDir()
	e := env{
		opts:   []cogrpc.Option{cogrpc.WithDialOptions(srv.DialOption())},
		dir:    dir,
		config: filepath.Join(dir, "cogrpc.yaml"),
		outbox: filepath.Join(dir, "outbox"),
		inbox:  filepath.Join(dir, "inbox"),
	}
	body := fmt.Sprintf(`server: http://127.0.0.1:21473
require_tls: false
call_deadline: 2s
spool:
  outbox: %s
  inbox: %s
log:
  outputs: [%s]
`, e.outbox, e.inbox, filepath.Join(dir, "cogrpc.log"))
	if err := os.WriteFile(e.config, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return e
}

func (e env) run(args ...string) (int, string, string) {
	var out, errOut bytes.Buffer
	code := runWith(context.Background(), args, &out, &errOut, e.opts...)
	return code, out.String(), errOut.String()
}

func runCmd(args ...string) (int, string, string) {
	return env{}.run(args...)
}

func TestRun_Usage(t *testing.T) {
	if code, _, _ := runCmd(); code != 2 {
		t.Fatalf("no args: got exit %d want 2", code)
	}
	if code, _, _ := runCmd("frobnicate"); code != 2 {
		t.Fatalf("unknown command: got exit %d want 2", code)
	}
	code, out, _ := runCmd("help")
	if code != 0 || !strings.Contains(out, "cogrpc deliver") {
		t.Fatalf("help: exit %d, %q", code, out)
	}
}

func TestDeliver_AcknowledgedCargoLeavesOutbox(t *testing.T) {
	e := setup(t, &relaytest.Service{Deliver: relaytest.AckAll})

	var files []string
	for _, body := range []string{"first cargo", "second cargo"} {
		p := filepath.Join(e.dir, strings.ReplaceAll(body, " ", "-"))
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		files = append(files, p)
	}

	code, out, errOut := e.run(append([]string{"deliver", "--config", e.config}, files...)...)
	if code != 0 {
		t.Fatalf("deliver: exit %d, stderr %q", code, errOut)
	}
	if strings.Count(out, "acked ") != 2 || !strings.Contains(out, "delivered 2/2") {
		t.Fatalf("deliver output: %q", out)
	}

	outbox, err := spool.New(e.outbox)
	if err != nil {
		t.Fatalf("spool.New failed: %v", err)
	}
	left, err := outbox.List()
	if err != nil || len(left) != 0 {
		t.Fatalf("outbox after delivery: %v, %v", left, err)
	}
}

func TestDeliver_UnacknowledgedCargoStays(t *testing.T) {
	e := setup(t, &relaytest.Service{
		Deliver: func(stream relay.CargoRelay_DeliverCargoServer) error {
			_, err := stream.Recv()
			return err
		},
	})
	p := filepath.Join(e.dir, "cargo")
	if err := os.WriteFile(p, []byte("cargo"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	code, out, errOut := e.run("deliver", "--config", e.config, p)
	if code != 0 {
		t.Fatalf("deliver: exit %d, stderr %q", code, errOut)
	}
	if !strings.Contains(out, "delivered 0/1") {
		t.Fatalf("deliver output: %q", out)
	}
	outbox, _ := spool.New(e.outbox)
	id, _ := spool.CargoID([]byte("cargo"))
	if !outbox.Has(id) {
		t.Fatalf("unacknowledged cargo must stay in the outbox")
	}
}

func TestDeliver_ServerError(t *testing.T) {
	e := setup(t, &relaytest.Service{
		Deliver: func(stream relay.CargoRelay_DeliverCargoServer) error {
			return status.Error(codes.Unavailable, "maintenance")
		},
	})
	p := filepath.Join(e.dir, "cargo")
	if err := os.WriteFile(p, []byte("cargo"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	code, _, errOut := e.run("deliver", "--config", e.config, p)
	if code != 1 || !strings.Contains(errOut, "relay failure") {
		t.Fatalf("deliver: exit %d, stderr %q", code, errOut)
	}
}

func TestDeliver_EmptyOutbox(t *testing.T) {
	svc := &relaytest.Service{Deliver: relaytest.AckAll}
	e := setup(t, svc)

	code, out, errOut := e.run("deliver", "--config", e.config)
	if code != 0 || !strings.Contains(out, "delivered 0/0") {
		t.Fatalf("deliver: exit %d, out %q, stderr %q", code, out, errOut)
	}
	if svc.DeliverCalls() != 0 {
		t.Fatalf("an empty outbox must not open a call")
	}
}

func TestDeliver_TLSRequiredByFlag(t *testing.T) {
	e := setup(t, &relaytest.Service{Deliver: relaytest.AckAll})
	p := filepath.Join(e.dir, "cargo")
	if err := os.WriteFile(p, []byte("cargo"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	code, _, errOut := e.run("deliver", "--config", e.config, "--require-tls", p)
	if code != 1 || !strings.Contains(errOut, "with TLS required") {
		t.Fatalf("deliver: exit %d, stderr %q", code, errOut)
	}
}

func TestCollect_StoresThenAcknowledges(t *testing.T) {
	acks := make(chan string, 1)
	e := setup(t, &relaytest.Service{
		Collect: func(stream relay.CargoRelay_CollectCargoServer) error {
			if err := stream.Send(&relay.CargoDelivery{Id: "parcel-1", Cargo: []byte("inbound")}); err != nil {
				return err
			}
			ack, err := stream.Recv()
			if err != nil {
				return err
			}
			acks <- ack.GetId()
			return nil
		},
	})
	cca := filepath.Join(e.dir, "cca.der")
	if err := os.WriteFile(cca, []byte("CCA"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	code, out, errOut := e.run("collect", "--config", e.config, "--cca", cca)
	if code != 0 {
		t.Fatalf("collect: exit %d, stderr %q", code, errOut)
	}
	id, _ := spool.CargoID([]byte("inbound"))
	if !strings.Contains(out, "collected parcel-1 "+id.String()) {
		t.Fatalf("collect output: %q", out)
	}
	if got := <-acks; got != "parcel-1" {
		t.Fatalf("server saw ack %q", got)
	}
	inbox, _ := spool.New(e.inbox)
	b, err := inbox.Get(id)
	if err != nil || string(b) != "inbound" {
		t.Fatalf("inbox: %q, %v", b, err)
	}
}

func TestCollect_Refused(t *testing.T) {
	e := setup(t, &relaytest.Service{
		Collect: func(stream relay.CargoRelay_CollectCargoServer) error {
			return status.Error(codes.PermissionDenied, "expired CCA")
		},
	})
	cca := filepath.Join(e.dir, "cca.der")
	if err := os.WriteFile(cca, []byte("CCA"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	code, _, errOut := e.run("collect", "--config", e.config, "--cca", cca)
	if code != 1 || !strings.Contains(errOut, "refused the CCA") {
		t.Fatalf("collect: exit %d, stderr %q", code, errOut)
	}
}

func TestCollect_MissingCCA(t *testing.T) {
	e := setup(t, &relaytest.Service{})
	if code, _, _ := e.run("collect", "--config", e.config); code != 2 {
		t.Fatalf("collect without --cca: got exit %d want 2", code)
	}
	code, _, _ := e.run("collect", "--config", e.config, "--cca", filepath.Join(e.dir, "absent.der"))
	if code != 1 {
		t.Fatalf("collect with an unreadable CCA: got exit %d want 1", code)
	}
}
