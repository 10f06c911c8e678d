// Command bridge-call connects to painter-bridge as the engine would and
// issues a single request, or listens for host pushes.
//
//	bridge-call GET_VERSION
//	bridge-call OPEN_PROJECT '{"path":"/work/scene.spp"}'
//	bridge-call --listen
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/flowptr/painter-bridge/internal/rpc"
)

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      string          `json:"id"`
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "bridge-call:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	flagSet := pflag.NewFlagSet("bridge-call", pflag.ContinueOnError)
	url := flagSet.String("url", "ws://127.0.0.1:12345", "bridge WebSocket endpoint")
	listen := flagSet.Bool("listen", false, "print host pushes until interrupted")
	timeout := flagSet.Duration("timeout", 30*time.Second, "how long to wait for the reply")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rest := flagSet.Args()
	if *listen {
		return listenPushes(ctx, *url, stdout)
	}
	if len(rest) == 0 || len(rest) > 2 {
		return errors.New("usage: bridge-call [--url URL] METHOD [PARAMS_JSON]")
	}

	var params json.RawMessage
	if len(rest) == 2 {
		if !json.Valid([]byte(rest[1])) {
			return fmt.Errorf("params are not valid JSON: %s", rest[1])
		}
		params = json.RawMessage(rest[1])
	}

	callCtx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	result, err := call(callCtx, *url, rest[0], params, stderr)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, string(result))
	return err
}

// call sends one request and returns the raw result. Host pushes that
// arrive meanwhile are written to pushes.
func call(ctx context.Context, url, method string, params json.RawMessage, pushes io.Writer) (json.RawMessage, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", url, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	frame, err := json.Marshal(request{JSONRPC: "2.0", Method: method, Params: params, ID: id})
	if err != nil {
		return nil, err
	}
	if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
		return nil, fmt.Errorf("sending %s: %w", method, err)
	}

	wantID, _ := json.Marshal(id)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return nil, fmt.Errorf("waiting for reply: %w", err)
		}
		msg, err := rpc.Decode(data)
		if err != nil {
			fmt.Fprintf(pushes, "ignoring frame: %v\n", err)
			continue
		}
		if msg.Method != "" {
			fmt.Fprintf(pushes, "push %s %s\n", msg.Method, string(msg.Params))
			continue
		}
		if string(msg.ID) != string(wantID) {
			continue
		}
		if msg.Error != nil {
			return nil, msg.Error
		}
		if len(msg.Result) == 0 {
			return json.RawMessage("null"), nil
		}
		return msg.Result, nil
	}
}

// listenPushes prints every host push until ctx ends
func listenPushes(ctx context.Context, url string, out io.Writer) error {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", url, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		fmt.Fprintln(out, string(data))
	}
}
