// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

// rrg-run executes one agent action locally and prints its replies as
// JSON lines. It drives the same dispatch path as the agent binary
// with a stand-in for the daemon connection, so handler behavior,
// argument decoding, and budget enforcement match production. Useful
// for developing actions and for one-off collection on a box where no
// daemon is running.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/sarvex/rrg/action/catalog"
	"github.com/sarvex/rrg/lib/budget"
	"github.com/sarvex/rrg/lib/codec"
	"github.com/sarvex/rrg/lib/process"
	"github.com/sarvex/rrg/lib/version"
	"github.com/sarvex/rrg/protocol"
	"github.com/sarvex/rrg/session"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		actionName  string
		argsJSON    string
		timeout     time.Duration
		maxReplies  uint64
		maxBytes    uint64
		listActions bool
	)

	flagSet := pflag.NewFlagSet("rrg-run", pflag.ContinueOnError)
	flagSet.StringVar(&actionName, "action", "", "catalog name of the action to run")
	flagSet.StringVar(&argsJSON, "args", "", "action arguments as a JSON object")
	flagSet.DurationVar(&timeout, "timeout", 0, "abort the run after this long (0 means no limit)")
	flagSet.Uint64Var(&maxReplies, "max-replies", 0, "reply-count ceiling (0 means unlimited)")
	flagSet.Uint64Var(&maxBytes, "max-bytes", 0, "payload-byte ceiling (0 means unlimited)")
	flagSet.BoolVar(&listActions, "list", false, "list available actions and exit")
	flagSet.BoolP("help", "h", false, "show help")

	// Handle --version before flag parsing to match the agent binary.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("rrg-run")
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}

	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	if listActions {
		for _, name := range catalog.Names() {
			fmt.Println(name)
		}
		return nil
	}

	if actionName == "" {
		return fmt.Errorf("--action is required (--list shows the catalog)")
	}
	id, err := protocol.ParseActionName(actionName)
	if err != nil {
		return err
	}

	args, err := argsToCBOR(argsJSON)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return execute(ctx, id, args, maxReplies, maxBytes)
}

// execute runs one action through the full dispatch path with a local
// stdout sender standing in for the daemon connection.
func execute(ctx context.Context, id protocol.ActionID, args codec.RawMessage, maxReplies, maxBytes uint64) error {
	registry, err := catalog.Build(nil)
	if err != nil {
		return err
	}

	sender := &stdoutSender{out: os.Stdout}
	dispatcherConfig := session.DispatcherConfig{
		Catalog: registry,
		Sender:  sender,
		Logger:  slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	}
	if maxReplies > 0 || maxBytes > 0 {
		budgets, err := budget.NewTable(budget.Budget{MaxReplies: maxReplies, MaxBytes: maxBytes})
		if err != nil {
			return err
		}
		dispatcherConfig.Budgets = budgets
	}

	dispatcher, err := session.NewDispatcher(dispatcherConfig)
	if err != nil {
		return err
	}

	dispatcher.Handle(ctx, protocol.RequestEnvelope{
		SessionID: 1,
		Action:    id,
		Args:      args,
	})

	status := sender.status
	if !status.OK {
		return fmt.Errorf("%s: %s", status.Class, status.Error)
	}
	fmt.Fprintf(os.Stderr, "ok: %d replies, %d payload bytes\n", status.Seq-1, sender.payloadBytes)
	return nil
}

// stdoutSender prints session output for a local run: each reply
// payload becomes one JSON line on stdout, heartbeats are dropped,
// and the terminal status is captured for the exit path.
type stdoutSender struct {
	out          *os.File
	status       protocol.Status
	payloadBytes uint64
}

var _ session.Sender = (*stdoutSender)(nil)

func (s *stdoutSender) SendReply(reply protocol.Reply) error {
	line, err := payloadJSON(reply.Payload)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, line)
	s.payloadBytes += uint64(len(reply.Payload))
	return nil
}

func (s *stdoutSender) SendStatus(status protocol.Status) error {
	s.status = status
	return nil
}

func (s *stdoutSender) SendHeartbeat(protocol.Heartbeat) error {
	return nil
}

// payloadJSON renders a CBOR payload as a single JSON line, falling
// back to CBOR diagnostic notation for values JSON cannot express.
func payloadJSON(payload codec.RawMessage) (string, error) {
	var value any
	if err := codec.Unmarshal(payload, &value); err != nil {
		return "", fmt.Errorf("decoding reply payload: %w", err)
	}
	line, err := json.Marshal(value)
	if err != nil {
		return codec.Diagnose(payload)
	}
	return string(line), nil
}

// argsToCBOR converts the --args JSON object to the wire encoding the
// action decoders expect. An empty string means no arguments.
func argsToCBOR(jsonText string) (codec.RawMessage, error) {
	if jsonText == "" {
		return nil, nil
	}
	var value any
	if err := json.Unmarshal([]byte(jsonText), &value); err != nil {
		return nil, fmt.Errorf("parsing --args: %w", err)
	}
	encoded, err := codec.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encoding --args: %w", err)
	}
	return codec.RawMessage(encoded), nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Run one agent action locally and print its replies as JSON lines.

rrg-run drives the same dispatch path as the agent binary with a
stand-in for the daemon connection. Replies go to stdout, one JSON
object per line; diagnostics and the final status go to stderr. The
exit code is non-zero when the action fails.

Usage:
  rrg-run --action <name> [flags]

Examples:
  # List what this build can do
  rrg-run --list

  # Stat a file
  rrg-run --action stat --args '{"path":"/etc/hostname"}'

  # Walk a directory tree, capped at 100 entries
  rrg-run --action timeline --args '{"root":"/var/log"}' --max-replies 100

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
