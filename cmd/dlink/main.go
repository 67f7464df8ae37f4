package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

const version = "0.1.0"

const commandsHelp = `
Commands:
  on             Switch the socket on
  off            Switch the socket off
  state          Print the socket state (ON, OFF or unknown)
  curr           Print the current power consumption in watts
  total          Print the total energy consumption in kWh
  temp           Print the plug temperature in degrees Celsius
  latest_motion  Print when the motion sensor last triggered
  actions        List the actions the device supports
  log            Print the device system log
  info           Print device details and resolved module IDs
  serve          Serve the device as MCP tools over stdio
`

func main() {
	// Handle subcommands before flag parsing.
	if len(os.Args) > 1 && os.Args[1] == "serve" {
		serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
		serveCmd.Usage = func() {
			fmt.Fprintf(os.Stderr, "Usage: dlink serve [flags]\n\nServe the device as MCP tools over stdio.\n\nFlags:\n")
			serveCmd.PrintDefaults()
		}
		opts := registerFlags(serveCmd)
		metricsAddr := serveCmd.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9100)")
		_ = serveCmd.Parse(os.Args[2:])

		if err := runServe(opts, *metricsAddr); err != nil {
			fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
			os.Exit(1)
		}

		return
	}

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: dlink [flags] <command>\n       dlink serve [flags]\n\nFlags:\n")
		flag.PrintDefaults()
		fmt.Fprint(os.Stderr, commandsHelp)
	}

	opts := registerFlags(flag.CommandLine)
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(opts, flag.Arg(0)); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

func run(opts *options, cmd string) error {
	if !isCommand(cmd) {
		return fmt.Errorf("unknown command %q (run dlink -h for a list)", cmd)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := resolveConfig(opts)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	dev, err := openDevice(cfg, log, nil)
	if err != nil {
		return err
	}
	defer func() { _ = dev.Close() }()

	var out string

	err = withSpinner(ctx, spinnerEnabled(opts), "Talking to "+cfg.Host, func(ctx context.Context) error {
		var err error
		out, err = execute(ctx, dev, cmd)
		return err
	})
	if err != nil {
		return err
	}

	fmt.Print(out)

	return nil
}
