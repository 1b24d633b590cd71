package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/basalt-run/coprocrt"
	"golang.org/x/term"
)

func main() {
	configFlag := flag.String("config", "", "path to a TOML config file (defaults built in if omitted)")
	demoFlag := flag.String("demo", "hello-world", "which built-in demo to run: hello-world, ping, backpressure, leak, port-teardown")
	stepFlag := flag.Bool("step", false, "single-step the scheduler, pausing for a keypress between ticks")
	flag.Usage = showUsage
	flag.Parse()

	cfg := coprocrt.DefaultConfig()
	if *configFlag != "" {
		loaded, err := coprocrt.LoadConfig(*configFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "coprocrt: loading %s: %v\n", *configFlag, err)
			os.Exit(1)
		}
		cfg = loaded
	}

	logBits := coprocrt.ParseLogBits(cfg.Runtime.Log)
	if v := os.Getenv("COPROCRT_LOG"); v != "" {
		logBits = coprocrt.ParseLogBits(v)
	}
	logger := coprocrt.NewLogger(logBits, os.Stderr)
	host := coprocrt.NewStdHost(logger)
	rt := coprocrt.NewRuntime(cfg, host)

	if err := runDemo(rt, *demoFlag); err != nil {
		fmt.Fprintf(os.Stderr, "coprocrt: %v\n", err)
		os.Exit(1)
	}

	if *stepFlag {
		runStepped(rt)
	} else if err := rt.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "coprocrt: %v\n", err)
		os.Exit(1)
	}
}

func runDemo(rt *coprocrt.Runtime, name string) error {
	switch name {
	case "hello-world":
		coprocrt.HelloWorld(rt)
	case "ping":
		_, _, _ = coprocrt.Ping(rt, 0x11223344)
	case "backpressure":
		_, _, _, _ = coprocrt.Backpressure(rt, 1, 2)
	case "leak":
		coprocrt.LeakyAlloc(rt, 64)
	case "port-teardown":
		coprocrt.PortTeardown(rt)
	default:
		return fmt.Errorf("unknown demo %q", name)
	}
	return nil
}

// runStepped drives rt one scheduling tick at a time, waiting for a
// keypress on stdin between ticks — useful for watching proc state
// transitions happen one at a time rather than racing to completion.
func runStepped(rt *coprocrt.Runtime) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		fmt.Fprintln(os.Stderr, "coprocrt: -step requires an interactive terminal")
		if err := rt.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "coprocrt: %v\n", err)
			os.Exit(1)
		}
		return
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "coprocrt: failed to set raw mode: %v\n", err)
		os.Exit(1)
	}
	defer term.Restore(fd, oldState)

	fmt.Fprint(os.Stderr, "press any key to step, q to run to completion\r\n")
	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil || n == 0 {
			return
		}
		if buf[0] == 'q' {
			term.Restore(fd, oldState)
			if err := rt.Run(); err != nil {
				fmt.Fprintf(os.Stderr, "\r\ncoprocrt: %v\r\n", err)
				os.Exit(1)
			}
			return
		}

		more, err := rt.Step()
		if err != nil {
			fmt.Fprintf(os.Stderr, "\r\ncoprocrt: %v\r\n", err)
			os.Exit(1)
		}
		if !more {
			fmt.Fprint(os.Stderr, "\r\nscheduler idle, nothing left to run\r\n")
			return
		}
	}
}

func showUsage() {
	usage := `Usage: coprocrt [options]

Runs one of coprocrt's built-in scheduling demos against a fresh Runtime.

Options:
  -demo NAME     hello-world, ping, backpressure, leak, port-teardown (default hello-world)
  -config PATH   load runtime configuration from a TOML file
  -step          single-step the scheduler interactively, one tick per keypress
`
	fmt.Fprint(os.Stderr, usage)
}
