// Command send is the bootstrap CLI spec.md §1 and §6 place out of core
// scope but whose invariants (exit codes, flag surface) bind the core.
// It selects transmitter or receiver mode and exits non-zero on
// PathMissing, KeyMaterialMissing, or HandshakeTimeout.
package main

import (
	"flag"
	"fmt"
	"os"

	send "github.com/sweetsrepo/send"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	transmit := fs.Bool("transmit", false, "act as transmitter")
	receive := fs.Bool("receive", false, "act as receiver")
	ip := fs.String("ip", "", "remote IP to connect to (receiver only)")
	port := fs.Int("port", 0, "port to bind/connect (default from config)")
	location := fs.String("location", "", "path to publish (transmit) or store into (receive)")
	publicKey := fs.String("public_key", "", "transmitter public key, path or raw hex (receiver only)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *transmit == *receive {
		fmt.Fprintln(os.Stderr, "send: specify exactly one of -transmit or -receive")
		return 2
	}
	if *location == "" {
		fmt.Fprintln(os.Stderr, "send: -location is required")
		return 2
	}

	cfg, err := send.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "send: loading config:", err)
		return 1
	}
	mgr, err := send.NewManager(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "send: creating manager:", err)
		return 1
	}
	defer mgr.Shutdown()

	var handle *send.Handle
	if *transmit {
		handle, err = mgr.Publish(*port, *location, send.AlwaysUpdated)
	} else {
		if *ip == "" {
			fmt.Fprintln(os.Stderr, "send: -ip is required for -receive")
			return 2
		}
		handle, err = mgr.Subscribe(*ip, *port, *location, *publicKey)
	}
	if err != nil {
		return exitCodeFor(err)
	}

	if err := handle.Wait(); err != nil {
		fmt.Fprintln(os.Stderr, "send:", err)
		return exitCodeFor(err)
	}
	return 0
}

func exitCodeFor(err error) int {
	switch {
	case err == send.ErrPathMissing, err == send.ErrKeyMaterialMissing, err == send.ErrHandshakeTimeout:
		return 1
	default:
		return 1
	}
}
