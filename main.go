package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"quantumscan/output"
	"quantumscan/port"
	"quantumscan/scanner"
)

func main() {
	portsSpec := flag.String("p", "", "ports (e.g. 22,80,8000-8100) (required)")
	scanTypes := flag.String("scan", "syn", "comma-separated techniques: syn,ack,fin,xmas,null,window,udp,ssl,tls_echo,mimic,frag")
	concurrency := flag.Int("c", 100, "concurrent port tasks (capped at 500)")
	maxRate := flag.Int("rate", 500, "max packets per second")
	maxTries := flag.Int("tries", 3, "probe attempts per technique")
	evasion := flag.Bool("e", false, "enable evasion (randomized TTL and IP ID)")
	ipv6 := flag.Bool("6", false, "scan over IPv6")
	shuffle := flag.Bool("shuffle", false, "randomize port scan order")
	discover := flag.Bool("discover", false, "ICMP echo liveness check before scanning")
	scanTO := flag.Duration("t", 3*time.Second, "raw probe reply timeout")
	connectTO := flag.Duration("ct", 3*time.Second, "connect probe timeout")
	bannerTO := flag.Duration("bt", 3*time.Second, "banner read timeout")
	mimicProto := flag.String("mimic", "HTTP", "mimic payload protocol (HTTP, SSH, FTP, SMTP, IMAP, POP3)")
	fragMinSize := flag.Int("frag-min-size", 16, "min fragment payload size (multiple of 8)")
	fragMaxSize := flag.Int("frag-max-size", 64, "max fragment payload size")
	fragMinDelay := flag.Duration("frag-min-delay", 10*time.Millisecond, "min delay between fragments")
	fragMaxDelay := flag.Duration("frag-max-delay", 100*time.Millisecond, "max delay between fragments")
	fragTimeout := flag.Duration("frag-timeout", 10*time.Second, "fragment scan reply window")
	iface := flag.String("i", "", "capture interface override")
	jsonOut := flag.String("j", "", "write JSON results to file (overwrite, atomic)")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "error: target positional argument required")
		flag.Usage()
		os.Exit(2)
	}
	target := flag.Arg(0)

	if *portsSpec == "" {
		fmt.Fprintln(os.Stderr, "error: -p <ports> is required")
		flag.Usage()
		os.Exit(2)
	}

	ports, err := port.ParsePortSpec(*portsSpec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid ports spec: %v\n", err)
		os.Exit(2)
	}

	techniques, err := port.ParseTechniques(strings.Split(*scanTypes, ","))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -scan value: %v\n", err)
		os.Exit(2)
	}

	log := zap.NewNop()
	if *verbose {
		log, err = zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
			os.Exit(4)
		}
		defer func() { _ = log.Sync() }()
	}

	cfg := scanner.Config{
		Target:         target,
		Ports:          ports,
		Techniques:     techniques,
		Concurrency:    *concurrency,
		MaxRate:        *maxRate,
		MaxTries:       *maxTries,
		Evasion:        *evasion,
		IPv6:           *ipv6,
		ShufflePorts:   *shuffle,
		Discover:       *discover,
		TimeoutScan:    *scanTO,
		TimeoutConnect: *connectTO,
		TimeoutBanner:  *bannerTO,
		MimicProtocol:  *mimicProto,
		FragMinSize:    *fragMinSize,
		FragMaxSize:    *fragMaxSize,
		FragMinDelay:   *fragMinDelay,
		FragMaxDelay:   *fragMaxDelay,
		FragTimeout:    *fragTimeout,
		Interface:      *iface,
		Logger:         log,
	}

	mgr := scanner.NewManager(cfg)

	results, err := mgr.Run(context.Background())
	if err != nil {
		if errors.Is(err, scanner.ErrNeedPriv) {
			fmt.Fprintln(os.Stderr, "The requested techniques need raw socket privileges. Rerun with elevated privileges (root/CAP_NET_RAW) or limit -scan to ssl. No fallback is performed.")
			os.Exit(3)
		}
		fmt.Fprintf(os.Stderr, "scan failed: %v\n", err)
		os.Exit(4)
	}

	// Render into a buffer first so a write error cannot leave a
	// half-printed table.
	var buf bytes.Buffer
	output.PrintTable(results, &buf)
	if _, err := os.Stdout.Write(buf.Bytes()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write to stdout: %v\n", err)
		os.Exit(4)
	}

	if *jsonOut != "" {
		if err := output.WriteJSON(results, *jsonOut); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write JSON output: %v\n", err)
			os.Exit(4)
		}
	}
}
