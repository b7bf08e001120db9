package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/groboclown/p4ic4idea-sub032/internal/logger"
	"github.com/groboclown/p4ic4idea-sub032/internal/protocol/rpc/charset"
	"github.com/groboclown/p4ic4idea-sub032/internal/protocol/rpc/field"
	"github.com/groboclown/p4ic4idea-sub032/internal/protocol/rpc/message"
	"github.com/groboclown/p4ic4idea-sub032/internal/protocol/rpc/packet"
	"github.com/groboclown/p4ic4idea-sub032/pkg/auth"
	"github.com/groboclown/p4ic4idea-sub032/pkg/config"
	"github.com/groboclown/p4ic4idea-sub032/pkg/rpcconn"
	"github.com/groboclown/p4ic4idea-sub032/pkg/transport"
)

// ============================================================================
// probe
// ============================================================================

func runProbe(args []string) error {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/p4rpc/config.yaml)")
	logLevel := fs.String("log-level", "", "Override the configured log level (DEBUG, INFO, WARN, ERROR)")
	compress := fs.Bool("compress", false, "Send compress2 after connecting")
	hold := fs.Duration("hold", 0, "Keep the connection open this long before closing")
	user := fs.String("user", os.Getenv("P4USER"), "User the probe session is counted against")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath, *logLevel)
	if err != nil {
		return err
	}
	if fs.NArg() > 0 {
		host, port, secure, err := transport.SplitAddr(fs.Arg(0))
		if err != nil {
			return fmt.Errorf("address %q: %w", fs.Arg(0), err)
		}
		cfg.RPC.Host, cfg.RPC.Port, cfg.RPC.Secure = host, port, secure
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	m := config.InitializeMetrics(cfg)
	if m.Server != nil {
		go func() {
			if err := m.Server.Start(ctx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	connCfg, err := cfg.RPC.ConnConfig()
	if err != nil {
		return err
	}
	logger.Info("Dialing %s secure=%t %s", connCfg.Addr(), connCfg.Secure, connCfg.Tuning)

	conn, err := rpcconn.Dial(ctx, connCfg, rpcconn.Options{
		Metrics: m.RPCMetrics,
		Limiter: cfg.RPC.Limiter(),
	})
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	sessions := auth.NewCounter(m.RPCMetrics)
	prefix := auth.Prefix(connCfg.Addr(), *user)
	sessions.IncrementAndGet(prefix)
	defer sessions.DecrementAndGet(prefix)

	printProbe(os.Stdout, conn, connCfg)
	if prefix != "" {
		fmt.Printf("auth:         %s refs=%d\n", prefix, sessions.Count(prefix))
	}

	if *compress {
		if err := conn.EnableCompression(); err != nil {
			return err
		}
		fmt.Println("compression:  enabled")
	}

	if *hold > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(*hold):
		}
	}

	printStats(os.Stdout, conn.Stats().Snapshot())
	return nil
}

func printProbe(w io.Writer, conn *rpcconn.Conn, cfg rpcconn.Config) {
	fmt.Fprintf(w, "connection:   %s\n", conn.ID)
	fmt.Fprintf(w, "remote:       %s\n", conn.RemoteAddr())
	fmt.Fprintf(w, "local:        %s\n", conn.LocalAddr())
	fmt.Fprintf(w, "tuning:       %s\n", cfg.Tuning)

	if recv, err := conn.SystemRecvBufferSize(); err == nil {
		fmt.Fprintf(w, "recv buffer:  %d\n", recv)
	}
	if send, err := conn.SystemSendBufferSize(); err == nil {
		fmt.Fprintf(w, "send buffer:  %d\n", send)
	}
	if cfg.Secure {
		if fp, err := conn.Fingerprint(); err == nil {
			fmt.Fprintf(w, "fingerprint:  %s\n", fp)
		}
	}
}

func printStats(w io.Writer, s transport.StreamStatsSnapshot) {
	fmt.Fprintf(w, "bytes:        sent=%d recv=%d\n", s.TotalBytesSent, s.TotalBytesRecv)
	fmt.Fprintf(w, "packets:      sent=%d recv=%d\n", s.PacketsSent, s.PacketsRecv)
	fmt.Fprintf(w, "largest:      send=%d recv=%d\n", s.LargestSend, s.LargestRecv)
}

// ============================================================================
// interpolate
// ============================================================================

func runInterpolate(args []string) error {
	fs := flag.NewFlagSet("interpolate", flag.ContinueOnError)
	template := fs.String("template", "", "Message template, e.g. \"%depotFile%%'(['%change%']')'%\"")
	code := fs.String("code", "", "Optional message code to describe")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *template == "" {
		return errors.New("-template is required")
	}

	params, err := parseArgs(fs.Args())
	if err != nil {
		return err
	}

	if *code != "" {
		c, err := message.ParseCode(*code)
		if err != nil {
			return err
		}
		fmt.Printf("severity=%s generic=%d subsystem=%d id=%d args=%d\n",
			c.Severity, c.Generic, c.Subsystem, c.ID, c.ArgCount)
	}
	fmt.Println(message.Format(*template, params))
	return nil
}

// parseArgs turns name=value arguments into a map.
func parseArgs(args []string) (map[string]string, error) {
	params := make(map[string]string, len(args))
	for _, a := range args {
		name, value, ok := strings.Cut(a, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("argument %q is not name=value", a)
		}
		params[name] = value
	}
	return params, nil
}

// ============================================================================
// classify
// ============================================================================

func runClassify(args []string) error {
	fs := flag.NewFlagSet("classify", flag.ContinueOnError)
	pattern := fs.String("pattern", "", "Treat names matching this regular expression as binary")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var rule field.Rule
	if *pattern != "" {
		r, err := field.NewPatternRule(*pattern)
		if err != nil {
			return err
		}
		rule = r
	}

	for _, name := range fs.Args() {
		kind := field.Classify(name)
		if rule != nil {
			rule.Update(name)
			if rule.SkipConversion() {
				kind = field.KindBinary
			}
		}
		fmt.Printf("%s\t%s\n", name, kind)
	}
	return nil
}

// ============================================================================
// decode
// ============================================================================

func runDecode(args []string) error {
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	charsetName := fs.String("charset", "", "Charset of text fields on a non-unicode server (default iso8859-1)")
	unicode := fs.Bool("unicode", false, "Decode text fields as UTF-8")
	pattern := fs.String("pattern", "", "Keep fields matching this regular expression binary")
	start := fs.String("start", "", "First field of a binary range (with -stop)")
	stop := fs.String("stop", "", "Field that ends a binary range (with -start)")
	maxSize := fs.Int("max-size", rpcconn.DefaultMaxPacketSize, "Largest payload accepted")
	if err := fs.Parse(args); err != nil {
		return err
	}

	opts := packet.Options{Unicode: *unicode}
	if *charsetName != "" {
		cs, ok := charset.Lookup(*charsetName)
		if !ok {
			return fmt.Errorf("unknown charset %q", *charsetName)
		}
		opts.Charset = cs
	}
	rule, err := field.RuleFromOptions(*start, *stop, *pattern)
	if err != nil {
		return err
	}
	opts.Rule = rule

	in := io.Reader(os.Stdin)
	if fs.NArg() > 0 && fs.Arg(0) != "-" {
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	return decodeFrames(in, os.Stdout, opts, *maxSize)
}

// decodeFrames prints every frame in r until EOF.
func decodeFrames(r io.Reader, w io.Writer, opts packet.Options, maxSize int) error {
	br := bufio.NewReader(r)
	for n := 0; ; n++ {
		head := make([]byte, packet.PreambleSize)
		if _, err := io.ReadFull(br, head); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("frame %d: %w", n, err)
		}
		pre, err := packet.ParsePreamble(head)
		if err != nil {
			return fmt.Errorf("frame %d: %w", n, err)
		}
		if err := pre.Check(maxSize); err != nil {
			return fmt.Errorf("frame %d: %w", n, err)
		}

		payload := make([]byte, pre.PayloadSize())
		if _, err := io.ReadFull(br, payload); err != nil {
			return fmt.Errorf("frame %d: %w", n, err)
		}
		if rr, ok := opts.Rule.(*field.RangeRule); ok {
			rr.Reset()
		}
		p, err := packet.Decode(payload, opts)
		if err != nil {
			return fmt.Errorf("frame %d: %w", n, err)
		}
		printPacket(w, n, p)
	}
}

func printPacket(w io.Writer, n int, p *packet.Packet) {
	fmt.Fprintf(w, "#%d func=%s size=%d\n", n, p.Func, p.Size)
	for _, f := range p.Fields {
		name := f.Name
		if !f.Named {
			name = "(unnamed)"
		}
		if f.Value.Binary {
			fmt.Fprintf(w, "  %s [binary %d] %q\n", name, len(f.Value.Bytes), f.Value.Bytes)
		} else {
			fmt.Fprintf(w, "  %s = %s\n", name, f.Value.Text)
		}
	}

	for _, msg := range message.FromResults(p.Strings()) {
		fmt.Fprintf(w, "  message [%s] %s\n", msg.Code.Severity, msg.Text())
	}
}

// ============================================================================
// transcode
// ============================================================================

func runTranscode(args []string) error {
	fs := flag.NewFlagSet("transcode", flag.ContinueOnError)
	from := fs.String("from", charset.UTF8, "Charset of the input")
	chunk := fs.Int("chunk", 4096, "Read size; boundaries may split characters")
	check := fs.Bool("check", false, "Warn when the input does not look like -from")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cs, ok := charset.Lookup(*from)
	if !ok {
		return fmt.Errorf("unknown charset %q", *from)
	}

	in := io.Reader(os.Stdin)
	if fs.NArg() > 0 && fs.Arg(0) != "-" {
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	// Hide Close so stdout stays open after the converter is flushed.
	return transcode(in, struct{ io.Writer }{os.Stdout}, cs, *chunk, *check)
}

// transcode copies r to w converting from cs to UTF-8 in chunk sized reads.
func transcode(r io.Reader, w io.Writer, cs *charset.Charset, chunk int, check bool) error {
	if chunk <= 0 {
		chunk = 4096
	}

	out := cs.NewWriter(w)
	buf := make([]byte, chunk)
	first := true
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if first && check && !charset.Infer(buf[:n], n, cs) {
				logger.Warn("Input does not look like %s", cs.Name)
			}
			first = false
			if _, werr := out.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
	}
	return out.Close()
}

// ============================================================================
// charsets
// ============================================================================

func runCharsets(args []string) error {
	fs := flag.NewFlagSet("charsets", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	names := charset.Names()
	sort.Strings(names)
	for _, name := range names {
		cs := charset.MustLookup(name)
		fmt.Printf("%-12s %s\n", cs.Name, strings.Join(cs.Aliases, ", "))
	}
	return nil
}
