// Paltry CLI - read, compile and run Paltry programs
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/tliron/commonlog"

	"github.com/TheBB/Paltry/compiler"
	"github.com/TheBB/Paltry/ir"
	"github.com/TheBB/Paltry/jit"
	"github.com/TheBB/Paltry/journal"
	"github.com/TheBB/Paltry/manifest"
	"github.com/TheBB/Paltry/server"
	"github.com/TheBB/Paltry/vm"
)

const historyFile = ".paltry_history"

func main() {
	showIR := flag.Bool("show-ir", false, "Print the IR of every compiled unit")
	verbose := flag.Bool("v", false, "Verbose output (debug logging)")
	interactive := flag.Bool("i", false, "Start interactive REPL after running files")
	noConfig := flag.Bool("no-config", false, "Skip loading paltry.toml")
	serveMode := flag.Bool("serve", false, "Start eval server (Connect HTTP/JSON + gRPC)")
	servePort := flag.Int("port", 4567, "Eval server port (used with --serve)")
	grpcPort := flag.Int("grpc-port", 0, "Native gRPC port (used with --serve, 0 = off)")
	lspMode := flag.Bool("lsp", false, "Start LSP server on stdio")
	inspect := flag.String("inspect", "", "Print the units of a snapshot file and exit")
	dump := flag.String("dump", "", "Write a snapshot of compiled units to this file on exit")
	journalPath := flag.String("journal", "", "Record every evaluation in this SQLite database")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: paltry [options] [files...]\n\n")
		fmt.Fprintf(os.Stderr, "Evaluates the given Paltry files in order, or starts a REPL.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  paltry                         # Start REPL\n")
		fmt.Fprintf(os.Stderr, "  paltry -show-ir prog.pt        # Run prog.pt, printing IR\n")
		fmt.Fprintf(os.Stderr, "  paltry -dump image.cbor a.pt   # Run a.pt, save compiled units\n")
		fmt.Fprintf(os.Stderr, "  paltry -inspect image.cbor     # Show saved units\n")
		fmt.Fprintf(os.Stderr, "  paltry -journal paltry.db      # REPL, recording every evaluation\n")
		fmt.Fprintf(os.Stderr, "\nEval Server:\n")
		fmt.Fprintf(os.Stderr, "  paltry --serve                         # Serve on :4567\n")
		fmt.Fprintf(os.Stderr, "  paltry lib.pt --serve --grpc-port 4568 # Load lib.pt, add native gRPC\n")
	}
	flag.Parse()

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg := manifest.Default()
	if !*noConfig {
		cwd, _ := os.Getwd()
		m, err := manifest.FindAndLoad(cwd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		} else if m != nil {
			cfg = m
		}
	}

	verbosity := cfg.Log.Verbosity
	if *verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, cfg.LogPath())

	if *inspect != "" {
		if err := inspectSnapshot(os.Stdout, *inspect); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	var opts []jit.Option
	if *showIR || (!set["show-ir"] && cfg.Session.ShowIR) {
		opts = append(opts, jit.WithShowIR(os.Stdout))
	}
	jpath := cfg.JournalPath()
	if set["journal"] {
		jpath = *journalPath
	}
	var jnl *journal.Journal
	if jpath != "" {
		var err error
		if jnl, err = journal.Open(jpath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer jnl.Close()
		opts = append(opts, jit.WithRecorder(jnl))
	}
	sess := jit.NewSession(vm.NewVM(), opts...)

	if cfg.Dir != "" {
		for _, path := range cfg.PreludePaths() {
			if err := runFile(sess, path, *verbose); err != nil {
				fmt.Fprintf(os.Stderr, "Error in prelude: %v\n", err)
				os.Exit(1)
			}
		}
	}

	paths := flag.Args()
	for _, path := range paths {
		if err := runFile(sess, path, *verbose); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			writeDump(sess, *dump)
			os.Exit(1)
		}
	}

	// Start LSP server if requested
	if *lspMode {
		if err := server.NewLSP(sess).Run(); err != nil {
			fmt.Fprintf(os.Stderr, "LSP error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Start eval server if requested
	if *serveMode {
		addr := cfg.Server.Addr
		if set["port"] || addr == "" {
			addr = fmt.Sprintf(":%d", *servePort)
		}
		grpcAddr := cfg.Server.GRPCAddr
		if set["grpc-port"] {
			grpcAddr = ""
			if *grpcPort > 0 {
				grpcAddr = fmt.Sprintf(":%d", *grpcPort)
			}
		}

		srv := server.New(sess)
		defer srv.Stop()
		if grpcAddr != "" {
			lis, err := net.Listen("tcp", grpcAddr)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
				os.Exit(1)
			}
			go srv.ServeGRPC(lis)
		}
		if err := srv.ListenAndServe(addr); err != nil {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Start REPL if requested or if no files given
	if *interactive || len(paths) == 0 {
		runREPL(sess, jnl)
	}
	writeDump(sess, *dump)
}

// runFile evaluates the forms of a file one at a time, so each top-level
// form becomes its own unit.
func runFile(sess *jit.Session, path string, verbose bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	forms, err := compiler.ReadAll(sess.VM().Symbols, string(data))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	for _, form := range forms {
		if _, err := sess.Eval(form); err != nil {
			return fmt.Errorf("%s: %s: %w", path, form, err)
		}
	}
	if verbose {
		fmt.Printf("Loaded %s (%d forms)\n", path, len(forms))
	}
	return nil
}

func writeDump(sess *jit.Session, path string) {
	if path == "" {
		return
	}
	data, err := sess.Snapshot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error writing snapshot: %v\n", err)
		return
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing snapshot: %v\n", err)
	}
}

// inspectSnapshot prints every unit of a snapshot file as IR text.
func inspectSnapshot(w io.Writer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	units, err := ir.UnmarshalUnits(data, vm.NewSymbolTable())
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	for i, u := range units {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprint(w, u.Format())
	}
	return nil
}

// ---------------------------------------------------------------------------
// REPL
// ---------------------------------------------------------------------------

func runREPL(sess *jit.Session, jnl *journal.Journal) {
	fmt.Println("Paltry REPL (':help' for commands, ':quit' to exit)")
	fmt.Println()

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)
	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	for {
		src, ok := readByParseProbe(ln, ">> ", ".. ")
		if !ok {
			fmt.Println()
			break
		}
		input := strings.TrimSpace(src)
		if input == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(input, "\n", " "))

		// Handle REPL commands (start with ':')
		if strings.HasPrefix(input, ":") {
			if quit := handleREPLCommand(os.Stdout, sess, jnl, input); quit {
				break
			}
			continue
		}

		evalAndPrint(os.Stdout, sess, input)
	}
}

// readByParseProbe reads lines until they form complete s-expressions or
// cannot be completed by more input. Probing uses a scratch symbol table so
// abandoned input interns nothing in the session.
func readByParseProbe(ln *liner.State, prompt, cont string) (string, bool) {
	var b strings.Builder

	for {
		var line string
		var err error
		if b.Len() == 0 {
			line, err = ln.Prompt(prompt)
		} else {
			line, err = ln.Prompt(cont)
		}
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if err != nil {
			return "", true
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if strings.HasPrefix(strings.TrimSpace(src), ":") {
			return src, true
		}
		_, perr := compiler.ReadAll(vm.NewSymbolTable(), src)
		if compiler.IsIncomplete(perr) {
			continue
		}
		return src, true
	}
}

// evalAndPrint evaluates one REPL entry and prints its result.
func evalAndPrint(w io.Writer, sess *jit.Session, input string) {
	v, err := sess.EvalString(input)
	switch {
	case err == nil:
		fmt.Fprintln(w, v)
	case errors.Is(err, jit.ErrEvalFailed):
		fmt.Fprintln(w, "Error!")
	default:
		fmt.Fprintf(w, "Error: %v\n", err)
	}
}

// handleREPLCommand handles REPL meta-commands. It reports whether the REPL
// should exit. jnl may be nil when journaling is off.
func handleREPLCommand(w io.Writer, sess *jit.Session, jnl *journal.Journal, cmd string) bool {
	fields := strings.Fields(cmd)
	switch fields[0] {
	case ":help", ":h", ":?":
		fmt.Fprintln(w, "REPL Commands:")
		fmt.Fprintln(w, "  :help, :h, :?     Show this help")
		fmt.Fprintln(w, "  :units            List compiled units")
		fmt.Fprintln(w, "  :ir NAME          Show the IR of a unit")
		fmt.Fprintln(w, "  :stats            Show session counters")
		fmt.Fprintln(w, "  :journal [N]      Show the last N journal entries")
		fmt.Fprintln(w, "  :quit, :q         Exit REPL")
	case ":units":
		for _, name := range sess.Units() {
			fmt.Fprintln(w, name)
		}
	case ":ir":
		if len(fields) != 2 {
			fmt.Fprintln(w, "Usage: :ir NAME")
			break
		}
		cu, ok := sess.Unit(fields[1])
		if !ok {
			fmt.Fprintf(w, "No unit %s\n", fields[1])
			break
		}
		fmt.Fprint(w, cu.IR().Format())
	case ":stats":
		st := sess.Stats()
		fmt.Fprintf(w, "compiled %d, linked %d, verify failures %d, evaluations %d, eval failures %d\n",
			st.UnitsCompiled, st.UnitsLinked, st.VerifyFailures, st.Evaluations, st.EvalFailures)
	case ":journal":
		printJournal(w, jnl, fields[1:])
	case ":quit", ":q":
		return true
	default:
		fmt.Fprintf(w, "Unknown command: %s (try :help)\n", fields[0])
	}
	return false
}

func printJournal(w io.Writer, jnl *journal.Journal, args []string) {
	if jnl == nil {
		fmt.Fprintln(w, "Journal is off (use -journal PATH)")
		return
	}
	n := 10
	if len(args) > 0 {
		var err error
		if n, err = strconv.Atoi(args[0]); err != nil || n <= 0 {
			fmt.Fprintln(w, "Usage: :journal [N]")
			return
		}
	}
	entries, err := jnl.Recent(n)
	if err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	for _, e := range entries {
		outcome := e.Result
		if e.Err != "" {
			outcome = "error: " + e.Err
		}
		fmt.Fprintf(w, "%s %s  %s => %s\n", e.At.Format("2006-01-02 15:04:05"), e.Unit, e.Source, outcome)
	}
}
