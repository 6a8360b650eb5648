package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/capagrader/internal/chem"
	"github.com/pavelanni/capagrader/internal/handler"
	appI18n "github.com/pavelanni/capagrader/internal/i18n"
	"github.com/pavelanni/capagrader/internal/llm"
	"github.com/pavelanni/capagrader/internal/llm/prompts"
	"github.com/pavelanni/capagrader/internal/model"
	"github.com/pavelanni/capagrader/internal/olx"
	"github.com/pavelanni/capagrader/internal/preview"
	"github.com/pavelanni/capagrader/internal/queue"
	"github.com/pavelanni/capagrader/internal/responses"
	"github.com/pavelanni/capagrader/internal/store"
	"github.com/pavelanni/capagrader/internal/xqueue"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "capagrader",
		Short:        "CAPA problem grader and external grading queue",
		SilenceUsage: true,
	}

	serve := serveCmd()
	root.AddCommand(serve, gradeCmd(), previewCmd(), convertCmd(), workerCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func addQueueFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db", "capagrader.db", "SQLite database path")
	f.String("queue-backend", "sqlite", "Submission queue backend (sqlite, redis, memory)")
	f.String("redis-addr", "localhost:6379", "Redis address for the redis backend")
	f.String("redis-password", "", "Redis password")
	f.Int("redis-db", 0, "Redis database number")
	f.String("redis-prefix", queue.DefaultPrefix, "Prefix for every Redis key")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP grading server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringSliceP("problems", "p", nil, "OLX problem files or directories to import (repeatable)")
	f.StringP("lang", "l", "en", "Default language for learner messages (en, ru)")
	f.String("queue-base", "http://localhost:8080", "Public base URL external graders post scores to")
	f.String("default-queue", "", "Queue name used when a submission names none")
	f.String("admin-token", "", "Bearer token required to upload problems")
	f.String("callback-token", "", "Bearer token required on score_update callbacks")
	f.Uint64("seed", 0, "Seed for formula sampling (0 = random)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /grader)")
	addQueueFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func gradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grade PROBLEM.xml",
		Short: "Grade one answer to a response field of an OLX problem",
		Args:  cobra.ExactArgs(1),
		RunE:  runGrade,
	}
	f := cmd.Flags()
	f.IntP("response", "r", 0, "Index of the response field, in document order")
	f.String("answer", "", "Learner answer")
	f.Uint64("seed", 0, "Seed for formula sampling (0 = random)")
	_ = cmd.MarkFlagRequired("answer")
	addLogFlags(cmd)
	return cmd
}

func previewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview FORMULA",
		Short: "Render a formula as LaTeX, or a chemical expression as HTML",
		Args:  cobra.ExactArgs(1),
		RunE:  runPreview,
	}
	f := cmd.Flags()
	f.Bool("chemistry", false, "Treat the input as a chemical expression or equation")
	f.StringSlice("variables", nil, "Known variable names")
	f.StringSlice("functions", nil, "Known function names")
	f.Bool("case-sensitive", false, "Match identifiers case-sensitively")
	addLogFlags(cmd)
	return cmd
}

func convertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert FILE.xml...",
		Short: "Convert OLX problem markup to the JSON problem tree",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runConvert,
	}
	cmd.Flags().StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
	return cmd
}

func workerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Grade queued external submissions with an LLM",
		RunE:  runWorker,
	}
	f := cmd.Flags()
	f.String("queue", xqueue.DefaultQueue, "Queue name to consume")
	f.Int("concurrency", 2, "Number of submissions graded at once")
	f.Duration("poll-timeout", 5*time.Second, "How long one poll waits for a submission")
	f.String("callback-base", "", "Post scores to this base URL instead of updating the store directly")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("prompt-variant", string(prompts.PromptStandard), "Grading prompt variant (strict, standard, lenient)")
	addQueueFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export external submissions and their scores as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("queue", "", "Only export this queue (default: all)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addQueueFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("CAPAGRADER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("capagrader")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/capagrader")
	v.AddConfigPath("/etc/capagrader")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// backend is a submission queue the server writes to and the worker reads.
type backend interface {
	xqueue.Queue
	llm.Source
	handler.Submissions
}

// openBackend returns the configured queue. The sqlite backend reuses db.
func openBackend(v *viper.Viper, db *store.Store) (backend, func() error, error) {
	noop := func() error { return nil }
	switch name := strings.ToLower(v.GetString("queue-backend")); name {
	case "", "sqlite":
		return db, noop, nil
	case "memory":
		return xqueue.NewMemoryQueue(), noop, nil
	case "redis":
		r, err := queue.NewRedis(queue.Options{
			Addr:     v.GetString("redis-addr"),
			Password: v.GetString("redis-password"),
			DB:       v.GetInt("redis-db"),
			Prefix:   v.GetString("redis-prefix"),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return r, r.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown queue backend %q", name)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := loadProblems(db, v.GetStringSlice("problems")); err != nil {
		return fmt.Errorf("load problems: %w", err)
	}

	q, closeQueue, err := openBackend(v, db)
	if err != nil {
		return err
	}
	defer closeQueue()

	lang := v.GetString("lang")
	catalog, err := appI18n.New(lang)
	if err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	queueBase := strings.TrimRight(v.GetString("queue-base"), "/") + basePath

	bridge := xqueue.New(xqueue.Config{
		QueueBase:    queueBase,
		DefaultQueue: v.GetString("default-queue"),
	}, q)
	h := handler.New(handler.Config{
		AdminToken:    v.GetString("admin-token"),
		CallbackToken: v.GetString("callback-token"),
	}, db, q, bridge, responses.New(responses.Config{Seed: v.GetUint64("seed")}))

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(catalog.Middleware)
	if basePath != "" {
		r.Route(basePath, h.Routes)
	} else {
		h.Routes(r)
	}

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("starting server",
		"addr", addr,
		"queue_backend", v.GetString("queue-backend"),
		"queue_base", queueBase,
		"lang", lang,
		"base_path", basePath,
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func runGrade(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	p, err := olx.Convert(string(data))
	if err != nil {
		return fmt.Errorf("convert %s: %w", args[0], err)
	}
	fields := p.Gradable()
	idx := v.GetInt("response")
	if idx < 0 || idx >= len(fields) {
		return fmt.Errorf("response %d out of range: problem has %d response fields", idx, len(fields))
	}

	g := responses.New(responses.Config{Seed: v.GetUint64("seed")})
	res, err := g.Grade(p, fields[idx], v.GetString("answer"))
	if err != nil {
		return err
	}
	return writeOutput("-", res)
}

func runPreview(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	if v.GetBool("chemistry") {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), chem.RenderHTML(args[0]))
		return err
	}
	latex, err := preview.RenderLatex(args[0], v.GetStringSlice("variables"), v.GetStringSlice("functions"), v.GetBool("case-sensitive"))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), latex)
	return err
}

func runConvert(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	trees := make(map[string]*olx.Problem, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		p, err := olx.Convert(string(data))
		if err != nil {
			return fmt.Errorf("convert %s: %w", path, err)
		}
		trees[problemName(path)] = p
	}
	if len(args) == 1 {
		return writeOutput(v.GetString("output"), trees[problemName(args[0])])
	}
	return writeOutput(v.GetString("output"), trees)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	q, closeQueue, err := openBackend(v, db)
	if err != nil {
		return err
	}
	defer closeQueue()

	variant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(variant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", variant)
		variant = string(prompts.PromptStandard)
	}
	set, err := prompts.Default()
	if err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}
	client := llm.New(v.GetString("llm-url"), v.GetString("llm-key"), v.GetString("llm-model"), set, prompts.PromptVariant(variant))

	var reporter llm.Reporter
	if base := v.GetString("callback-base"); base != "" {
		reporter = &llm.HTTPReporter{QueueBase: base, Client: &http.Client{Timeout: 30 * time.Second}}
	} else {
		reporter = &llm.BridgeReporter{Bridge: xqueue.New(xqueue.Config{}, q)}
	}

	w := llm.NewWorker(llm.WorkerConfig{
		Queue:       v.GetString("queue"),
		Concurrency: v.GetInt("concurrency"),
		PollTimeout: v.GetDuration("poll-timeout"),
	}, q, client, reporter)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	slog.Info("starting worker", "queue", v.GetString("queue"), "model", v.GetString("llm-model"), "llm_url", v.GetString("llm-url"))
	return w.Run(ctx)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	q, closeQueue, err := openBackend(v, db)
	if err != nil {
		return err
	}
	defer closeQueue()

	export, err := q.ExportSubmissions(context.Background(), v.GetString("queue"))
	if err != nil {
		return fmt.Errorf("export submissions: %w", err)
	}
	return writeOutput(v.GetString("output"), export)
}

func writeOutput(outPath string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}

// problemName is the file name without directory and extension.
func problemName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// expandProblemPaths replaces each directory with the .xml files inside it.
func expandProblemPaths(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(p, "*.xml"))
		if err != nil {
			return nil, err
		}
		sort.Strings(matches)
		out = append(out, matches...)
	}
	return out, nil
}

// loadProblems converts and stores every problem file whose content changed
// since its last import, then records the library summary.
func loadProblems(db *store.Store, paths []string) error {
	files, err := expandProblemPaths(paths)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return nil
	}

	all := sha256.New()
	imported := 0
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		all.Write(data)

		hash := sha256sum(data)
		storedHash, err := db.GetImportedFileHash(path)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}
		if storedHash == hash {
			slog.Info("problem file unchanged, skipping", "path", path)
			continue
		}
		if storedHash != "" {
			slog.Info("problem file changed since last import, replacing", "path", path)
		}

		p, err := olx.Convert(string(data))
		if err != nil {
			return fmt.Errorf("convert %s: %w", path, err)
		}
		tree, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		if _, err := db.UpsertProblem(problemName(path), path, tree); err != nil {
			return fmt.Errorf("store problem from %s: %w", path, err)
		}
		if err := db.SetImportedFileHash(path, hash); err != nil {
			return fmt.Errorf("record import for %s: %w", path, err)
		}
		imported++
	}

	count, err := db.ProblemCount()
	if err != nil {
		return err
	}
	info := model.LibraryInfo{
		SourceFile: strings.Join(files, ","),
		FileHash:   hex.EncodeToString(all.Sum(nil)),
		ImportedAt: time.Now().UTC().Format(time.RFC3339),
		Count:      count,
	}
	if err := db.SetLibraryInfo(info); err != nil {
		return fmt.Errorf("record library info: %w", err)
	}
	slog.Info("problem library ready", "files", len(files), "imported", imported, "problems", count)
	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
