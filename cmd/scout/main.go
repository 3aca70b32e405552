package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"voxelscout.ai/internal/gameapi"
	"voxelscout.ai/internal/mcp"
	"voxelscout.ai/internal/nav/classify"
	"voxelscout.ai/internal/scout"
	"voxelscout.ai/internal/survey"
	"voxelscout.ai/internal/tuning"
	"voxelscout.ai/internal/watch"
)

func main() {
	var (
		listen     = flag.String("listen", "127.0.0.1:4561", "http listen address (mcp + watch + metrics)")
		apiBase    = flag.String("api", "", "game bot API base url (default: tuning api_base)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		agent      = flag.String("agent", "scout", "agent name reported on the watch stream")
		record     = flag.Bool("record", true, "record scans and routes (journal + index + session snapshot)")
		resume     = flag.Bool("resume", true, "resume counters and last scan from the previous session snapshot")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[scout] ", log.LstdFlags|log.Lmicroseconds)

	table, err := classify.Load(*configDir)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("block catalog not found in %s; using built-in table", *configDir)
			table = classify.DefaultTable()
		} else {
			logger.Fatalf("load block catalog: %v", err)
		}
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	base := strings.TrimSpace(*apiBase)
	if base == "" {
		base = tune.APIBase
	}

	ctx, cancel := signalContext()
	defer cancel()

	var (
		idx     *survey.Index
		journal *survey.Journal
	)
	if *record {
		_ = os.MkdirAll(*dataDir, 0o755)
		idx, err = survey.OpenIndex(filepath.Join(*dataDir, "survey.db"))
		if err != nil {
			logger.Fatalf("open survey index: %v", err)
		}
		defer idx.Close()
		if err := idx.RecordCatalog(table.Digest()); err != nil {
			logger.Printf("survey index: record catalog: %v", err)
		}
		journal = survey.NewJournal(filepath.Join(*dataDir, "journal"))
		defer journal.Close()
	}

	watchSrv := watch.NewServer(*agent, logger)

	engine, err := scout.New(scout.Config{
		API:     gameapi.New(base),
		Table:   table,
		Tuning:  tune,
		Agent:   *agent,
		Logger:  logger,
		Index:   idx,
		Journal: journal,
		Watch:   watchSrv,
	})
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}

	sessionPath := filepath.Join(*dataDir, "session.snap.zst")
	if *resume {
		if s, err := survey.ReadSession(sessionPath); err == nil {
			engine.Resume(s)
		} else if !os.IsNotExist(err) {
			logger.Printf("read session: %v", err)
		}
	}

	mcpSrv, err := mcp.NewServer(mcp.Config{Bridge: engine})
	if err != nil {
		logger.Fatalf("mcp: %v", err)
	}

	go engine.RunPoller(ctx)

	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpSrv.Handler())
	mux.HandleFunc("/v1/watch", watchSrv.Handler())
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		m := engine.Metrics()
		a := engine.Agent()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP voxelscout_scans_total Scans taken from the game API.\n")
		fmt.Fprintf(rw, "# TYPE voxelscout_scans_total counter\n")
		fmt.Fprintf(rw, "voxelscout_scans_total{agent=%q} %d\n", a, m.Scans)

		fmt.Fprintf(rw, "# HELP voxelscout_routes_total Route requests served.\n")
		fmt.Fprintf(rw, "# TYPE voxelscout_routes_total counter\n")
		fmt.Fprintf(rw, "voxelscout_routes_total{agent=%q} %d\n", a, m.Routes)

		fmt.Fprintf(rw, "# HELP voxelscout_routes_failed_total Route requests that returned a failure code.\n")
		fmt.Fprintf(rw, "# TYPE voxelscout_routes_failed_total counter\n")
		fmt.Fprintf(rw, "voxelscout_routes_failed_total{agent=%q} %d\n", a, m.RoutesFailed)

		fmt.Fprintf(rw, "# HELP voxelscout_gotos_total Movement commands forwarded to the game.\n")
		fmt.Fprintf(rw, "# TYPE voxelscout_gotos_total counter\n")
		fmt.Fprintf(rw, "voxelscout_gotos_total{agent=%q} %d\n", a, m.Gotos)

		fmt.Fprintf(rw, "# HELP voxelscout_poll_ticks_total Poller iterations completed.\n")
		fmt.Fprintf(rw, "# TYPE voxelscout_poll_ticks_total counter\n")
		fmt.Fprintf(rw, "voxelscout_poll_ticks_total{agent=%q} %d\n", a, m.PollTicks)

		fmt.Fprintf(rw, "# HELP voxelscout_watch_clients Connected watch stream clients.\n")
		fmt.Fprintf(rw, "# TYPE voxelscout_watch_clients gauge\n")
		fmt.Fprintf(rw, "voxelscout_watch_clients{agent=%q} %d\n", a, m.WatchClients)

		fmt.Fprintf(rw, "# HELP voxelscout_index_queue_depth Survey index write queue depth.\n")
		fmt.Fprintf(rw, "# TYPE voxelscout_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "voxelscout_index_queue_depth{agent=%q} %d\n", a, m.Index.QueueDepth)

		fmt.Fprintf(rw, "# HELP voxelscout_index_queue_capacity Survey index write queue capacity.\n")
		fmt.Fprintf(rw, "# TYPE voxelscout_index_queue_capacity gauge\n")
		fmt.Fprintf(rw, "voxelscout_index_queue_capacity{agent=%q} %d\n", a, m.Index.QueueCapacity)

		fmt.Fprintf(rw, "# HELP voxelscout_index_dropped_total Rows dropped because the index queue was full.\n")
		fmt.Fprintf(rw, "# TYPE voxelscout_index_dropped_total counter\n")
		fmt.Fprintf(rw, "voxelscout_index_dropped_total{agent=%q,kind=%q} %d\n", a, "scan", m.Index.DropScanTotal)
		fmt.Fprintf(rw, "voxelscout_index_dropped_total{agent=%q,kind=%q} %d\n", a, "route", m.Index.DropRouteTotal)
	})

	srv := &http.Server{
		Addr:              *listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("agent=%s api=%s listening on %s", *agent, base, *listen)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	if *record {
		if err := survey.WriteSession(sessionPath, engine.Snapshot()); err != nil {
			logger.Printf("write session: %v", err)
		} else {
			logger.Printf("session saved to %s", sessionPath)
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
