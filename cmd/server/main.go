package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"terrasim.io/internal/persistence/indexdb"
	persistlog "terrasim.io/internal/persistence/log"
	"terrasim.io/internal/protocol"
	"terrasim.io/internal/sim/content/basic"
	"terrasim.io/internal/sim/core"
	"terrasim.io/internal/sim/tuning"
	"terrasim.io/internal/sim/world"
	"terrasim.io/internal/transport/observer"
	"terrasim.io/internal/transport/tcp"
)

func main() {
	var (
		configPath   = flag.String("config", "./configs/terrasim.yaml", "path to terrasim.yaml (defaults are used if it does not exist)")
		port         = flag.Int("port", 8183, "client TCP port")
		dayCycle     = flag.Float64("day_cycle_minutes", 5, "wall-clock minutes per simulated day")
		observerAddr = flag.String("observer_addr", "127.0.0.1:8184", "http address for /healthz, /metrics and the observer stream (empty to disable)")
		dataDir      = flag.String("data", "./data", "runtime data directory")
		mapPath      = flag.String("map", "", "map file (overrides paths.map)")
		seed         = flag.Int64("seed", 0, "random seed for weather (0 picks one from the clock)")
		disableDB    = flag.Bool("disable_db", false, "disable the sqlite index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load config: %v", err)
		}
		logger.Printf("config not found (%s); using defaults", *configPath)
		tune = tuning.Defaults()
	}
	// Flags given on the command line override the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			tune.Server.Port = *port
		case "day_cycle_minutes":
			tune.Server.DayCycleMinutes = *dayCycle
		case "observer_addr":
			tune.Server.ObserverAddr = *observerAddr
		case "data":
			tune.Server.DataDir = *dataDir
		case "map":
			tune.Paths.Map = *mapPath
		}
	})
	if err := tune.Validate(); err != nil {
		logger.Fatalf("config: %v", err)
	}
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	_ = os.MkdirAll(tune.Server.DataDir, 0o755)

	w, err := loadWorld(tune, *seed)
	if err != nil {
		logger.Fatalf("load map: %v", err)
	}
	logger.Printf("world %q loaded: %dx%d %s, seed %d",
		w.Name(), w.Map().SizeX(), w.Map().SizeY(), w.Map().Topology(), *seed)

	// Optional: read-model index (does not affect the simulation).
	idx, err := openRuntimeIndex(tune.IndexPath(), *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.RecordSettings(w.Name(), tune); err != nil {
			logger.Printf("index backend: record settings: %v", err)
		}
	}

	var c *core.Core
	srv := tcp.NewServer(tcp.ServerConfig{
		Addr:              net.JoinHostPort("", strconv.Itoa(tune.Server.Port)),
		MessagesPerSecond: tune.Server.RateLimits.MessagesPerSecond,
		Burst:             tune.Server.RateLimits.Burst,
	}, tcp.Handlers{
		Connected:    func(id int) { c.HandleConnected(id) },
		Disconnected: func(id int) { c.HandleDisconnected(id) },
		Message:      func(id int, m protocol.Message) { c.HandleMessage(id, m) },
	}, log.New(os.Stdout, "[tcp] ", log.LstdFlags|log.Lmicroseconds))

	c, err = core.New(core.Config{DayCycle: tune.DayCycle()}, w, srv,
		log.New(os.Stdout, "[core] ", log.LstdFlags|log.Lmicroseconds))
	if err != nil {
		logger.Fatalf("core: %v", err)
	}

	tickLog := persistlog.NewTickLogger(tune.Server.DataDir)
	sessionLog := persistlog.NewSessionLogger(tune.Server.DataDir)
	defer tickLog.Close()
	defer sessionLog.Close()
	c.AddTickSink(tickLog)
	c.AddSessionSink(sessionLog)
	if idx != nil {
		c.AddTickSink(idx)
		c.AddSessionSink(idx)
	}

	var obsSrv *observer.Server
	if tune.Server.ObserverAddr != "" {
		obsSrv = observer.NewServer(w, c.TimeUnit(), log.New(os.Stdout, "[observer] ", log.LstdFlags|log.Lmicroseconds))
		c.AddTickSink(obsSrv)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := srv.Start(); err != nil {
		logger.Fatalf("listen: %v", err)
	}
	defer srv.Stop()
	logger.Printf("accepting clients on %s, time unit %s", srv.Addr(), c.TimeUnit())

	if obsSrv != nil {
		httpSrv := &http.Server{
			Addr:              tune.Server.ObserverAddr,
			Handler:           adminMux(w, c, srv, idx, obsSrv),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			<-ctx.Done()
			ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel2()
			_ = httpSrv.Shutdown(ctx2)
		}()
		go func() {
			logger.Printf("http listening on %s", tune.Server.ObserverAddr)
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("http: %v", err)
			}
		}()
	}

	if err := c.Run(ctx); err != nil && err != context.Canceled {
		logger.Printf("core stopped: %v", err)
	}
	cnt := c.Counters()
	logger.Printf("shutting down after %d ticks (%d failed, %d skipped)", cnt.Ticks, cnt.FailedTicks, cnt.SkippedTicks)
}

func loadWorld(tune tuning.Tuning, seed int64) (*world.World, error) {
	f, err := os.Open(tune.Paths.Map)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	settings := tune.World
	p := basic.New(basic.Options{
		Settings:         &settings,
		Dir:              filepath.Dir(tune.Paths.Map),
		Rand:             rand.New(rand.NewSource(seed)),
		TilesFile:        tune.Paths.Tiles,
		WeatherModelFile: tune.Paths.WeatherModel,
	})
	return p.LoadMap(f)
}

func adminMux(w *world.World, c *core.Core, srv *tcp.Server, idx runtimeIndex, obsSrv *observer.Server) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	src := metricsSource{
		world:       w.Name(),
		worldM:      w.Metrics,
		counters:    c.Counters,
		clients:     c.ClientCount,
		rateLimited: srv.RateLimited,
		observers:   func() (int, uint64) { return obsSrv.Watchers(), obsSrv.Dropped() },
	}
	if idx != nil {
		src.index = func() (indexdb.Stats, bool) { return idx.Stats(), true }
	}
	mux.HandleFunc("/metrics", metricsHandler(src))

	mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		resp := struct {
			World      string              `json:"world"`
			Statistics protocol.Statistics `json:"statistics"`
			Counters   core.Counters       `json:"counters"`
			Clients    []int               `json:"connections"`
		}{
			World:      w.Name(),
			Statistics: c.Statistics(),
			Counters:   c.Counters(),
			Clients:    srv.Clients(),
		}
		_ = json.NewEncoder(rw).Encode(resp)
	})
	mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
	mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())

	if envBool("TERRASIM_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
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

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func envBool(name string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
