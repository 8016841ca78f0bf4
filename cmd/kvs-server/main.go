// Command kvs-server runs the TCP key-value server plus the read-only
// admin HTTP surface.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/dc0d/onexit"
	"golang.org/x/sync/errgroup"

	"github.com/kartpop/kvs/internal/config"
	kvslog "github.com/kartpop/kvs/internal/log"
	"github.com/kartpop/kvs/internal/server"
)

func main() {
	configPath := flag.String("config", "kvs.yaml", "path to the server configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	engine, err := kvslog.Open(cfg.StoreDir)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	engine.SetCompactionThreshold(cfg.CompactionThreshold)

	// Flush and close the active segment on an interrupt so a Ctrl-C
	// leaves the store in the same durable state a clean shutdown
	// would.
	onexit.Register(func() {
		if err := engine.Close(); err != nil {
			log.Printf("close store on exit: %v", err)
		}
	})

	ln, err := net.Listen("tcp", cfg.ServerAddress)
	if err != nil {
		log.Fatalf("listen on %s: %v", cfg.ServerAddress, err)
	}
	log.Printf("kvs server listening on %s (store %s)", cfg.ServerAddress, cfg.StoreDir)

	srv := server.New(engine, cfg.WorkerPoolSize)
	adminSrv := server.NewAdminHTTPServer(cfg.AdminAddress, engine)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(ln)
	})
	g.Go(func() error {
		log.Printf("admin HTTP listening on %s", cfg.AdminAddress)
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		_ = ln.Close()
		srv.Shutdown()
		return adminSrv.Close()
	})

	if err := g.Wait(); err != nil {
		log.Printf("server stopped: %v", err)
	}
	if err := engine.Close(); err != nil {
		log.Printf("close store: %v", err)
	}
}
