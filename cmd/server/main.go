package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"hermes/api/grpcserver"
	"hermes/config"
	"hermes/domain/orderbook"
	"hermes/feed"
	"hermes/infra/kafka"
	entrywal "hermes/infra/wal/entry"
	exitwal "hermes/infra/wal/exit"
	"hermes/jobs/broadcaster"
	"hermes/logx"
	"hermes/service"

	"go.uber.org/zap"
)

const httpShutdownTimeout = 5 * time.Second

func main() {
	cfg := config.Load("")

	log, err := logx.New(cfg.Debug)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------- Request journal ----------------

	var journal *entrywal.WAL
	if cfg.JournalDir != "" {
		journal, err = entrywal.Open(entrywal.Config{Dir: cfg.JournalDir})
		if err != nil {
			log.Fatal("journal init failed", zap.Error(err))
		}
		defer journal.Close()
	}

	// ---------------- Domain ----------------

	book := orderbook.NewBook()

	// ---------------- Trade outbox ----------------

	var outbox *exitwal.Outbox
	if cfg.OutboxDir != "" {
		outbox, err = exitwal.Open(cfg.OutboxDir)
		if err != nil {
			log.Fatal("outbox init failed", zap.Error(err))
		}
		defer outbox.Close()
		sink, err := exitwal.NewSink(outbox, log)
		if err != nil {
			log.Fatal("outbox sink init failed", zap.Error(err))
		}
		book.AttachSink(sink)
	}

	// ---------------- Sequencer ----------------

	seq := service.New(book, journal, service.Config{
		QueueSize:     cfg.QueueSize,
		DepthInterval: cfg.DepthInterval,
	}, log)
	go seq.Run(ctx)

	// ---------------- Feed ----------------

	hub := feed.NewHub(seq, log)
	book.AttachSink(hub)
	go hub.Run(ctx)

	// ---------------- Kafka ----------------

	if len(cfg.KafkaBrokers) > 0 {
		if outbox != nil {
			bc, err := broadcaster.New(outbox, cfg.KafkaBrokers, cfg.TradesTopic, cfg.BroadcastInterval, log)
			if err != nil {
				log.Fatal("broadcaster init failed", zap.Error(err))
			}
			go bc.Run(ctx)
		}

		depthPub := kafka.NewDepthPublisher(cfg.KafkaBrokers, cfg.DepthTopic, cfg.DepthBuffer, log)
		book.AttachSink(depthPub)
		go depthPub.Run(ctx)
	}

	// ---------------- HTTP / websocket ----------------

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		feed.ServeWS(hub, w, r)
	})
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}

	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server exited", zap.Error(err))
		}
	}()

	// ---------------- gRPC ----------------

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatal("listen failed", zap.Error(err))
	}

	grpcSrv := grpc.NewServer(grpc.ForceServerCodec(grpcserver.Codec{}))
	grpcserver.Register(grpcSrv, grpcserver.NewServer(seq, log))

	go func() {
		log.Info("grpc listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcSrv.Serve(lis); err != nil {
			log.Fatal("grpc server exited", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	grpcSrv.GracefulStop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}
