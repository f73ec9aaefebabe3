package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	_ "net/http/pprof"

	"github.com/go-redis/redis/v8"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/stan.go"
	"github.com/rs/zerolog"

	"github.com/sandwichrt/shardgate/bus"
	"github.com/sandwichrt/shardgate/gateway"
	"github.com/sandwichrt/shardgate/store"
)

var zlog = zerolog.New(zerolog.ConsoleWriter{
	Out:        os.Stdout,
	TimeFormat: time.Stamp,
}).With().Timestamp().Logger()

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

// Adapted from the teacher's root main.go: flag parsing, the zerolog
// ConsoleWriter logger, pprof hooks, and the SIGINT/SIGTERM shutdown wait
// all carry over verbatim in spirit. What changes is everything downstream
// of "start the sessions": one Coordinator instead of a slice of per-
// cluster Managers, and Redis/NATS wired through gateway.SessionStore /
// gateway.Bus instead of being reached into directly.
func main() {
	token := flag.String("token", "", "token the bot will use to authenticate")
	shardCount := flag.Int("shards", 0, "shard count to use, 0 requests the platform's recommendation")
	redisAddr := flag.String("redis-addr", "127.0.0.1:6379", "redis address for session persistence")
	redisPassword := flag.String("redis-password", "", "redis password")
	redisPrefix := flag.String("redis-prefix", "shardgate", "redis key prefix for persisted sessions")
	natsAddr := flag.String("nats-addr", "", "nats address to publish events to, empty disables the bus")
	natsSubject := flag.String("nats-subject", "shardgate.events", "nats subject to publish events to")
	stanClusterID := flag.String("stan-cluster-id", "", "nats streaming cluster id, empty disables streaming")
	stanClientID := flag.String("stan-client-id", "shardgate", "nats streaming client id")
	stopOnFatal := flag.Bool("stop-on-fatal", false, "stop the whole fleet instead of looping reconnects on a fatal close code")
	flag.Parse()

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	sessionStore := gateway.SessionStore(store.NewRedisSessionStore(redis.NewClient(&redis.Options{
		Addr:     *redisAddr,
		Password: *redisPassword,
		DB:       0,
	}), *redisPrefix))

	eventBus := gateway.Bus(gateway.NopBus{})
	if *natsAddr != "" {
		nc, err := nats.Connect(*natsAddr)
		if err != nil {
			zlog.Panic().Err(err).Msg("could not connect to nats")
		}

		var sc stan.Conn
		if *stanClusterID != "" {
			sc, err = stan.Connect(*stanClusterID, *stanClientID, stan.NatsConn(nc))
			if err != nil {
				zlog.Panic().Err(err).Msg("could not connect to nats streaming")
			}
		}

		eventBus = bus.NewNatsBus(nc, sc, *natsSubject)
	}

	coordinator, err := gateway.NewCoordinator(gateway.CoordinatorConfig{
		Token:      *token,
		ShardCount: *shardCount,
		UserAgent:  "shardgate/" + gateway.VERSION,
		ShardConfig: gateway.Config{
			StopOnFatalCode: *stopOnFatal,
		},
		Store: sessionStore,
		Bus:   eventBus,
		Log:   zlog,
	})
	if err != nil {
		zlog.Panic().Err(err).Msg("could not build coordinator")
	}

	ctx, cancel := context.WithCancel(context.Background())

	runErr := make(chan error, 1)
	go func() {
		runErr <- coordinator.Run(ctx)
	}()

	zlog.Info().Msg("fleet has now started, do ^C to close sessions")

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)

	select {
	case <-sc:
		cancel()
		<-runErr
	case err := <-runErr:
		if err != nil && err != context.Canceled {
			zlog.Error().Err(err).Msg("fleet stopped")
		}
	}

	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			log.Fatal("could not create memory profile: ", err)
		}
		defer f.Close()
		runtime.GC()
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal("could not write memory profile: ", err)
		}
	}
}
