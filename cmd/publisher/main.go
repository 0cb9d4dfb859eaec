// The publisher is the external producer bridge: it pushes room messages or
// global broadcasts onto the fanout channel without holding any socket
// connection, so arbitrary backend systems can reach connected clients.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/example/dispatch-relay/internal/fanout"
	"github.com/example/dispatch-relay/internal/logging"
)

func main() {
	var (
		room      string
		message   string
		broadcast bool
		from      string
		monitor   bool
		channel   string
	)
	flag.StringVar(&room, "room", "", "room to send the message to")
	flag.StringVar(&message, "message", "", "message text")
	flag.BoolVar(&broadcast, "broadcast", false, "broadcast to every connected client instead of a room")
	flag.StringVar(&from, "from", "REDIS_PUBLISHER", "sender label shown to clients")
	flag.BoolVar(&monitor, "monitor", false, "subscribe to the fanout channel and print envelopes")
	flag.StringVar(&channel, "channel", "dispatch-fanout", "fanout channel name")
	flag.Parse()

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	if v := os.Getenv("FANOUT_CHANNEL"); v != "" {
		channel = v
	}

	logger := logging.NewLogger(os.Getenv("LOG_LEVEL"))
	bus := fanout.NewRedisBus(redisAddr, os.Getenv("REDIS_PASSWORD"), channel, logger)
	defer bus.Close()

	if monitor {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		log.Printf("monitoring channel %q on %s", channel, redisAddr)
		err := bus.Subscribe(ctx, func(env fanout.Envelope) {
			log.Printf("type=%s room=%s from=%s origin=%s message=%q", env.Type, env.RoomID, env.From, env.Origin, env.Message)
		})
		if err != nil && ctx.Err() == nil {
			log.Fatalf("subscribe: %v", err)
		}
		return
	}

	if message == "" {
		log.Fatal("either -message with -room/-broadcast, or -monitor is required")
	}
	kind := fanout.KindRoomMessage
	if broadcast {
		kind = fanout.KindBroadcast
	} else if room == "" {
		log.Fatal("-room is required unless -broadcast is set")
	}

	origin := "external-" + uuid.NewString()[:8]
	env := fanout.NewEnvelope(kind, room, message, from, origin)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := bus.Publish(ctx, env); err != nil {
		log.Fatalf("publish: %v", err)
	}
	if broadcast {
		log.Printf("broadcast sent: %q", message)
	} else {
		log.Printf("sent to room %s: %q", room, message)
	}
}
