package main

import (
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"

	"roadsim.ai/internal/client"
	"roadsim.ai/internal/config"
	"roadsim.ai/internal/geom"
	"roadsim.ai/internal/protocol"
	"roadsim.ai/internal/recorder"
	"roadsim.ai/internal/remote"
)

func main() {
	var (
		cfgPath  = flag.String("config", "", "client.yaml path")
		url      = flag.String("url", "", "ws url (overrides config)")
		name     = flag.String("name", "", "client name (overrides config)")
		steps    = flag.Int("steps", 0, "synchronous steps to run (0 = free-running)")
		spawn    = flag.String("spawn", "", "blueprint to spawn, e.g. vehicle.tesla.model3")
		landmark = flag.String("landmark", "", "sign id to resolve to a traffic light")
		record   = flag.Bool("record", false, "record snapshots (overrides config)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[simbot] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if *url != "" {
		cfg.ServerURL = *url
	}
	if *name != "" {
		cfg.ClientName = *name
	}
	if *record {
		cfg.Recording.Enabled = true
	}

	sess, err := remote.Connect(remote.Options{
		URL:            cfg.ServerURL,
		ClientName:     cfg.ClientName,
		ConnectTimeout: cfg.ConnectTimeout(),
		CallTimeout:    cfg.CallTimeout(),
	})
	if err != nil {
		logger.Fatalf("connect: %v", err)
	}
	defer sess.Close()
	logger.Printf("connected episode=%s map=%s", sess.EpisodeID(), sess.MapName())

	world := client.NewWorld(sess.EpisodeID(), sess)

	tickID, err := world.OnTick(func(s client.WorldSnapshot) {
		if s.Frame%100 == 0 {
			logger.Printf("frame=%d elapsed=%.2fs actors=%d", s.Frame, s.ElapsedSeconds, len(s.Actors))
		}
	})
	if err != nil {
		logger.Fatalf("on tick: %v", err)
	}
	defer world.RemoveOnTick(tickID)

	if cfg.Recording.Enabled {
		rec, err := recorder.Open(cfg.Recording.Dir, sess.EpisodeID())
		if err != nil {
			logger.Fatalf("recorder: %v", err)
		}
		defer rec.Close()
		recID, err := rec.Attach(world)
		if err != nil {
			logger.Fatalf("recorder attach: %v", err)
		}
		defer world.RemoveOnTick(recID)
		logger.Printf("recording to %s", rec.Path())
	}

	if *spawn != "" {
		tf := geom.Transform{Location: geom.Location{X: 0, Y: 0, Z: 0.5}}
		if loc, err := world.RandomLocationFromNavigation(); err == nil && loc != nil {
			tf.Location = *loc
		}
		actor := world.TrySpawnActor(*spawn, tf, nil, client.AttachmentRigid)
		if actor == nil {
			logger.Printf("spawn %s failed, continuing", *spawn)
		} else {
			logger.Printf("spawned %s id=%d", actor.TypeID(), actor.ID())
			defer func() {
				if err := actor.Destroy(); err != nil {
					logger.Printf("destroy: %v", err)
				}
			}()
		}
	}

	if *landmark != "" {
		lm := client.Landmark{ID: *landmark}
		light, err := world.ResolveController(lm, client.ControllerLight)
		if err != nil {
			logger.Fatalf("resolve controller: %v", err)
		}
		if light == nil {
			logger.Printf("no traffic light spawned for sign_id=%s", *landmark)
		} else {
			logger.Printf("sign_id=%s -> actor id=%d type=%s", *landmark, light.ID(), light.TypeID())
		}
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	if *steps > 0 {
		if _, err := world.ApplySettings(settingsFromConfig(cfg)); err != nil {
			logger.Fatalf("apply settings: %v", err)
		}
		for i := 0; i < *steps; i++ {
			select {
			case <-stop:
				return
			default:
			}
			frame, err := world.Tick(cfg.TickTimeout())
			if err != nil {
				logger.Fatalf("tick: %v", err)
			}
			if i == 0 || (i+1)%100 == 0 {
				logger.Printf("stepped to frame=%d (%d/%d)", frame, i+1, *steps)
			}
		}
		return
	}

	for {
		select {
		case <-stop:
			return
		default:
		}
		snap, err := world.WaitForTick(cfg.TickTimeout())
		if errors.Is(err, client.ErrTimeout) {
			logger.Printf("no tick within %v, retrying", cfg.TickTimeout())
			continue
		}
		if err != nil {
			logger.Fatalf("wait for tick: %v", err)
		}
		_ = snap
	}
}

func settingsFromConfig(cfg config.Config) protocol.EpisodeSettings {
	return protocol.EpisodeSettings{
		SynchronousMode:   true,
		FixedDeltaSeconds: cfg.FixedDeltaSeconds,
		NoRenderingMode:   cfg.NoRendering,
	}
}
