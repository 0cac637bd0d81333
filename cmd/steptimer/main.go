// steptimer runs a single durable step countdown from the terminal.
// The deadline is persisted locally, so killing and restarting the
// process resumes the countdown where the wall clock says it should be;
// the trainer API is notified best-effort so the push fallback fires if
// the process never comes back.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/trainer-api/pkg/logger"

	"github.com/jwalitptl/trainer-api/internal/model"
	"github.com/jwalitptl/trainer-api/internal/timer"
)

type Config struct {
	APIURL    string `envconfig:"API_URL" default:"http://localhost:8080"`
	UserID    string `envconfig:"USER_ID" required:"true"`
	StorePath string `envconfig:"STORE_PATH" default:"steptimer.db"`
}

func main() {
	var cfg Config
	if err := envconfig.Process("steptimer", &cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if len(os.Args) < 4 {
		fmt.Fprintln(os.Stderr, "usage: steptimer <day> <step> <seconds> [title]")
		os.Exit(2)
	}
	day, err := strconv.Atoi(os.Args[1])
	if err != nil {
		log.Fatal().Err(err).Msg("invalid day")
	}
	step, err := strconv.Atoi(os.Args[2])
	if err != nil {
		log.Fatal().Err(err).Msg("invalid step")
	}
	seconds, err := strconv.ParseInt(os.Args[3], 10, 64)
	if err != nil || seconds <= 0 {
		log.Fatal().Msg("invalid duration")
	}
	title := "Training step"
	if len(os.Args) > 4 {
		title = os.Args[4]
	}

	userID, err := uuid.Parse(cfg.UserID)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid user id")
	}

	logg := logger.NewLogger(&logger.Config{Level: logger.WarnLevel, Pretty: true})

	store, err := timer.OpenStore(cfg.StorePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open deadline store")
	}
	defer store.Close()

	sched := timer.NewAPIClient(cfg.APIURL, userID)
	t := timer.New(store, sched, logg)
	defer t.Close()

	key := timer.Key{Day: day, StepIndex: step}
	done := make(chan struct{})

	t.OnTick = func(_ timer.Key, rem int64) {
		fmt.Printf("\r%02d:%02d remaining ", rem/60, rem%60)
	}
	t.OnFinish = func(_ timer.Key) {
		fmt.Println("\nstep complete")
		close(done)
	}

	// A deadline persisted by a previous run wins over a fresh start.
	if rem, err := t.Observe(key); err == nil && rem > 0 {
		fmt.Printf("resuming countdown with %ds remaining\n", rem)
		if err := t.Resume(key, rem); err != nil {
			log.Fatal().Err(err).Msg("failed to resume countdown")
		}
	} else {
		if err := t.Start(key, seconds, &model.ReminderPayload{StepTitle: title}); err != nil {
			log.Fatal().Err(err).Msg("failed to start countdown")
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-done:
	case <-sigChan:
		fmt.Println("\ninterrupted; countdown continues on restart")
	}
}
