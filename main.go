// main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"visitsync/pkg/config"
	"visitsync/pkg/log"
	"visitsync/pkg/scraper"
	"visitsync/pkg/store"
	"visitsync/pkg/syncer"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	usageMessage = "Usage: visitsync [<location> ...] <startDate> <endDate> (dates as YYYY-MM-DD)"
	dateLayout   = "2006-01-02"
)

var isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

type runArgs struct {
	locationNames []string
	startDate     time.Time
	endDate       time.Time
}

// parseArgs reads [<location> ...] <startDate> <endDate>. With exactly two
// arguments every configured clinic is synced.
func parseArgs(arguments []string) (runArgs, error) {
	if len(arguments) < 2 {
		return runArgs{}, errors.New("start and end dates are required")
	}
	startRaw := arguments[len(arguments)-2]
	endRaw := arguments[len(arguments)-1]
	if !isoDatePattern.MatchString(startRaw) || !isoDatePattern.MatchString(endRaw) {
		return runArgs{}, fmt.Errorf("dates must be YYYY-MM-DD, got %q and %q", startRaw, endRaw)
	}
	startDate, err := time.Parse(dateLayout, startRaw)
	if err != nil {
		return runArgs{}, fmt.Errorf("invalid start date %q", startRaw)
	}
	endDate, err := time.Parse(dateLayout, endRaw)
	if err != nil {
		return runArgs{}, fmt.Errorf("invalid end date %q", endRaw)
	}
	if endDate.Before(startDate) {
		return runArgs{}, fmt.Errorf("end date %s precedes start date %s", endRaw, startRaw)
	}
	locationNames := arguments[:len(arguments)-2]
	if len(locationNames) == 0 {
		locationNames = config.DefaultLocationNames()
	}
	return runArgs{locationNames: locationNames, startDate: startDate, endDate: endDate}, nil
}

func main() {
	_ = godotenv.Load()

	parsed, parseError := parseArgs(os.Args[1:])
	if parseError != nil {
		fmt.Fprintf(os.Stderr, "%v\n%s\n", parseError, usageMessage)
		os.Exit(1)
	}

	if initError := log.Init(true); initError != nil {
		panic(initError)
	}

	if runError := run(parsed); runError != nil {
		log.L().Error("sync_aborted", zap.Error(runError))
		os.Exit(1)
	}
}

// run owns the browser session and the store for the whole sync; both are
// released on every exit path, including an interrupt.
func run(parsed runArgs) error {
	runContext, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	visitStore, storeError := store.Open(config.StoreDSN())
	if storeError != nil {
		return storeError
	}
	defer visitStore.Close()

	session, sessionError := scraper.NewSession(runContext, config.CredentialsFromEnv())
	if sessionError != nil {
		return sessionError
	}
	defer session.Close()

	log.L().Info("sync_start",
		zap.Strings("locations", parsed.locationNames),
		zap.String("start", parsed.startDate.Format(dateLayout)),
		zap.String("end", parsed.endDate.Format(dateLayout)),
	)

	runner := syncer.New(session, visitStore)
	summary, runError := runner.Run(runContext, parsed.locationNames, parsed.startDate, parsed.endDate)
	if runError != nil {
		return runError
	}

	log.L().Info("sync_complete",
		zap.Int("persisted", summary.Persisted),
		zap.Int("failed", summary.Failed),
	)
	return nil
}
