// cmd/web/main.go
package main

import (
	"encoding/json"
	"net/http"
	"regexp"
	"time"

	"visitsync/pkg/config"
	"visitsync/pkg/log"
	"visitsync/pkg/store"
	"visitsync/pkg/visit"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

var isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

var monthNames = []string{
	"Jan", "Feb", "Mar", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
}

type apiServer struct {
	store *store.Store
}

func main() {
	_ = godotenv.Load()

	if initError := log.Init(true); initError != nil {
		panic(initError)
	}

	visitStore, storeError := store.Open(config.StoreDSN())
	if storeError != nil {
		log.L().Fatal("store_open_failed", zap.Error(storeError))
	}
	defer visitStore.Close()

	server := &apiServer{store: visitStore}

	httpMux := http.NewServeMux()
	httpMux.HandleFunc("/api/visits", server.visitsHandler)
	httpMux.HandleFunc("/api/leaderboard", server.leaderboardHandler)
	httpMux.HandleFunc("/api/kpis", server.kpisHandler)
	httpMux.HandleFunc("/api/comparison", server.comparisonHandler)

	listenAddr := config.ListenAddr()
	log.L().Info("server_start", zap.String("addr", listenAddr))
	if err := http.ListenAndServe(listenAddr, httpMux); err != nil {
		log.L().Fatal("server_exit", zap.Error(err))
	}
}

func writeJSON(writer http.ResponseWriter, status int, payload any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(payload)
}

func writeError(writer http.ResponseWriter, status int, message string) {
	writeJSON(writer, status, map[string]string{"error": message})
}

// requestedLocations resolves ?locations=A&locations=B, ?location=A, or the
// full default list when neither is given.
func requestedLocations(request *http.Request) []string {
	query := request.URL.Query()
	if names := query["locations"]; len(names) > 0 {
		return names
	}
	if name := query.Get("location"); name != "" && name != "All" {
		return []string{name}
	}
	return config.DefaultLocationNames()
}

// dateRangeParams validates startDate/endDate, or a single date used as both.
func dateRangeParams(request *http.Request) (string, string, bool) {
	query := request.URL.Query()
	if single := query.Get("date"); single != "" {
		if !isoDatePattern.MatchString(single) {
			return "", "", false
		}
		return single, single, true
	}
	startDate := query.Get("startDate")
	endDate := query.Get("endDate")
	if !isoDatePattern.MatchString(startDate) || !isoDatePattern.MatchString(endDate) {
		return "", "", false
	}
	return startDate, endDate, true
}

func (s *apiServer) visitsHandler(writer http.ResponseWriter, request *http.Request) {
	startDate, endDate, ok := dateRangeParams(request)
	if !ok {
		writeError(writer, http.StatusBadRequest, "startDate & endDate must be YYYY-MM-DD")
		return
	}
	var allVisits []visit.Visit
	for _, locationName := range requestedLocations(request) {
		visits, err := s.store.VisitsBetween(request.Context(), locationName, startDate, endDate)
		if err != nil {
			log.L().Error("visits_query_failed", zap.String("location", locationName), zap.Error(err))
			writeError(writer, http.StatusInternalServerError, err.Error())
			return
		}
		allVisits = append(allVisits, visits...)
	}
	if allVisits == nil {
		allVisits = []visit.Visit{}
	}
	writeJSON(writer, http.StatusOK, allVisits)
}

type leaderboardEntry struct {
	Location    string              `json:"location"`
	Leaderboard []store.DoctorCount `json:"leaderboard"`
}

// leaderboardHandler ranks doctors by completed visits, counting only each
// clinic's exit statuses.
func (s *apiServer) leaderboardHandler(writer http.ResponseWriter, request *http.Request) {
	startDate, endDate, ok := dateRangeParams(request)
	if !ok {
		writeError(writer, http.StatusBadRequest, "startDate & endDate must be YYYY-MM-DD")
		return
	}
	var results []leaderboardEntry
	for _, locationName := range requestedLocations(request) {
		location, _ := config.LookupLocation(locationName)
		counts, err := s.store.DoctorCounts(request.Context(), locationName, startDate, endDate, location.ExitStatuses())
		if err != nil {
			log.L().Error("leaderboard_query_failed", zap.String("location", locationName), zap.Error(err))
			writeError(writer, http.StatusInternalServerError, err.Error())
			return
		}
		if counts == nil {
			counts = []store.DoctorCount{}
		}
		results = append(results, leaderboardEntry{Location: locationName, Leaderboard: counts})
	}
	writeJSON(writer, http.StatusOK, results)
}

type locationKPI struct {
	Location     string `json:"location"`
	PatientsSeen int    `json:"patientsSeen"`
}

type doctorKPI struct {
	Location  string              `json:"location"`
	PerDoctor []store.DoctorCount `json:"perDoctor"`
}

func (s *apiServer) kpisHandler(writer http.ResponseWriter, request *http.Request) {
	startDate, endDate, ok := dateRangeParams(request)
	if !ok {
		writeError(writer, http.StatusBadRequest, "startDate & endDate must be YYYY-MM-DD")
		return
	}
	var byLocation []locationKPI
	var byDoctor []doctorKPI
	for _, locationName := range requestedLocations(request) {
		total, err := s.store.CountBetween(request.Context(), locationName, startDate, endDate)
		if err != nil {
			writeError(writer, http.StatusInternalServerError, err.Error())
			return
		}
		byLocation = append(byLocation, locationKPI{Location: locationName, PatientsSeen: total})

		counts, err := s.store.DoctorCounts(request.Context(), locationName, startDate, endDate, nil)
		if err != nil {
			writeError(writer, http.StatusInternalServerError, err.Error())
			return
		}
		if counts == nil {
			counts = []store.DoctorCount{}
		}
		byDoctor = append(byDoctor, doctorKPI{Location: locationName, PerDoctor: counts})
	}
	writeJSON(writer, http.StatusOK, map[string]any{
		"byLocation": byLocation,
		"byDoctor":   byDoctor,
	})
}

type comparisonResponse struct {
	Location string   `json:"location"`
	Months   []string `json:"months"`
	ThisYear []int    `json:"thisYear"`
	LastYear []int    `json:"lastYear"`
}

// comparisonHandler reports month-by-month visit totals for the current year
// against the previous one, through the current month.
func (s *apiServer) comparisonHandler(writer http.ResponseWriter, request *http.Request) {
	locationName := request.URL.Query().Get("location")
	if locationName == "" {
		writeError(writer, http.StatusBadRequest, "location is required")
		return
	}
	locations := []string{locationName}
	if locationName == "All" {
		locations = config.DefaultLocationNames()
	}

	now := time.Now()
	currentYear := now.Year()
	currentMonth := int(now.Month())

	countFor := func(year int) ([]int, error) {
		totals := make([]int, 0, currentMonth)
		for month := 1; month <= currentMonth; month++ {
			monthStart := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
			monthEnd := monthStart.AddDate(0, 1, -1)
			monthTotal := 0
			for _, name := range locations {
				count, err := s.store.CountBetween(request.Context(), name,
					monthStart.Format(dateLayout), monthEnd.Format(dateLayout))
				if err != nil {
					return nil, err
				}
				monthTotal += count
			}
			totals = append(totals, monthTotal)
		}
		return totals, nil
	}

	thisYearCounts, err := countFor(currentYear)
	if err != nil {
		writeError(writer, http.StatusInternalServerError, err.Error())
		return
	}
	lastYearCounts, err := countFor(currentYear - 1)
	if err != nil {
		writeError(writer, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(writer, http.StatusOK, comparisonResponse{
		Location: locationName,
		Months:   monthNames[:currentMonth],
		ThisYear: thisYearCounts,
		LastYear: lastYearCounts,
	})
}
