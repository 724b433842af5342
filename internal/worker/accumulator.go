package worker

import (
	"log/slog"
	"sort"
	"time"

	"trackio.app/trackio/internal/model"
)

type summaryKey struct {
	userID   string
	date     string
	project  string
	language string
	category model.Category
}

type totalKey struct {
	userID string
	date   string
}

// accumulator folds heartbeat batches into per-bucket second counts in
// memory, so each run persists one upsert per bucket rather than one per
// heartbeat.
type accumulator struct {
	secondsPerHeartbeat int64
	summaries           map[summaryKey]int64
	totals              map[totalKey]*model.ActivityTotal
	locations           map[string]*time.Location
}

func newAccumulator(secondsPerHeartbeat int) *accumulator {
	return &accumulator{
		secondsPerHeartbeat: int64(secondsPerHeartbeat),
		summaries:           make(map[summaryKey]int64),
		totals:              make(map[totalKey]*model.ActivityTotal),
		locations:           make(map[string]*time.Location),
	}
}

func (a *accumulator) fold(msg model.QueueMessage) {
	loc := a.location(msg.Timezone)
	for _, hb := range msg.Batch {
		// Ingest bounds the language, but raw queue producers may not;
		// truncate here rather than lose the heartbeat.
		if len(hb.Language) > model.MaxLanguageLen {
			hb.Language = hb.Language[:model.MaxLanguageLen]
		}
		if !hb.Valid() {
			// Individually bad heartbeats are skipped, not the whole batch.
			slog.Debug("skipping invalid heartbeat", "project", hb.Project)
			continue
		}
		date := hb.Timestamp().In(loc).Format("2006-01-02")

		a.summaries[summaryKey{
			userID:   msg.UserID,
			date:     date,
			project:  hb.Project,
			language: hb.Language,
			category: hb.Category,
		}] += a.secondsPerHeartbeat

		tk := totalKey{userID: msg.UserID, date: date}
		total, ok := a.totals[tk]
		if !ok {
			total = &model.ActivityTotal{UserID: msg.UserID, Date: date}
			a.totals[tk] = total
		}
		switch hb.Category {
		case model.CategoryDebugging:
			total.DebuggingSeconds += a.secondsPerHeartbeat
		default:
			total.CodingSeconds += a.secondsPerHeartbeat
		}
	}
}

// location resolves a client timezone, falling back to UTC for zones this
// host cannot load. Ingest validates zones up front, but the queue may hold
// items accepted by an instance with a richer tz database.
func (a *accumulator) location(name string) *time.Location {
	if loc, ok := a.locations[name]; ok {
		return loc
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		loc = time.UTC
	}
	a.locations[name] = loc
	return loc
}

func (a *accumulator) results() ([]model.ProjectSummary, []model.ActivityTotal) {
	summaries := make([]model.ProjectSummary, 0, len(a.summaries))
	for k, seconds := range a.summaries {
		summaries = append(summaries, model.ProjectSummary{
			UserID:          k.userID,
			Date:            k.date,
			ProjectName:     k.project,
			Language:        k.language,
			Category:        k.category,
			DurationSeconds: seconds,
		})
	}
	totals := make([]model.ActivityTotal, 0, len(a.totals))
	for _, t := range a.totals {
		totals = append(totals, *t)
	}

	// Deterministic persist order keeps runs comparable in logs and tests.
	sort.Slice(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.ProjectName != b.ProjectName {
			return a.ProjectName < b.ProjectName
		}
		if a.Language != b.Language {
			return a.Language < b.Language
		}
		return a.Category < b.Category
	})
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].UserID != totals[j].UserID {
			return totals[i].UserID < totals[j].UserID
		}
		return totals[i].Date < totals[j].Date
	})
	return summaries, totals
}
