package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/AGAGE-atmosphere/agage-archive/pkg/pipeline"
)

// Error log files written at the end of a run, relative to the network's
// data directory
const (
	ErrorLogIndividual = "error_log_individual.txt"
	ErrorLogCombined   = "error_log_combined.txt"
)

var bucketRuns = []byte("runs")

// Run is the metadata record for one batch run
type Run struct {
	ID       string
	Network  string
	Mode     string
	Started  time.Time
	Finished time.Time
	Units    int
	Failed   int
	Skipped  int
}

// Ledger is a BoltDB-backed store of batch run outcomes
type Ledger struct {
	db *bolt.DB
}

// Open opens or creates the ledger database at path
func Open(path string) (*Ledger, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open run ledger: %v", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create runs bucket: %v", err)
	}

	return &Ledger{db: db}, nil
}

// Close closes the database
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Begin registers a new run for the network and creates its results bucket
func (l *Ledger) Begin(network, mode string) (*Run, error) {
	run := &Run{
		ID:      uuid.New().String(),
		Network: network,
		Mode:    mode,
		Started: time.Now().UTC(),
	}

	err := l.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(run)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketRuns).Put([]byte(run.ID), data); err != nil {
			return err
		}
		_, err = tx.CreateBucketIfNotExists(resultsBucket(run.ID))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to begin run: %v", err)
	}
	return run, nil
}

// Record stores the outcome of one unit within the run, replacing any
// earlier outcome for the same unit
func (l *Ledger) Record(runID string, result pipeline.Result) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(resultsBucket(runID))
		if b == nil {
			return fmt.Errorf("run not found: %s", runID)
		}
		data, err := json.Marshal(result)
		if err != nil {
			return err
		}
		return b.Put([]byte(result.Unit.Key()), data)
	})
}

// Finish stamps the run finished and tallies its outcomes from the recorded
// results
func (l *Ledger) Finish(runID string) (*Run, error) {
	var run Run
	err := l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		data := b.Get([]byte(runID))
		if data == nil {
			return fmt.Errorf("run not found: %s", runID)
		}
		if err := json.Unmarshal(data, &run); err != nil {
			return err
		}

		run.Units, run.Failed, run.Skipped = 0, 0, 0
		rb := tx.Bucket(resultsBucket(runID))
		if rb != nil {
			err := rb.ForEach(func(k, v []byte) error {
				var res pipeline.Result
				if err := json.Unmarshal(v, &res); err != nil {
					return err
				}
				run.Units++
				switch res.Status {
				case pipeline.StatusFailed:
					run.Failed++
				case pipeline.StatusSkipped:
					run.Skipped++
				}
				return nil
			})
			if err != nil {
				return err
			}
		}

		run.Finished = time.Now().UTC()
		out, err := json.Marshal(run)
		if err != nil {
			return err
		}
		return b.Put([]byte(runID), out)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to finish run: %v", err)
	}
	return &run, nil
}

// GetRun retrieves a run by ID
func (l *Ledger) GetRun(id string) (*Run, error) {
	var run Run
	err := l.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRuns).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("run not found: %s", id)
		}
		return json.Unmarshal(data, &run)
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// LastRun returns the most recently started run for the network, or the
// most recent run overall when network is empty. A ledger without a
// matching run returns nil.
func (l *Ledger) LastRun(network string) (*Run, error) {
	var last *Run
	err := l.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRuns).ForEach(func(k, v []byte) error {
			var run Run
			if err := json.Unmarshal(v, &run); err != nil {
				return err
			}
			if network != "" && run.Network != network {
				return nil
			}
			if last == nil || run.Started.After(last.Started) {
				last = &run
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return last, nil
}

// Results returns every recorded outcome for the run, ordered by unit key
func (l *Ledger) Results(runID string) ([]pipeline.Result, error) {
	var results []pipeline.Result
	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(resultsBucket(runID))
		if b == nil {
			return fmt.Errorf("run not found: %s", runID)
		}
		return b.ForEach(func(k, v []byte) error {
			var res pipeline.Result
			if err := json.Unmarshal(v, &res); err != nil {
				return err
			}
			results = append(results, res)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Failures returns the failed outcomes for the run, ordered by unit key
func (l *Ledger) Failures(runID string) ([]pipeline.Result, error) {
	results, err := l.Results(runID)
	if err != nil {
		return nil, err
	}
	var failures []pipeline.Result
	for _, res := range results {
		if res.Failed() {
			failures = append(failures, res)
		}
	}
	return failures, nil
}

// WriteErrorLogs appends the run's failures to the error log files in dir,
// splitting per-instrument failures from combined-product ones. A unit with
// no instrument is a combined product. Files are only touched when failures
// of their kind exist. Returns how many failures each file received.
func (l *Ledger) WriteErrorLogs(runID, dir string) (individual, combined int, err error) {
	failures, err := l.Failures(runID)
	if err != nil {
		return 0, 0, err
	}

	var ind, comb []pipeline.Result
	for _, res := range failures {
		if res.Unit.Instrument == "" {
			comb = append(comb, res)
		} else {
			ind = append(ind, res)
		}
	}

	if err := appendErrorLog(filepath.Join(dir, ErrorLogIndividual), ind); err != nil {
		return 0, 0, err
	}
	if err := appendErrorLog(filepath.Join(dir, ErrorLogCombined), comb); err != nil {
		return 0, 0, err
	}
	return len(ind), len(comb), nil
}

// ClearErrorLogs removes both error log files from dir. Missing files are
// not an error.
func ClearErrorLogs(dir string) error {
	for _, name := range []string{ErrorLogIndividual, ErrorLogCombined} {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %v", name, err)
		}
	}
	return nil
}

func appendErrorLog(file string, failures []pipeline.Result) error {
	if len(failures) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Processing attempted on %s\n",
		time.Now().UTC().Format("2006-01-02 15:04:05"))
	for _, res := range failures {
		fmt.Fprintf(&b, "%s %s: %s\n", res.Unit.Site, res.Unit.Species, res.Message)
	}

	f, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open error log: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("failed to write error log: %v", err)
	}
	return nil
}

func resultsBucket(runID string) []byte {
	return []byte("results:" + runID)
}
