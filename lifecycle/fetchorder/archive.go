// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package fetchorder

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

// ArchiveFetcher restores product bytes from an archive directory back into
// the data store directories. A restore becomes due RestoreDelay after it
// was started and the copy happens when its status is next inspected.
//
// Job IDs carry the object and the due time, so jobs started by another
// process are resumed from the job ID alone.
type ArchiveFetcher struct {
	log       *zap.Logger
	archive   string
	storesDir string
	delay     time.Duration
	clock     clock.PassiveClock

	mu   sync.Mutex
	jobs map[string]*archiveJob
}

type archiveJob struct {
	store    string
	objectID string
	due      time.Time
	state    JobState
}

// NewArchiveFetcher creates a fetcher restoring from archiveDir/<store>/<id>
// into storesDir/<store>/<id>.
func NewArchiveFetcher(log *zap.Logger, archiveDir, storesDir string, delay time.Duration, clk clock.PassiveClock) *ArchiveFetcher {
	return &ArchiveFetcher{
		log:       log,
		archive:   archiveDir,
		storesDir: storesDir,
		delay:     delay,
		clock:     clk,
		jobs:      make(map[string]*archiveJob),
	}
}

// StartFetch starts restoring objectID into store.
func (fetcher *ArchiveFetcher) StartFetch(ctx context.Context, store, objectID string) (_ string, _ *time.Time, err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := os.Stat(fetcher.archivePath(store, objectID)); err != nil {
		if os.IsNotExist(err) {
			return "", nil, ErrNotFound.New("%s is not archived for %s", objectID, store)
		}
		return "", nil, Error.Wrap(err)
	}

	due := fetcher.clock.Now().Add(fetcher.delay)
	jobID := formatJobID(uuid.New(), due, objectID)

	fetcher.mu.Lock()
	fetcher.jobs[jobID] = &archiveJob{
		store:    store,
		objectID: objectID,
		due:      due,
		state:    JobState{Status: Pending, EstimatedCompletion: &due},
	}
	fetcher.mu.Unlock()

	return jobID, &due, nil
}

// JobStatus returns the state of jobID, restoring the bytes once due.
func (fetcher *ArchiveFetcher) JobStatus(ctx context.Context, store, jobID string) (_ JobState, err error) {
	defer mon.Task()(&ctx)(&err)

	fetcher.mu.Lock()
	defer fetcher.mu.Unlock()

	job, ok := fetcher.jobs[jobID]
	if !ok {
		job, err = fetcher.resume(store, jobID)
		if err != nil {
			return JobState{}, err
		}
		fetcher.jobs[jobID] = job
	}
	if job.store != store {
		return JobState{}, ErrNotFound.New("job %s", jobID)
	}
	if job.state.Status.Finished() {
		return job.state, nil
	}

	if fetcher.clock.Now().Before(job.due) {
		job.state = JobState{Status: Running, EstimatedCompletion: &job.due, Message: "restoring from archive"}
		return job.state, nil
	}

	if err := fetcher.restore(job.store, job.objectID); err != nil {
		fetcher.log.Warn("restore from archive failed", zap.String("Store", job.store), zap.String("Object", job.objectID), zap.Error(err))
		job.state = JobState{Status: Failed, Message: err.Error()}
		return job.state, nil
	}
	job.state = JobState{Status: Completed, Message: "restored from archive"}
	return job.state, nil
}

// resume rebuilds a job started by another fetcher. The job must still have
// an archive copy or restored bytes to report on.
func (fetcher *ArchiveFetcher) resume(store, jobID string) (*archiveJob, error) {
	due, objectID, ok := parseJobID(jobID)
	if !ok {
		return nil, ErrNotFound.New("job %s", jobID)
	}

	job := &archiveJob{store: store, objectID: objectID, due: due}
	if _, err := os.Stat(fetcher.archivePath(store, objectID)); err == nil {
		job.state = JobState{Status: Pending, EstimatedCompletion: &job.due}
		return job, nil
	}
	if _, err := os.Stat(fetcher.storePath(store, objectID)); err == nil {
		job.state = JobState{Status: Completed, Message: "restored from archive"}
		return job, nil
	}
	return nil, ErrNotFound.New("job %s: %s is not archived for %s", jobID, objectID, store)
}

func (fetcher *ArchiveFetcher) archivePath(store, objectID string) string {
	return filepath.Join(fetcher.archive, store, objectID)
}

func (fetcher *ArchiveFetcher) storePath(store, objectID string) string {
	return filepath.Join(fetcher.storesDir, store, objectID)
}

func (fetcher *ArchiveFetcher) restore(store, objectID string) (err error) {
	source, err := os.Open(fetcher.archivePath(store, objectID))
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, source.Close()) }()

	target := fetcher.storePath(store, objectID)
	if err := os.MkdirAll(filepath.Dir(target), 0700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+objectID+".restore")
	if err != nil {
		return err
	}
	closed := false
	defer func() {
		if !closed {
			err = errs.Combine(err, tmp.Close())
		}
		if err != nil {
			err = errs.Combine(err, os.Remove(tmp.Name()))
		}
	}()

	if _, err := io.Copy(tmp, source); err != nil {
		return err
	}
	closed = true
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

// formatJobID encodes a job as <uuid>:<due unix nanos>:<object id>.
func formatJobID(id uuid.UUID, due time.Time, objectID string) string {
	return id.String() + ":" + strconv.FormatInt(due.UnixNano(), 10) + ":" + objectID
}

func parseJobID(jobID string) (due time.Time, objectID string, ok bool) {
	parts := strings.SplitN(jobID, ":", 3)
	if len(parts) != 3 || parts[2] == "" {
		return time.Time{}, "", false
	}
	if _, err := uuid.Parse(parts[0]); err != nil {
		return time.Time{}, "", false
	}
	nanos, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return time.Time{}, "", false
	}
	return time.Unix(0, nanos).UTC(), parts[2], true
}
