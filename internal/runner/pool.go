package runner

import (
	"sync"

	"github.com/vhibench/vhibench/internal/trace"
)

// Job is one repository sweep to execute.
type Job struct {
	Repo string
	Run  func() ([]trace.Record, error)
}

// RunPool executes jobs with at most maxWorkers concurrently. Records come
// back flattened in job order regardless of completion order; a failed job
// keeps the records it captured before failing and contributes its error.
func RunPool(maxWorkers int, jobs []Job) ([]trace.Record, []error) {
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	perJob := make([][]trace.Record, len(jobs))
	sem := make(chan struct{}, maxWorkers)

	for i, job := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, j Job) {
			defer wg.Done()
			defer func() { <-sem }()
			recs, err := j.Run()
			perJob[i] = recs
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(i, job)
	}
	wg.Wait()

	var records []trace.Record
	for _, recs := range perJob {
		records = append(records, recs...)
	}
	return records, errs
}
