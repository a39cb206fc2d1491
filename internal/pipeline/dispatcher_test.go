package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"parallax/internal/domain"
)

func TestDispatcherRunsAllQueuedJobs(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	const jobs = 8
	for i := 0; i < jobs; i++ {
		id := fmt.Sprintf("job-%d", i)
		env.createJob(t, id, "img.png", pngBytes(t, 200, 100))
	}

	dispatcher := NewDispatcher(ctx, env.orchestrator, 3, 4, zerolog.Nop())
	for i := 0; i < jobs; i++ {
		task := Task{JobID: fmt.Sprintf("job-%d", i), Filename: "img.png"}
		if err := dispatcher.Enqueue(ctx, task); err != nil {
			t.Fatalf("Enqueue(%d): %v", i, err)
		}
	}
	dispatcher.Close()
	if err := dispatcher.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	for i := 0; i < jobs; i++ {
		job, err := env.ledger.GetJob(ctx, fmt.Sprintf("job-%d", i))
		if err != nil {
			t.Fatalf("GetJob(%d): %v", i, err)
		}
		if job.Status != domain.JobStatusCompleted {
			t.Fatalf("job %d status = %q, want completed", i, job.Status)
		}
	}
}

func TestDispatcherFailedJobDoesNotStopWorkers(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.createJob(t, "broken", "missing.png", nil)
	env.createJob(t, "healthy", "img.png", pngBytes(t, 50, 100))

	dispatcher := NewDispatcher(ctx, env.orchestrator, 1, 4, zerolog.Nop())
	if err := dispatcher.Enqueue(ctx, Task{JobID: "broken", Filename: "missing.png"}); err != nil {
		t.Fatalf("Enqueue(broken): %v", err)
	}
	if err := dispatcher.Enqueue(ctx, Task{JobID: "healthy", Filename: "img.png"}); err != nil {
		t.Fatalf("Enqueue(healthy): %v", err)
	}
	dispatcher.Close()
	if err := dispatcher.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	broken, _ := env.ledger.GetJob(ctx, "broken")
	if broken.Status != domain.JobStatusFailed {
		t.Fatalf("broken job status = %q, want failed", broken.Status)
	}
	healthy, _ := env.ledger.GetJob(ctx, "healthy")
	if healthy.Status != domain.JobStatusCompleted {
		t.Fatalf("healthy job status = %q, want completed", healthy.Status)
	}
}

func TestDispatcherRejectsEnqueueAfterClose(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	dispatcher := NewDispatcher(ctx, env.orchestrator, 1, 1, zerolog.Nop())
	dispatcher.Close()
	if err := dispatcher.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	err := dispatcher.Enqueue(ctx, Task{JobID: "late", Filename: "x.png"})
	if !errors.Is(err, ErrDispatcherClosed) {
		t.Fatalf("Enqueue after Close = %v, want ErrDispatcherClosed", err)
	}
}
